/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/amtp-protocol/schemaresolver/internal/config"
	"github.com/amtp-protocol/schemaresolver/internal/schema"
	"github.com/amtp-protocol/schemaresolver/internal/storage"
)

// defaultStoreRepository is the repository added for published schemas when
// storage is enabled and no store repository is configured
const defaultStoreRepository = "Published Schemas"

func storageType(cfg config.StorageConfig) string {
	t := strings.ToLower(cfg.Type)
	if t == "" {
		return storage.TypeMemory
	}
	return t
}

// newStorage creates the configured storage, or nil when storage is disabled
func newStorage(cfg config.StorageConfig) (storage.SchemaStorage, error) {
	switch storageType(cfg) {
	case "none":
		return nil, nil
	case storage.TypeDatabase, storage.TypePostgres:
		return storage.NewStorage(storage.StorageConfig{
			Type: storage.TypeDatabase,
			Database: &storage.DatabaseStorageConfig{
				Driver:           cfg.Database.Driver,
				ConnectionString: cfg.Database.ConnectionString,
				MaxConnections:   cfg.Database.MaxConnections,
				MaxIdleTime:      cfg.Database.MaxIdleTime,
				AutoMigrate:      cfg.Database.AutoMigrate,
			},
		})
	default:
		return storage.NewStorage(storage.StorageConfig{
			Type:   storage.TypeMemory,
			Memory: &storage.MemoryStorageConfig{MaxSchemas: cfg.MaxSchemas},
		})
	}
}

// buildManagerConfig maps the service configuration onto the schema manager.
// A resolver config file, when set, replaces the cache and repository
// settings from the YAML configuration.
func buildManagerConfig(ctx context.Context, cfg *config.Config, store storage.SchemaStorage) (schema.ManagerConfig, error) {
	var managerConfig schema.ManagerConfig

	if cfg.Resolver.ConfigFile != "" {
		data, err := os.ReadFile(filepath.Clean(cfg.Resolver.ConfigFile))
		if err != nil {
			return managerConfig, fmt.Errorf("failed to read resolver config: %w", err)
		}
		resolverConfig, err := schema.ParseResolverConfig(ctx, data)
		if err != nil {
			return managerConfig, err
		}
		managerConfig = schema.ManagerConfigFrom(resolverConfig)
	} else {
		managerConfig.CacheTTL = cfg.Resolver.CacheTTL
		managerConfig.CacheSize = cfg.Resolver.CacheSize
		for _, repo := range cfg.Resolver.Repositories {
			descriptor, err := repositoryDescriptor(repo)
			if err != nil {
				return managerConfig, err
			}
			managerConfig.Repositories = append(managerConfig.Repositories, descriptor)
		}
	}

	if store != nil {
		managerConfig.Store = store
		if !hasStoreRepository(managerConfig.Repositories) {
			managerConfig.Repositories = append(managerConfig.Repositories, schema.RepositoryDescriptor{
				Name:           defaultStoreRepository,
				Priority:       0,
				VendorPrefixes: []string{"*"},
				Connection:     schema.Connection{Store: &schema.StoreConnection{}},
			})
		}
	}

	managerConfig.SkipBootstrap = cfg.Resolver.SkipBootstrap
	managerConfig.Validation = schema.ValidatorConfig{
		AssertFormat:   cfg.Validation.AssertFormat,
		MaxPayloadSize: cfg.Validation.MaxPayloadSize,
	}
	managerConfig.Bypass = schema.BypassConfig{
		Enabled:        cfg.Bypass.Enabled,
		TrustedVendors: cfg.Bypass.TrustedVendors,
	}

	return managerConfig, nil
}

func hasStoreRepository(descriptors []schema.RepositoryDescriptor) bool {
	for _, d := range descriptors {
		if d.Connection.Store != nil {
			return true
		}
	}
	return false
}

// repositoryDescriptor converts one YAML repository entry
func repositoryDescriptor(repo config.RepositoryConfig) (schema.RepositoryDescriptor, error) {
	descriptor := schema.RepositoryDescriptor{
		Name:           repo.Name,
		Priority:       repo.Priority,
		VendorPrefixes: repo.VendorPrefixes,
	}

	switch strings.ToLower(repo.Type) {
	case "embedded":
		descriptor.Connection.Embedded = &schema.EmbeddedConnection{Path: repo.Path}
	case "local":
		descriptor.Connection.Local = &schema.LocalConnection{Dir: repo.Dir, Path: repo.Path}
	case "http":
		descriptor.Connection.HTTP = &schema.HTTPRefConfig{
			URI:            repo.URI,
			APIKey:         repo.APIKey,
			ConnectTimeout: repo.ConnectTimeout,
			ReadTimeout:    repo.ReadTimeout,
			Headers:        repo.Headers,
			TLS: schema.TLSConfig{
				InsecureSkipVerify: repo.InsecureSkipVerify,
				CAFile:             repo.CAFile,
			},
		}
	case "store":
		descriptor.Connection.Store = &schema.StoreConnection{}
	default:
		return descriptor, fmt.Errorf("repository %s: unsupported type %q", repo.Name, repo.Type)
	}

	return descriptor, nil
}
