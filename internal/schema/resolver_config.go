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

package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gojson "github.com/goccy/go-json"
)

// DefaultCacheTTL applies when a resolver config does not set cacheTtl
const DefaultCacheTTL = 600 * time.Second

// ResolverConfigCriterion matches the resolver configuration documents this
// package understands.
var ResolverConfigCriterion = SchemaCriterion{
	Vendor:   "com.snowplowanalytics.iglu",
	Name:     "resolver-config",
	Format:   "jsonschema",
	Model:    intPtr(1),
	Revision: intPtr(0),
}

func intPtr(n int) *int {
	return &n
}

// ResolverConfig is the data of a self-describing resolver configuration
type ResolverConfig struct {
	CacheSize    int                    `json:"cacheSize"`
	CacheTTL     *int                   `json:"cacheTtl"`
	Repositories []RepositoryDescriptor `json:"repositories"`
}

// RepositoryDescriptor describes one repository to build
type RepositoryDescriptor struct {
	Name           string     `json:"name"`
	Priority       int        `json:"priority"`
	VendorPrefixes []string   `json:"vendorPrefixes"`
	Connection     Connection `json:"connection"`
}

// Connection selects the repository variant. Exactly one field must be set.
type Connection struct {
	Embedded *EmbeddedConnection `json:"embedded,omitempty"`
	HTTP     *HTTPRefConfig      `json:"http,omitempty"`
	Local    *LocalConnection    `json:"local,omitempty"`
	Store    *StoreConnection    `json:"store,omitempty"`
}

// EmbeddedConnection points at a root inside the bundled resources
type EmbeddedConnection struct {
	Path string `json:"path"`
}

// LocalConnection points at a root inside a directory on disk
type LocalConnection struct {
	Dir  string `json:"dir"`
	Path string `json:"path"`
}

// StoreConnection selects the schema store supplied to the Manager
type StoreConnection struct{}

// ParseResolverConfig parses a self-describing resolver configuration. The
// document is validated against the bundled resolver-config schema.
func ParseResolverConfig(ctx context.Context, data json.RawMessage) (*ResolverConfig, error) {
	resolver, err := NewResolver([]RepositoryRef{BootstrapRef()}, ResolverOptions{})
	if err != nil {
		return nil, err
	}
	pipeline, err := NewPipeline(resolver, NewJSONSchemaValidator(ValidatorConfig{}), PipelineOptions{})
	if err != nil {
		return nil, err
	}

	out, err := pipeline.VerifySchemaAndValidate(ctx, data, ResolverConfigCriterion, true)
	if err != nil {
		return nil, fmt.Errorf("invalid resolver config: %w", err)
	}

	var cfg ResolverConfig
	if err := gojson.Unmarshal(out, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode resolver config: %w", err)
	}
	return &cfg, nil
}

// TTL returns the cache TTL the config asks for
func (c *ResolverConfig) TTL() time.Duration {
	if c.CacheTTL == nil {
		return DefaultCacheTTL
	}
	return time.Duration(*c.CacheTTL) * time.Second
}

// BuildRepositories creates the repositories described by descriptors. store
// backs store connections and may be nil when none are configured.
func BuildRepositories(descriptors []RepositoryDescriptor, store SchemaStore) ([]RepositoryRef, error) {
	refs := make([]RepositoryRef, 0, len(descriptors))
	for _, d := range descriptors {
		config, err := NewRepositoryRefConfig(d.Name, d.Priority, d.VendorPrefixes...)
		if err != nil {
			return nil, err
		}

		ref, err := buildRepository(config, d.Connection, store)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func buildRepository(config RepositoryRefConfig, conn Connection, store SchemaStore) (RepositoryRef, error) {
	set := 0
	for _, present := range []bool{conn.Embedded != nil, conn.HTTP != nil, conn.Local != nil, conn.Store != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("repository %q: exactly one connection type is required, got %d", config.Name, set)
	}

	switch {
	case conn.Embedded != nil:
		return NewEmbeddedRef(config, conn.Embedded.Path), nil
	case conn.Local != nil:
		if conn.Local.Dir == "" {
			return nil, fmt.Errorf("repository %q: local dir cannot be empty", config.Name)
		}
		return NewLocalRef(config, conn.Local.Dir, conn.Local.Path), nil
	case conn.HTTP != nil:
		return NewHTTPRef(config, *conn.HTTP)
	default:
		if store == nil {
			return nil, fmt.Errorf("repository %q: store connection requires a schema store", config.Name)
		}
		return NewStoreRef(config, store), nil
	}
}
