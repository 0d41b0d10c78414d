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
	"strings"
	"time"
)

// Class priorities. Lower values are consulted first.
const (
	EmbeddedClassPriority = 1
	StoreClassPriority    = 50
	HTTPClassPriority     = 100
)

// RepositoryRefConfig is the operator-supplied metadata shared by every
// repository variant.
type RepositoryRefConfig struct {
	Name             string   `yaml:"name" json:"name"`
	InstancePriority int      `yaml:"priority" json:"priority"`
	VendorPrefixes   []string `yaml:"vendor_prefixes" json:"vendorPrefixes"`
}

// NewRepositoryRefConfig validates and returns a repository config
func NewRepositoryRefConfig(name string, instancePriority int, vendorPrefixes ...string) (RepositoryRefConfig, error) {
	if strings.TrimSpace(name) == "" {
		return RepositoryRefConfig{}, fmt.Errorf("repository name cannot be empty")
	}
	if len(vendorPrefixes) == 0 {
		return RepositoryRefConfig{}, fmt.Errorf("repository %q: at least one vendor prefix is required", name)
	}
	prefixes := make([]string, len(vendorPrefixes))
	copy(prefixes, vendorPrefixes)
	return RepositoryRefConfig{
		Name:             name,
		InstancePriority: instancePriority,
		VendorPrefixes:   prefixes,
	}, nil
}

// RepositoryRef is a backend able to look schemas up by key
type RepositoryRef interface {
	// Config returns the operator-supplied metadata
	Config() RepositoryRefConfig

	// ClassPriority is fixed per variant
	ClassPriority() int

	// LookupSchema returns the schema, (nil, nil) when the repository does not
	// hold the key, or a *RegistryError.
	LookupSchema(ctx context.Context, key SchemaKey) (json.RawMessage, error)
}

// VendorMatched reports whether any of the ref's vendor prefixes prefixes the key's vendor
func VendorMatched(ref RepositoryRef, key SchemaKey) bool {
	for _, prefix := range ref.Config().VendorPrefixes {
		if strings.HasPrefix(key.Vendor, prefix) {
			return true
		}
	}
	return false
}

// UnsafeLookupSchema looks up a schema that must be present and panics
// otherwise. It is reserved for schemas bundled with the binary.
func UnsafeLookupSchema(ctx context.Context, ref RepositoryRef, key SchemaKey) json.RawMessage {
	schema, err := ref.LookupSchema(ctx, key)
	if err != nil {
		panic(fmt.Sprintf("schema: bundled schema %s unavailable from %s: %v", key, ref.Config().Name, err))
	}
	if schema == nil {
		panic(fmt.Sprintf("schema: bundled schema %s missing from %s", key, ref.Config().Name))
	}
	return schema
}

// SchemaStore defines the storage operations a StoreRef reads from
type SchemaStore interface {
	// GetSchema returns ErrSchemaNotFound when the key is absent
	GetSchema(ctx context.Context, key SchemaKey) (json.RawMessage, error)
}

// Lookup outcomes reported to a LookupObserver
const (
	OutcomeFound   = "found"
	OutcomeMissing = "not_found"
	OutcomeFailed  = "failed"
)

// LookupObserver receives resolver events, typically for metrics
type LookupObserver interface {
	ObserveLookup(repository, outcome string, duration time.Duration)
	ObserveCache(hit bool)
}
