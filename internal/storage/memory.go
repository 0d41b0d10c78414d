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

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/amtp-protocol/schemaresolver/internal/schema"
)

// MemoryStorage implements SchemaStorage using an in-memory map
type MemoryStorage struct {
	config    MemoryStorageConfig
	schemas   map[schema.SchemaKey]*StoredSchema
	mu        sync.RWMutex
	createdAt time.Time
}

// NewMemoryStorage creates a new in-memory storage instance
func NewMemoryStorage(config MemoryStorageConfig) *MemoryStorage {
	return &MemoryStorage{
		config:    config,
		schemas:   make(map[schema.SchemaKey]*StoredSchema),
		createdAt: time.Now().UTC(),
	}
}

// StoreSchema stores a schema document in memory
func (ms *MemoryStorage) StoreSchema(ctx context.Context, key schema.SchemaKey, body json.RawMessage) error {
	if len(body) == 0 || !gojson.Valid(body) {
		return fmt.Errorf("schema body for %s is not valid JSON", key)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.schemas[key]; exists {
		return fmt.Errorf("%w: %s", schema.ErrSchemaExists, key)
	}
	if ms.config.MaxSchemas > 0 && len(ms.schemas) >= ms.config.MaxSchemas {
		return fmt.Errorf("storage capacity exceeded: maximum %d schemas", ms.config.MaxSchemas)
	}

	stored := make(json.RawMessage, len(body))
	copy(stored, body)
	ms.schemas[key] = &StoredSchema{
		Key:       key,
		Body:      stored,
		Checksum:  checksum(stored),
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// GetSchema retrieves a schema body by key
func (ms *MemoryStorage) GetSchema(ctx context.Context, key schema.SchemaKey) (json.RawMessage, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	stored, ok := ms.schemas[key]
	if !ok {
		return nil, schema.ErrSchemaNotFound
	}
	body := make(json.RawMessage, len(stored.Body))
	copy(body, stored.Body)
	return body, nil
}

// ListSchemas lists stored schemas ordered by key, optionally for one vendor
func (ms *MemoryStorage) ListSchemas(ctx context.Context, vendor string) ([]*StoredSchema, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var result []*StoredSchema
	for key, stored := range ms.schemas {
		if vendor != "" && key.Vendor != vendor {
			continue
		}
		entry := *stored
		result = append(result, &entry)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].Key, result[j].Key
		if a.Vendor != b.Vendor {
			return a.Vendor < b.Vendor
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Format != b.Format {
			return a.Format < b.Format
		}
		return a.Version.Compare(b.Version) < 0
	})
	return result, nil
}

// DeleteSchema removes a schema by key
func (ms *MemoryStorage) DeleteSchema(ctx context.Context, key schema.SchemaKey) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.schemas[key]; !ok {
		return schema.ErrSchemaNotFound
	}
	delete(ms.schemas, key)
	return nil
}

// Close is a no-op for memory storage
func (ms *MemoryStorage) Close() error {
	return nil
}

// HealthCheck always succeeds for memory storage
func (ms *MemoryStorage) HealthCheck(ctx context.Context) error {
	return nil
}

// GetStats returns storage statistics
func (ms *MemoryStorage) GetStats(ctx context.Context) (StorageStats, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	stats := StorageStats{
		TotalSchemas: int64(len(ms.schemas)),
		Vendors:      make(map[string]int64),
	}
	for key := range ms.schemas {
		stats.Vendors[key.Vendor]++
	}
	return stats, nil
}
