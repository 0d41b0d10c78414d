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
	"time"

	"github.com/amtp-protocol/schemaresolver/internal/schema"
)

// SchemaStorage persists published schema documents. Stored schemas are
// immutable: StoreSchema fails with schema.ErrSchemaExists for a key that is
// already present.
type SchemaStorage interface {
	// Schema operations
	StoreSchema(ctx context.Context, key schema.SchemaKey, body json.RawMessage) error
	GetSchema(ctx context.Context, key schema.SchemaKey) (json.RawMessage, error)
	ListSchemas(ctx context.Context, vendor string) ([]*StoredSchema, error)
	DeleteSchema(ctx context.Context, key schema.SchemaKey) error

	// Maintenance operations
	Close() error
	HealthCheck(ctx context.Context) error
	GetStats(ctx context.Context) (StorageStats, error)
}

// StoredSchema is a schema document together with its storage metadata
type StoredSchema struct {
	Key       schema.SchemaKey
	Body      json.RawMessage
	Checksum  string
	CreatedAt time.Time
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalSchemas int64            `json:"total_schemas"`
	Vendors      map[string]int64 `json:"vendors"`
}

// StorageConfig defines configuration for storage implementations
type StorageConfig struct {
	Type string `yaml:"type" json:"type"` // "memory", "database" or "postgres"

	Memory   *MemoryStorageConfig   `yaml:"memory,omitempty" json:"memory,omitempty"`
	Database *DatabaseStorageConfig `yaml:"database,omitempty" json:"database,omitempty"`
}

// MemoryStorageConfig configures in-memory storage
type MemoryStorageConfig struct {
	MaxSchemas int `yaml:"max_schemas" json:"max_schemas"` // 0 = unlimited
}

// DatabaseStorageConfig configures database storage
type DatabaseStorageConfig struct {
	Driver           string `yaml:"driver" json:"driver"`
	ConnectionString string `yaml:"connection_string" json:"connection_string"`
	MaxConnections   int    `yaml:"max_connections" json:"max_connections"`
	MaxIdleTime      int    `yaml:"max_idle_time" json:"max_idle_time"`
	AutoMigrate      bool   `yaml:"auto_migrate" json:"auto_migrate"`
}
