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
	"fmt"
	"strings"
)

// Storage backends accepted by NewStorage
const (
	TypeMemory   = "memory"
	TypeDatabase = "database"
	TypePostgres = "postgres"
)

// NewStorage creates the schema storage selected by config.Type. An empty type
// selects memory storage; "postgres" is accepted as an alias for "database".
func NewStorage(config StorageConfig) (SchemaStorage, error) {
	switch strings.ToLower(strings.TrimSpace(config.Type)) {
	case "", TypeMemory:
		var memConfig MemoryStorageConfig
		if config.Memory != nil {
			memConfig = *config.Memory
		}
		if memConfig.MaxSchemas < 0 {
			return nil, fmt.Errorf("memory storage: max_schemas cannot be negative")
		}
		return NewMemoryStorage(memConfig), nil

	case TypeDatabase, TypePostgres:
		if config.Database == nil || strings.TrimSpace(config.Database.ConnectionString) == "" {
			return nil, fmt.Errorf("database storage: connection string is required")
		}
		ds, err := NewDatabaseStorage(*config.Database)
		if err != nil {
			return nil, fmt.Errorf("database storage: %w", err)
		}
		return ds, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}
