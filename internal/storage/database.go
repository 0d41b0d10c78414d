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
	"errors"
	"fmt"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/amtp-protocol/schemaresolver/internal/schema"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type DatabaseStorage struct {
	config DatabaseStorageConfig
	db     *gorm.DB
}

// NewDatabaseStorage creates a new database storage instance. If dbOverride is non-nil, it is used (for testing).
func NewDatabaseStorage(config DatabaseStorageConfig, dbOverride ...*gorm.DB) (*DatabaseStorage, error) {
	var db *gorm.DB
	var err error
	if len(dbOverride) > 0 && dbOverride[0] != nil {
		db = dbOverride[0]
	} else {
		db, err = gorm.Open(
			postgres.New(postgres.Config{
				DriverName: config.Driver,
				DSN:        config.ConnectionString,
			}),
			&gorm.Config{},
		)
		if err != nil {
			return nil, err
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if config.MaxConnections > 0 {
			sqlDB.SetMaxOpenConns(config.MaxConnections)
		}
		if config.MaxIdleTime > 0 {
			sqlDB.SetConnMaxIdleTime(time.Duration(config.MaxIdleTime) * time.Second)
		}

		if config.AutoMigrate {
			if err := db.AutoMigrate(&SchemaRecord{}); err != nil {
				return nil, fmt.Errorf("failed to migrate schema table: %w", err)
			}
		}
	}
	return &DatabaseStorage{
		config: config,
		db:     db,
	}, nil
}

func whereKey(db *gorm.DB, key schema.SchemaKey) *gorm.DB {
	return db.Where("vendor = ? AND name = ? AND format = ? AND model = ? AND revision = ? AND addition = ?",
		key.Vendor, key.Name, key.Format, key.Version.Model, key.Version.Revision, key.Version.Addition)
}

// StoreSchema stores a schema document in the database
func (ds *DatabaseStorage) StoreSchema(ctx context.Context, key schema.SchemaKey, body json.RawMessage) error {
	if len(body) == 0 || !gojson.Valid(body) {
		return fmt.Errorf("schema body for %s is not valid JSON", key)
	}

	record := newSchemaRecord(key, body)
	return ds.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := whereKey(tx.Model(&SchemaRecord{}), key).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check for existing schema: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", schema.ErrSchemaExists, key)
		}

		if err := tx.Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", schema.ErrSchemaExists, key)
			}
			return fmt.Errorf("failed to create schema in database: %w", err)
		}
		return nil
	})
}

// GetSchema retrieves a schema body by key
func (ds *DatabaseStorage) GetSchema(ctx context.Context, key schema.SchemaKey) (json.RawMessage, error) {
	var record SchemaRecord
	if err := whereKey(ds.db.WithContext(ctx), key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, schema.ErrSchemaNotFound
		}
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}

	return json.RawMessage(record.Body), nil
}

// ListSchemas lists stored schemas, optionally restricted to one vendor
func (ds *DatabaseStorage) ListSchemas(ctx context.Context, vendor string) ([]*StoredSchema, error) {
	var records []SchemaRecord
	query := ds.db.WithContext(ctx).Order("vendor, name, format, model, revision, addition")
	if vendor != "" {
		query = query.Where("vendor = ?", vendor)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}

	schemas := make([]*StoredSchema, len(records))
	for i := range records {
		schemas[i] = records[i].ToStoredSchema()
	}
	return schemas, nil
}

// DeleteSchema deletes a schema by key
func (ds *DatabaseStorage) DeleteSchema(ctx context.Context, key schema.SchemaKey) error {
	result := whereKey(ds.db.WithContext(ctx), key).Delete(&SchemaRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete schema: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return schema.ErrSchemaNotFound
	}
	return nil
}

// Close closes the database connection
func (ds *DatabaseStorage) Close() error {
	if ds.db == nil {
		return fmt.Errorf("database instance is nil")
	}
	db, err := ds.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return db.Close()
}

// HealthCheck performs a health check on the database connection
func (ds *DatabaseStorage) HealthCheck(ctx context.Context) error {
	if ds.db == nil {
		return fmt.Errorf("database instance is nil")
	}
	db, err := ds.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// GetStats returns storage statistics
func (ds *DatabaseStorage) GetStats(ctx context.Context) (StorageStats, error) {
	stats := StorageStats{Vendors: make(map[string]int64)}

	if err := ds.db.WithContext(ctx).Model(&SchemaRecord{}).Count(&stats.TotalSchemas).Error; err != nil {
		return stats, fmt.Errorf("failed to count schemas: %w", err)
	}

	var vendorCounts []struct {
		Vendor string
		Count  int64
	}
	if err := ds.db.WithContext(ctx).Model(&SchemaRecord{}).
		Select("vendor, COUNT(*) as count").
		Group("vendor").
		Find(&vendorCounts).Error; err != nil {
		return stats, fmt.Errorf("failed to count schemas by vendor: %w", err)
	}

	for _, vc := range vendorCounts {
		stats.Vendors[vc.Vendor] = vc.Count
	}

	return stats, nil
}
