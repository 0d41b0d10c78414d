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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/amtp-protocol/schemaresolver/internal/schema"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SchemaRecord is the persisted form of a schema document
type SchemaRecord struct {
	ID        uint           `gorm:"primarykey" json:"-"`
	Vendor    string         `gorm:"size:255;not null;uniqueIndex:idx_schema_key;index" json:"vendor"`
	Name      string         `gorm:"size:255;not null;uniqueIndex:idx_schema_key" json:"name"`
	Format    string         `gorm:"size:64;not null;uniqueIndex:idx_schema_key" json:"format"`
	Model     int            `gorm:"not null;uniqueIndex:idx_schema_key" json:"model"`
	Revision  int            `gorm:"not null;uniqueIndex:idx_schema_key" json:"revision"`
	Addition  int            `gorm:"not null;uniqueIndex:idx_schema_key" json:"addition"`
	Body      datatypes.JSON `gorm:"type:jsonb;not null" json:"body"`
	Checksum  string         `gorm:"size:64;not null" json:"checksum"`
	CreatedAt time.Time      `gorm:"type:timestamptz;not null;default:now()" json:"created_at"`
}

// TableName specify table name
func (SchemaRecord) TableName() string {
	return "schemas"
}

// BeforeCreate fills in the checksum and creation time
func (r *SchemaRecord) BeforeCreate(tx *gorm.DB) error {
	if r.Checksum == "" {
		r.Checksum = checksum(r.Body)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Key returns the schema key of the record
func (r *SchemaRecord) Key() schema.SchemaKey {
	return schema.SchemaKey{
		Vendor: r.Vendor,
		Name:   r.Name,
		Format: r.Format,
		Version: schema.SchemaVer{
			Model:    r.Model,
			Revision: r.Revision,
			Addition: r.Addition,
		},
	}
}

// ToStoredSchema converts the record to its domain form
func (r *SchemaRecord) ToStoredSchema() *StoredSchema {
	return &StoredSchema{
		Key:       r.Key(),
		Body:      json.RawMessage(r.Body),
		Checksum:  r.Checksum,
		CreatedAt: r.CreatedAt,
	}
}

func newSchemaRecord(key schema.SchemaKey, body json.RawMessage) *SchemaRecord {
	return &SchemaRecord{
		Vendor:   key.Vendor,
		Name:     key.Name,
		Format:   key.Format,
		Model:    key.Version.Model,
		Revision: key.Version.Revision,
		Addition: key.Version.Addition,
		Body:     datatypes.JSON(body),
		Checksum: checksum(body),
	}
}

func checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
