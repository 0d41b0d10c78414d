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

package types

import (
	"encoding/json"
	"time"
)

// SchemaInfo describes a published schema
type SchemaInfo struct {
	URI       string    `json:"uri"`
	Vendor    string    `json:"vendor"`
	Name      string    `json:"name"`
	Format    string    `json:"format"`
	Version   string    `json:"version"`
	Checksum  string    `json:"checksum,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// SchemaListResponse is returned when listing published schemas
type SchemaListResponse struct {
	Schemas []SchemaInfo `json:"schemas"`
	Count   int          `json:"count"`
}

// PublishSchemaResponse is returned after a schema has been stored
type PublishSchemaResponse struct {
	Schema    SchemaInfo `json:"schema"`
	Validated bool       `json:"validated"`
}

// RegistryErrorInfo is one distinct failure a repository reported for a key
type RegistryErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

// RepositoryHistory summarizes failed lookups against one repository
type RepositoryHistory struct {
	Attempts    int                 `json:"attempts"`
	LastAttempt time.Time           `json:"last_attempt"`
	Errors      []RegistryErrorInfo `json:"errors"`
}

// LookupHistoryResponse is returned by the lookup history endpoint
type LookupHistoryResponse struct {
	Schema       string                       `json:"schema"`
	Repositories map[string]RepositoryHistory `json:"repositories"`
}

// Violation is a single validation failure
type Violation struct {
	InstanceLocation string `json:"instance_location"`
	KeywordLocation  string `json:"keyword_location,omitempty"`
	Message          string `json:"message"`
}

// ValidationResponse is returned by the validation endpoints. Result holds
// either the full instance or only its data, depending on data_only.
type ValidationResponse struct {
	Valid          bool            `json:"valid"`
	Schema         string          `json:"schema,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Bypassed       bool            `json:"bypassed,omitempty"`
	BypassReason   string          `json:"bypass_reason,omitempty"`
	ProcessingTime int64           `json:"processing_time_ms"`
	Timestamp      time.Time       `json:"timestamp"`
}

// RepositoryStatus describes a configured repository
type RepositoryStatus struct {
	Name             string   `json:"name"`
	ClassPriority    int      `json:"class_priority"`
	InstancePriority int      `json:"instance_priority"`
	VendorPrefixes   []string `json:"vendor_prefixes"`
}

// HealthResponse is returned by the health and readiness endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail provides detailed error information
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
}
