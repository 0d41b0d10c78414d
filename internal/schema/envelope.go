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
	"encoding/json"

	gojson "github.com/goccy/go-json"
)

// EnvelopeSchemaKey identifies the meta-schema every self-describing instance
// must conform to.
var EnvelopeSchemaKey = SchemaKey{
	Vendor:  "com.snowplowanalytics.self-desc",
	Name:    "instance-iglu-only",
	Format:  "jsonschema",
	Version: SchemaVer{Model: 1, Revision: 0, Addition: 0},
}

// SelfDescribingData is an instance that carries the key of its own schema
type SelfDescribingData struct {
	Schema SchemaKey
	Data   json.RawMessage
}

type envelope struct {
	Schema *string         `json:"schema"`
	Data   json.RawMessage `json:"data"`
}

// ParseSelfDescribing splits instance into its schema key and data
func ParseSelfDescribing(instance json.RawMessage) (SelfDescribingData, error) {
	var env envelope
	if err := gojson.Unmarshal(instance, &env); err != nil {
		return SelfDescribingData{}, &EnvelopeError{Reason: "instance is not a JSON object", Err: err}
	}
	if env.Schema == nil {
		return SelfDescribingData{}, &EnvelopeError{Reason: "missing schema field"}
	}
	if env.Data == nil {
		return SelfDescribingData{}, &EnvelopeError{Reason: "missing data field"}
	}

	key, err := ParseSchemaKey(*env.Schema)
	if err != nil {
		return SelfDescribingData{}, &EnvelopeError{Reason: "invalid schema field", Err: err}
	}

	return SelfDescribingData{Schema: key, Data: env.Data}, nil
}

// Normalize re-assembles the envelope
func (sd SelfDescribingData) Normalize() (json.RawMessage, error) {
	uri := sd.Schema.ToURI()
	return gojson.Marshal(envelope{Schema: &uri, Data: sd.Data})
}
