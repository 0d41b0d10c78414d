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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator compiles schema documents for structural validation
type Validator interface {
	Compile(key SchemaKey, schema json.RawMessage) (CompiledSchema, error)
}

// CompiledSchema validates instances against one compiled schema
type CompiledSchema interface {
	// Validate returns the violations found in instance; an empty result means
	// the instance is valid.
	Validate(instance json.RawMessage) ([]Violation, error)
}

// ValidatorConfig holds configuration for schema validation
type ValidatorConfig struct {
	AssertFormat   bool  `yaml:"assert_format" json:"assert_format"`
	MaxPayloadSize int64 `yaml:"max_payload_size" json:"max_payload_size"`
}

// JSONSchemaValidator implements Validator with draft-4 JSON Schema semantics
type JSONSchemaValidator struct {
	config ValidatorConfig
}

// NewJSONSchemaValidator creates a new JSON schema validator
func NewJSONSchemaValidator(config ValidatorConfig) *JSONSchemaValidator {
	if config.MaxPayloadSize == 0 {
		config.MaxPayloadSize = 10 * 1024 * 1024 // 10MB
	}
	return &JSONSchemaValidator{config: config}
}

// Compile compiles schema. A $schema pointing anywhere other than
// json-schema.org is dropped and the document is compiled as draft 4.
func (v *JSONSchemaValidator) Compile(key SchemaKey, schema json.RawMessage) (CompiledSchema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", key, err)
	}

	if obj, ok := doc.(map[string]any); ok {
		if meta, ok := obj["$schema"].(string); ok && !strings.Contains(meta, "json-schema.org") {
			delete(obj, "$schema")
		}
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft4)
	if v.config.AssertFormat {
		compiler.AssertFormat()
	}

	location := "https://schemas.resolver.internal/" + key.ToPath()
	if err := compiler.AddResource(location, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema %s: %w", key, err)
	}

	compiled, err := compiler.Compile(location)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", key, err)
	}

	return &compiledSchema{schema: compiled, maxPayloadSize: v.config.MaxPayloadSize}, nil
}

type compiledSchema struct {
	schema         *jsonschema.Schema
	maxPayloadSize int64
}

// Validate validates instance against the compiled schema
func (c *compiledSchema) Validate(instance json.RawMessage) ([]Violation, error) {
	if c.maxPayloadSize > 0 && int64(len(instance)) > c.maxPayloadSize {
		return []Violation{{
			InstanceLocation: "",
			Message:          fmt.Sprintf("payload of %d bytes exceeds limit of %d bytes", len(instance), c.maxPayloadSize),
		}}, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(instance))
	if err != nil {
		return nil, fmt.Errorf("failed to parse instance: %w", err)
	}

	err = c.schema.Validate(doc)
	if err == nil {
		return nil, nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return nil, err
	}

	var violations []Violation
	collectViolations(*verr.DetailedOutput(), &violations)
	if len(violations) == 0 {
		violations = append(violations, Violation{Message: verr.Error()})
	}
	return violations, nil
}

// collectViolations appends the leaves of a detailed output tree
func collectViolations(unit jsonschema.OutputUnit, out *[]Violation) {
	if len(unit.Errors) == 0 {
		if unit.Error != nil {
			*out = append(*out, Violation{
				InstanceLocation: unit.InstanceLocation,
				KeywordLocation:  unit.KeywordLocation,
				Message:          unit.Error.String(),
			})
		}
		return
	}
	for _, child := range unit.Errors {
		collectViolations(child, out)
	}
}
