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
	"sync"
)

// MockRef implements RepositoryRef for testing. It counts lookups and serves
// schemas and errors registered per key.
type MockRef struct {
	config   RepositoryRefConfig
	priority int

	mu      sync.Mutex
	schemas map[SchemaKey]json.RawMessage
	errors  map[SchemaKey]error
	calls   []SchemaKey
}

// NewMockRef creates a mock repository with the given class priority
func NewMockRef(name string, classPriority, instancePriority int, vendorPrefixes ...string) *MockRef {
	if len(vendorPrefixes) == 0 {
		vendorPrefixes = []string{"*"}
	}
	return &MockRef{
		config: RepositoryRefConfig{
			Name:             name,
			InstancePriority: instancePriority,
			VendorPrefixes:   vendorPrefixes,
		},
		priority: classPriority,
		schemas:  make(map[SchemaKey]json.RawMessage),
		errors:   make(map[SchemaKey]error),
	}
}

// AddSchema registers a schema served for key
func (m *MockRef) AddSchema(key SchemaKey, schema json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas[key] = schema
}

// SetError registers an error returned for key
func (m *MockRef) SetError(key SchemaKey, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[key] = err
}

// Calls returns the number of lookups performed
func (m *MockRef) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Config returns the repository config
func (m *MockRef) Config() RepositoryRefConfig {
	return m.config
}

// ClassPriority returns the configured class priority
func (m *MockRef) ClassPriority() int {
	return m.priority
}

// LookupSchema serves the registered error or schema for key
func (m *MockRef) LookupSchema(ctx context.Context, key SchemaKey) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, key)
	if err, exists := m.errors[key]; exists {
		return nil, err
	}
	return m.schemas[key], nil
}

// MockValidator implements Validator for testing. Compiled schemas report the
// violations registered for their key.
type MockValidator struct {
	mu          sync.Mutex
	violations  map[SchemaKey][]Violation
	compiles    []SchemaKey
	validations []SchemaKey
}

// NewMockValidator creates a new mock validator
func NewMockValidator() *MockValidator {
	return &MockValidator{
		violations: make(map[SchemaKey][]Violation),
	}
}

// SetViolations registers violations reported for instances of key
func (m *MockValidator) SetViolations(key SchemaKey, violations []Violation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations[key] = violations
}

// Compiles returns the keys compiled so far
func (m *MockValidator) Compiles() []SchemaKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SchemaKey, len(m.compiles))
	copy(out, m.compiles)
	return out
}

// Validations returns the number of Validate calls
func (m *MockValidator) Validations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.validations)
}

// Compile records the call and returns a compiled schema for key
func (m *MockValidator) Compile(key SchemaKey, schema json.RawMessage) (CompiledSchema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compiles = append(m.compiles, key)
	return &mockCompiled{parent: m, key: key}, nil
}

type mockCompiled struct {
	parent *MockValidator
	key    SchemaKey
}

func (c *mockCompiled) Validate(instance json.RawMessage) ([]Violation, error) {
	c.parent.mu.Lock()
	defer c.parent.mu.Unlock()
	c.parent.validations = append(c.parent.validations, c.key)
	return c.parent.violations[c.key], nil
}
