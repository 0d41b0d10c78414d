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
	"errors"
	"fmt"
	"time"

	"github.com/amtp-protocol/schemaresolver/internal/logging"
)

// Manager wires repositories, the resolver and the validation pipeline
type Manager struct {
	resolver  *Resolver
	pipeline  *Pipeline
	validator Validator
	bypass    *BypassManager
	logger    *logging.Logger
}

// ManagerConfig holds configuration for the schema manager
type ManagerConfig struct {
	CacheTTL     time.Duration
	CacheSize    int
	Repositories []RepositoryDescriptor
	Validation   ValidatorConfig
	Bypass       BypassConfig

	// Store backs store connections
	Store SchemaStore

	// SkipBootstrap leaves out the bundled repository
	SkipBootstrap bool

	Logger             *logging.Logger
	LookupObserver     LookupObserver
	ValidationObserver ValidationObserver
}

// ManagerConfigFrom converts a parsed resolver configuration
func ManagerConfigFrom(cfg *ResolverConfig) ManagerConfig {
	return ManagerConfig{
		CacheTTL:     cfg.TTL(),
		CacheSize:    cfg.CacheSize,
		Repositories: cfg.Repositories,
	}
}

// NewManager creates a new schema manager with all components
func NewManager(config ManagerConfig) (*Manager, error) {
	refs, err := BuildRepositories(config.Repositories, config.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}
	if !config.SkipBootstrap {
		refs = append([]RepositoryRef{BootstrapRef()}, refs...)
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	resolver, err := NewResolver(refs, ResolverOptions{
		CacheTTL:  config.CacheTTL,
		CacheSize: config.CacheSize,
		Logger:    logger,
		Observer:  config.LookupObserver,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	validator := NewJSONSchemaValidator(config.Validation)
	pipeline, err := NewPipeline(resolver, validator, PipelineOptions{
		Logger:   logger,
		Observer: config.ValidationObserver,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create validation pipeline: %w", err)
	}

	return &Manager{
		resolver:  resolver,
		pipeline:  pipeline,
		validator: validator,
		bypass:    NewBypassManager(config.Bypass),
		logger:    logger.WithComponent("schema_manager"),
	}, nil
}

// Resolver returns the resolver
func (m *Manager) Resolver() *Resolver {
	return m.resolver
}

// Pipeline returns the validation pipeline
func (m *Manager) Pipeline() *Pipeline {
	return m.pipeline
}

// LookupSchema resolves the schema for key
func (m *Manager) LookupSchema(ctx context.Context, key SchemaKey) (json.RawMessage, error) {
	return m.resolver.ResolveSchema(ctx, key)
}

// CheckSchema reports whether schema compiles
func (m *Manager) CheckSchema(key SchemaKey, schema json.RawMessage) error {
	_, err := m.validator.Compile(key, schema)
	return err
}

// ValidateRequest selects how a self-describing instance is validated
type ValidateRequest struct {
	Instance  json.RawMessage
	Criterion *SchemaCriterion
	DataOnly  bool
}

// ValidationReport summarizes a validation that did not fail outright
type ValidationReport struct {
	Schema         string          `json:"schema"`
	Valid          bool            `json:"valid"`
	Bypassed       bool            `json:"bypassed,omitempty"`
	BypassReason   string          `json:"bypass_reason,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	ProcessingTime time.Duration   `json:"processing_time"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Validate validates a self-describing instance. A resolution failure that
// the bypass policy allows is reported as a bypassed report instead of an
// error.
func (m *Manager) Validate(ctx context.Context, req ValidateRequest) (*ValidationReport, error) {
	start := time.Now()

	var (
		key SchemaKey
		out json.RawMessage
		err error
	)
	if req.Criterion != nil {
		out, err = m.pipeline.VerifySchemaAndValidate(ctx, req.Instance, *req.Criterion, req.DataOnly)
		if sd, parseErr := ParseSelfDescribing(req.Instance); parseErr == nil {
			key = sd.Schema
		}
	} else {
		key, out, err = m.pipeline.ValidateAndIdentifySchema(ctx, req.Instance, req.DataOnly)
	}

	report := &ValidationReport{
		Schema:    key.String(),
		Timestamp: time.Now().UTC(),
	}

	if err != nil {
		if !m.bypass.ShouldBypass(key, err) {
			return nil, err
		}

		var resErr *ResolutionError
		errors.As(err, &resErr)
		m.logger.WithContext(logging.WithSchema(ctx, key.String())).Warn("Schema not found in any repository, passing instance through")

		report.Bypassed = true
		report.BypassReason = resErr.Error()
		report.Result = req.Instance
		if req.DataOnly {
			if sd, parseErr := ParseSelfDescribing(req.Instance); parseErr == nil {
				report.Result = sd.Data
			}
		}
		report.ProcessingTime = time.Since(start)
		return report, nil
	}

	report.Valid = true
	report.Result = out
	report.ProcessingTime = time.Since(start)
	return report, nil
}

// GetStats returns comprehensive statistics
func (m *Manager) GetStats() *ManagerStats {
	refs := m.resolver.Repositories()
	repos := make([]RepositoryInfo, 0, len(refs))
	for _, ref := range refs {
		cfg := ref.Config()
		repos = append(repos, RepositoryInfo{
			Name:             cfg.Name,
			ClassPriority:    ref.ClassPriority(),
			InstancePriority: cfg.InstancePriority,
			VendorPrefixes:   cfg.VendorPrefixes,
		})
	}

	return &ManagerStats{
		Repositories: repos,
		Cache:        m.resolver.CacheStats(),
		Bypass:       m.bypass.GetBypassInfo(),
	}
}

// RepositoryInfo describes one configured repository
type RepositoryInfo struct {
	Name             string   `json:"name"`
	ClassPriority    int      `json:"class_priority"`
	InstancePriority int      `json:"instance_priority"`
	VendorPrefixes   []string `json:"vendor_prefixes"`
}

// ManagerStats represents comprehensive manager statistics
type ManagerStats struct {
	Repositories []RepositoryInfo `json:"repositories"`
	Cache        CacheStats       `json:"cache"`
	Bypass       *BypassInfo      `json:"bypass"`
}
