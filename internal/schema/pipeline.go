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
	"fmt"
	"time"

	"github.com/amtp-protocol/schemaresolver/internal/logging"
)

// Validation outcomes reported to a ValidationObserver
const (
	ValidationValid      = "valid"
	ValidationInvalid    = "invalid"
	ValidationUnresolved = "unresolved"
	ValidationMalformed  = "malformed"
	ValidationMismatch   = "criterion_mismatch"
)

// ValidationObserver receives pipeline events, typically for metrics
type ValidationObserver interface {
	ObserveValidation(outcome string, duration time.Duration)
}

// PipelineOptions configures a Pipeline
type PipelineOptions struct {
	Logger   *logging.Logger
	Observer ValidationObserver
}

// Pipeline validates instances against schemas resolved through a Resolver
type Pipeline struct {
	resolver  *Resolver
	validator Validator
	envelope  CompiledSchema
	logger    *logging.Logger
	observer  ValidationObserver
}

// NewPipeline creates a validation pipeline. The envelope meta-schema is
// loaded from the bundled repository.
func NewPipeline(resolver *Resolver, validator Validator, opts PipelineOptions) (*Pipeline, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	if validator == nil {
		return nil, fmt.Errorf("validator cannot be nil")
	}

	meta := UnsafeLookupSchema(context.Background(), BootstrapRef(), EnvelopeSchemaKey)
	envelope, err := validator.Compile(EnvelopeSchemaKey, meta)
	if err != nil {
		return nil, fmt.Errorf("failed to compile envelope schema: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Pipeline{
		resolver:  resolver,
		validator: validator,
		envelope:  envelope,
		logger:    logger.WithComponent("pipeline"),
		observer:  opts.Observer,
	}, nil
}

// Resolver returns the resolver used by the pipeline
func (p *Pipeline) Resolver() *Resolver {
	return p.resolver
}

// ValidateSelfDescribing validates a self-describing instance. On success it
// returns the data when dataOnly is set and the instance otherwise.
func (p *Pipeline) ValidateSelfDescribing(ctx context.Context, instance json.RawMessage, dataOnly bool) (json.RawMessage, error) {
	_, out, err := p.ValidateAndIdentifySchema(ctx, instance, dataOnly)
	return out, err
}

// ValidateAndIdentifySchema is ValidateSelfDescribing that also returns the
// instance's schema key.
func (p *Pipeline) ValidateAndIdentifySchema(ctx context.Context, instance json.RawMessage, dataOnly bool) (SchemaKey, json.RawMessage, error) {
	start := time.Now()

	sd, err := ParseSelfDescribing(instance)
	if err != nil {
		p.finish(ctx, SchemaKey{}, ValidationMalformed, start, err)
		return SchemaKey{}, nil, err
	}

	out, err := p.validateParsed(ctx, instance, sd, dataOnly, start)
	return sd.Schema, out, err
}

// VerifySchemaAndValidate validates a self-describing instance whose key must
// satisfy criterion. The criterion is checked before anything is resolved or
// validated.
func (p *Pipeline) VerifySchemaAndValidate(ctx context.Context, instance json.RawMessage, criterion SchemaCriterion, dataOnly bool) (json.RawMessage, error) {
	start := time.Now()

	sd, err := ParseSelfDescribing(instance)
	if err != nil {
		p.finish(ctx, SchemaKey{}, ValidationMalformed, start, err)
		return nil, err
	}

	if !criterion.Matches(sd.Schema) {
		mismatch := &CriterionMismatchError{Criterion: criterion, Key: sd.Schema}
		p.finish(ctx, sd.Schema, ValidationMismatch, start, mismatch)
		return nil, mismatch
	}

	return p.validateParsed(ctx, instance, sd, dataOnly, start)
}

// ValidateInstance validates a raw instance against the schema for key
func (p *Pipeline) ValidateInstance(ctx context.Context, key SchemaKey, instance json.RawMessage) error {
	start := time.Now()
	err := p.validateData(ctx, key, instance)
	p.finish(ctx, key, outcomeOf(err), start, err)
	return err
}

func (p *Pipeline) validateParsed(ctx context.Context, instance json.RawMessage, sd SelfDescribingData, dataOnly bool, start time.Time) (json.RawMessage, error) {
	violations, err := p.envelope.Validate(instance)
	if err != nil {
		envErr := &EnvelopeError{Reason: "instance cannot be validated", Err: err}
		p.finish(ctx, sd.Schema, ValidationMalformed, start, envErr)
		return nil, envErr
	}
	if len(violations) > 0 {
		envErr := &EnvelopeError{
			Reason:     "instance does not conform to " + EnvelopeSchemaKey.String(),
			Violations: violations,
		}
		p.finish(ctx, sd.Schema, ValidationMalformed, start, envErr)
		return nil, envErr
	}

	if err := p.validateData(ctx, sd.Schema, sd.Data); err != nil {
		p.finish(ctx, sd.Schema, outcomeOf(err), start, err)
		return nil, err
	}

	p.finish(ctx, sd.Schema, ValidationValid, start, nil)
	if dataOnly {
		return sd.Data, nil
	}
	return instance, nil
}

// validateData resolves the schema for key and validates data against it.
// Errors are ClientError values.
func (p *Pipeline) validateData(ctx context.Context, key SchemaKey, data json.RawMessage) error {
	schema, err := p.resolver.ResolveSchema(ctx, key)
	if err != nil {
		return err
	}

	compiled, err := p.validator.Compile(key, schema)
	if err != nil {
		return &ValidationError{
			Key:        key,
			Violations: []Violation{{Message: "invalid schema: " + err.Error()}},
		}
	}

	violations, err := compiled.Validate(data)
	if err != nil {
		return &ValidationError{
			Key:        key,
			Violations: []Violation{{Message: "invalid instance: " + err.Error()}},
		}
	}
	if len(violations) > 0 {
		return &ValidationError{Key: key, Violations: violations}
	}
	return nil
}

func (p *Pipeline) finish(ctx context.Context, key SchemaKey, outcome string, start time.Time, err error) {
	elapsed := time.Since(start)
	if p.observer != nil {
		p.observer.ObserveValidation(outcome, elapsed)
	}

	schema := ""
	if key != (SchemaKey{}) {
		schema = key.String()
	}
	p.logger.WithContext(ctx).LogValidation(schema, outcome, elapsed, err)
}

func outcomeOf(err error) string {
	switch err.(type) {
	case nil:
		return ValidationValid
	case *ResolutionError:
		return ValidationUnresolved
	default:
		return ValidationInvalid
	}
}
