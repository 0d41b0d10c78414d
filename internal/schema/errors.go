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
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSchemaNotFound is returned by a SchemaStore that does not hold a key
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrSchemaExists is returned when storing a key that is already present
	ErrSchemaExists = errors.New("schema already exists")

	// ErrMalformedEnvelope is matched by every *EnvelopeError
	ErrMalformedEnvelope = errors.New("malformed self-describing envelope")
)

// RegistryErrorKind classifies why one repository failed to produce a schema
type RegistryErrorKind string

const (
	NotFound         RegistryErrorKind = "NotFound"
	ConnectionFailed RegistryErrorKind = "ConnectionFailed"
	ClientFailure    RegistryErrorKind = "ClientFailure"
	ServerFailure    RegistryErrorKind = "ServerFailure"
	ParseFailure     RegistryErrorKind = "ParseFailure"
)

// RegistryError is the outcome of a failed lookup against a single repository
type RegistryError struct {
	Kind    RegistryErrorKind `json:"kind"`
	Message string            `json:"message,omitempty"`
}

// NewRegistryError creates a registry error with a formatted message
func NewRegistryError(kind RegistryErrorKind, format string, args ...interface{}) *RegistryError {
	return &RegistryError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *RegistryError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// asRegistryError normalizes any lookup error into the closed taxonomy
func asRegistryError(err error) RegistryError {
	var re *RegistryError
	if errors.As(err, &re) {
		return *re
	}
	return RegistryError{Kind: ClientFailure, Message: err.Error()}
}

// ClientError is implemented by the two failures surfaced to callers of the
// validation pipeline: *ResolutionError and *ValidationError.
type ClientError interface {
	error
	clientError()
}

// ResolutionError is returned once every repository has been tried for a key
// without producing a schema.
type ResolutionError struct {
	Key     SchemaKey                `json:"key"`
	History map[string]LookupHistory `json:"history"`
}

func (e *ResolutionError) clientError() {}

// IsNotFound reports whether every recorded failure is NotFound, meaning the
// schema is genuinely absent rather than the repositories being unhealthy.
func (e *ResolutionError) IsNotFound() bool {
	for _, h := range e.History {
		for _, re := range h.Errors {
			if re.Kind != NotFound {
				return false
			}
		}
	}
	return true
}

func (e *ResolutionError) Error() string {
	names := make([]string, 0, len(e.History))
	for name := range e.History {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		h := e.History[name]
		errs := make([]string, 0, len(h.Errors))
		for i := range h.Errors {
			errs = append(errs, h.Errors[i].Error())
		}
		parts = append(parts, fmt.Sprintf("%s [%s]", name, strings.Join(errs, ", ")))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("cannot resolve %s: no repositories configured", e.Key)
	}
	return fmt.Sprintf("cannot resolve %s: %s", e.Key, strings.Join(parts, "; "))
}

// Violation is a single structural validation failure reported by the validator
type Violation struct {
	InstanceLocation string `json:"instance_location"`
	KeywordLocation  string `json:"keyword_location,omitempty"`
	Message          string `json:"message"`
}

func (v Violation) String() string {
	loc := v.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + v.Message
}

// ValidationError is returned when a schema was resolved but the instance does
// not conform to it. Violations are passed through as reported.
type ValidationError struct {
	Key        SchemaKey   `json:"key"`
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) clientError() {}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.String())
	}
	return fmt.Sprintf("instance is not valid against %s: %s", e.Key, strings.Join(msgs, "; "))
}

// EnvelopeError describes a self-describing instance that cannot be split into
// a schema key and data.
type EnvelopeError struct {
	Reason     string
	Violations []Violation
	Err        error
}

func (e *EnvelopeError) Error() string {
	msg := ErrMalformedEnvelope.Error() + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	for _, v := range e.Violations {
		msg += "; " + v.String()
	}
	return msg
}

func (e *EnvelopeError) Is(target error) bool {
	return target == ErrMalformedEnvelope
}

func (e *EnvelopeError) Unwrap() error {
	return e.Err
}

// CriterionMismatchError is returned when an instance's key does not satisfy
// the criterion a caller required.
type CriterionMismatchError struct {
	Criterion SchemaCriterion
	Key       SchemaKey
}

func (e *CriterionMismatchError) Error() string {
	return fmt.Sprintf("schema key %s does not match criterion %s", e.Key, e.Criterion)
}
