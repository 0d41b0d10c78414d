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

package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/amtp-protocol/schemaresolver/internal/schema"
	"github.com/amtp-protocol/schemaresolver/internal/types"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	// Request errors
	ErrInvalidRequestFormat ErrorCode = "INVALID_REQUEST_FORMAT"
	ErrInvalidSchemaKey     ErrorCode = "INVALID_SCHEMA_KEY"
	ErrInvalidCriterion     ErrorCode = "INVALID_CRITERION"
	ErrInvalidSchema        ErrorCode = "INVALID_SCHEMA"
	ErrPayloadTooLarge      ErrorCode = "PAYLOAD_TOO_LARGE"

	// Validation errors
	ErrMalformedEnvelope ErrorCode = "MALFORMED_ENVELOPE"
	ErrValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCriterionMismatch ErrorCode = "CRITERION_MISMATCH"

	// Resolution errors
	ErrSchemaNotFound   ErrorCode = "SCHEMA_NOT_FOUND"
	ErrResolutionFailed ErrorCode = "RESOLUTION_FAILED"
	ErrSchemaExists     ErrorCode = "SCHEMA_EXISTS"
	ErrStorageDisabled  ErrorCode = "STORAGE_DISABLED"
	ErrStorageFailed    ErrorCode = "STORAGE_FAILED"
	ErrContextCancelled ErrorCode = "CONTEXT_CANCELLED"
	ErrUpstreamTimeout  ErrorCode = "UPSTREAM_TIMEOUT"

	// Authentication and authorization errors
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrForbidden    ErrorCode = "FORBIDDEN"

	// System errors
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// APIError represents a structured API error
type APIError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	Cause     error                  `json:"-"` // Internal cause, not exposed in JSON
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *APIError) Unwrap() error {
	return e.Cause
}

// ToErrorResponse converts APIError to types.ErrorResponse
func (e *APIError) ToErrorResponse() types.ErrorResponse {
	return types.ErrorResponse{
		Error: types.ErrorDetail{
			Code:      string(e.Code),
			Message:   e.Message,
			Details:   e.Details,
			Timestamp: e.Timestamp,
			RequestID: e.RequestID,
		},
	}
}

// New creates a new APIError
func New(code ErrorCode, message string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Newf creates a new APIError with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *APIError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new APIError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *APIError {
	e := New(code, message)
	e.Cause = cause
	return e
}

// Wrapf creates a new APIError wrapping an existing error with formatted message
func Wrapf(code ErrorCode, cause error, format string, args ...interface{}) *APIError {
	return Wrap(code, fmt.Sprintf(format, args...), cause)
}

// WithDetails adds details to an APIError
func (e *APIError) WithDetails(details map[string]interface{}) *APIError {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to an APIError
func (e *APIError) WithRequestID(requestID string) *APIError {
	e.RequestID = requestID
	return e
}

// IsRetryable reports whether retrying the same request may succeed
func (e *APIError) IsRetryable() bool {
	switch e.Code {
	case ErrResolutionFailed, ErrUpstreamTimeout, ErrServiceUnavailable, ErrStorageFailed:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for the error
func (e *APIError) HTTPStatus() int {
	switch e.Code {
	case ErrInvalidRequestFormat, ErrInvalidSchemaKey, ErrInvalidCriterion,
		ErrInvalidSchema, ErrMalformedEnvelope:
		return http.StatusBadRequest

	case ErrValidationFailed, ErrCriterionMismatch:
		return http.StatusUnprocessableEntity

	case ErrUnauthorized:
		return http.StatusUnauthorized

	case ErrForbidden:
		return http.StatusForbidden

	case ErrSchemaNotFound:
		return http.StatusNotFound

	case ErrSchemaExists:
		return http.StatusConflict

	case ErrPayloadTooLarge:
		return http.StatusRequestEntityTooLarge

	case ErrResolutionFailed:
		return http.StatusBadGateway

	case ErrStorageDisabled, ErrServiceUnavailable, ErrStorageFailed:
		return http.StatusServiceUnavailable

	case ErrUpstreamTimeout:
		return http.StatusGatewayTimeout

	case ErrContextCancelled:
		return 499 // client closed request

	default:
		return http.StatusInternalServerError
	}
}

// FromClientError maps errors from the schema package onto API errors.
// Errors that are already *APIError are returned unchanged.
func FromClientError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}

	var mismatch *schema.CriterionMismatchError
	if stderrors.As(err, &mismatch) {
		return Wrap(ErrCriterionMismatch, mismatch.Error(), err).WithDetails(map[string]interface{}{
			"criterion": mismatch.Criterion.String(),
			"schema":    mismatch.Key.ToURI(),
		})
	}

	var resErr *schema.ResolutionError
	if stderrors.As(err, &resErr) {
		code := ErrResolutionFailed
		message := fmt.Sprintf("Schema %s could not be resolved", resErr.Key.ToURI())
		if resErr.IsNotFound() {
			code = ErrSchemaNotFound
			message = fmt.Sprintf("Schema %s not found in any repository", resErr.Key.ToURI())
		}
		return Wrap(code, message, err).WithDetails(map[string]interface{}{
			"schema":         resErr.Key.ToURI(),
			"lookup_history": HistoryToResponse(resErr.History),
		})
	}

	var valErr *schema.ValidationError
	if stderrors.As(err, &valErr) {
		return Wrap(ErrValidationFailed, fmt.Sprintf("Instance is not valid against %s", valErr.Key.ToURI()), err).
			WithDetails(map[string]interface{}{
				"schema":     valErr.Key.ToURI(),
				"violations": ViolationsToResponse(valErr.Violations),
			})
	}

	var envErr *schema.EnvelopeError
	if stderrors.As(err, &envErr) {
		details := map[string]interface{}{"reason": envErr.Reason}
		if len(envErr.Violations) > 0 {
			details["violations"] = ViolationsToResponse(envErr.Violations)
		}
		return Wrap(ErrMalformedEnvelope, "Instance is not a valid self-describing JSON", err).WithDetails(details)
	}

	switch {
	case stderrors.Is(err, schema.ErrMalformedKey):
		return Wrap(ErrInvalidSchemaKey, err.Error(), err)
	case stderrors.Is(err, schema.ErrSchemaExists):
		return Wrap(ErrSchemaExists, "Schema already exists and cannot be overwritten", err)
	case stderrors.Is(err, schema.ErrSchemaNotFound):
		return Wrap(ErrSchemaNotFound, "Schema not found", err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return Wrap(ErrUpstreamTimeout, "Request timed out", err)
	case stderrors.Is(err, context.Canceled):
		return Wrap(ErrContextCancelled, "Request was cancelled", err)
	}

	return Wrap(ErrInternalError, "Internal server error", err)
}

// HistoryToResponse converts lookup histories into their API form
func HistoryToResponse(history map[string]schema.LookupHistory) map[string]types.RepositoryHistory {
	out := make(map[string]types.RepositoryHistory, len(history))
	for name, h := range history {
		errs := make([]types.RegistryErrorInfo, 0, len(h.Errors))
		for _, re := range h.Errors {
			errs = append(errs, types.RegistryErrorInfo{Kind: string(re.Kind), Message: re.Message})
		}
		sort.Slice(errs, func(i, j int) bool {
			if errs[i].Kind != errs[j].Kind {
				return errs[i].Kind < errs[j].Kind
			}
			return errs[i].Message < errs[j].Message
		})
		out[name] = types.RepositoryHistory{
			Attempts:    h.Attempts,
			LastAttempt: h.LastAttempt,
			Errors:      errs,
		}
	}
	return out
}

// ViolationsToResponse converts validator violations into their API form
func ViolationsToResponse(violations []schema.Violation) []types.Violation {
	out := make([]types.Violation, len(violations))
	for i, v := range violations {
		out[i] = types.Violation{
			InstanceLocation: v.InstanceLocation,
			KeywordLocation:  v.KeywordLocation,
			Message:          v.Message,
		}
	}
	return out
}

// NewValidationError creates a validation error
func NewValidationError(message string, details map[string]interface{}) *APIError {
	return New(ErrValidationFailed, message).WithDetails(details)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *APIError {
	return Newf(ErrSchemaNotFound, "%s not found", resource)
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *APIError {
	return Wrap(ErrInternalError, message, cause)
}

// IsAPIError checks if an error is an APIError
func IsAPIError(err error) bool {
	var apiErr *APIError
	return stderrors.As(err, &apiErr)
}

// AsAPIError converts an error to APIError if possible
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
