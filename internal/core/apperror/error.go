// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All allocator errors surfaced to callers use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal         = "INTERNAL_ERROR"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"

	// Validation errors (400)
	CodeValidation    = "VALIDATION_ERROR"
	CodeInvalidEntity = "INVALID_ENTITY"

	// Allocation failures (409 / 507)
	CodeCollision         = "COLLISION"
	CodeRetriesExhausted  = "RETRIES_EXHAUSTED"
	CodeCapacityExhausted = "CAPACITY_EXHAUSTED"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (key, attempts, lengths, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidEntity is returned for entity types missing from the prefix table.
// Never retried.
func NewInvalidEntity(entityType string, known []string) *AppError {
	return &AppError{
		Code:       CodeInvalidEntity,
		Message:    fmt.Sprintf("entity type %q is not valid", entityType),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"entity_type": entityType, "valid_entities": known},
	}
}

// NewCollision describes a claim or registration that found an existing record.
// Internal: the allocator retries it and only surfaces RetriesExhausted.
func NewCollision(id, stage string) *AppError {
	return &AppError{
		Code:       CodeCollision,
		Message:    "identifier already issued",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"id": id, "stage": stage},
	}
}

// NewRetriesExhausted is returned when every attempt at a digit length collided.
func NewRetriesExhausted(sequenceKey string, attempts int) *AppError {
	return &AppError{
		Code:       CodeRetriesExhausted,
		Message:    fmt.Sprintf("could not allocate a unique identifier after %d attempts", attempts),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"sequence_key": sequenceKey, "attempts": attempts},
	}
}

// NewCapacityExhausted is returned when every digit length up to the maximum is full.
// Requires operator intervention.
func NewCapacityExhausted(prefix, scope string, maxLength int) *AppError {
	return &AppError{
		Code:       CodeCapacityExhausted,
		Message:    fmt.Sprintf("identifier space exhausted for %s up to %d digits", prefix, maxLength),
		HTTPStatus: http.StatusInsufficientStorage,
		Details:    map[string]any{"prefix": prefix, "scope": scope, "max_length": maxLength},
	}
}

// NewStoreUnavailable wraps a failure of the backing store's atomic primitive.
// Not retried by the allocator.
func NewStoreUnavailable(operation string, err error) *AppError {
	return &AppError{
		Code:       CodeStoreUnavailable,
		Message:    "backing store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"operation": operation},
		Err:        err,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsCode checks whether the error chain carries an AppError with code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}
