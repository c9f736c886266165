// Package errors provides domain-specific error types and sentinel errors
// for the recommendation pipeline and its conversation boundary.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is() to check them.
var (
	// ErrDataUnavailable indicates the catalog or embedding artifact is missing
	// or corrupt. Operators fix it by regenerating the artifacts.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrConsistency indicates the embedding artifact is not aligned with the catalog.
	ErrConsistency = errors.New("catalog and embeddings are inconsistent")

	// ErrModelUnavailable indicates the embedding or reranking model could not
	// be initialized or called.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrInvalidInput indicates the caller provided invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionNotFound indicates an unknown or expired conversation session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy indicates another turn is already running for the session.
	ErrSessionBusy = errors.New("session busy")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")
)

// DataError describes an artifact that could not be read.
type DataError struct {
	Path string
	Err  error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data unavailable (path=%s): %v", e.Path, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// Is matches ErrDataUnavailable.
func (e *DataError) Is(target error) bool { return target == ErrDataUnavailable }

// NewDataError creates a new data error.
func NewDataError(path string, err error) *DataError {
	return &DataError{Path: path, Err: err}
}

// ConsistencyError reports a catalog/embedding row count mismatch.
type ConsistencyError struct {
	Records    int
	Embeddings int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%v: %d records, %d embeddings", ErrConsistency, e.Records, e.Embeddings)
}

// Is matches ErrConsistency.
func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

// ModelError describes a failed model initialization or call.
type ModelError struct {
	Model string // e.g. "embedding", "reranker"
	Op    string // e.g. "init", "embed", "score"
	Err   error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model unavailable (model=%s, op=%s): %v", e.Model, e.Op, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Is matches ErrModelUnavailable.
func (e *ModelError) Is(target error) bool { return target == ErrModelUnavailable }

// NewModelError creates a new model error.
func NewModelError(model, op string, err error) *ModelError {
	return &ModelError{Model: model, Op: op, Err: err}
}

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Is matches ErrInvalidInput.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
