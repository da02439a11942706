package analytics

import (
	"errors"
	"fmt"
)

// ErrNoReport is returned by Storage.LatestReport when no cache
// analysis report has been generated yet.
var ErrNoReport = errors.New("analytics: no cache report generated")

// StorageError represents an error from the analytics storage backend.
type StorageError struct {
	Backend   string // Backend type ("sqlite", "memory")
	Operation string // Operation that failed ("store_violations", "query", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("analytics storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// ReportError represents a failure while generating a cache analysis
// report.
type ReportError struct {
	PeriodStart string
	PeriodEnd   string
	Cause       error
}

// Error implements the error interface.
func (e *ReportError) Error() string {
	return fmt.Sprintf("cache report error [period=%s/%s]: %v", e.PeriodStart, e.PeriodEnd, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ReportError) Unwrap() error {
	return e.Cause
}
