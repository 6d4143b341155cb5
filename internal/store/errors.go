package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all backends.
var (
	// ErrNotFound is returned by a Backend when a key does not exist.
	ErrNotFound = errors.New("entry not found")

	// ErrInvalidKey is returned when a key is empty after sanitizing or
	// would escape the backend's namespace.
	ErrInvalidKey = errors.New("invalid key")

	// ErrCorruptSnapshot is returned by Decode when the stored snapshot
	// cannot be parsed.
	ErrCorruptSnapshot = errors.New("corrupt queue snapshot")
)

// IsNotFoundError checks if the error is a "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Key       string // The key the operation worked on
	Operation string // The operation that failed (e.g., "read", "write")
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError for an operation on key.
func NewStoreError(operation, key string, err error) *StoreError {
	return &StoreError{
		Key:       key,
		Operation: operation,
		Err:       err,
	}
}
