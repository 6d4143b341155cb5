package service

import (
	"errors"
	"fmt"
)

// Common service errors. The API layer maps them to HTTP status codes.
var (
	// ErrEmptyPrompt is returned by Converse for a blank prompt.
	// API layer should map this to HTTP 400 Bad Request.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrUnknownEvent is returned when subscribing to an event the engine never emits.
	ErrUnknownEvent = errors.New("unknown event name")

	// ErrTaskNotFound is returned when a task id is not in the snapshot.
	// API layer should map this to HTTP 404 Not Found.
	ErrTaskNotFound = errors.New("task not found")
)

// DispatcherError wraps errors from the dispatcher with the failed operation.
type DispatcherError struct {
	// Operation is the operation that failed (e.g. "enqueue", "converse")
	Operation string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface.
func (e *DispatcherError) Error() string {
	return fmt.Sprintf("dispatcher %s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *DispatcherError) Unwrap() error {
	return e.Err
}

// NewDispatcherError creates a DispatcherError.
func NewDispatcherError(operation string, err error) *DispatcherError {
	return &DispatcherError{Operation: operation, Err: err}
}
