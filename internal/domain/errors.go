// Package domain defines the core task entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidFormat is returned when data is not in the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidTransition is returned when a task status change does not follow
	// the task lifecycle.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrEmptyQueueName is returned when a task or worker names no queue.
	ErrEmptyQueueName = errors.New("queue name cannot be empty")

	// ErrTaskNotFound is returned when a task id is not present in a snapshot.
	ErrTaskNotFound = errors.New("task not found")
)
