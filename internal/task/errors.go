package task

import "errors"

// Error definitions for the task package.
var (
	// ErrDuplicateWorker is returned when a second worker registers for a queue.
	ErrDuplicateWorker = errors.New("a worker is already registered for this queue")

	// ErrNilWorker is returned when a nil worker is registered.
	ErrNilWorker = errors.New("worker cannot be nil")

	// ErrEngineRunning is returned by operations that require a stopped engine.
	ErrEngineRunning = errors.New("engine is running")

	// ErrWorkerPanic wraps a panic recovered from a worker.
	ErrWorkerPanic = errors.New("worker panicked")

	// ErrInvalidConfig is returned for an invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")
)
