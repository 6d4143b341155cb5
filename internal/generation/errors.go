package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrInvalidPayload is returned when a task payload has no usable concept
	ErrInvalidPayload = errors.New("invalid generation payload")

	// ErrEmptyResponse is returned when the language model answers with blank text
	ErrEmptyResponse = errors.New("language model returned an empty response")

	// ErrInvalidConfig is returned when the worker configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")
)
