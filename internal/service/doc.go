// Package service contains the producer-facing use cases of agentkit. The
// Dispatcher is the single entry point the HTTP API and embedding code use
// to enqueue work, control the engine, observe lifecycle events and talk to
// the language model directly.
package service
