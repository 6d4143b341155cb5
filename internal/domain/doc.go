// Package domain contains the task envelope shared by the engine, the task
// store and the workers: the Task itself, its lifecycle statuses and the
// Snapshot of all queues that is persisted between restarts.
//
// The engine is the only writer of Status and Retries. Workers read the
// payload through DecodePayload and hand back a task whose payload the engine
// merges into its own copy.
package domain
