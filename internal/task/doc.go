// Package task runs queued work through registered workers.
//
// The Engine owns the in-memory queue snapshot. A single loop goroutine
// sweeps zombie tasks, re-queues parked failures and fills free concurrency
// slots, claiming at most one task per worker per cycle in registration
// order. Claimed tasks run in their own goroutines; their results are
// applied back under the engine lock. A worker error that wraps
// upstream.ErrFatalUpstream pauses the engine until an operator starts it
// again.
package task
