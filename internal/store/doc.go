// Package store persists the queue snapshot and the per-task content cache.
//
// TaskStore holds the persistence rules (coalesced saves, compaction, load
// recovery) and writes through a Backend, which is a plain key/value
// surface. The filesystem and postgres packages provide backends.
package store
