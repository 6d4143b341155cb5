package store

import (
	"context"
	"path"
	"strings"
)

// Backend is a key/value persistence surface. Keys are slash separated
// relative paths such as "queues.json" or "task_cache/Entropy.md".
type Backend interface {
	// Read returns the value stored under key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write replaces the value stored under key. A reader never observes a
	// partially written value.
	Write(ctx context.Context, key string, data []byte) error

	// Exists reports whether key holds a value.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// CleanKey normalizes key and rejects keys that are empty or point outside
// the backend's namespace.
func CleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	if cleaned == "." || path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
