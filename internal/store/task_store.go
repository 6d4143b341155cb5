package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/phrazzld/agentkit/internal/domain"
	"github.com/phrazzld/agentkit/internal/platform/logger"
	"github.com/phrazzld/agentkit/internal/redact"
)

const (
	// SnapshotKey is the key of the queue snapshot.
	SnapshotKey = "queues.json"

	// CacheDir is the key prefix of content cache entries.
	CacheDir = "task_cache"
)

var unsafeNameChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// SaveOption configures a single Save call.
type SaveOption func(*saveOptions)

type saveOptions struct {
	compact bool
}

// WithCompaction drops terminal tasks and empty queues from the written
// snapshot.
func WithCompaction() SaveOption {
	return func(o *saveOptions) {
		o.compact = true
	}
}

// TaskStore persists the queue snapshot and content cache through a Backend.
// Saves are serialized, and a save whose snapshot version is not newer than
// the last written one is skipped.
type TaskStore struct {
	backend Backend
	logger  *slog.Logger

	mu          sync.Mutex
	lastVersion uint64
	written     bool
}

// NewTaskStore creates a TaskStore over backend.
func NewTaskStore(backend Backend, logger *slog.Logger) *TaskStore {
	return &TaskStore{
		backend: backend,
		logger:  logger.With("component", "task_store"),
	}
}

// Init writes an empty snapshot when none exists yet.
func (s *TaskStore) Init(ctx context.Context) error {
	exists, err := s.backend.Exists(ctx, SnapshotKey)
	if err != nil {
		return NewStoreError("init", SnapshotKey, err)
	}
	if exists {
		return nil
	}

	data, err := Encode(domain.NewSnapshot())
	if err != nil {
		return err
	}
	if err := s.backend.Write(ctx, SnapshotKey, data); err != nil {
		return NewStoreError("init", SnapshotKey, err)
	}
	s.logger.Info("initialized empty queue snapshot")
	return nil
}

// Load reads the persisted snapshot. A missing, unreadable or malformed
// snapshot yields an empty one; the problem is logged and never returned.
func (s *TaskStore) Load(ctx context.Context) *domain.Snapshot {
	log := logger.FromContextOr(ctx, s.logger)

	data, err := s.backend.Read(ctx, SnapshotKey)
	if err != nil {
		if IsNotFoundError(err) {
			log.Info("no queue snapshot found, starting empty")
		} else {
			log.Error("failed to read queue snapshot, starting empty", "error", redact.Error(err))
		}
		return domain.NewSnapshot()
	}

	snap, err := Decode(data)
	if err != nil {
		log.Error("failed to decode queue snapshot, starting empty", "error", redact.Error(err))
		return domain.NewSnapshot()
	}

	dropped := sanitize(snap)
	if dropped > 0 {
		log.Warn("dropped invalid tasks from queue snapshot", "dropped", dropped)
	}

	s.mu.Lock()
	if snap.Version > s.lastVersion {
		s.lastVersion = snap.Version
	}
	s.mu.Unlock()

	log.Info("loaded queue snapshot",
		"version", snap.Version,
		"queues", len(snap.Queues))
	return snap
}

// Save writes snap. The caller's snapshot is not modified, even with
// WithCompaction. A snapshot whose version is not newer than the last
// written one is skipped.
func (s *TaskStore) Save(ctx context.Context, snap *domain.Snapshot, opts ...SaveOption) error {
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.written && snap.Version <= s.lastVersion {
		s.logger.Debug("skipping stale snapshot save",
			"version", snap.Version,
			"last_written", s.lastVersion)
		return nil
	}

	out := snap
	if o.compact {
		out = snap.Clone()
		if removed := out.Compact(); removed > 0 {
			s.logger.Debug("compacted snapshot", "removed", removed)
		}
	}

	data, err := Encode(out)
	if err != nil {
		return err
	}
	if err := s.backend.Write(ctx, SnapshotKey, data); err != nil {
		return NewStoreError("write", SnapshotKey, err)
	}

	s.lastVersion = snap.Version
	s.written = true
	return nil
}

// SaveContentCache stores content under a sanitized form of key.
func (s *TaskStore) SaveContentCache(ctx context.Context, key, content string) error {
	entry, err := cacheKey(key)
	if err != nil {
		return err
	}
	if err := s.backend.Write(ctx, entry, []byte(content)); err != nil {
		return NewStoreError("write", entry, err)
	}
	s.logger.Debug("saved content cache", "key", entry, "bytes", len(content))
	return nil
}

// LoadContentCache returns cached content for key. A miss returns an empty
// string and false.
func (s *TaskStore) LoadContentCache(ctx context.Context, key string) (string, bool, error) {
	entry, err := cacheKey(key)
	if err != nil {
		return "", false, err
	}
	data, err := s.backend.Read(ctx, entry)
	if err != nil {
		if IsNotFoundError(err) {
			return "", false, nil
		}
		return "", false, NewStoreError("read", entry, err)
	}
	return string(data), true, nil
}

// DeleteContentCache removes the cache entry for key, if any.
func (s *TaskStore) DeleteContentCache(ctx context.Context, key string) error {
	entry, err := cacheKey(key)
	if err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, entry); err != nil {
		return NewStoreError("delete", entry, err)
	}
	return nil
}

func cacheKey(key string) (string, error) {
	name := strings.TrimSpace(unsafeNameChars.ReplaceAllString(key, ""))
	if name == "" || strings.Trim(name, ".") == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return CacheDir + "/" + name + ".md", nil
}

// Encode serializes a snapshot.
func Encode(snap *domain.Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot written by Encode.
func Decode(data []byte) (*domain.Snapshot, error) {
	snap := domain.NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if snap.Queues == nil {
		snap.Queues = make(map[string][]*domain.Task)
	}
	return snap, nil
}

// sanitize drops tasks that fail validation and aligns each task's queue
// name with the queue it is stored under. It returns the number dropped.
func sanitize(snap *domain.Snapshot) int {
	dropped := 0
	for name, tasks := range snap.Queues {
		kept := tasks[:0]
		for _, t := range tasks {
			if t == nil {
				dropped++
				continue
			}
			t.QueueName = name
			if err := t.Validate(); err != nil {
				dropped++
				continue
			}
			kept = append(kept, t)
		}
		snap.Queues[name] = kept
	}
	return dropped
}
