package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/phrazzld/agentkit/internal/domain"
	"github.com/phrazzld/agentkit/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustTask(t *testing.T, queue string, status domain.TaskStatus) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(queue, map[string]string{"concept": "Entropy"}, "")
	require.NoError(t, err)
	task.Status = status
	return task
}

func TestTaskStore_LoadMissingSnapshot(t *testing.T) {
	t.Parallel()

	s := NewTaskStore(NewMemoryBackend(), discardLogger())
	snap := s.Load(context.Background())
	require.NotNil(t, snap)
	assert.Empty(t, snap.Queues)
}

func TestTaskStore_LoadMalformedSnapshot(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend()
	require.NoError(t, backend.Write(context.Background(), SnapshotKey, []byte("{not json")))

	l, buf := logger.NewTestLogger()
	s := NewTaskStore(backend, l)
	snap := s.Load(context.Background())

	require.NotNil(t, snap)
	assert.Empty(t, snap.Queues)
	assert.True(t, buf.HasMessage(slog.LevelError, "failed to decode queue snapshot, starting empty"))
}

func TestTaskStore_Init(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := NewMemoryBackend()
	s := NewTaskStore(backend, discardLogger())

	require.NoError(t, s.Init(ctx))
	exists, err := backend.Exists(ctx, SnapshotKey)
	require.NoError(t, err)
	assert.True(t, exists)

	// Init never overwrites existing data.
	snap := domain.NewSnapshot()
	snap.Version = 1
	snap.Append(mustTask(t, "gen", domain.TaskStatusQueued))
	require.NoError(t, s.Save(ctx, snap))
	require.NoError(t, s.Init(ctx))
	assert.Len(t, s.Load(ctx).Queues["gen"], 1)
}

func TestTaskStore_SaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := NewMemoryBackend()
	s := NewTaskStore(backend, discardLogger())

	snap := domain.NewSnapshot()
	snap.Version = 3
	first := mustTask(t, "gen", domain.TaskStatusQueued)
	second := mustTask(t, "gen", domain.TaskStatusFailed)
	second.Retries = 2
	snap.Append(first)
	snap.Append(second)
	snap.EnsureQueue("empty")

	require.NoError(t, s.Save(ctx, snap))

	loaded := NewTaskStore(backend, discardLogger()).Load(ctx)
	assert.Equal(t, uint64(3), loaded.Version)
	require.Len(t, loaded.Queues["gen"], 2)
	assert.Equal(t, first.ID, loaded.Queues["gen"][0].ID)
	assert.Equal(t, second.ID, loaded.Queues["gen"][1].ID)
	assert.Equal(t, 2, loaded.Queues["gen"][1].Retries)
	assert.JSONEq(t, string(first.Payload), string(loaded.Queues["gen"][0].Payload))
	assert.Contains(t, loaded.Queues, "empty")
}

func TestTaskStore_SaveWithCompaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTaskStore(NewMemoryBackend(), discardLogger())

	snap := domain.NewSnapshot()
	snap.Version = 1
	kept := mustTask(t, "gen", domain.TaskStatusQueued)
	snap.Append(kept)
	snap.Append(mustTask(t, "gen", domain.TaskStatusSuccess))
	snap.Append(mustTask(t, "done", domain.TaskStatusDiscarded))

	require.NoError(t, s.Save(ctx, snap, WithCompaction()))

	loaded := s.Load(ctx)
	require.Len(t, loaded.Queues["gen"], 1)
	assert.Equal(t, kept.ID, loaded.Queues["gen"][0].ID)
	assert.NotContains(t, loaded.Queues, "done")

	assert.Len(t, snap.Queues["gen"], 2, "the caller's snapshot is left untouched")
	assert.Len(t, snap.Queues["done"], 1)
}

func TestTaskStore_SaveSkipsStaleVersions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := NewMemoryBackend()
	s := NewTaskStore(backend, discardLogger())

	newer := domain.NewSnapshot()
	newer.Version = 5
	newer.Append(mustTask(t, "gen", domain.TaskStatusQueued))
	require.NoError(t, s.Save(ctx, newer))

	older := domain.NewSnapshot()
	older.Version = 4
	require.NoError(t, s.Save(ctx, older))

	same := domain.NewSnapshot()
	same.Version = 5
	require.NoError(t, s.Save(ctx, same))

	assert.Equal(t, 1, backend.Writes())
	assert.Len(t, s.Load(ctx).Queues["gen"], 1, "last write wins")
}

func TestTaskStore_ConcurrentSavesKeepNewest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTaskStore(NewMemoryBackend(), discardLogger())

	var wg sync.WaitGroup
	for v := 1; v <= 50; v++ {
		wg.Add(1)
		go func(version uint64) {
			defer wg.Done()
			snap := domain.NewSnapshot()
			snap.Version = version
			assert.NoError(t, s.Save(ctx, snap))
		}(uint64(v))
	}
	wg.Wait()

	assert.Equal(t, uint64(50), s.Load(ctx).Version)
}

func TestTaskStore_SaveFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := NewMemoryBackend()
	backend.SetWriteErr(errors.New("disk full"))
	s := NewTaskStore(backend, discardLogger())

	snap := domain.NewSnapshot()
	snap.Version = 1
	err := s.Save(ctx, snap)
	require.Error(t, err)

	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "write", storeErr.Operation)

	// A failed write does not count as written, so the same version retries.
	backend.SetWriteErr(nil)
	require.NoError(t, s.Save(ctx, snap))
	assert.Equal(t, 1, backend.Writes())
}

func TestTaskStore_LoadDropsInvalidTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := NewMemoryBackend()
	raw := `{"version":2,"queues":{"gen":[
		{"id":"a","queue_name":"gen","status":"queued","retries":0},
		{"id":"","queue_name":"gen","status":"queued","retries":0},
		{"id":"c","queue_name":"other","status":"bogus","retries":0},
		{"id":"d","queue_name":"wrong","status":"failed","retries":1}
	]}}`
	require.NoError(t, backend.Write(ctx, SnapshotKey, []byte(raw)))

	snap := NewTaskStore(backend, discardLogger()).Load(ctx)
	require.Len(t, snap.Queues["gen"], 2)
	assert.Equal(t, "a", snap.Queues["gen"][0].ID)
	assert.Equal(t, "d", snap.Queues["gen"][1].ID)
	assert.Equal(t, "gen", snap.Queues["gen"][1].QueueName)
}

func TestTaskStore_LoadRaisesVersionFloor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Write(ctx, SnapshotKey, []byte(`{"version":10,"queues":{}}`)))

	s := NewTaskStore(backend, discardLogger())
	s.Load(ctx)

	stale := domain.NewSnapshot()
	stale.Version = 11
	require.NoError(t, s.Save(ctx, stale))
	assert.Equal(t, uint64(11), s.Load(ctx).Version)
}

func TestTaskStore_ContentCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := NewMemoryBackend()
	s := NewTaskStore(backend, discardLogger())

	_, ok, err := s.LoadContentCache(ctx, "Entropy")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveContentCache(ctx, `Heat: "Entropy"/Disorder?`, "cached body"))
	assert.Contains(t, backend.Keys(), "task_cache/Heat EntropyDisorder.md")

	got, ok, err := s.LoadContentCache(ctx, `Heat: "Entropy"/Disorder?`)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cached body", got)

	require.NoError(t, s.DeleteContentCache(ctx, `Heat: "Entropy"/Disorder?`))
	_, ok, err = s.LoadContentCache(ctx, `Heat: "Entropy"/Disorder?`)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.DeleteContentCache(ctx, "never-written"), "deleting a missing entry is not an error")
}

func TestTaskStore_ContentCacheRejectsEmptyKeys(t *testing.T) {
	t.Parallel()

	s := NewTaskStore(NewMemoryBackend(), discardLogger())
	for _, key := range []string{"", "   ", `/\?*`, ".."} {
		err := s.SaveContentCache(context.Background(), key, "x")
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestCleanKey(t *testing.T) {
	t.Parallel()

	valid := map[string]string{
		"queues.json":          "queues.json",
		"task_cache/a.md":      "task_cache/a.md",
		"task_cache//b.md":     "task_cache/b.md",
		`task_cache\c.md`:      "task_cache/c.md",
		"task_cache/../q.json": "q.json",
	}
	for in, want := range valid {
		got, err := CleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", " ", ".", "..", "../etc/passwd", "/abs/path"} {
		_, err := CleanKey(in)
		assert.ErrorIs(t, err, ErrInvalidKey, in)
	}
}
