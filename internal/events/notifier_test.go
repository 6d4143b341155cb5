package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/phrazzld/agentkit/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier(t *testing.T) {
	t.Parallel()

	// Create a minimal logger that discards output
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("emit event with no handlers", func(t *testing.T) {
		t.Parallel()

		n := NewNotifier(discard)
		assert.NotPanics(t, func() {
			n.Emit(context.Background(), Event{Name: TaskAdded, TaskID: "t-1"})
		})
	})

	t.Run("handlers receive only their event in order", func(t *testing.T) {
		t.Parallel()

		n := NewNotifier(discard)
		var calls []string
		n.Subscribe(TaskAdded, func(ctx context.Context, e Event) error {
			calls = append(calls, "first:"+e.TaskID)
			return nil
		})
		n.Subscribe(TaskAdded, func(ctx context.Context, e Event) error {
			calls = append(calls, "second:"+e.TaskID)
			return nil
		})
		n.Subscribe(TaskCompleted, func(ctx context.Context, e Event) error {
			calls = append(calls, "completed:"+e.TaskID)
			return nil
		})

		n.Emit(context.Background(), Event{Name: TaskAdded, TaskID: "t-1"})

		assert.Equal(t, []string{"first:t-1", "second:t-1"}, calls)
	})

	t.Run("occurred at is filled in", func(t *testing.T) {
		t.Parallel()

		n := NewNotifier(discard)
		rec := NewRecorder()
		rec.Attach(n)

		n.Emit(context.Background(), Event{Name: TaskStarted, TaskID: "t-1"})

		got := rec.Named(TaskStarted)
		require.Len(t, got, 1)
		assert.False(t, got[0].OccurredAt.IsZero())
	})

	t.Run("unsubscribe removes only that handler", func(t *testing.T) {
		t.Parallel()

		n := NewNotifier(discard)
		count := 0
		id := n.Subscribe(TaskFailed, func(ctx context.Context, e Event) error {
			count += 100
			return nil
		})
		n.Subscribe(TaskFailed, func(ctx context.Context, e Event) error {
			count++
			return nil
		})

		assert.True(t, n.Unsubscribe(TaskFailed, id))
		assert.False(t, n.Unsubscribe(TaskFailed, id), "second unsubscribe should report not found")
		assert.False(t, n.Unsubscribe(TaskAdded, id))

		n.Emit(context.Background(), Event{Name: TaskFailed})
		assert.Equal(t, 1, count)
	})
}

func TestNotifier_IsolatesFailingSubscribers(t *testing.T) {
	t.Parallel()

	l, buf := logger.NewTestLogger()
	n := NewNotifier(l)

	reached := false
	n.Subscribe(TaskDiscarded, func(ctx context.Context, e Event) error {
		return errors.New("handler error")
	})
	n.Subscribe(TaskDiscarded, func(ctx context.Context, e Event) error {
		panic("subscriber bug")
	})
	n.Subscribe(TaskDiscarded, func(ctx context.Context, e Event) error {
		reached = true
		return nil
	})

	assert.NotPanics(t, func() {
		n.Emit(context.Background(), Event{Name: TaskDiscarded, TaskID: "t-9"})
	})
	assert.True(t, reached, "a failing subscriber must not stop delivery to later ones")

	failures := 0
	for _, entry := range buf.Entries() {
		if entry["msg"] == "event handler failed" {
			failures++
			assert.Equal(t, "t-9", entry["task_id"])
		}
	}
	assert.Equal(t, 2, failures)
}

func TestRecorder_ForTask(t *testing.T) {
	t.Parallel()

	n := NewNotifier(slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := NewRecorder()
	rec.Attach(n)

	ctx := context.Background()
	n.Emit(ctx, Event{Name: TaskAdded, TaskID: "a"})
	n.Emit(ctx, Event{Name: TaskAdded, TaskID: "b"})
	n.Emit(ctx, Event{Name: TaskStarted, TaskID: "a"})
	n.Emit(ctx, Event{Name: EnginePaused})

	assert.Equal(t, []Name{TaskAdded, TaskStarted}, rec.ForTask("a"))
	assert.Len(t, rec.Events(), 4)
	assert.Len(t, rec.Named(EnginePaused), 1)
}
