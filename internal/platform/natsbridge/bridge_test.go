package natsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/phrazzld/agentkit/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message{subject: subject, data: data})
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBridge_Subject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "agentkit.task_completed", New(&fakePublisher{}, "", discardLogger()).Subject(events.TaskCompleted))
	assert.Equal(t, "ops.events.engine_paused", New(&fakePublisher{}, " ops.events. ", discardLogger()).Subject(events.EnginePaused))
}

func TestBridge_ForwardsEveryEvent(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	notifier := events.NewNotifier(discardLogger())
	bridge := New(pub, "agentkit", discardLogger())
	bridge.Attach(notifier)

	ctx := context.Background()
	for _, name := range events.AllNames {
		notifier.Emit(ctx, events.Event{Name: name, TaskID: "t1"})
	}

	require.Len(t, pub.messages, len(events.AllNames))
	first := pub.messages[0]
	assert.Equal(t, "agentkit.task_added", first.subject)

	var decoded events.Event
	require.NoError(t, json.Unmarshal(first.data, &decoded))
	assert.Equal(t, events.TaskAdded, decoded.Name)
	assert.Equal(t, "t1", decoded.TaskID)

	bridge.Detach()
	notifier.Emit(ctx, events.Event{Name: events.TaskAdded})
	assert.Len(t, pub.messages, len(events.AllNames))
}

func TestBridge_PublishFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	bridge := New(pub, "", discardLogger())

	assert.NoError(t, bridge.Handle(context.Background(), events.Event{Name: events.TaskFailed}))
}
