package events

import (
	"context"
	"encoding/json"
	"time"
)

// Name identifies a lifecycle event.
type Name string

// Task lifecycle events.
const (
	TaskAdded     Name = "TASK_ADDED"
	TaskStarted   Name = "TASK_STARTED"
	TaskCompleted Name = "TASK_COMPLETED"
	TaskFailed    Name = "TASK_FAILED"
	TaskDiscarded Name = "TASK_DISCARDED"
)

// Engine state events.
const (
	EngineStarted Name = "ENGINE_STARTED"
	EngineStopped Name = "ENGINE_STOPPED"
	// EnginePaused is emitted when a fatal upstream failure halts the engine.
	// It is the signal that operator attention is required.
	EnginePaused Name = "ENGINE_PAUSED"
)

// TaskNames lists the five task lifecycle events.
var TaskNames = []Name{TaskAdded, TaskStarted, TaskCompleted, TaskFailed, TaskDiscarded}

// AllNames lists every event the engine emits.
var AllNames = append(append([]Name{}, TaskNames...), EngineStarted, EngineStopped, EnginePaused)

// Event is the data delivered to subscribers.
type Event struct {
	Name       Name      `json:"name"`
	TaskID     string    `json:"task_id,omitempty"`
	QueueName  string    `json:"queue_name,omitempty"`
	Status     string    `json:"status,omitempty"`
	Retries    int       `json:"retries,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`

	// WillRetry is set on TASK_FAILED when the task went back to the queue.
	WillRetry bool `json:"will_retry,omitempty"`

	// Fatal is set on TASK_FAILED and ENGINE_PAUSED when the failure was a
	// fatal upstream failure.
	Fatal bool `json:"fatal,omitempty"`

	// Error is the redacted error message of a failure.
	Error string `json:"error,omitempty"`

	// Result is the payload returned by the worker on TASK_COMPLETED.
	Result json.RawMessage `json:"result,omitempty"`
}

// Handler receives events. An error is logged by the notifier.
type Handler func(ctx context.Context, event Event) error

// SubscriptionID identifies a subscription so that it can be removed again.
type SubscriptionID uint64

// Emitter is the publishing side of the notifier.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// Subscriber is the observing side of the notifier.
type Subscriber interface {
	Subscribe(name Name, handler Handler) SubscriptionID
	Unsubscribe(name Name, id SubscriptionID) bool
}
