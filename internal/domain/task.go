package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSuccess   TaskStatus = "success"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusDiscarded TaskStatus = "discarded"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusRunning, TaskStatusSuccess, TaskStatusFailed, TaskStatusDiscarded:
		return true
	}
	return false
}

// IsTerminal reports whether a task in this status will never run again.
// Terminal tasks are dropped by compaction.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusDiscarded
}

// allowedTransitions encodes the task lifecycle:
//
//	queued -> running -> {success | failed | discarded | queued}
//	failed -> {queued | discarded}
var allowedTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusQueued:  {TaskStatusRunning},
	TaskStatusRunning: {TaskStatusSuccess, TaskStatusFailed, TaskStatusDiscarded, TaskStatusQueued},
	TaskStatusFailed:  {TaskStatusQueued, TaskStatusDiscarded},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Task is the unit of work routed to a worker through a named queue.
type Task struct {
	ID        string          `json:"id"`
	QueueName string          `json:"queue_name"`
	Status    TaskStatus      `json:"status"`
	Retries   int             `json:"retries"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SourceID  string          `json:"source_id,omitempty"`
	LastError string          `json:"last_error,omitempty"`

	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewTask creates a queued task for the given queue. The payload is any value
// that marshals to JSON; nil yields an empty payload.
func NewTask(queueName string, payload interface{}, sourceID string) (*Task, error) {
	if queueName == "" {
		return nil, ErrEmptyQueueName
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Task{
		ID:         uuid.New().String(),
		QueueName:  queueName,
		Status:     TaskStatusQueued,
		Retries:    0,
		Payload:    raw,
		SourceID:   sourceID,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}, nil
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(p) > 0 && !json.Valid(p) {
			return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidFormat)
		}
		return append(json.RawMessage(nil), p...), nil
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: payload: %v", ErrInvalidFormat, err)
		}
		return raw, nil
	}
}

// DecodePayload unmarshals the task payload into v.
func (t *Task) DecodePayload(v interface{}) error {
	if len(t.Payload) == 0 {
		return fmt.Errorf("%w: task %s has an empty payload", ErrInvalidFormat, t.ID)
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("%w: task %s payload: %v", ErrInvalidFormat, t.ID, err)
	}
	return nil
}

// SetPayload replaces the payload with the JSON encoding of v.
func (t *Task) SetPayload(v interface{}) error {
	raw, err := marshalPayload(v)
	if err != nil {
		return err
	}
	t.Payload = raw
	return nil
}

// Transition moves the task to the given status if the lifecycle allows it.
func (t *Task) Transition(to TaskStatus, at time.Time) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s (task %s)", ErrInvalidTransition, t.Status, to, t.ID)
	}
	t.Status = to
	t.UpdatedAt = at
	if to == TaskStatusRunning {
		started := at
		t.StartedAt = &started
	}
	return nil
}

// Validate checks the invariants a persisted task must satisfy.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: task id cannot be empty", ErrValidation)
	}
	if t.QueueName == "" {
		return fmt.Errorf("%w: %v", ErrValidation, ErrEmptyQueueName)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown task status %q", ErrValidation, t.Status)
	}
	if t.Retries < 0 {
		return fmt.Errorf("%w: retries cannot be negative", ErrValidation)
	}
	return nil
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Payload != nil {
		c.Payload = append(json.RawMessage(nil), t.Payload...)
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	return &c
}
