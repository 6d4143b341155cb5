package api

import (
	"encoding/json"

	"github.com/phrazzld/agentkit/internal/domain"
)

// EnqueueRequest defines the payload for the enqueue endpoint.
type EnqueueRequest struct {
	Queue    string          `json:"queue"               validate:"required,max=200"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	SourceID string          `json:"source_id,omitempty" validate:"max=500"`
}

// EnqueueResponse is returned when a task was accepted.
type EnqueueResponse struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}

// TaskResponse describes a task that is still in the snapshot.
type TaskResponse struct {
	ID        string            `json:"id"`
	Queue     string            `json:"queue"`
	Status    domain.TaskStatus `json:"status"`
	Retries   int               `json:"retries"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	SourceID  string            `json:"source_id,omitempty"`
	LastError string            `json:"last_error,omitempty"`
}

// EngineStateResponse is returned by the engine control endpoints.
type EngineStateResponse struct {
	Running bool `json:"running"`
}

// ConverseRequest defines the payload for the converse endpoint.
type ConverseRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

// ConverseResponse carries the model reply.
type ConverseResponse struct {
	Reply string `json:"reply"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	EngineRunning bool   `json:"engine_running"`
}

func newTaskResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		Queue:     t.QueueName,
		Status:    t.Status,
		Retries:   t.Retries,
		Payload:   t.Payload,
		SourceID:  t.SourceID,
		LastError: t.LastError,
	}
}
