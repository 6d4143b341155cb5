package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/agentkit/internal/api/shared"
	"github.com/phrazzld/agentkit/internal/platform/logger"
	"github.com/phrazzld/agentkit/internal/service"
)

// TaskHandler serves the task endpoints.
type TaskHandler struct {
	dispatcher service.Dispatcher
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(dispatcher service.Dispatcher) *TaskHandler {
	return &TaskHandler{dispatcher: dispatcher}
}

// EnqueueTask handles POST /api/tasks.
func (h *TaskHandler) EnqueueTask(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	var payload interface{}
	if len(req.Payload) > 0 {
		payload = req.Payload
	}

	id, err := h.dispatcher.Enqueue(r.Context(), req.Queue, payload, req.SourceID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	operator, _ := shared.GetOperator(r.Context())
	logger.FromContext(r.Context()).Info("task enqueued via API",
		"task_id", id,
		"queue", req.Queue,
		"operator", operator)

	shared.RespondWithJSON(w, r, http.StatusAccepted, EnqueueResponse{TaskID: id, Queue: req.Queue})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.dispatcher.Task(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newTaskResponse(t))
}
