package api

import (
	"net/http"

	"github.com/phrazzld/agentkit/internal/api/shared"
	"github.com/phrazzld/agentkit/internal/service"
)

// EngineHandler serves the engine control and conversation endpoints.
type EngineHandler struct {
	dispatcher service.Dispatcher
}

// NewEngineHandler creates an EngineHandler.
func NewEngineHandler(dispatcher service.Dispatcher) *EngineHandler {
	return &EngineHandler{dispatcher: dispatcher}
}

// GetEngine handles GET /api/engine.
func (h *EngineHandler) GetEngine(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.dispatcher.Stats())
}

// StartEngine handles POST /api/engine/start.
func (h *EngineHandler) StartEngine(w http.ResponseWriter, r *http.Request) {
	h.dispatcher.Start(r.Context())
	shared.RespondWithJSON(w, r, http.StatusOK, EngineStateResponse{Running: h.dispatcher.IsRunning()})
}

// StopEngine handles POST /api/engine/stop.
func (h *EngineHandler) StopEngine(w http.ResponseWriter, r *http.Request) {
	h.dispatcher.Stop(r.Context())
	shared.RespondWithJSON(w, r, http.StatusOK, EngineStateResponse{Running: h.dispatcher.IsRunning()})
}

// Converse handles POST /api/converse.
func (h *EngineHandler) Converse(w http.ResponseWriter, r *http.Request) {
	var req ConverseRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	reply, err := h.dispatcher.Converse(r.Context(), req.Prompt)
	if err != nil {
		handleError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ConverseResponse{Reply: reply})
}
