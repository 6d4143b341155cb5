package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	apiMiddleware "github.com/phrazzld/agentkit/internal/api/middleware"
	"github.com/phrazzld/agentkit/internal/api/shared"
	"github.com/phrazzld/agentkit/internal/service"
	"github.com/phrazzld/agentkit/internal/service/auth"
)

// RouterConfig holds the dependencies of the router.
type RouterConfig struct {
	Dispatcher service.Dispatcher
	JWTService auth.JWTService
	Logger     *slog.Logger
}

// NewRouter creates the operator API router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(cfg.Logger))

	authMiddleware := apiMiddleware.NewAuthMiddleware(cfg.JWTService)
	taskHandler := NewTaskHandler(cfg.Dispatcher)
	engineHandler := NewEngineHandler(cfg.Dispatcher)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
			Status:        "ok",
			EngineRunning: cfg.Dispatcher.IsRunning(),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/tasks", taskHandler.EnqueueTask)
		r.Get("/tasks/{id}", taskHandler.GetTask)

		r.Get("/engine", engineHandler.GetEngine)
		r.Post("/engine/start", engineHandler.StartEngine)
		r.Post("/engine/stop", engineHandler.StopEngine)

		r.Post("/converse", engineHandler.Converse)
	})

	return r
}
