package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/agentkit/internal/api/shared"
	"github.com/phrazzld/agentkit/internal/platform/logger"
)

// NewTraceMiddleware returns middleware that gives every request a trace ID
// and a request logger carrying it. Handlers fetch the logger with
// logger.FromContext.
func NewTraceMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			log := base.With("trace_id", shared.GetTraceID(ctx))
			ctx = logger.WithLogger(ctx, log)

			log.Debug("request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
