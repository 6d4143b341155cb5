package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/agentkit/internal/api/shared"
	"github.com/phrazzld/agentkit/internal/domain"
	"github.com/phrazzld/agentkit/internal/service"
	"github.com/phrazzld/agentkit/internal/service/auth"
	"github.com/phrazzld/agentkit/internal/upstream"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrTaskNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrEmptyPrompt),
		errors.Is(err, domain.ErrEmptyQueueName),
		errors.Is(err, domain.ErrInvalidFormat),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, shared.ErrEmptyBody):
		return http.StatusBadRequest

	case upstream.IsFatal(err):
		return http.StatusServiceUnavailable

	case errors.Is(err, upstream.ErrAttemptTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, upstream.ErrInvalidResponse),
		isStatusError(err):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"
	case errors.Is(err, service.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, service.ErrEmptyPrompt):
		return "Prompt cannot be empty"
	case errors.Is(err, domain.ErrEmptyQueueName):
		return "Queue name cannot be empty"
	case errors.Is(err, domain.ErrInvalidFormat):
		return "Payload must be valid JSON"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case upstream.IsFatal(err):
		return "All upstream providers are unavailable"
	case errors.Is(err, upstream.ErrAttemptTimeout), errors.Is(err, context.DeadlineExceeded):
		return "Upstream provider timed out"
	case errors.Is(err, upstream.ErrInvalidResponse), isStatusError(err):
		return "Upstream provider error"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a short message that
// names the failing field and rule.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation failed"
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("Invalid %s: %s", strings.ToLower(fe.Field()), validationTagMessage(fe.Tag(), fe.Param())))
	}
	return strings.Join(parts, "; ")
}

func validationTagMessage(tag, param string) string {
	switch tag {
	case "required":
		return "required field"
	case "max":
		return fmt.Sprintf("must be at most %s characters", param)
	case "min":
		return fmt.Sprintf("must be at least %s characters", param)
	default:
		return "invalid value"
	}
}

func isStatusError(err error) bool {
	var se *upstream.StatusError
	return errors.As(err, &se)
}

// handleError writes the mapped status and safe message for err.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
