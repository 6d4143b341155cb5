package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/agentkit/internal/redact"
)

// Error definitions for the upstream package.
var (
	// ErrFatalUpstream signals that every credential of every provider has
	// been exhausted and no further automatic recovery is possible. The task
	// engine halts when a worker returns an error wrapping it.
	ErrFatalUpstream = errors.New("fatal upstream failure: all providers and credentials exhausted")

	// ErrNoCredentials is returned when a provider has no credential outside
	// of cooldown.
	ErrNoCredentials = errors.New("no usable credentials")

	// ErrRequestRejected is returned by providers when the answer was
	// withheld (safety block, content filter). The client treats it like any
	// other transient attempt failure.
	ErrRequestRejected = errors.New("upstream rejected the request")

	// ErrAttemptTimeout is returned when a single credential attempt ran out
	// of time.
	ErrAttemptTimeout = errors.New("upstream attempt timed out")

	// ErrInvalidResponse is returned when a provider answered with a body
	// that could not be decoded.
	ErrInvalidResponse = errors.New("invalid response from upstream")

	// ErrUnknownProvider is returned for a provider name nothing is registered for.
	ErrUnknownProvider = errors.New("unknown upstream provider")

	// ErrInvalidConfig is returned when the client or pool configuration is invalid.
	ErrInvalidConfig = errors.New("invalid upstream configuration")
)

// StatusError is returned by providers when the upstream answered with a
// non-success HTTP status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, body)
}

// Class is the failure classification that drives cooldown and failover.
type Class int

const (
	// ClassTransient failures (timeouts, 5xx, 400/404/422, network errors,
	// blocked answers) move on to the next credential without penalty.
	ClassTransient Class = iota
	// ClassQuota failures (401/403/429 or quota-type messages) put the
	// credential into cooldown before moving on.
	ClassQuota
)

func (c Class) String() string {
	switch c {
	case ClassQuota:
		return "quota"
	default:
		return "transient"
	}
}

// quotaMarkers are substrings of error bodies that indicate a quota, rate
// limit or credential problem regardless of the status code. Gemini reports
// invalid keys as 400 INVALID_ARGUMENT, for example.
var quotaMarkers = []string{
	"quota",
	"rate limit",
	"rate_limit",
	"ratelimit",
	"resource_exhausted",
	"too many requests",
	"api key not valid",
	"invalid api key",
	"incorrect api key",
	"permission_denied",
}

// Classify maps an attempt error onto a failure class.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}
	if errors.Is(err, ErrAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	if hasQuotaMarker(err.Error()) {
		return ClassQuota
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
			return ClassQuota
		}
	}

	return ClassTransient
}

func hasQuotaMarker(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsFatal reports whether err is a fatal upstream failure.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalUpstream)
}

// ProviderFailure records why one provider could not serve a call.
type ProviderFailure struct {
	Provider string
	Err      error
}

// ExhaustedError is the fatal upstream failure returned by Client.Converse.
// errors.Is(err, ErrFatalUpstream) is true for it.
type ExhaustedError struct {
	Failures []ProviderFailure
}

func (e *ExhaustedError) Error() string {
	if len(e.Failures) == 0 {
		return ErrFatalUpstream.Error()
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Provider, redact.Error(f.Err)))
	}
	return fmt.Sprintf("%s (%s)", ErrFatalUpstream.Error(), strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrFatalUpstream) match.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrFatalUpstream
}
