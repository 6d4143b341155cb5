package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/agentkit/internal/platform/logger"
	"github.com/phrazzld/agentkit/internal/redact"
)

// DefaultRequestTimeout bounds a single credential attempt when
// ClientConfig.RequestTimeout is zero.
const DefaultRequestTimeout = 90 * time.Second

// Provider is one upstream language model service.
type Provider interface {
	// Name returns the provider name used in configuration and the pool.
	Name() string

	// Complete sends prompt using credential and returns the response text.
	// Implementations return *StatusError for non-success HTTP answers.
	Complete(ctx context.Context, credential, prompt string) (string, error)
}

// Conversant is the interface workers use to talk to the upstream.
type Conversant interface {
	Converse(ctx context.Context, prompt string) (string, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Primary is the provider tried first.
	Primary string
	// Fallback is the provider tried once when Primary is exhausted. Optional.
	Fallback string
	// RequestTimeout bounds each credential attempt.
	RequestTimeout time.Duration
}

// Client issues completion requests with credential rotation and provider
// failover. It is safe for concurrent use.
type Client struct {
	primary   string
	fallback  string
	timeout   time.Duration
	pool      *CredentialPool
	providers map[string]Provider
	logger    *slog.Logger
}

// NewClient creates a Client over the given providers.
func NewClient(cfg ClientConfig, pool *CredentialPool, providers []Provider, logger *slog.Logger) (*Client, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: credential pool is required", ErrInvalidConfig)
	}
	if cfg.Primary == "" {
		return nil, fmt.Errorf("%w: primary provider is required", ErrInvalidConfig)
	}
	if cfg.Fallback == cfg.Primary {
		cfg.Fallback = ""
	}

	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	if _, ok := byName[cfg.Primary]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Primary)
	}
	if cfg.Fallback != "" {
		if _, ok := byName[cfg.Fallback]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Fallback)
		}
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &Client{
		primary:   cfg.Primary,
		fallback:  cfg.Fallback,
		timeout:   timeout,
		pool:      pool,
		providers: byName,
		logger:    logger.With("component", "upstream_client"),
	}, nil
}

// Converse asks the upstream for a completion of prompt.
//
// Per-credential failures are logged and swallowed. Cancellation of ctx
// returns the context error. When every usable credential of the primary provider
// and, if it has any usable credential, the fallback provider has failed,
// the returned error satisfies errors.Is(err, ErrFatalUpstream).
func (c *Client) Converse(ctx context.Context, prompt string) (string, error) {
	log := c.logger
	if scoped := logger.FromContextOr(ctx, nil); scoped != nil {
		log = scoped.With("component", "upstream_client")
	}

	var failures []ProviderFailure

	text, err := c.tryProvider(ctx, log, c.primary, prompt)
	if err == nil {
		return text, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	failures = append(failures, ProviderFailure{Provider: c.primary, Err: err})

	if c.fallback == "" {
		log.Error("primary provider exhausted and no fallback configured",
			"provider", c.primary,
			"error", redact.Error(err))
		return "", &ExhaustedError{Failures: failures}
	}

	if !c.pool.HasUsable(c.fallback) {
		log.Error("fallback provider has no usable credentials",
			"provider", c.primary,
			"fallback", c.fallback,
			"error", redact.Error(err))
		failures = append(failures, ProviderFailure{Provider: c.fallback, Err: ErrNoCredentials})
		return "", &ExhaustedError{Failures: failures}
	}

	log.Warn("failing over to fallback provider",
		"provider", c.primary,
		"fallback", c.fallback,
		"error", redact.Error(err))

	text, err = c.tryProvider(ctx, log, c.fallback, prompt)
	if err == nil {
		return text, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	failures = append(failures, ProviderFailure{Provider: c.fallback, Err: err})

	log.Error("all upstream providers exhausted",
		"provider", c.primary,
		"fallback", c.fallback,
		"error", redact.Error(err))
	return "", &ExhaustedError{Failures: failures}
}

// tryProvider walks the usable credentials of one provider in pool order.
func (c *Client) tryProvider(ctx context.Context, log *slog.Logger, name, prompt string) (string, error) {
	provider := c.providers[name]

	creds := c.pool.ListUsable(name)
	if len(creds) == 0 {
		log.Warn("provider has no usable credentials", "provider", name)
		return "", fmt.Errorf("provider %s: %w", name, ErrNoCredentials)
	}

	var lastErr error
	for i, cred := range creds {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		attemptLog := log.With(
			"provider", name,
			"credential", Fingerprint(cred),
			"attempt", i+1,
			"of", len(creds))

		start := time.Now()
		text, err := c.attempt(ctx, provider, cred, prompt)
		if err == nil {
			c.pool.MarkSuccess(name, cred)
			attemptLog.Debug("upstream request succeeded", "duration_ms", time.Since(start).Milliseconds())
			return text, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		switch Classify(err) {
		case ClassQuota:
			until := c.pool.Penalize(name, cred)
			attemptLog.Warn("credential hit quota or auth error",
				"error", redact.Error(err),
				"cooldown_until", until)
		default:
			attemptLog.Warn("transient upstream error",
				"error", redact.Error(err),
				"duration_ms", time.Since(start).Milliseconds())
		}
		lastErr = err
	}

	return "", fmt.Errorf("provider %s exhausted %d credential(s): %w", name, len(creds), lastErr)
}

// attempt runs one request bounded by the per-attempt timeout. A timeout is
// reported as ErrAttemptTimeout.
func (c *Client) attempt(ctx context.Context, provider Provider, cred, prompt string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := provider.Complete(attemptCtx, cred, prompt)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %s: %v", ErrAttemptTimeout, c.timeout, err)
	}
	return text, err
}

var _ Conversant = (*Client)(nil)
