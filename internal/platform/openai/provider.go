package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/phrazzld/agentkit/internal/upstream"
)

// Name is the provider name used in configuration.
const Name = "openai"

// DefaultBaseURL is the public OpenAI API.
const DefaultBaseURL = "https://api.openai.com/v1"

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Provider implements upstream.Provider for OpenAI compatible chat APIs.
type Provider struct {
	endpoint   string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// NewProvider creates a provider that sends requests for model to baseURL.
func NewProvider(baseURL, model string, logger *slog.Logger, opts ...Option) (*Provider, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%w: openai model cannot be empty", upstream.ErrInvalidConfig)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: invalid openai base url: %v", upstream.ErrInvalidConfig, err)
	}

	p := &Provider{
		endpoint:   strings.TrimRight(baseURL, "/") + "/chat/completions",
		model:      model,
		httpClient: cleanhttp.DefaultPooledClient(),
		logger:     logger.With("component", "openai_provider", "model", model),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name implements upstream.Provider.
func (p *Provider) Name() string {
	return Name
}

// Complete implements upstream.Provider.
func (p *Provider) Complete(ctx context.Context, credential, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    p.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &upstream.StatusError{
			Provider:   Name,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: %v", upstream.ErrInvalidResponse, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", upstream.ErrInvalidResponse)
	}

	choice := decoded.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", fmt.Errorf("%w: content blocked by content filter", upstream.ErrRequestRejected)
	}
	if choice.FinishReason == "length" {
		p.logger.Warn("completion truncated at token limit")
	}
	return choice.Message.Content, nil
}

var _ upstream.Provider = (*Provider)(nil)
