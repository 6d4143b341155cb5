package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/phrazzld/agentkit/internal/upstream"
	"google.golang.org/genai"
)

// Name is the provider name used in configuration.
const Name = "google"

// contentGenerator is the subset of *genai.Models the provider uses.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// generatorFactory builds a contentGenerator bound to one API key.
type generatorFactory func(ctx context.Context, apiKey string) (contentGenerator, error)

// Provider implements upstream.Provider on top of the Gemini API.
// One genai client is created per credential and reused.
type Provider struct {
	model   string
	logger  *slog.Logger
	factory generatorFactory

	mu      sync.Mutex
	clients map[string]contentGenerator
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the HTTP client used by the genai clients.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.factory = genaiFactory(client)
	}
}

// NewProvider creates a Gemini provider for model.
func NewProvider(model string, logger *slog.Logger, opts ...Option) (*Provider, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%w: gemini model cannot be empty", upstream.ErrInvalidConfig)
	}

	p := &Provider{
		model:   model,
		logger:  logger.With("component", "gemini_provider", "model", model),
		factory: genaiFactory(cleanhttp.DefaultPooledClient()),
		clients: make(map[string]contentGenerator),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func genaiFactory(httpClient *http.Client) generatorFactory {
	return func(ctx context.Context, apiKey string) (contentGenerator, error) {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, err
		}
		return client.Models, nil
	}
}

// Name implements upstream.Provider.
func (p *Provider) Name() string {
	return Name
}

// Complete implements upstream.Provider.
func (p *Provider) Complete(ctx context.Context, credential, prompt string) (string, error) {
	gen, err := p.generator(ctx, credential)
	if err != nil {
		return "", err
	}

	resp, err := gen.GenerateContent(ctx, p.model, genai.Text(prompt), nil)
	if err != nil {
		return "", convertError(err)
	}
	return extractText(resp)
}

func (p *Provider) generator(ctx context.Context, credential string) (contentGenerator, error) {
	key := upstream.Fingerprint(credential)

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen, ok := p.clients[key]; ok {
		return gen, nil
	}
	gen, err := p.factory(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	p.clients[key] = gen
	p.logger.Debug("created gemini client", "credential", key)
	return gen, nil
}

// convertError maps genai API errors onto upstream.StatusError so the
// client can classify them.
func convertError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return statusError(*apiErrPtr)
	}
	return err
}

func statusError(apiErr genai.APIError) *upstream.StatusError {
	body := apiErr.Message
	if apiErr.Status != "" {
		body = apiErr.Status + ": " + apiErr.Message
	}
	return &upstream.StatusError{
		Provider:   Name,
		StatusCode: apiErr.Code,
		Body:       body,
	}
}

// extractText concatenates the text parts of the first candidate.
// A blocked prompt or a safety stop wraps upstream.ErrRequestRejected. An
// empty answer is returned as is.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", upstream.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" &&
		resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return "", fmt.Errorf("%w: prompt blocked: %s", upstream.ErrRequestRejected, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", upstream.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: content blocked by safety filters", upstream.ErrRequestRejected)
	}
	if candidate.Content == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

var _ upstream.Provider = (*Provider)(nil)
