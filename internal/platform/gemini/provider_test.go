package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/phrazzld/agentkit/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	resp    *genai.GenerateContentResponse
	err     error
	models  []string
	prompts []string
}

func (f *fakeGenerator) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.models = append(f.models, model)
	for _, c := range contents {
		for _, p := range c.Parts {
			f.prompts = append(f.prompts, p.Text)
		}
	}
	return f.resp, f.err
}

func newTestProvider(t *testing.T, gen *fakeGenerator, created *[]string) *Provider {
	t.Helper()
	p, err := NewProvider("gemini-test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	p.factory = func(ctx context.Context, apiKey string) (contentGenerator, error) {
		if created != nil {
			*created = append(*created, apiKey)
		}
		return gen, nil
	}
	return p
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, text := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: text})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content, FinishReason: genai.FinishReasonStop}},
	}
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	_, err := NewProvider("", slog.Default())
	assert.ErrorIs(t, err, upstream.ErrInvalidConfig)

	_, err = NewProvider("gemini-2.0-flash", nil)
	assert.Error(t, err)

	p, err := NewProvider("gemini-2.0-flash", slog.Default(), WithHTTPClient(http.DefaultClient))
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())
}

func TestProvider_Complete(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{resp: textResponse("Entropy ", "is disorder.")}
	var created []string
	p := newTestProvider(t, gen, &created)

	text, err := p.Complete(context.Background(), "key-1", "Explain entropy")
	require.NoError(t, err)
	assert.Equal(t, "Entropy is disorder.", text)
	assert.Equal(t, []string{"gemini-test"}, gen.models)
	assert.Equal(t, []string{"Explain entropy"}, gen.prompts)

	_, err = p.Complete(context.Background(), "key-1", "again")
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), "key-2", "other key")
	require.NoError(t, err)
	assert.Equal(t, []string{"key-1", "key-2"}, created, "clients are cached per credential")
}

func TestProvider_Complete_Responses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		want    string
		wantErr error
	}{
		{
			name:    "nil response",
			resp:    nil,
			wantErr: upstream.ErrInvalidResponse,
		},
		{
			name:    "no candidates",
			resp:    &genai.GenerateContentResponse{},
			wantErr: upstream.ErrInvalidResponse,
		},
		{
			name: "safety stop",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			},
			wantErr: upstream.ErrRequestRejected,
		},
		{
			name: "blocked prompt",
			resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			},
			wantErr: upstream.ErrRequestRejected,
		},
		{
			name: "empty content",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}},
			},
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, &fakeGenerator{resp: tc.resp}, nil)
			text, err := p.Complete(context.Background(), "key", "prompt")
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, text)
		})
	}
}

func TestConvertError(t *testing.T) {
	t.Parallel()

	t.Run("value api error", func(t *testing.T) {
		t.Parallel()
		err := convertError(fmt.Errorf("call failed: %w", genai.APIError{
			Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "Quota exceeded",
		}))
		var statusErr *upstream.StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, 429, statusErr.StatusCode)
		assert.Equal(t, "google", statusErr.Provider)
		assert.Equal(t, upstream.ClassQuota, upstream.Classify(err))
	})

	t.Run("pointer api error", func(t *testing.T) {
		t.Parallel()
		err := convertError(&genai.APIError{Code: 503, Status: "UNAVAILABLE", Message: "overloaded"})
		assert.Equal(t, upstream.ClassTransient, upstream.Classify(err))
	})

	t.Run("invalid key reported as bad request", func(t *testing.T) {
		t.Parallel()
		err := convertError(genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "API key not valid. Please pass a valid API key."})
		assert.Equal(t, upstream.ClassQuota, upstream.Classify(err))
	})

	t.Run("other errors pass through", func(t *testing.T) {
		t.Parallel()
		base := errors.New("dial tcp: connection refused")
		assert.Same(t, base, convertError(base))
	})
}
