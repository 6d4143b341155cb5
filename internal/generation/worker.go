package generation

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/agentkit/internal/domain"
	"github.com/phrazzld/agentkit/internal/platform/logger"
	"github.com/phrazzld/agentkit/internal/redact"
	"github.com/phrazzld/agentkit/internal/store"
	"github.com/phrazzld/agentkit/internal/upstream"
)

// QueueName is the queue served by the generation worker.
const QueueName = "generation_queue"

// legacyPlaceholder is the pre-template form of the concept placeholder.
const legacyPlaceholder = "{concept}"

var validate = validator.New()

// Request is the payload of a generation task.
type Request struct {
	Concept string `json:"concept" validate:"required"`
}

// PromptData is the data the prompt template is executed with.
type PromptData struct {
	Concept string
}

// ContentCache keeps model responses between attempts of a task.
type ContentCache interface {
	SaveContentCache(ctx context.Context, key, content string) error
	LoadContentCache(ctx context.Context, key string) (string, bool, error)
}

// Worker generates one markdown note per task.
type Worker struct {
	llm    upstream.Conversant
	cache  ContentCache
	output store.Backend
	prompt *template.Template
	logger *slog.Logger
}

// NewWorker creates a Worker. promptTemplate is a text/template with a
// {{.Concept}} field; the legacy {concept} placeholder is accepted as well.
func NewWorker(
	llm upstream.Conversant,
	cache ContentCache,
	output store.Backend,
	promptTemplate string,
	logger *slog.Logger,
) (*Worker, error) {
	if llm == nil || cache == nil || output == nil {
		return nil, fmt.Errorf("%w: llm, cache and output are required", ErrInvalidConfig)
	}
	if strings.TrimSpace(promptTemplate) == "" {
		return nil, fmt.Errorf("%w: prompt template cannot be empty", ErrInvalidConfig)
	}

	text := strings.ReplaceAll(promptTemplate, legacyPlaceholder, "{{.Concept}}")
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", ErrInvalidConfig, err)
	}

	return &Worker{
		llm:    llm,
		cache:  cache,
		output: output,
		prompt: tmpl,
		logger: logger.With("component", "generation_worker"),
	}, nil
}

// QueueName implements task.Worker.
func (w *Worker) QueueName() string {
	return QueueName
}

// Process implements task.Worker. When the note already exists the task
// succeeds without calling the model and without overwriting the file.
func (w *Worker) Process(ctx context.Context, task domain.Task) (*domain.Task, error) {
	log := logger.FromContextOr(ctx, w.logger)

	var req Request
	if err := task.DecodePayload(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	req.Concept = strings.TrimSpace(req.Concept)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: concept is required", ErrInvalidPayload)
	}

	outputPath := OutputName(req.Concept)
	log = log.With("concept", req.Concept, "output_path", outputPath)

	exists, err := w.output.Exists(ctx, outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to check output %s: %w", outputPath, err)
	}
	if exists {
		log.Warn("output already exists, skipping generation")
		return withOutputPath(task, outputPath)
	}

	content, err := w.content(ctx, log, task.ID, req.Concept)
	if err != nil {
		return nil, err
	}

	if err := w.output.Write(ctx, outputPath, []byte(content)); err != nil {
		return nil, fmt.Errorf("failed to write output %s: %w", outputPath, err)
	}
	log.Info("generated note", "bytes", len(content))

	return withOutputPath(task, outputPath)
}

// content returns the cached response of an earlier attempt or asks the
// model and caches the answer.
func (w *Worker) content(ctx context.Context, log *slog.Logger, taskID, concept string) (string, error) {
	cached, found, err := w.cache.LoadContentCache(ctx, taskID)
	if err != nil {
		log.Warn("failed to read content cache", "error", redact.Error(err))
	}
	if found && strings.TrimSpace(cached) != "" {
		log.Debug("using cached model response")
		return cached, nil
	}

	prompt, err := w.Prompt(concept)
	if err != nil {
		return "", err
	}

	content, err := w.llm.Converse(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate note for %q: %w", concept, err)
	}
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}

	if err := w.cache.SaveContentCache(ctx, taskID, content); err != nil {
		log.Warn("failed to cache model response", "error", redact.Error(err))
	}
	return content, nil
}

// Prompt renders the prompt for a concept.
func (w *Worker) Prompt(concept string) (string, error) {
	var buf bytes.Buffer
	if err := w.prompt.Execute(&buf, PromptData{Concept: concept}); err != nil {
		return "", fmt.Errorf("%w: failed to render prompt: %v", ErrInvalidConfig, err)
	}
	return buf.String(), nil
}

var unsafeNameChars = strings.NewReplacer(
	`\`, "_", "/", "_", ":", "_", `"`, "_", "*", "_",
	"?", "_", "<", "_", ">", "_", "|", "_",
)

// OutputName returns the note file name for a concept.
func OutputName(concept string) string {
	return unsafeNameChars.Replace(strings.TrimSpace(concept)) + ".md"
}

// withOutputPath returns a copy of task whose payload carries output_path
// next to the fields the producer sent.
func withOutputPath(task domain.Task, outputPath string) (*domain.Task, error) {
	var fields map[string]interface{}
	if err := task.DecodePayload(&fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	fields["output_path"] = outputPath
	if err := task.SetPayload(fields); err != nil {
		return nil, err
	}
	return &task, nil
}
