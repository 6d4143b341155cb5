package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/agentkit/internal/domain"
	"github.com/phrazzld/agentkit/internal/events"
	"github.com/phrazzld/agentkit/internal/platform/logger"
	"github.com/phrazzld/agentkit/internal/redact"
	"github.com/phrazzld/agentkit/internal/task"
	"github.com/phrazzld/agentkit/internal/upstream"
)

// Engine is the part of task.Engine the dispatcher drives.
type Engine interface {
	Enqueue(ctx context.Context, queue string, payload interface{}, sourceID string) (string, error)
	Start()
	Stop()
	IsRunning() bool
	Stats() task.Stats
	Lookup(id string) (*domain.Task, bool)
}

// Dispatcher is the producer-facing API of the engine.
type Dispatcher interface {
	// Enqueue adds a task to the named queue and returns its id.
	Enqueue(ctx context.Context, queue string, payload interface{}, sourceID string) (string, error)

	// Start resumes task processing. Starting a running engine does nothing.
	Start(ctx context.Context)

	// Stop pauses task processing. In-flight tasks finish normally.
	Stop(ctx context.Context)

	// IsRunning reports whether the engine is processing tasks.
	IsRunning() bool

	// Converse sends a prompt straight to the language model, outside the queue.
	Converse(ctx context.Context, prompt string) (string, error)

	// Subscribe registers a handler for one lifecycle event.
	Subscribe(name events.Name, handler events.Handler) (events.SubscriptionID, error)

	// Unsubscribe removes a handler registered with Subscribe.
	Unsubscribe(name events.Name, id events.SubscriptionID) bool

	// Stats returns a snapshot of queue and engine counters.
	Stats() task.Stats

	// Task returns a copy of a task that is still in the snapshot.
	Task(ctx context.Context, id string) (*domain.Task, error)
}

type dispatcher struct {
	engine     Engine
	llm        upstream.Conversant
	subscriber events.Subscriber
	logger     *slog.Logger
}

var _ Dispatcher = (*dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
func NewDispatcher(
	engine Engine,
	llm upstream.Conversant,
	subscriber events.Subscriber,
	logger *slog.Logger,
) (Dispatcher, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: engine cannot be nil", domain.ErrValidation)
	}
	if llm == nil {
		return nil, fmt.Errorf("%w: llm cannot be nil", domain.ErrValidation)
	}
	if subscriber == nil {
		return nil, fmt.Errorf("%w: subscriber cannot be nil", domain.ErrValidation)
	}
	return &dispatcher{
		engine:     engine,
		llm:        llm,
		subscriber: subscriber,
		logger:     logger.With("component", "dispatcher"),
	}, nil
}

func (d *dispatcher) Enqueue(ctx context.Context, queue string, payload interface{}, sourceID string) (string, error) {
	id, err := d.engine.Enqueue(ctx, queue, payload, sourceID)
	if err != nil {
		return "", NewDispatcherError("enqueue", err)
	}
	return id, nil
}

func (d *dispatcher) Start(ctx context.Context) {
	logger.FromContextOr(ctx, d.logger).Info("engine start requested")
	d.engine.Start()
}

func (d *dispatcher) Stop(ctx context.Context) {
	logger.FromContextOr(ctx, d.logger).Info("engine stop requested")
	d.engine.Stop()
}

func (d *dispatcher) IsRunning() bool {
	return d.engine.IsRunning()
}

func (d *dispatcher) Converse(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	reply, err := d.llm.Converse(ctx, prompt)
	if err != nil {
		logger.FromContextOr(ctx, d.logger).Warn("conversation failed",
			"error", redact.Error(err),
			"fatal", upstream.IsFatal(err))
		return "", NewDispatcherError("converse", err)
	}
	return reply, nil
}

func (d *dispatcher) Subscribe(name events.Name, handler events.Handler) (events.SubscriptionID, error) {
	if !knownEvent(name) {
		return 0, NewDispatcherError("subscribe", ErrUnknownEvent)
	}
	return d.subscriber.Subscribe(name, handler), nil
}

func (d *dispatcher) Unsubscribe(name events.Name, id events.SubscriptionID) bool {
	return d.subscriber.Unsubscribe(name, id)
}

func (d *dispatcher) Stats() task.Stats {
	return d.engine.Stats()
}

func (d *dispatcher) Task(_ context.Context, id string) (*domain.Task, error) {
	t, ok := d.engine.Lookup(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

func knownEvent(name events.Name) bool {
	for _, n := range events.AllNames {
		if n == name {
			return true
		}
	}
	return false
}
