package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/phrazzld/agentkit/internal/domain"
)

// Worker processes the tasks of one queue.
//
// Process receives a copy of the task. On success it may return a task
// whose Payload replaces the stored payload; returning nil keeps the
// payload unchanged. Failures must be reported as errors. A task can be
// delivered more than once, so Process must tolerate replays.
type Worker interface {
	QueueName() string
	Process(ctx context.Context, task domain.Task) (*domain.Task, error)
}

// Registry maps queue names to workers and keeps registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []Worker
	byQueue map[string]Worker
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byQueue: make(map[string]Worker)}
}

// Register adds a worker. Each queue accepts one worker.
func (r *Registry) Register(w Worker) error {
	if w == nil {
		return ErrNilWorker
	}
	queue := w.QueueName()
	if queue == "" {
		return domain.ErrEmptyQueueName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byQueue[queue]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateWorker, queue)
	}
	r.byQueue[queue] = w
	r.order = append(r.order, w)
	return nil
}

// Get returns the worker for a queue.
func (r *Registry) Get(queue string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byQueue[queue]
	return w, ok
}

// Workers returns the workers in registration order.
func (r *Registry) Workers() []Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Worker(nil), r.order...)
}

// Queues returns the registered queue names in registration order.
func (r *Registry) Queues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.order))
	for _, w := range r.order {
		names = append(names, w.QueueName())
	}
	return names
}

// ProcessFunc is the signature of Worker.Process.
type ProcessFunc func(ctx context.Context, task domain.Task) (*domain.Task, error)

type funcWorker struct {
	queue string
	fn    ProcessFunc
}

// NewFuncWorker adapts a function to the Worker interface.
func NewFuncWorker(queue string, fn ProcessFunc) Worker {
	return &funcWorker{queue: queue, fn: fn}
}

func (w *funcWorker) QueueName() string { return w.queue }

func (w *funcWorker) Process(ctx context.Context, task domain.Task) (*domain.Task, error) {
	return w.fn(ctx, task)
}
