package events

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Notifier is an in-memory, synchronous fan-out of lifecycle events.
type Notifier struct {
	mu       sync.RWMutex
	nextID   SubscriptionID
	handlers map[Name][]subscription
	logger   *slog.Logger
}

// NewNotifier creates a new Notifier with no subscribers.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		handlers: make(map[Name][]subscription),
		logger:   logger.With("component", "event_notifier"),
	}
}

// Subscribe registers handler for the named event and returns an id that
// Unsubscribe accepts.
func (n *Notifier) Subscribe(name Name, handler Handler) SubscriptionID {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.handlers[name] = append(n.handlers[name], subscription{id: id, handler: handler})
	n.logger.Debug("registered event handler",
		"event", name,
		"subscription_id", id,
		"handler_count", len(n.handlers[name]))
	return id
}

// SubscribeAll registers handler for every event the engine emits.
func (n *Notifier) SubscribeAll(handler Handler) map[Name]SubscriptionID {
	ids := make(map[Name]SubscriptionID, len(AllNames))
	for _, name := range AllNames {
		ids[name] = n.Subscribe(name, handler)
	}
	return ids
}

// Unsubscribe removes a subscription. It reports whether it was found.
func (n *Notifier) Unsubscribe(name Name, id SubscriptionID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs := n.handlers[name]
	for i, sub := range subs {
		if sub.id != id {
			continue
		}
		n.handlers[name] = append(subs[:i:i], subs[i+1:]...)
		if len(n.handlers[name]) == 0 {
			delete(n.handlers, name)
		}
		return true
	}
	return false
}

// Emit delivers the event to every subscriber of its name, in subscription
// order. OccurredAt is filled in when unset.
func (n *Notifier) Emit(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	n.mu.RLock()
	subs := make([]subscription, len(n.handlers[event.Name]))
	copy(subs, n.handlers[event.Name])
	n.mu.RUnlock()

	n.logger.Debug("emitting event",
		"event", event.Name,
		"task_id", event.TaskID,
		"queue", event.QueueName,
		"handler_count", len(subs))

	for _, sub := range subs {
		if err := n.deliver(ctx, sub, event); err != nil {
			n.logger.Error("event handler failed",
				"error", err,
				"event", event.Name,
				"subscription_id", sub.id,
				"task_id", event.TaskID)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, sub subscription, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return sub.handler(ctx, event)
}

var (
	_ Emitter    = (*Notifier)(nil)
	_ Subscriber = (*Notifier)(nil)
)
