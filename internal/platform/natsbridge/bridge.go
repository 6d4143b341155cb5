package natsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/phrazzld/agentkit/internal/events"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "agentkit"

// Publisher is the part of *nats.Conn the bridge uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Bridge forwards notifier events to NATS subjects of the form
// <prefix>.<lowercased event name>, e.g. agentkit.task_completed.
type Bridge struct {
	publisher Publisher
	prefix    string
	logger    *slog.Logger

	subscriber events.Subscriber
	subs       map[events.Name]events.SubscriptionID
}

// New creates a Bridge. It does not subscribe until Attach is called.
func New(publisher Publisher, prefix string, logger *slog.Logger) *Bridge {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Bridge{
		publisher: publisher,
		prefix:    prefix,
		logger:    logger.With("component", "nats_bridge"),
	}
}

// Connect opens a NATS connection with reconnect handling logged through
// logger.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	log := logger.With("component", "nats_bridge")
	nc, err := nats.Connect(url,
		nats.Name("agentkit"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("reconnected to NATS", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// Subject returns the subject an event is published on.
func (b *Bridge) Subject(name events.Name) string {
	return b.prefix + "." + strings.ToLower(string(name))
}

// Attach subscribes the bridge to every event of subscriber.
func (b *Bridge) Attach(subscriber events.Subscriber) {
	b.subscriber = subscriber
	b.subs = make(map[events.Name]events.SubscriptionID, len(events.AllNames))
	for _, name := range events.AllNames {
		b.subs[name] = subscriber.Subscribe(name, b.Handle)
	}
}

// Detach removes the subscriptions made by Attach.
func (b *Bridge) Detach() {
	if b.subscriber == nil {
		return
	}
	for name, id := range b.subs {
		b.subscriber.Unsubscribe(name, id)
	}
	b.subs = nil
	b.subscriber = nil
}

// Handle implements events.Handler. Publish failures are logged here and
// never reach the engine.
func (b *Bridge) Handle(_ context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to encode event", "event", event.Name, "error", err)
		return nil
	}

	subject := b.Subject(event.Name)
	if err := b.publisher.Publish(subject, data); err != nil {
		b.logger.Warn("failed to publish event",
			"subject", subject,
			"task_id", event.TaskID,
			"error", err)
		return nil
	}
	return nil
}

var _ Publisher = (*nats.Conn)(nil)
