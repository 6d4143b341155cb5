package events

import (
	"context"
	"sync"
)

// Recorder is a subscriber that keeps every event it receives. It is used by
// tests of components that emit events.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Attach subscribes the recorder to every event of n.
func (r *Recorder) Attach(n *Notifier) {
	n.SubscribeAll(r.Handle)
}

// Handle implements Handler.
func (r *Recorder) Handle(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of all recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(name Name) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// ForTask returns the names of the events recorded for one task, in order.
func (r *Recorder) ForTask(taskID string) []Name {
	var out []Name
	for _, e := range r.Events() {
		if e.TaskID == taskID {
			out = append(out, e.Name)
		}
	}
	return out
}
