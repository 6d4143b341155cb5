// Package events provides the lifecycle event notifier of the task engine.
//
// The Notifier is an explicitly constructed publish/subscribe channel that is
// passed to every component that emits or observes task lifecycle events.
// Delivery is synchronous with emission: Emit returns once every subscriber
// has been called. A subscriber that returns an error or panics is logged by
// the notifier and never affects the emitter or the other subscribers.
//
// The primary components are:
// - Event: the name plus the task data carried by a lifecycle event
// - Handler: the subscriber callback
// - Notifier: the in-memory fan-out implementation
package events
