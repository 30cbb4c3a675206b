package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Sink receives the events of one session.
type Sink interface {
	Send(ctx context.Context, ev Event) error
	// Close releases the sink. It must be safe to call more than once.
	Close() error
}

// SubscriberDeliveryError reports that an event could not be delivered.
// It never affects the session that produced the event.
type SubscriberDeliveryError struct {
	SessionID string
	EventType string
	Err       error
}

func (e *SubscriberDeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to subscriber of session %s: %v", e.EventType, e.SessionID, e.Err)
}

func (e *SubscriberDeliveryError) Unwrap() error {
	return e.Err
}

// Broadcaster maps each session to at most one live sink.
type Broadcaster struct {
	mu    sync.Mutex
	sinks map[string]Sink

	// OnDeliveryFailure, when set, is called after a failed send.
	OnDeliveryFailure func(sessionID string)

	logger *slog.Logger
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		sinks:  make(map[string]Sink),
		logger: slog.Default().With("component", "event-broadcaster"),
	}
}

// Attach makes sink the current subscriber of the session. A previous sink
// is closed and receives nothing further. The returned func detaches sink
// if it is still current.
func (b *Broadcaster) Attach(sessionID string, sink Sink) (detach func()) {
	b.mu.Lock()
	prev := b.sinks[sessionID]
	b.sinks[sessionID] = sink
	b.mu.Unlock()

	if prev != nil && prev != sink {
		b.logger.Info("Subscriber superseded", "session_id", sessionID)
		_ = prev.Close()
	}
	return func() { b.Detach(sessionID, sink) }
}

// Detach removes and closes sink if it is still the session's subscriber.
// It reports whether sink was removed.
func (b *Broadcaster) Detach(sessionID string, sink Sink) bool {
	b.mu.Lock()
	current, ok := b.sinks[sessionID]
	if !ok || current != sink {
		b.mu.Unlock()
		return false
	}
	delete(b.sinks, sessionID)
	b.mu.Unlock()

	_ = sink.Close()
	return true
}

// DetachAll removes and closes the session's subscriber, if any.
func (b *Broadcaster) DetachAll(sessionID string) {
	b.mu.Lock()
	sink := b.sinks[sessionID]
	delete(b.sinks, sessionID)
	b.mu.Unlock()

	if sink != nil {
		_ = sink.Close()
	}
}

// HasSubscriber reports whether the session has a live sink.
func (b *Broadcaster) HasSubscriber(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sinks[sessionID]
	return ok
}

// Subscribers returns the number of live sinks.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sinks)
}

// Publish delivers ev to the session's current sink. It returns nil when the
// session has no sink. On a send failure the sink is detached and a
// *SubscriberDeliveryError is returned after being logged.
func (b *Broadcaster) Publish(ctx context.Context, sessionID string, ev Event) error {
	b.mu.Lock()
	sink := b.sinks[sessionID]
	b.mu.Unlock()

	if sink == nil {
		return nil
	}

	if err := sink.Send(ctx, ev); err != nil {
		derr := &SubscriberDeliveryError{SessionID: sessionID, EventType: ev.Type, Err: err}
		if b.Detach(sessionID, sink) {
			b.logger.Warn("Failed to deliver event, subscriber detached",
				"session_id", sessionID, "event_type", ev.Type, "error", err)
		}
		if b.OnDeliveryFailure != nil {
			b.OnDeliveryFailure(sessionID)
		}
		return derr
	}
	return nil
}
