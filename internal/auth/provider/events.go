package provider

import (
	"context"
	"sync"
	"time"
)

// EventType enumerates session change notifications.
type EventType string

const (
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
	EventExpired   EventType = "expired"
)

// Event describes one session change. The most recent event is authoritative;
// no ordering is guaranteed between overlapping operations.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}

// Events fan-outs session changes to all active subscribers (the session
// controller, SSE clients).
type Events struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewEvents initialises an empty bus.
func NewEvents() *Events {
	return &Events{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (e *Events) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = ch
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		delete(e.subs, id)
		close(ch)
		e.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (e *Events) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
