// Package events carries status notifications from the automation core out to
// whatever surface hosts it. Handlers run synchronously on the emitting
// goroutine in subscription order, so they must not block; a dashboard panel
// that needs to do real work should hand the event off to its own goroutine.
package events

import (
	"sync"
	"time"
)

// Kind identifies an event category.
type Kind string

const (
	// KindConnection fires when the browser connection state flips.
	KindConnection Kind = "connection_changed"
	// KindTargetResolved fires after each target-group resolution attempt.
	KindTargetResolved Kind = "target_resolved"
	// KindMessageSent fires after a dispatch call verified a send.
	KindMessageSent Kind = "message_sent"
	// KindMessageFailed fires after a dispatch call could not verify a send.
	KindMessageFailed Kind = "message_failed"
	// KindMonitorState fires when monitoring starts or stops.
	KindMonitorState Kind = "monitor_state"
	// KindUnreadCount fires when a chat-list unread badge is read.
	KindUnreadCount Kind = "unread_count"
)

// Event is the payload delivered to subscribers. Only the fields relevant to
// the Kind are populated.
type Event struct {
	Kind Kind
	At   time.Time

	Connected bool   // KindConnection
	Target    string // KindTargetResolved: group name
	Found     bool   // KindTargetResolved
	MessageID string // KindMessageSent / KindMessageFailed
	Detail    string // human-readable context, error text on failure
	Active    bool   // KindMonitorState
	Unread    int    // KindUnreadCount
}

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id      int
	kind    Kind
	handler Handler
}

// Bus is a minimal observer registry. The zero value is not usable; call New.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for one event kind and returns an
// unsubscribe function. Subscribing to the empty Kind receives everything.
func (b *Bus) Subscribe(kind Kind, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, kind: kind, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to all matching subscribers. A zero At is stamped with
// the current time.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	matched := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.kind == "" || s.kind == ev.Kind {
			matched = append(matched, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		h(ev)
	}
}
