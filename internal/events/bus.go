package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Handler receives events from the bus. Handlers run on the emitting
// goroutine and must not block.
type Handler func(event *Event)

// SubscriptionID identifies a handler registered with Subscribe
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus fans events out to subscribers by type.
//
// The subscriber table is copy-on-write: Emit iterates over a snapshot, so a
// handler may subscribe or unsubscribe while being dispatched.
type Bus struct {
	mu     sync.Mutex
	subs   atomic.Pointer[map[EventType][]subscription]
	nextID atomic.Uint64
	log    zerolog.Logger
}

// NewBus creates an event bus with no subscribers
func NewBus(log zerolog.Logger) *Bus {
	b := &Bus{log: log.With().Str("component", "event_bus").Logger()}
	empty := make(map[EventType][]subscription)
	b.subs.Store(&empty)
	return b
}

// Subscribe registers handler for eventType
func (b *Bus) Subscribe(eventType EventType, handler Handler) SubscriptionID {
	id := SubscriptionID(b.nextID.Add(1))

	b.mu.Lock()
	defer b.mu.Unlock()

	current := *b.subs.Load()
	next := make(map[EventType][]subscription, len(current)+1)
	for t, subs := range current {
		next[t] = subs
	}
	subs := make([]subscription, 0, len(current[eventType])+1)
	subs = append(subs, current[eventType]...)
	next[eventType] = append(subs, subscription{id: id, handler: handler})
	b.subs.Store(&next)

	return id
}

// Unsubscribe removes a handler. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := *b.subs.Load()
	next := make(map[EventType][]subscription, len(current))
	for t, subs := range current {
		kept := make([]subscription, 0, len(subs))
		for _, s := range subs {
			if s.id != id {
				kept = append(kept, s)
			}
		}
		if len(kept) > 0 {
			next[t] = kept
		}
	}
	b.subs.Store(&next)
}

// Emit delivers an event to every subscriber of eventType
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	for _, s := range (*b.subs.Load())[eventType] {
		b.dispatch(s, event)
	}
}

func (b *Bus) dispatch(s subscription, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Msg("Event handler panicked")
		}
	}()
	s.handler(event)
}

// SubscriberCount returns the number of handlers for eventType
func (b *Bus) SubscriberCount(eventType EventType) int {
	return len((*b.subs.Load())[eventType])
}
