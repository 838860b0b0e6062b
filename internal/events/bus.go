package events

import (
	"sync"
	"time"
)

// Handler receives published events. Handlers run on the publisher's goroutine
// and must not block.
type Handler func(event *Event)

// Bus fans events out to subscribers
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[EventType]map[int]Handler
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{handlers: make(map[EventType]map[int]Handler)}
}

// Subscribe registers handler for the given types (all types when none given)
// and returns a function that removes the subscription.
func (b *Bus) Subscribe(handler Handler, types ...EventType) func() {
	if len(types) == 0 {
		types = AllTypes
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	for _, t := range types {
		if b.handlers[t] == nil {
			b.handlers[t] = make(map[int]Handler)
		}
		b.handlers[t][id] = handler
	}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, t := range types {
			delete(b.handlers[t], id)
		}
	}
}

// Emit publishes an event to every subscriber of its type
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[eventType]))
	for _, h := range b.handlers[eventType] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// SubscriberCount returns the number of handlers registered for a type
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}
