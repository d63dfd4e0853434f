// Package socket manages the persistent event-stream connection to the chat
// server and the typed event bus that consumers subscribe to.
package socket

import (
	"sync"

	"github.com/goccy/go-json"
)

// Handler receives the raw payload of one event.
type Handler func(data json.RawMessage)

// Subscriber is implemented by anything that delivers named events.
// The returned function removes the subscription and is safe to call twice.
type Subscriber interface {
	Subscribe(event string, h Handler) (unsubscribe func())
}

// Emitter sends named events to the server.
type Emitter interface {
	Emit(event string, payload any) error
}

type subscription struct {
	id int
	h  Handler
}

// Bus fans named events out to subscribed handlers in subscription order.
// All methods are thread-safe.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string][]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]subscription)}
}

// Subscribe registers h for event.
func (b *Bus) Subscribe(event string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[event] = append(b.handlers[event], subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(event, id) })
	}
}

func (b *Bus) remove(event string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[event]
	for i, s := range subs {
		if s.id == id {
			b.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[event]) == 0 {
		delete(b.handlers, event)
	}
}

// Dispatch calls every handler of event with data and returns how many ran.
// Handlers run on the caller's goroutine, so per-source ordering is kept.
func (b *Bus) Dispatch(event string, data json.RawMessage) int {
	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[event]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.h(data)
	}
	return len(subs)
}

// Count returns the number of handlers registered for event.
func (b *Bus) Count(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event])
}

// Reset drops every subscription.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.handlers = make(map[string][]subscription)
	b.mu.Unlock()
}
