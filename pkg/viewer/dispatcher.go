package viewer

import (
	"sync"

	"github.com/soundcheck-live/soundcheck/pkg/events"
)

// Handler consumes one envelope.
type Handler func(events.Envelope)

// Dispatcher routes envelopes to handlers by type. Handlers for the specific
// type run first, then global handlers. Unknown types simply find no typed
// handler — forward compatibility means they are never an error here.
type Dispatcher struct {
	mu          sync.RWMutex
	handlers    map[string][]Handler
	allHandlers []Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
	}
}

// On registers a handler for one envelope type.
func (d *Dispatcher) On(eventType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

// OnAll registers a handler that receives every envelope.
func (d *Dispatcher) OnAll(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allHandlers = append(d.allHandlers, h)
}

// Dispatch delivers the envelope and reports whether any typed handler
// claimed it.
func (d *Dispatcher) Dispatch(env events.Envelope) bool {
	d.mu.RLock()
	typed := d.handlers[env.Type]
	global := d.allHandlers
	d.mu.RUnlock()

	for _, h := range typed {
		h(env)
	}
	for _, h := range global {
		h(env)
	}
	return len(typed) > 0
}
