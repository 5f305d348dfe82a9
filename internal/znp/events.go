package znp

import (
	"log/slog"
	"sync"
)

// Indication event kinds published on a Driver's EventBus.
const (
	EventDeviceAnnounce = "device_announce"
	EventDeviceLeft     = "device_left"
	EventIncomingMsg    = "incoming_msg"
	EventPermitJoin     = "permit_join"
	EventStateChange    = "state_change"
)

// Event is one item published to the driver's indication stream.
type Event struct {
	Type string
	Data any
}

// EventHandler receives published events.
type EventHandler func(Event)

// EventBus is the driver's indication fan-out: every ZDO/AF indication the
// coordinator cares about is republished here after decoding, decoupling
// application listeners from the underlying MT bus.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]EventHandler
	allHandlers map[uint64]EventHandler
	nextID      uint64
	logger      *slog.Logger
}

func newEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:    make(map[string]map[uint64]EventHandler),
		allHandlers: make(map[uint64]EventHandler),
		logger:      logger,
	}
}

// On registers a handler for a specific event type, returning an
// unsubscribe function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make(map[uint64]EventHandler)
	}
	eb.handlers[eventType][id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers[eventType], id)
	}
}

// OnAll registers a handler that receives every event.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.allHandlers[id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.allHandlers, id)
	}
}

// Emit publishes ev to every matching and every "all" handler. Handlers are
// copied out and the lock released before any of them run, so a handler that
// calls On/OnAll from within Emit doesn't deadlock.
func (eb *EventBus) Emit(ev Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[ev.Type])+len(eb.allHandlers))
	for _, h := range eb.handlers[ev.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allHandlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
