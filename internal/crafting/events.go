package crafting

import (
	"sync"
	"time"

	"github.com/gravitas-games/stationhost/pkg/models"
)

// EventType represents the type of craft event.
type EventType int

const (
	EventJobStarted EventType = iota
	EventJobCompleted
	// EventJobBlocked is emitted once when finished outputs do not fit.
	EventJobBlocked
	EventJobCancelled
)

// String returns a human-readable representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventJobStarted:
		return "JobStarted"
	case EventJobCompleted:
		return "JobCompleted"
	case EventJobBlocked:
		return "JobBlocked"
	case EventJobCancelled:
		return "JobCancelled"
	default:
		return "Unknown"
	}
}

// Event carries a snapshot of the job at the time it was emitted.
type Event struct {
	Type      EventType      `json:"type"`
	Job       View           `json:"job"`
	Agent     models.AgentID `json:"agent"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventBus manages event subscriptions and delivery.
type EventBus interface {
	Subscribe(owner models.ParticipantID, handler func(Event))
	Unsubscribe(owner models.ParticipantID)
	Publish(event Event)
}

// SimpleEventBus is a basic in-memory event bus keyed by job owner. Events
// are delivered on a separate goroutine, one at a time, in publish order, so
// Publish never blocks on a handler and may be called with locks held.
type SimpleEventBus struct {
	mu       sync.RWMutex
	handlers map[models.ParticipantID]func(Event)
	all      []func(Event)

	qmu      sync.Mutex
	queue    []Event
	draining bool
}

// NewSimpleEventBus creates a new event bus.
func NewSimpleEventBus() *SimpleEventBus {
	return &SimpleEventBus{handlers: make(map[models.ParticipantID]func(Event))}
}

// Subscribe registers a handler for events for a specific owner.
func (bus *SimpleEventBus) Subscribe(owner models.ParticipantID, handler func(Event)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.handlers[owner] = handler
}

// SubscribeAll registers a handler that receives every event.
func (bus *SimpleEventBus) SubscribeAll(handler func(Event)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.all = append(bus.all, handler)
}

// Unsubscribe removes the handler for an owner.
func (bus *SimpleEventBus) Unsubscribe(owner models.ParticipantID) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.handlers, owner)
}

// Publish queues an event for delivery.
func (bus *SimpleEventBus) Publish(event Event) {
	bus.qmu.Lock()
	bus.queue = append(bus.queue, event)
	if bus.draining {
		bus.qmu.Unlock()
		return
	}
	bus.draining = true
	bus.qmu.Unlock()
	go bus.drain()
}

func (bus *SimpleEventBus) drain() {
	for {
		bus.qmu.Lock()
		if len(bus.queue) == 0 {
			bus.queue = nil
			bus.draining = false
			bus.qmu.Unlock()
			return
		}
		event := bus.queue[0]
		bus.queue = bus.queue[1:]
		bus.qmu.Unlock()
		bus.deliver(event)
	}
}

func (bus *SimpleEventBus) deliver(event Event) {
	bus.mu.RLock()
	handler := bus.handlers[event.Job.Owner]
	all := make([]func(Event), len(bus.all))
	copy(all, bus.all)
	bus.mu.RUnlock()
	if handler != nil {
		handler(event)
	}
	for _, h := range all {
		h(event)
	}
}

// NullEventBus is an event bus that does nothing.
type NullEventBus struct{}

// NewNullEventBus creates a new null event bus.
func NewNullEventBus() *NullEventBus {
	return &NullEventBus{}
}

// Subscribe does nothing.
func (bus *NullEventBus) Subscribe(owner models.ParticipantID, handler func(Event)) {}

// Unsubscribe does nothing.
func (bus *NullEventBus) Unsubscribe(owner models.ParticipantID) {}

// Publish does nothing.
func (bus *NullEventBus) Publish(event Event) {}
