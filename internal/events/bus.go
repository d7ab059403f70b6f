package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventLookupCompleted  EventType = "LOOKUP_COMPLETED"
	EventLookupDenied     EventType = "LOOKUP_DENIED"
	EventUpstreamFailed   EventType = "UPSTREAM_FAILED"
	EventAuditWriteFailed EventType = "AUDIT_WRITE_FAILED"
	EventError            EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Each subscriber runs in its own
// goroutine so publishers never block. A nil bus drops the event.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishLookupCompleted publishes a finished lookup
func (eb *EventBus) PublishLookupCompleted(path, note, status string, duration time.Duration) {
	eb.Publish(Event{
		Type: EventLookupCompleted,
		Data: map[string]interface{}{
			"path":        path,
			"note":        note,
			"status":      status,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// PublishLookupDenied publishes a rejected lookup attempt
func (eb *EventBus) PublishLookupDenied(note, ip string) {
	eb.Publish(Event{
		Type: EventLookupDenied,
		Data: map[string]interface{}{
			"note": note,
			"ip":   ip,
		},
	})
}

// PublishUpstreamFailed publishes a registry call failure
func (eb *EventBus) PublishUpstreamFailed(variant, outcome string, err error) {
	data := map[string]interface{}{
		"variant": variant,
		"outcome": outcome,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{Type: EventUpstreamFailed, Data: data})
}

// PublishAuditWriteFailed publishes an audit entry that could not be stored
func (eb *EventBus) PublishAuditWriteFailed(status, note string, err error) {
	data := map[string]interface{}{
		"status": status,
		"note":   note,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{Type: EventAuditWriteFailed, Data: data})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
