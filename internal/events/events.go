package events

import (
	"encoding/json"
	"sync"
	"time"

	"medadmin/internal/models"
)

// Appointment lifecycle event types.
const (
	AppointmentBooked    = "appointment.booked"
	AppointmentChanged   = "appointment.changed"
	AppointmentCancelled = "appointment.cancelled"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// AppointmentChange is the payload of every appointment lifecycle event.
type AppointmentChange struct {
	Operation   string              `json:"operation"`
	Partition   int                 `json:"partition"`
	Appointment models.Appointment  `json:"appointment"`
	ID          string              `json:"id"`
	Previous    *models.Appointment `json:"previous,omitempty"`
}

// Decode unmarshals an event payload into out.
func (e Event) Decode(out interface{}) error {
	return json.Unmarshal(e.Payload, out)
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// ErrorHandler receives handler failures.
type ErrorHandler func(event Event, err error)

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	onError     ErrorHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError registers a callback for handler failures.
func (b *EventBus) OnError(fn ErrorHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON encodes payload and publishes it under evType.
func (b *EventBus) PublishJSON(evType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.Publish(Event{Type: evType, Payload: data})
	return nil
}
