package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventMemberLoggedIn   = "member_logged_in"
	EventMemberLoggedOut  = "member_logged_out"
	EventBookingCreated   = "booking_created"
	EventGuestRegistered  = "guest_registered"
	EventGuestRemoved     = "guest_removed"
	EventInquirySubmitted = "inquiry_submitted"
	EventCardSaved        = "card_saved"
)

// AllEventTypes lists every event the portal publishes.
var AllEventTypes = []string{
	EventMemberLoggedIn,
	EventMemberLoggedOut,
	EventBookingCreated,
	EventGuestRegistered,
	EventGuestRemoved,
	EventInquirySubmitted,
	EventCardSaved,
}

// MemberEventPayload is the common envelope for member-scoped events.
type MemberEventPayload struct {
	MemberID  string `json:"member_id"`
	Email     string `json:"email,omitempty"`
	Profile   string `json:"profile,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Date      string `json:"date,omitempty"`
	Hours     int    `json:"hours,omitempty"`
	GuestName string `json:"guest_name,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	nextID      int64
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers one handler for every known event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range AllEventTypes {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type and returns the first handler error.
func (b *EventBus) Publish(event *Event) error {
	b.mu.Lock()
	b.nextID++
	event.ID = b.nextID
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var firstErr error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
