package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingCreated          = "booking_created"
	EventBookingCancelled        = "booking_cancelled"
	EventBookingRejected         = "booking_rejected"
	EventBookingCompleted        = "booking_completed"
	EventBookingMissed           = "booking_missed"
	EventBookingNoCheckout       = "booking_no_checkout"
	EventMonthlyBookingCreated   = "monthly_booking_created"
	EventMonthlyBookingCancelled = "monthly_booking_cancelled"
	EventMonthlyBookingCompleted = "monthly_booking_completed"
	EventMonthlyBookingMissed    = "monthly_booking_missed"
	EventCheckedIn               = "checked_in"
	EventCheckedOut              = "checked_out"
	EventWalletCredited          = "wallet_credited"
	EventWalletWithdrawn         = "wallet_withdrawn"
	EventRefundIssued            = "refund_issued"
)

// UserEventTypes lists every event that concerns a single user and is
// relayed to that user's notification channel.
var UserEventTypes = []string{
	EventBookingCreated,
	EventBookingCancelled,
	EventBookingRejected,
	EventBookingCompleted,
	EventBookingMissed,
	EventBookingNoCheckout,
	EventMonthlyBookingCreated,
	EventMonthlyBookingCancelled,
	EventMonthlyBookingCompleted,
	EventMonthlyBookingMissed,
	EventCheckedIn,
	EventCheckedOut,
	EventWalletCredited,
	EventWalletWithdrawn,
	EventRefundIssued,
}

// BookingEventPayload is the booking snapshot sent to consumers. A
// single-day purchase lists every created booking in BookingIDs.
type BookingEventPayload struct {
	UserID           int64    `json:"user_id"`
	BookingIDs       []int64  `json:"booking_ids,omitempty"`
	MonthlyBookingID int64    `json:"monthly_booking_id,omitempty"`
	LibraryID        int64    `json:"library_id"`
	SeatID           int64    `json:"seat_id"`
	TimeSlotID       int64    `json:"time_slot_id,omitempty"`
	Status           string   `json:"status"`
	Dates            []string `json:"dates,omitempty"`
	Amount           string   `json:"amount,omitempty"`
	ChangedByID      int64    `json:"changed_by_id,omitempty"`
	Reason           string   `json:"reason,omitempty"`
}

// AttendanceEventPayload describes a check-in or check-out.
type AttendanceEventPayload struct {
	UserID          int64     `json:"user_id"`
	BookingID       int64     `json:"booking_id"`
	Monthly         bool      `json:"monthly"`
	LibraryID       int64     `json:"library_id"`
	At              time.Time `json:"at"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
}

// WalletEventPayload describes a balance movement.
type WalletEventPayload struct {
	UserID        int64  `json:"user_id"`
	WalletID      int64  `json:"wallet_id"`
	TransactionID int64  `json:"transaction_id"`
	Kind          string `json:"kind"`
	Amount        string `json:"amount"`
	Balance       string `json:"balance"`
	Reference     string `json:"reference,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// UserID extracts the addressed user from the payload, or 0.
func (e *Event) UserID() int64 {
	var probe struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.Unmarshal(e.Payload, &probe); err != nil {
		return 0
	}
	return probe.UserID
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeMany registers one handler for several event types.
func (b *EventBus) SubscribeMany(eventTypes []string, handler EventHandler) {
	for _, t := range eventTypes {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	ev, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(&ev)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
