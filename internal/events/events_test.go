package events

import (
	"encoding/json"
	"testing"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe("test_event", handler)

	payload := map[string]string{"foo": "bar"}
	err := bus.PublishJSON("test_event", payload)
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != "test_event" {
		t.Errorf("expected type test_event, got %s", received.Type)
	}

	var decoded map[string]string
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %s", decoded["foo"])
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	bus.Publish(&Event{Type: "event"})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	// Should not panic
	bus.Publish(&Event{Type: "unknown"})
	err := bus.PublishJSON("unknown", nil)
	if err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}
}

func TestNewJSONEvent(t *testing.T) {
	payload := BookingEventPayload{UserID: 7, BookingIDs: []int64{123, 124}, Dates: []string{"2025-01-01", "2025-01-02"}}
	event, err := NewJSONEvent(EventBookingCreated, payload)
	if err != nil {
		t.Fatalf("NewJSONEvent failed: %v", err)
	}

	if event.Type != EventBookingCreated {
		t.Errorf("expected %s, got %s", EventBookingCreated, event.Type)
	}

	if event.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}

	var decoded BookingEventPayload
	if err := json.Unmarshal(event.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	if len(decoded.BookingIDs) != 2 || decoded.BookingIDs[0] != 123 {
		t.Errorf("expected booking ids [123 124], got %v", decoded.BookingIDs)
	}
	if event.UserID() != 7 {
		t.Errorf("expected user 7, got %d", event.UserID())
	}
}

func TestEventUserIDMissing(t *testing.T) {
	ev := Event{Type: "x", Payload: json.RawMessage(`"not an object"`)}
	if ev.UserID() != 0 {
		t.Errorf("expected 0 for payload without user, got %d", ev.UserID())
	}
}

func TestSubscribeMany(t *testing.T) {
	bus := NewEventBus()
	var seen []string
	bus.SubscribeMany([]string{EventCheckedIn, EventCheckedOut}, func(e *Event) error {
		seen = append(seen, e.Type)
		return nil
	})

	_ = bus.PublishJSON(EventCheckedIn, AttendanceEventPayload{UserID: 1})
	_ = bus.PublishJSON(EventCheckedOut, AttendanceEventPayload{UserID: 1})
	_ = bus.PublishJSON(EventWalletCredited, WalletEventPayload{UserID: 1})

	if len(seen) != 2 {
		t.Errorf("expected 2 deliveries, got %v", seen)
	}
}

func TestNilBusPublish(t *testing.T) {
	var bus *EventBus
	if err := bus.PublishJSON(EventBookingCreated, nil); err != nil {
		t.Errorf("nil bus should be a no-op, got %v", err)
	}
}
