package notify

import (
	"context"
	"encoding/json"
	"time"

	"seatbook/internal/domain"
	"seatbook/internal/events"

	"github.com/rs/zerolog"
)

const deliveryTimeout = 2 * time.Second

// Forwarder relays user-scoped bus events to the notification channel of
// the user named in the payload.
type Forwarder struct {
	notifier domain.Notifier
	logger   *zerolog.Logger
}

func NewForwarder(notifier domain.Notifier, logger *zerolog.Logger) *Forwarder {
	return &Forwarder{notifier: notifier, logger: logger}
}

// Attach subscribes the forwarder to every user event on the bus.
func (f *Forwarder) Attach(bus *events.EventBus) {
	bus.SubscribeMany(events.UserEventTypes, f.Handle)
}

// Handle delivers one event. Delivery failures are logged and returned but
// never affect the operation that raised the event.
func (f *Forwarder) Handle(ev *events.Event) error {
	userID := ev.UserID()
	if userID == 0 {
		return nil
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := f.notifier.Notify(ctx, userID, raw); err != nil {
		f.logger.Warn().Err(err).Str("event", ev.Type).Int64("user_id", userID).Msg("notification not delivered")
		return err
	}
	return nil
}
