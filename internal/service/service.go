package service

import (
	"errors"
	"time"

	"seatbook/internal/config"
	"seatbook/internal/domain"
	"seatbook/internal/models"

	"github.com/rs/zerolog"
)

// Policy holds the booking rules that are configurable per deployment.
type Policy struct {
	MaxRangeDays       int
	MonthlyWindowDays  int
	CancelGrace        time.Duration
	MonthlyCancelGrace time.Duration
	Currency           string
	// Location is the zone slot times and "today" are evaluated in.
	Location *time.Location
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRangeDays:       models.DefaultMaxRangeDays,
		MonthlyWindowDays:  models.DefaultMonthlyWindowDays,
		CancelGrace:        models.CancelGraceMinutes * time.Minute,
		MonthlyCancelGrace: models.MonthlyCancelGraceHours * time.Hour,
		Currency:           models.DefaultCurrency,
		Location:           time.UTC,
	}
}

func PolicyFromConfig(cfg config.BookingConfig, loc *time.Location) Policy {
	p := DefaultPolicy()
	if cfg.MaxRangeDays > 0 {
		p.MaxRangeDays = cfg.MaxRangeDays
	}
	if cfg.MonthlyWindowDays > 0 {
		p.MonthlyWindowDays = cfg.MonthlyWindowDays
	}
	if cfg.CancelGraceMinutes > 0 {
		p.CancelGrace = time.Duration(cfg.CancelGraceMinutes) * time.Minute
	}
	if cfg.MonthlyCancelGraceHours > 0 {
		p.MonthlyCancelGrace = time.Duration(cfg.MonthlyCancelGraceHours) * time.Hour
	}
	if cfg.Currency != "" {
		p.Currency = cfg.Currency
	}
	if loc != nil {
		p.Location = loc
	}
	return p
}

// today is the calendar date of now in the policy zone.
func (p Policy) today(now time.Time) time.Time {
	return models.DateIn(now, p.Location)
}

// midnight is the start of the calendar date d in the policy zone.
func (p Policy) midnight(d time.Time) time.Time {
	y, m, dd := d.Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, p.Location)
}

func publish(bus domain.EventPublisher, logger *zerolog.Logger, eventType string, payload any) {
	if bus == nil {
		return
	}
	if err := bus.PublishJSON(eventType, payload); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

// outcome is the metrics label for a finished operation.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return domain.KindOf(err)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func dateStrings(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(models.DateLayout)
	}
	return out
}
