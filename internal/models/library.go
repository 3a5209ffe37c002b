package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const ClockLayout = "15:04"

type Library struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	OwnerID    int64           `json:"owner_id"`
	MonthlyFee decimal.Decimal `json:"monthly_fee"`
	IsActive   bool            `json:"is_active"`
}

type Seat struct {
	ID        int64  `json:"id"`
	LibraryID int64  `json:"library_id"`
	Label     string `json:"label"`
	IsActive  bool   `json:"is_active"`
}

// TimeSlot is a daily opening window priced per day and per month.
// StartTime and EndTime are wall-clock "HH:MM" in the library timezone.
type TimeSlot struct {
	ID           int64            `json:"id"`
	LibraryID    int64            `json:"library_id"`
	Name         string           `json:"name"`
	StartTime    string           `json:"start_time"`
	EndTime      string           `json:"end_time"`
	Price        decimal.Decimal  `json:"price"`
	MonthlyPrice *decimal.Decimal `json:"monthly_price,omitempty"`
	IsActive     bool             `json:"is_active"`
}

// Window returns the absolute start and end of the slot on day.
// An end at or before the start rolls over to the next day.
func (s *TimeSlot) Window(day time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := atClock(day, s.StartTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("slot %d start: %w", s.ID, err)
	}
	end, err := atClock(day, s.EndTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("slot %d end: %w", s.ID, err)
	}
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

// ValidClock reports whether v parses as "HH:MM".
func ValidClock(v string) bool {
	_, err := time.Parse(ClockLayout, v)
	return err == nil
}

func atClock(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	c, err := time.Parse(ClockLayout, clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, loc), nil
}
