package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Booking reserves one seat/time-slot for one calendar date.
type Booking struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	SeatID        int64           `json:"seat_id"`
	TimeSlotID    int64           `json:"time_slot_id"`
	LibraryID     int64           `json:"library_id"`
	BookingDate   time.Time       `json:"booking_date"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID *int64          `json:"transaction_id,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy   *int64          `json:"cancelled_by,omitempty"`
	RejectedAt    *time.Time      `json:"rejected_at,omitempty"`
	RejectedBy    *int64          `json:"rejected_by,omitempty"`
	RejectReason  string          `json:"reject_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int64           `json:"version"`
}

// MonthlyBooking reserves a seat/time-slot for a fixed window of days.
type MonthlyBooking struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	SeatID        int64           `json:"seat_id"`
	TimeSlotID    *int64          `json:"time_slot_id,omitempty"`
	LibraryID     int64           `json:"library_id"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	Pricing       string          `json:"pricing"`
	TransactionID *int64          `json:"transaction_id,omitempty"`
	BookedAt      time.Time       `json:"booked_at"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy   *int64          `json:"cancelled_by,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Covers reports whether day falls inside the booking window.
func (m *MonthlyBooking) Covers(day time.Time) bool {
	d := NormalizeDate(day)
	return !d.Before(m.StartDate) && !d.After(m.EndDate)
}

// BookingSummary is the price breakdown returned with a booking.
type BookingSummary struct {
	TotalDays   int             `json:"total_days"`
	SlotPrice   decimal.Decimal `json:"slot_price"`
	Commission  decimal.Decimal `json:"commission"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// DateAvailability is the per-date occupancy of a seat/slot.
type DateAvailability struct {
	Date      time.Time `json:"date"`
	Available bool      `json:"available"`
}
