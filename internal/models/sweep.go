package models

import "time"

// StaleBooking is a still-active single-day booking as seen by the sweep.
type StaleBooking struct {
	BookingID      int64
	UserID         int64
	Status         string
	BookingDate    time.Time
	Slot           TimeSlot
	AttendanceRows int
	OpenRows       int
}

// EndedMonthly is a monthly booking past its end date.
type EndedMonthly struct {
	ID             int64
	UserID         int64
	Status         string
	StartDate      time.Time
	EndDate        time.Time
	AttendanceDays int
}
