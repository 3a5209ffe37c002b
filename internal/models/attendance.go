package models

import "time"

// Attendance is one check-in episode for a single-day booking.
type Attendance struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	LibraryID       int64      `json:"library_id"`
	BookingID       int64      `json:"booking_id"`
	TimeSlotID      int64      `json:"time_slot_id"`
	CheckInTime     time.Time  `json:"check_in_time"`
	CheckOutTime    *time.Time `json:"check_out_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Method          string     `json:"method"`
}

// IsOpen reports whether the episode still awaits a check-out.
func (a *Attendance) IsOpen() bool {
	return a.CheckOutTime == nil
}

// Close records the check-out and its duration in whole minutes.
func (a *Attendance) Close(at time.Time) {
	d := DurationMinutes(a.CheckInTime, at)
	a.CheckOutTime = &at
	a.DurationMinutes = &d
}

// Session is one check-in/check-out pair inside a monthly attendance day.
type Session struct {
	CheckInTime     time.Time  `json:"check_in_time"`
	CheckOutTime    *time.Time `json:"check_out_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	// AutoClosed marks a session the sweep closed after its day ended.
	AutoClosed bool `json:"auto_closed,omitempty"`
}

// MonthlyAttendance holds every session of one monthly booking on one date.
type MonthlyAttendance struct {
	ID                   int64     `json:"id"`
	MonthlyBookingID     int64     `json:"monthly_booking_id"`
	UserID               int64     `json:"user_id"`
	LibraryID            int64     `json:"library_id"`
	Date                 time.Time `json:"date"`
	Sessions             []Session `json:"sessions"`
	TotalDurationMinutes int       `json:"total_duration_minutes"`
}

// OpenSession returns the index of the session without check-out, or -1.
func (m *MonthlyAttendance) OpenSession() int {
	for i := range m.Sessions {
		if m.Sessions[i].CheckOutTime == nil {
			return i
		}
	}
	return -1
}

// Open appends a new session. The caller checks OpenSession first.
func (m *MonthlyAttendance) Open(at time.Time) {
	m.Sessions = append(m.Sessions, Session{CheckInTime: at})
}

// CloseSession closes session i and recomputes the day total.
func (m *MonthlyAttendance) CloseSession(i int, at time.Time) {
	d := DurationMinutes(m.Sessions[i].CheckInTime, at)
	m.Sessions[i].CheckOutTime = &at
	m.Sessions[i].DurationMinutes = &d
	m.Recompute()
}

// AutoClose closes session i with zero duration. Used for sessions nobody
// checked out of before the day ended.
func (m *MonthlyAttendance) AutoClose(i int) {
	m.CloseSession(i, m.Sessions[i].CheckInTime)
	m.Sessions[i].AutoClosed = true
}

// Recompute sets TotalDurationMinutes to the sum over closed sessions.
func (m *MonthlyAttendance) Recompute() {
	total := 0
	for _, s := range m.Sessions {
		if s.CheckOutTime == nil {
			continue
		}
		total += DurationMinutes(s.CheckInTime, *s.CheckOutTime)
	}
	m.TotalDurationMinutes = total
}

// DurationMinutes is floor((to-from)/1m), never negative.
func DurationMinutes(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
