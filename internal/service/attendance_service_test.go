package service

import (
	"context"
	"errors"
	"testing"

	"seatbook/internal/domain"
	"seatbook/internal/events"
	"seatbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCheckInCheckOut(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 200)
	res := h.book(t, 1, "2025-01-01", "")
	id := res.Bookings[0].ID
	ctx := context.Background()
	p := student(1)

	h.clock.Set(at("2025-01-01 08:59"))
	_, err := h.attendance.CheckIn(ctx, p, h.library.ID, id, "")
	var window *domain.OutOfWindowError
	require.True(t, errors.As(err, &window))
	assert.True(t, window.From.Equal(at("2025-01-01 09:00")))
	assert.True(t, window.To.Equal(at("2025-01-01 11:00")))

	h.clock.Set(at("2025-01-01 09:00"))
	a, err := h.attendance.CheckIn(ctx, p, h.library.ID, id, "")
	require.NoError(t, err)
	assert.Equal(t, models.MethodQR, a.Method)
	assert.True(t, a.IsOpen())

	b, err := h.db.GetBooking(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCheckedIn, b.Status)

	_, err = h.attendance.CheckIn(ctx, p, h.library.ID, id, "")
	assert.ErrorIs(t, err, domain.ErrAlreadyActive)

	h.clock.Set(at("2025-01-01 10:30"))
	a, err = h.attendance.CheckOut(ctx, p, h.library.ID, id)
	require.NoError(t, err)
	require.NotNil(t, a.DurationMinutes)
	assert.Equal(t, 90, *a.DurationMinutes)

	b, err = h.db.GetBooking(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, b.Status)

	_, err = h.attendance.CheckOut(ctx, p, h.library.ID, id)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	_, err = h.attendance.CheckIn(ctx, p, h.library.ID, id, "")
	assert.ErrorIs(t, err, domain.ErrAlreadyCompleted)

	h.pub.AssertCalled(t, "PublishJSON", events.EventCheckedIn, mock.Anything)
	h.pub.AssertCalled(t, "PublishJSON", events.EventCheckedOut, mock.Anything)
}

func TestCheckIn_WindowEndInclusive(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 300)
	res := h.book(t, 1, "2025-01-01", "2025-01-02")
	ctx := context.Background()

	h.clock.Set(at("2025-01-01 11:00"))
	_, err := h.attendance.CheckIn(ctx, student(1), h.library.ID, res.Bookings[0].ID, models.MethodManual)
	assert.NoError(t, err)

	// the second day's window has not opened yet
	_, err = h.attendance.CheckIn(ctx, student(1), h.library.ID, res.Bookings[1].ID, models.MethodManual)
	assert.ErrorIs(t, err, domain.ErrOutOfWindow)
}

func TestCheckIn_Rejections(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 200)
	res := h.book(t, 1, "2025-01-01", "")
	id := res.Bookings[0].ID
	ctx := context.Background()
	h.clock.Set(at("2025-01-01 09:30"))

	_, err := h.attendance.CheckIn(ctx, student(2), h.library.ID, id, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = h.attendance.CheckIn(ctx, student(1), h.library.ID+1, id, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.attendance.CheckIn(ctx, student(1), h.library.ID, id, "nfc")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.attendance.CheckOut(ctx, student(1), h.library.ID, id)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
}

func TestCheckIn_CancelledBooking(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 200)
	res := h.book(t, 1, "2025-01-01", "")
	ctx := context.Background()

	_, err := h.bookings.CancelBooking(ctx, student(1), res.Bookings[0].ID)
	require.NoError(t, err)

	h.clock.Set(at("2025-01-01 09:30"))
	_, err = h.attendance.CheckIn(ctx, student(1), h.library.ID, res.Bookings[0].ID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func (h *harness) monthly(t *testing.T, userID int64, start string) *models.MonthlyBooking {
	t.Helper()
	res, err := h.bookings.CreateMonthlyBooking(context.Background(), student(userID), MonthlyBookingRequest{
		SeatID: h.seat.ID, TimeSlotID: h.slot.ID, StartDate: day(start),
	})
	require.NoError(t, err)
	return res.Booking
}

func TestMonthlySessions(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 3000)
	m := h.monthly(t, 1, "2025-01-01")
	ctx := context.Background()
	p := student(1)

	h.clock.Set(at("2025-01-02 10:00"))
	_, err := h.attendance.MonthlyCheckIn(ctx, p, h.library.ID, m.ID)
	require.NoError(t, err)

	_, err = h.attendance.MonthlyCheckIn(ctx, p, h.library.ID, m.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyActive)

	h.clock.Set(at("2025-01-02 12:30"))
	doc, err := h.attendance.MonthlyCheckOut(ctx, p, h.library.ID, m.ID)
	require.NoError(t, err)
	require.Len(t, doc.Sessions, 1)
	assert.Equal(t, 150, *doc.Sessions[0].DurationMinutes)
	assert.Equal(t, 150, doc.TotalDurationMinutes)

	_, err = h.attendance.MonthlyCheckOut(ctx, p, h.library.ID, m.ID)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	h.clock.Set(at("2025-01-02 13:30"))
	_, err = h.attendance.MonthlyCheckIn(ctx, p, h.library.ID, m.ID)
	require.NoError(t, err)
	h.clock.Set(at("2025-01-02 14:00"))
	doc, err = h.attendance.MonthlyCheckOut(ctx, p, h.library.ID, m.ID)
	require.NoError(t, err)
	assert.Len(t, doc.Sessions, 2)
	assert.Equal(t, 180, doc.TotalDurationMinutes)

	stored, err := h.db.GetMonthlyAttendance(ctx, m.ID, day("2025-01-02"))
	require.NoError(t, err)
	assert.Equal(t, 180, stored.TotalDurationMinutes)

	history, err := h.attendance.MonthlyAttendanceHistory(ctx, p, m.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = h.attendance.MonthlyAttendanceHistory(ctx, student(2), m.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestMonthlyCheckIn_OutsideWindow(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 3000)
	m := h.monthly(t, 1, "2025-01-01")
	ctx := context.Background()

	h.clock.Set(at("2025-01-31 10:00"))
	_, err := h.attendance.MonthlyCheckIn(ctx, student(1), h.library.ID, m.ID)
	var window *domain.OutOfWindowError
	require.True(t, errors.As(err, &window))
	assert.True(t, window.From.Equal(day("2025-01-01")))

	h.clock.Set(at("2025-01-30 23:00"))
	_, err = h.attendance.MonthlyCheckIn(ctx, student(1), h.library.ID, m.ID)
	assert.NoError(t, err)
}

func TestAttend_Dispatch(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 3000)
	h.fund(t, 2, 500)
	ctx := context.Background()

	m := h.monthly(t, 1, "2025-01-01")

	// user 2 books seat A2 for the day
	seat := &models.Seat{LibraryID: h.library.ID, Label: "A2", IsActive: true}
	require.NoError(t, h.db.CreateSeat(ctx, seat))
	_, err := h.bookings.CreateBooking(ctx, student(2), CreateBookingRequest{
		SeatID: seat.ID, TimeSlotID: h.slot.ID, StartDate: day("2025-01-01"),
	})
	require.NoError(t, err)

	h.clock.Set(at("2025-01-01 09:15"))

	got, err := h.attendance.Attend(ctx, student(1), h.library.ID, ActionCheckIn, "")
	require.NoError(t, err)
	assert.Equal(t, "monthly", got.Kind)
	assert.Equal(t, m.ID, got.BookingID)
	require.NotNil(t, got.Day)

	got, err = h.attendance.Attend(ctx, student(2), h.library.ID, ActionCheckIn, "")
	require.NoError(t, err)
	assert.Equal(t, "single", got.Kind)
	require.NotNil(t, got.Single)

	h.clock.Set(at("2025-01-01 10:15"))
	got, err = h.attendance.Attend(ctx, student(2), h.library.ID, ActionCheckOut, "")
	require.NoError(t, err)
	assert.Equal(t, 60, *got.Single.DurationMinutes)

	_, err = h.attendance.Attend(ctx, student(3), h.library.ID, ActionCheckIn, "")
	assert.ErrorIs(t, err, domain.ErrNoBooking)

	_, err = h.attendance.Attend(ctx, student(1), h.library.ID, "dance", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	today, err := h.attendance.TodayAttendance(ctx, student(2), h.library.ID)
	require.NoError(t, err)
	assert.Len(t, today, 1)
}

func TestPickBooking(t *testing.T) {
	confirmed := &models.Booking{ID: 1, Status: models.StatusConfirmed}
	checkedIn := &models.Booking{ID: 2, Status: models.StatusCheckedIn}
	done := &models.Booking{ID: 3, Status: models.StatusCompleted}

	assert.Nil(t, pickBooking(nil, ActionCheckIn))
	assert.Equal(t, confirmed, pickBooking([]*models.Booking{checkedIn, confirmed}, ActionCheckIn))
	assert.Equal(t, checkedIn, pickBooking([]*models.Booking{confirmed, checkedIn}, ActionCheckOut))
	assert.Equal(t, confirmed, pickBooking([]*models.Booking{done, confirmed}, ActionCheckOut))
	assert.Equal(t, done, pickBooking([]*models.Booking{done}, ActionCheckIn))
}
