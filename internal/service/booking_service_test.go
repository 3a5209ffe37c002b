package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"seatbook/internal/domain"
	"seatbook/internal/events"
	"seatbook/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateBooking_Range(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 500)

	res := h.book(t, 1, "2025-01-01", "2025-01-03")

	require.Len(t, res.Bookings, 3)
	for i, b := range res.Bookings {
		assert.True(t, b.BookingDate.Equal(day("2025-01-01").AddDate(0, 0, i)))
		assert.Equal(t, models.StatusConfirmed, b.Status)
		assert.Equal(t, models.PaymentPaid, b.PaymentStatus)
		assert.Equal(t, "110", b.Amount.String())
		require.NotNil(t, b.TransactionID)
		assert.Equal(t, res.Transaction.ID, *b.TransactionID)
	}

	assert.Equal(t, 3, res.Summary.TotalDays)
	assert.Equal(t, "300", res.Summary.SlotPrice.String())
	assert.Equal(t, "30", res.Summary.Commission.String())
	assert.Equal(t, "330", res.Summary.TotalAmount.String())

	assert.Equal(t, models.KindDebit, res.Transaction.Kind)
	assert.Equal(t, models.TxCompleted, res.Transaction.Status)
	assert.Equal(t, "330", res.Transaction.Amount.String())
	assert.ElementsMatch(t, []int64{res.Bookings[0].ID, res.Bookings[1].ID, res.Bookings[2].ID}, res.Transaction.BookingIDs)

	assert.Equal(t, "170", h.balance(t, 1).String())
	h.assertLedgerBalanced(t, 1)
	h.pub.AssertCalled(t, "PublishJSON", events.EventBookingCreated, mock.Anything)
}

func TestCreateBooking_SingleDayDefaultsEnd(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 200)

	res := h.book(t, 1, "2025-01-01", "")
	require.Len(t, res.Bookings, 1)
	assert.Equal(t, "110", res.Summary.TotalAmount.String())
	assert.Equal(t, "90", h.balance(t, 1).String())
}

func TestCreateBooking_InsufficientFunds(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 50)

	_, err := h.bookings.CreateBooking(context.Background(), student(1), CreateBookingRequest{
		SeatID: h.seat.ID, TimeSlotID: h.slot.ID, StartDate: day("2025-01-01"), EndDate: day("2025-01-03"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	var funds *domain.InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.Equal(t, "330", funds.Required.String())
	assert.Equal(t, "50", funds.Available.String())

	assert.Equal(t, "50", h.balance(t, 1).String())
	bookings, err := h.db.ListUserBookings(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, bookings)
	h.assertLedgerBalanced(t, 1)
}

func TestCreateBooking_ConflictListsTakenDates(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 500)
	h.fund(t, 2, 500)
	h.book(t, 2, "2025-01-02", "")

	_, err := h.bookings.CreateBooking(context.Background(), student(1), CreateBookingRequest{
		SeatID: h.seat.ID, TimeSlotID: h.slot.ID, StartDate: day("2025-01-01"), EndDate: day("2025-01-03"),
	})
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Len(t, conflict.Dates, 1)
	assert.True(t, conflict.Dates[0].Equal(day("2025-01-02")))

	assert.Equal(t, "500", h.balance(t, 1).String())
	bookings, err := h.db.ListUserBookings(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestCreateBooking_Concurrent(t *testing.T) {
	h := newHarness(t)
	const users = 8
	for u := int64(1); u <= users; u++ {
		h.fund(t, u, 200)
	}

	var wg sync.WaitGroup
	errs := make(chan error, users)
	for u := int64(1); u <= users; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := h.bookings.CreateBooking(context.Background(), student(userID), CreateBookingRequest{
				SeatID: h.seat.ID, TimeSlotID: h.slot.ID, StartDate: day("2025-01-01"),
			})
			errs <- err
		}(u)
	}
	wg.Wait()
	close(errs)

	ok, conflicts := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, users-1, conflicts)

	total := decimal.Zero
	for u := int64(1); u <= users; u++ {
		total = total.Add(h.balance(t, u))
		h.assertLedgerBalanced(t, u)
	}
	assert.Equal(t, decimal.NewFromInt(users*200-110).String(), total.String())
}

func TestCreateBooking_Validation(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 10000)
	ctx := context.Background()

	other := &models.TimeSlot{LibraryID: h.library.ID, Name: "Evening", StartTime: "18:00", EndTime: "20:00",
		Price: decimal.NewFromInt(80), IsActive: true}
	require.NoError(t, h.db.CreateTimeSlot(ctx, other))

	tests := []struct {
		name string
		req  CreateBookingRequest
		want error
	}{
		{"missing seat", CreateBookingRequest{TimeSlotID: h.slot.ID, StartDate: day("2025-01-01")}, domain.ErrInvalidInput},
		{"missing start", CreateBookingRequest{SeatID: h.seat.ID, TimeSlotID: h.slot.ID}, domain.ErrInvalidInput},
		{"end before start", CreateBookingRequest{SeatID: h.seat.ID, TimeSlotID: h.slot.ID,
			StartDate: day("2025-01-05"), EndDate: day("2025-01-01")}, domain.ErrInvalidInput},
		{"start in the past", CreateBookingRequest{SeatID: h.seat.ID, TimeSlotID: h.slot.ID,
			StartDate: day("2024-12-30")}, domain.ErrInvalidInput},
		{"range too long", CreateBookingRequest{SeatID: h.seat.ID, TimeSlotID: h.slot.ID,
			StartDate: day("2025-01-01"), EndDate: day("2025-02-01")}, domain.ErrInvalidInput},
		{"unknown seat", CreateBookingRequest{SeatID: 999, TimeSlotID: h.slot.ID, StartDate: day("2025-01-01")}, domain.ErrNotFound},
		{"slot not offered for seat", CreateBookingRequest{SeatID: h.seat.ID, TimeSlotID: other.ID,
			StartDate: day("2025-01-01")}, domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.bookings.CreateBooking(ctx, student(1), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, "10000", h.balance(t, 1).String())
}

func TestCreateBooking_TodayIsAllowed(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 200)
	res := h.book(t, 1, "2024-12-31", "")
	assert.Len(t, res.Bookings, 1)
}

func TestPricing_RequiresSettings(t *testing.T) {
	_, err := PriceRange(decimal.NewFromInt(100), nil, 3)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = PriceMonthly(decimal.NewFromInt(2000), nil, 30)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	sum, err := PriceMonthly(decimal.NewFromInt(2000), &models.Settings{BookingCommission: decimal.NewFromInt(10)}, 30)
	require.NoError(t, err)
	assert.Equal(t, "2010", sum.TotalAmount.String())
	assert.Equal(t, 30, sum.TotalDays)
}

func TestAvailability(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 500)
	h.book(t, 1, "2025-01-02", "")

	got, err := h.bookings.Availability(context.Background(), h.seat.ID, h.slot.ID, day("2025-01-01"), day("2025-01-03"))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Available)
	assert.False(t, got[1].Available)
	assert.True(t, got[2].Available)

	_, err = h.bookings.Availability(context.Background(), h.seat.ID, h.slot.ID, day("2025-01-03"), day("2025-01-01"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreateMonthlyBooking(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 3000)
	h.fund(t, 2, 3000)
	ctx := context.Background()

	res, err := h.bookings.CreateMonthlyBooking(ctx, student(1), MonthlyBookingRequest{
		SeatID: h.seat.ID, TimeSlotID: h.slot.ID, StartDate: day("2025-01-01"),
	})
	require.NoError(t, err)

	m := res.Booking
	assert.True(t, m.EndDate.Equal(day("2025-01-30")))
	assert.Equal(t, "2010", m.Amount.String())
	assert.Equal(t, models.PricingSlot, m.Pricing)
	require.NotNil(t, res.Transaction.MonthlyBookingID)
	assert.Equal(t, m.ID, *res.Transaction.MonthlyBookingID)
	assert.Empty(t, res.Transaction.BookingIDs)
	assert.Equal(t, "990", h.balance(t, 1).String())
	h.assertLedgerBalanced(t, 1)

	_, err = h.bookings.CreateMonthlyBooking(ctx, student(2), MonthlyBookingRequest{
		SeatID: h.seat.ID, TimeSlotID: h.slot.ID, StartDate: day("2025-01-30"),
	})
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.True(t, conflict.WindowStart.Equal(day("2025-01-30")))
	assert.Equal(t, "3000", h.balance(t, 2).String())

	// the day after the window closes is free again
	_, err = h.bookings.CreateMonthlyBooking(ctx, student(2), MonthlyBookingRequest{
		SeatID: h.seat.ID, TimeSlotID: h.slot.ID, StartDate: day("2025-01-31"),
	})
	require.NoError(t, err)
}

func TestCreateMonthlyBooking_NoMonthlyPrice(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 3000)
	ctx := context.Background()

	slot := &models.TimeSlot{LibraryID: h.library.ID, Name: "Noon", StartTime: "12:00", EndTime: "14:00",
		Price: decimal.NewFromInt(50), IsActive: true}
	require.NoError(t, h.db.CreateTimeSlot(ctx, slot))
	seat := &models.Seat{LibraryID: h.library.ID, Label: "B1", IsActive: true}
	require.NoError(t, h.db.CreateSeat(ctx, seat))

	_, err := h.bookings.CreateMonthlyBooking(ctx, student(1), MonthlyBookingRequest{
		SeatID: seat.ID, TimeSlotID: slot.ID, StartDate: day("2025-01-01"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, "3000", h.balance(t, 1).String())
}

func TestCreateMonthlyBookingLegacy(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 5000)
	h.fund(t, 2, 5000)
	ctx := context.Background()

	res, err := h.bookings.CreateMonthlyBookingLegacy(ctx, student(1), MonthlyBookingRequest{
		SeatID: h.seat.ID, StartDate: day("2025-01-01"),
	})
	require.NoError(t, err)
	assert.Equal(t, "1510", res.Booking.Amount.String())
	assert.Equal(t, models.PricingLibraryFee, res.Booking.Pricing)
	assert.Nil(t, res.Booking.TimeSlotID)

	// a slot-less booking holds the whole seat
	_, err = h.bookings.CreateMonthlyBooking(ctx, student(2), MonthlyBookingRequest{
		SeatID: h.seat.ID, TimeSlotID: h.slot.ID, StartDate: day("2025-01-10"),
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = h.bookings.CreateMonthlyBookingLegacy(ctx, student(2), MonthlyBookingRequest{
		SeatID: h.seat.ID, StartDate: day("2025-01-10"),
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "5000", h.balance(t, 2).String())
}

func TestCreateMonthlyBookingLegacy_WithSlotHoldsSeat(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 5000)
	h.fund(t, 2, 5000)
	ctx := context.Background()

	monthly := decimal.NewFromInt(1800)
	evening := &models.TimeSlot{LibraryID: h.library.ID, Name: "Evening", StartTime: "18:00", EndTime: "20:00",
		Price: decimal.NewFromInt(80), MonthlyPrice: &monthly, IsActive: true}
	require.NoError(t, h.db.CreateTimeSlot(ctx, evening))
	require.NoError(t, h.db.LinkSeatSlot(ctx, h.seat.ID, evening.ID))

	res, err := h.bookings.CreateMonthlyBookingLegacy(ctx, student(1), MonthlyBookingRequest{
		SeatID: h.seat.ID, TimeSlotID: h.slot.ID, StartDate: day("2025-01-01"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Booking.TimeSlotID)
	assert.Equal(t, h.slot.ID, *res.Booking.TimeSlotID)

	_, err = h.bookings.CreateMonthlyBooking(ctx, student(2), MonthlyBookingRequest{
		SeatID: h.seat.ID, TimeSlotID: evening.ID, StartDate: day("2025-01-05"),
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "5000", h.balance(t, 2).String())
}

func TestCreateMonthlyBookingLegacy_UnknownSlot(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 5000)
	ctx := context.Background()

	_, err := h.bookings.CreateMonthlyBookingLegacy(ctx, student(1), MonthlyBookingRequest{
		SeatID: h.seat.ID, TimeSlotID: 9999, StartDate: day("2025-01-01"),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	other := &models.Library{Name: "Annex", OwnerID: 901, MonthlyFee: decimal.NewFromInt(900), IsActive: true}
	require.NoError(t, h.db.CreateLibrary(ctx, other))
	foreign := &models.TimeSlot{LibraryID: other.ID, Name: "Morning", StartTime: "09:00", EndTime: "11:00",
		Price: decimal.NewFromInt(60), IsActive: true}
	require.NoError(t, h.db.CreateTimeSlot(ctx, foreign))

	_, err = h.bookings.CreateMonthlyBookingLegacy(ctx, student(1), MonthlyBookingRequest{
		SeatID: h.seat.ID, TimeSlotID: foreign.ID, StartDate: day("2025-01-01"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, "5000", h.balance(t, 1).String())
}

func TestGetBooking_Access(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1, 200)
	res := h.book(t, 1, "2025-01-01", "")
	id := res.Bookings[0].ID
	ctx := context.Background()

	_, err := h.bookings.GetBooking(ctx, student(1), id)
	assert.NoError(t, err)
	_, err = h.bookings.GetBooking(ctx, student(2), id)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.bookings.GetBooking(ctx, models.Principal{UserID: 7, Role: models.RoleAdmin}, id)
	assert.NoError(t, err)
	_, err = h.bookings.GetBooking(ctx, models.Principal{UserID: librarianID, Role: models.RoleLibrarian}, id)
	assert.NoError(t, err)
	_, err = h.bookings.GetBooking(ctx, models.Principal{UserID: 901, Role: models.RoleLibrarian}, id)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	single, monthly, err := h.bookings.UserBookings(ctx, student(1))
	require.NoError(t, err)
	assert.Len(t, single, 1)
	assert.Empty(t, monthly)
}
