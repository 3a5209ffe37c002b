package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"seatbook/internal/database"
	"seatbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

// clock is a settable time source shared by the services under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type harness struct {
	db         *database.DB
	pub        *mockPublisher
	clock      *clock
	bookings   *BookingService
	attendance *AttendanceService
	wallets    *WalletService

	library *models.Library
	seat    *models.Seat
	slot    *models.TimeSlot
}

const librarianID = 900

var paymentSeq atomic.Int64

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func day(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func student(id int64) models.Principal {
	return models.Principal{UserID: id, Role: models.RoleStudent}
}

// newHarness seeds one library with seat A1 and a 09:00-11:00 slot priced
// 100 per day and 2000 per month, with a booking commission of 10.
func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "seatbook.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	lib := &models.Library{Name: "Central", OwnerID: librarianID, MonthlyFee: decimal.NewFromInt(1500), IsActive: true}
	require.NoError(t, db.CreateLibrary(ctx, lib))
	seat := &models.Seat{LibraryID: lib.ID, Label: "A1", IsActive: true}
	require.NoError(t, db.CreateSeat(ctx, seat))
	monthly := decimal.NewFromInt(2000)
	slot := &models.TimeSlot{
		LibraryID:    lib.ID,
		Name:         "Morning",
		StartTime:    "09:00",
		EndTime:      "11:00",
		Price:        decimal.NewFromInt(100),
		MonthlyPrice: &monthly,
		IsActive:     true,
	}
	require.NoError(t, db.CreateTimeSlot(ctx, slot))
	require.NoError(t, db.LinkSeatSlot(ctx, seat.ID, slot.ID))
	require.NoError(t, db.SaveSettings(ctx, &models.Settings{
		CoinPrice:         decimal.NewFromInt(1),
		WalletCommission:  decimal.Zero,
		BookingCommission: decimal.NewFromInt(10),
	}))

	pub := &mockPublisher{}
	pub.On("PublishJSON", mock.Anything, mock.Anything).Return(nil)

	c := &clock{t: at("2024-12-31 12:00")}
	policy := DefaultPolicy()

	h := &harness{
		db:         db,
		pub:        pub,
		clock:      c,
		bookings:   NewBookingService(db, pub, policy, &logger),
		attendance: NewAttendanceService(db, pub, policy, &logger),
		wallets:    NewWalletService(db, pub, policy, &logger),
		library:    lib,
		seat:       seat,
		slot:       slot,
	}
	h.bookings.now = c.Now
	h.attendance.now = c.Now
	return h
}

func (h *harness) fund(t *testing.T, userID int64, amount int64) {
	t.Helper()
	ref := fmt.Sprintf("pay_%d_%d", userID, paymentSeq.Add(1))
	_, err := h.wallets.TopUp(context.Background(), userID, decimal.NewFromInt(amount), ref)
	require.NoError(t, err)
}

func (h *harness) balance(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	w, err := h.wallets.Balance(context.Background(), student(userID))
	require.NoError(t, err)
	return w.Balance
}

func (h *harness) book(t *testing.T, userID int64, start, end string) *BookingResult {
	t.Helper()
	req := CreateBookingRequest{SeatID: h.seat.ID, TimeSlotID: h.slot.ID, StartDate: day(start)}
	if end != "" {
		req.EndDate = day(end)
	}
	res, err := h.bookings.CreateBooking(context.Background(), student(userID), req)
	require.NoError(t, err)
	return res
}

// assertLedgerBalanced checks the wallet equals the signed sum of its
// completed ledger entries.
func (h *harness) assertLedgerBalanced(t *testing.T, userID int64) {
	t.Helper()
	rep, err := h.wallets.Reconcile(context.Background(), userID)
	require.NoError(t, err)
	require.Truef(t, rep.OK, "balance %s != ledger %s", rep.Balance, rep.LedgerSum)
}
