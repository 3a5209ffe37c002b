package domain

import (
	"context"
	"fmt"
	"time"

	"seatbook/internal/models"

	"github.com/shopspring/decimal"
)

// ErrConcurrentModification is returned by conditional updates whose
// expected prior state no longer holds.
var ErrConcurrentModification = fmt.Errorf("%w: record changed concurrently", ErrInvalidState)

// ErrDuplicateReference is returned when a ledger reference is reused.
var ErrDuplicateReference = fmt.Errorf("%w: duplicate ledger reference", ErrConflict)

// ErrSlotTaken is returned when the occupancy index rejects an insert.
var ErrSlotTaken = fmt.Errorf("%w: seat slot already taken", ErrConflict)

// ErrSessionOpen is returned when the open-session index rejects an insert.
var ErrSessionOpen = fmt.Errorf("%w: attendance session already open", ErrAlreadyActive)

// Queries is the storage surface used by the services. The same set is
// available on the store directly and inside a unit of work.
type Queries interface {
	GetLibrary(ctx context.Context, id int64) (*models.Library, error)
	GetSeat(ctx context.Context, id int64) (*models.Seat, error)
	GetTimeSlot(ctx context.Context, id int64) (*models.TimeSlot, error)
	SeatServesSlot(ctx context.Context, seatID, slotID int64) (bool, error)
	GetSettings(ctx context.Context) (*models.Settings, error)

	GetOrCreateWallet(ctx context.Context, userID int64, currency string) (*models.Wallet, error)
	UpdateWalletBalance(ctx context.Context, walletID int64, balance decimal.Decimal) error
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	LinkTransaction(ctx context.Context, txID int64, link models.Linkage) error
	SetTransactionStatus(ctx context.Context, txID int64, status string) error
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	ListTransactions(ctx context.Context, walletID int64, limit int) ([]*models.Transaction, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)

	ConflictingDates(ctx context.Context, seatID, slotID, libraryID int64, start, end time.Time) ([]time.Time, error)
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error)
	ListLibraryBookings(ctx context.Context, libraryID int64, start, end time.Time) ([]*models.Booking, error)
	FindUserBookingsForDate(ctx context.Context, userID, libraryID int64, day time.Time) ([]*models.Booking, error)
	SaveBookingState(ctx context.Context, b *models.Booking, expectedStatus string) error
	TransitionBookingStatus(ctx context.Context, id int64, from, to string) (bool, error)

	HasMonthlyOverlap(ctx context.Context, seatID int64, slotID *int64, start, end time.Time) (bool, error)
	CreateMonthlyBooking(ctx context.Context, m *models.MonthlyBooking) error
	GetMonthlyBooking(ctx context.Context, id int64) (*models.MonthlyBooking, error)
	ListUserMonthlyBookings(ctx context.Context, userID int64) ([]*models.MonthlyBooking, error)
	FindActiveMonthlyCovering(ctx context.Context, userID, libraryID int64, day time.Time) (*models.MonthlyBooking, error)
	SaveMonthlyState(ctx context.Context, m *models.MonthlyBooking, expectedStatus string) error
	TransitionMonthlyStatus(ctx context.Context, id int64, from, to string) (bool, error)

	LatestAttendance(ctx context.Context, bookingID int64) (*models.Attendance, error)
	CreateAttendance(ctx context.Context, a *models.Attendance) error
	CloseAttendance(ctx context.Context, a *models.Attendance) error
	ListUserAttendance(ctx context.Context, userID, libraryID int64, from, to time.Time) ([]*models.Attendance, error)
	GetMonthlyAttendance(ctx context.Context, bookingID int64, day time.Time) (*models.MonthlyAttendance, error)
	SaveMonthlyAttendance(ctx context.Context, m *models.MonthlyAttendance) error
	ListMonthlyAttendance(ctx context.Context, bookingID int64) ([]*models.MonthlyAttendance, error)
	ListOpenMonthlyAttendance(ctx context.Context, before time.Time) ([]*models.MonthlyAttendance, error)

	ListStaleBookings(ctx context.Context, through time.Time) ([]*models.StaleBooking, error)
	ListEndedMonthly(ctx context.Context, endedBefore time.Time) ([]*models.EndedMonthly, error)
}

// Store runs fn inside one atomic unit of work. Any error returned by fn
// rolls back every write it made.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers a payload to one user's notification channel.
type Notifier interface {
	Notify(ctx context.Context, userID int64, payload []byte) error
}

// NotificationSource streams one user's notifications until ctx ends.
type NotificationSource interface {
	Subscribe(ctx context.Context, userID int64) (<-chan []byte, error)
}

// Locker guards work that must not overlap across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}
