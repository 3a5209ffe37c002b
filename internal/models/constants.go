package models

// Booking status values shared by single-day and monthly bookings.
const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusCheckedIn  = "checked-in"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusRejected   = "rejected"
	StatusMissed     = "missed"
	StatusNoCheckout = "no-checkout"
)

const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Ledger entry kinds and states.
const (
	KindCredit = "credit"
	KindDebit  = "debit"
	KindRefund = "refund"

	TxPending   = "pending"
	TxCompleted = "completed"
	TxFailed    = "failed"
)

const (
	RoleStudent   = "student"
	RoleLibrarian = "librarian"
	RoleAdmin     = "admin"
)

const (
	MethodQR     = "qr"
	MethodManual = "manual"
)

// Monthly pricing variants.
const (
	PricingSlot       = "slot"
	PricingLibraryFee = "library-fee"
)

const (
	DefaultCurrency          = "INR"
	DefaultMonthlyWindowDays = 30
	DefaultMaxRangeDays      = 31

	// CancelGraceMinutes is how long before slot start a single-day booking
	// may still be cancelled.
	CancelGraceMinutes = 60

	// MonthlyCancelGraceHours is how long after the start date a monthly
	// booking may still be cancelled.
	MonthlyCancelGraceHours = 24

	// SweepGraceMinutes past the slot end before a booking is relabelled.
	SweepGraceMinutes = 60

	// SweepIntervalMinutes is the default cadence of the reconciliation sweep.
	SweepIntervalMinutes = 6 * 60

	TopUpDescription    = "Wallet top-up"
	WithdrawDescription = "Wallet withdrawal"
)

// ActiveStatuses occupy a seat/slot for a date.
var ActiveStatuses = []string{StatusPending, StatusConfirmed, StatusCheckedIn}

// MonthlyActiveStatuses occupy a seat/slot window.
var MonthlyActiveStatuses = []string{StatusPending, StatusConfirmed}

// IsActive reports whether status still holds the seat.
func IsActive(status string) bool {
	for _, s := range ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsValidMethod reports whether m is a known check-in method.
func IsValidMethod(m string) bool {
	return m == MethodQR || m == MethodManual
}
