package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

var (
	errLinkBoth = errors.New("ledger entry links both bookings and a monthly booking")
	errLinkNone = errors.New("ledger entry has no booking linkage")
)

// Linkage ties a ledger entry to the bookings it paid or refunded.
// At most one of the two forms is populated.
type Linkage struct {
	BookingIDs       []int64 `json:"booking_ids,omitempty"`
	MonthlyBookingID *int64  `json:"monthly_booking_id,omitempty"`
}

// IsEmpty is true for entries not tied to any booking (top-ups, withdrawals).
func (l Linkage) IsEmpty() bool {
	return len(l.BookingIDs) == 0 && l.MonthlyBookingID == nil
}

// Validate rejects entries carrying both linkage forms.
func (l Linkage) Validate() error {
	if len(l.BookingIDs) > 0 && l.MonthlyBookingID != nil {
		return errLinkBoth
	}
	return nil
}

// RequireBooking validates a booking-related entry: exactly one form set.
func (l Linkage) RequireBooking() error {
	if err := l.Validate(); err != nil {
		return err
	}
	if l.IsEmpty() {
		return errLinkNone
	}
	return nil
}

// Transaction is a ledger entry paired with one wallet mutation.
type Transaction struct {
	ID          int64           `json:"id"`
	WalletID    int64           `json:"wallet_id"`
	UserID      int64           `json:"user_id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	Status      string          `json:"status"`
	Linkage
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Signed returns the amount with the sign it contributes to the balance.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Kind == KindDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// LedgerSum adds up completed entries with their signs.
func LedgerSum(entries []*Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		if e.Status != TxCompleted {
			continue
		}
		sum = sum.Add(e.Signed())
	}
	return sum
}
