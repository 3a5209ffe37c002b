package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// Settings is the global pricing snapshot. The booking engine receives it
// per call.
type Settings struct {
	CoinPrice         decimal.Decimal `json:"coin_price"`
	WalletCommission  decimal.Decimal `json:"wallet_commission"`
	BookingCommission decimal.Decimal `json:"booking_commission"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Principal is the authenticated caller as resolved by the auth layer.
type Principal struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

func (p Principal) IsAdmin() bool     { return p.Role == RoleAdmin }
func (p Principal) IsLibrarian() bool { return p.Role == RoleLibrarian }

// NormalizeDate truncates t to midnight UTC of its calendar date.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses "YYYY-MM-DD" into a normalized date.
func ParseDate(v string) (time.Time, error) {
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, err
	}
	return NormalizeDate(t), nil
}

// DaysInclusive counts calendar dates in [start, end].
func DaysInclusive(start, end time.Time) int {
	s, e := NormalizeDate(start), NormalizeDate(end)
	if e.Before(s) {
		return 0
	}
	return int(e.Sub(s)/(24*time.Hour)) + 1
}

// EachDate lists every calendar date in [start, end].
func EachDate(start, end time.Time) []time.Time {
	n := DaysInclusive(start, end)
	out := make([]time.Time, 0, n)
	s := NormalizeDate(start)
	for i := 0; i < n; i++ {
		out = append(out, s.AddDate(0, 0, i))
	}
	return out
}

// DateIn returns the calendar date of t as seen in loc, normalized.
func DateIn(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return NormalizeDate(t.In(loc))
}
