package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel kinds. Every business error returned by the services unwraps to
// exactly one of these.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOutOfWindow       = errors.New("out of window")
	ErrAlreadyActive     = errors.New("session already active")
	ErrAlreadyCompleted  = errors.New("session already completed")
	ErrNoActiveSession   = errors.New("no active session")
	ErrNoBooking         = errors.New("no booking for today")
	ErrForbidden         = errors.New("forbidden")
)

// Kind names used at the API boundary.
const (
	KindInvalidInput      = "InvalidInput"
	KindNotFound          = "NotFound"
	KindInvalidState      = "InvalidState"
	KindConflict          = "Conflict"
	KindInsufficientFunds = "InsufficientFunds"
	KindOutOfWindow       = "OutOfWindow"
	KindAlreadyActive     = "AlreadyActive"
	KindAlreadyCompleted  = "AlreadyCompleted"
	KindNoActiveSession   = "NoActiveSession"
	KindNoBooking         = "NoBooking"
	KindForbidden         = "Forbidden"
	KindInternal          = "Internal"
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrNotFound, KindNotFound},
	{ErrInvalidState, KindInvalidState},
	{ErrConflict, KindConflict},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrOutOfWindow, KindOutOfWindow},
	{ErrAlreadyActive, KindAlreadyActive},
	{ErrAlreadyCompleted, KindAlreadyCompleted},
	{ErrNoActiveSession, KindNoActiveSession},
	{ErrNoBooking, KindNoBooking},
	{ErrForbidden, KindForbidden},
}

// KindOf classifies err. Anything unrecognised is Internal.
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return KindInternal
}

// Error is a business error with a caller-facing message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

func InvalidInput(format string, args ...any) error {
	return &Error{Kind: ErrInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...any) error {
	return &Error{Kind: ErrInvalidState, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: ErrForbidden, Message: fmt.Sprintf(format, args...)}
}

// ConflictError lists the dates already taken for a single-day request, or
// the overlapping window for a monthly one.
type ConflictError struct {
	Dates       []time.Time
	WindowStart time.Time
	WindowEnd   time.Time
}

func (e *ConflictError) Error() string {
	if len(e.Dates) == 0 {
		return fmt.Sprintf("seat already booked for an overlapping window %s..%s",
			e.WindowStart.Format("2006-01-02"), e.WindowEnd.Format("2006-01-02"))
	}
	parts := make([]string, len(e.Dates))
	for i, d := range e.Dates {
		parts[i] = d.Format("2006-01-02")
	}
	return "seat already booked on " + strings.Join(parts, ", ")
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient wallet balance: required %s, available %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// OutOfWindowError reports the allowed [From, To] range.
type OutOfWindowError struct {
	From time.Time
	To   time.Time
}

func (e *OutOfWindowError) Error() string {
	return fmt.Sprintf("allowed only between %s and %s",
		e.From.Format(time.RFC3339), e.To.Format(time.RFC3339))
}

func (e *OutOfWindowError) Unwrap() error { return ErrOutOfWindow }
