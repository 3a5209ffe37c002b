package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"seatbook/internal/domain"
	"seatbook/internal/models"
)

// ConflictingDates lists every date in [start, end] on which the seat/slot
// already carries an active booking.
func (q *Queries) ConflictingDates(ctx context.Context, seatID, slotID, libraryID int64, start, end time.Time) ([]time.Time, error) {
	args := []any{seatID, slotID, libraryID, start.Format(dateLayout), end.Format(dateLayout)}
	args = append(args, stringArgs(models.ActiveStatuses)...)
	rows, err := q.run.QueryContext(ctx,
		`SELECT DISTINCT booking_date FROM bookings
		 WHERE seat_id = ? AND time_slot_id = ? AND library_id = ?
		   AND booking_date >= ? AND booking_date <= ?
		   AND status IN (`+placeholders(len(models.ActiveStatuses))+`)
		 ORDER BY booking_date`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan booking date: %w", err)
		}
		d, err := parseDate(raw)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func (q *Queries) CreateBooking(ctx context.Context, b *models.Booking) error {
	now := nowUTC()
	res, err := q.run.ExecContext(ctx,
		`INSERT INTO bookings (
			user_id, seat_id, time_slot_id, library_id, booking_date, status, payment_status,
			amount, transaction_id, created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		b.UserID, b.SeatID, b.TimeSlotID, b.LibraryID, b.BookingDate.Format(dateLayout),
		b.Status, b.PaymentStatus, b.Amount, int64Arg(b.TransactionID), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", b.BookingDate.Format(dateLayout), domain.ErrSlotTaken)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
	return nil
}

const bookingColumns = `id, user_id, seat_id, time_slot_id, library_id, booking_date, status, payment_status,
	amount, transaction_id, cancelled_at, cancelled_by, rejected_at, rejected_by, reject_reason,
	created_at, updated_at, version`

func scanBooking(row interface{ Scan(...any) error }) (*models.Booking, error) {
	var b models.Booking
	var date string
	var txID, cancelledBy, rejectedBy sql.NullInt64
	var cancelledAt, rejectedAt sql.NullTime
	err := row.Scan(&b.ID, &b.UserID, &b.SeatID, &b.TimeSlotID, &b.LibraryID, &date, &b.Status,
		&b.PaymentStatus, &b.Amount, &txID, &cancelledAt, &cancelledBy, &rejectedAt, &rejectedBy,
		&b.RejectReason, &b.CreatedAt, &b.UpdatedAt, &b.Version)
	if err != nil {
		return nil, err
	}
	if b.BookingDate, err = parseDate(date); err != nil {
		return nil, err
	}
	b.TransactionID = nullInt64Ptr(txID)
	b.CancelledAt = nullTimePtr(cancelledAt)
	b.CancelledBy = nullInt64Ptr(cancelledBy)
	b.RejectedAt = nullTimePtr(rejectedAt)
	b.RejectedBy = nullInt64Ptr(rejectedBy)
	return &b, nil
}

func (q *Queries) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := scanBooking(q.run.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err != nil {
		return nil, notFound("booking", id, err)
	}
	return b, nil
}

func (q *Queries) listBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := q.run.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q *Queries) ListUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	return q.listBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY booking_date DESC, id DESC`, userID)
}

func (q *Queries) ListLibraryBookings(ctx context.Context, libraryID int64, start, end time.Time) ([]*models.Booking, error) {
	return q.listBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE library_id = ? AND booking_date >= ? AND booking_date <= ?
		 ORDER BY booking_date, time_slot_id, seat_id`,
		libraryID, start.Format(dateLayout), end.Format(dateLayout))
}

// FindUserBookingsForDate returns the user's bookings at a library on day,
// earliest slot first.
func (q *Queries) FindUserBookingsForDate(ctx context.Context, userID, libraryID int64, day time.Time) ([]*models.Booking, error) {
	return q.listBookings(ctx,
		`SELECT `+prefixed("b", bookingColumns)+` FROM bookings b
		 JOIN time_slots s ON s.id = b.time_slot_id
		 WHERE b.user_id = ? AND b.library_id = ? AND b.booking_date = ?
		 ORDER BY s.start_time, b.id`,
		userID, libraryID, day.Format(dateLayout))
}

// SaveBookingState persists status, payment and cancellation fields, but
// only if the stored status still equals expectedStatus.
func (q *Queries) SaveBookingState(ctx context.Context, b *models.Booking, expectedStatus string) error {
	now := nowUTC()
	res, err := q.run.ExecContext(ctx,
		`UPDATE bookings SET status = ?, payment_status = ?, cancelled_at = ?, cancelled_by = ?,
			rejected_at = ?, rejected_by = ?, reject_reason = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND status = ?`,
		b.Status, b.PaymentStatus, timeArg(b.CancelledAt), int64Arg(b.CancelledBy),
		timeArg(b.RejectedAt), int64Arg(b.RejectedBy), b.RejectReason, now, b.ID, expectedStatus)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.ErrConcurrentModification
	}
	b.UpdatedAt = now
	b.Version++
	return nil
}

// TransitionBookingStatus moves a booking from one status to another and
// reports whether it did.
func (q *Queries) TransitionBookingStatus(ctx context.Context, id int64, from, to string) (bool, error) {
	res, err := q.run.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ?, version = version + 1 WHERE id = ? AND status = ?`,
		to, nowUTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func prefixed(alias, columns string) string {
	out := make([]byte, 0, len(columns)*2)
	start := true
	for i := 0; i < len(columns); i++ {
		c := columns[i]
		if start && c != ' ' && c != '\n' && c != '\t' {
			out = append(out, alias...)
			out = append(out, '.')
			start = false
		}
		out = append(out, c)
		if c == ',' {
			start = true
		}
	}
	return string(out)
}
