package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"seatbook/internal/domain"
	"seatbook/internal/models"
)

// HasMonthlyOverlap reports whether an active monthly booking on the seat
// (and on the slot, when slotID is set) intersects [start, end]. Library-fee
// bookings and bookings without a slot hold every slot of their seat.
func (q *Queries) HasMonthlyOverlap(ctx context.Context, seatID int64, slotID *int64, start, end time.Time) (bool, error) {
	query := `SELECT COUNT(*) FROM monthly_bookings
		WHERE seat_id = ? AND start_date <= ? AND end_date >= ?
		  AND status IN (` + placeholders(len(models.MonthlyActiveStatuses)) + `)`
	args := []any{seatID, end.Format(dateLayout), start.Format(dateLayout)}
	args = append(args, stringArgs(models.MonthlyActiveStatuses)...)
	if slotID != nil {
		query += ` AND (time_slot_id = ? OR time_slot_id IS NULL OR pricing = ?)`
		args = append(args, *slotID, models.PricingLibraryFee)
	}

	var n int
	if err := q.run.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check monthly overlap: %w", err)
	}
	return n > 0, nil
}

func (q *Queries) CreateMonthlyBooking(ctx context.Context, m *models.MonthlyBooking) error {
	now := nowUTC()
	if m.BookedAt.IsZero() {
		m.BookedAt = now
	}
	res, err := q.run.ExecContext(ctx,
		`INSERT INTO monthly_bookings (
			user_id, seat_id, time_slot_id, library_id, start_date, end_date, amount, status,
			payment_status, pricing, transaction_id, booked_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UserID, m.SeatID, int64Arg(m.TimeSlotID), m.LibraryID, m.StartDate.Format(dateLayout),
		m.EndDate.Format(dateLayout), m.Amount, m.Status, m.PaymentStatus, m.Pricing,
		int64Arg(m.TransactionID), m.BookedAt.UTC(), now)
	if err != nil {
		return fmt.Errorf("failed to create monthly booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	m.ID = id
	m.UpdatedAt = now
	return nil
}

const monthlyColumns = `id, user_id, seat_id, time_slot_id, library_id, start_date, end_date, amount, status,
	payment_status, pricing, transaction_id, booked_at, cancelled_at, cancelled_by, updated_at`

func scanMonthly(row interface{ Scan(...any) error }) (*models.MonthlyBooking, error) {
	var m models.MonthlyBooking
	var start, end string
	var slotID, txID, cancelledBy sql.NullInt64
	var cancelledAt sql.NullTime
	err := row.Scan(&m.ID, &m.UserID, &m.SeatID, &slotID, &m.LibraryID, &start, &end, &m.Amount,
		&m.Status, &m.PaymentStatus, &m.Pricing, &txID, &m.BookedAt, &cancelledAt, &cancelledBy, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if m.StartDate, err = parseDate(start); err != nil {
		return nil, err
	}
	if m.EndDate, err = parseDate(end); err != nil {
		return nil, err
	}
	m.TimeSlotID = nullInt64Ptr(slotID)
	m.TransactionID = nullInt64Ptr(txID)
	m.CancelledAt = nullTimePtr(cancelledAt)
	m.CancelledBy = nullInt64Ptr(cancelledBy)
	return &m, nil
}

func (q *Queries) GetMonthlyBooking(ctx context.Context, id int64) (*models.MonthlyBooking, error) {
	m, err := scanMonthly(q.run.QueryRowContext(ctx,
		`SELECT `+monthlyColumns+` FROM monthly_bookings WHERE id = ?`, id))
	if err != nil {
		return nil, notFound("monthly booking", id, err)
	}
	return m, nil
}

func (q *Queries) ListUserMonthlyBookings(ctx context.Context, userID int64) ([]*models.MonthlyBooking, error) {
	rows, err := q.run.QueryContext(ctx,
		`SELECT `+monthlyColumns+` FROM monthly_bookings WHERE user_id = ? ORDER BY start_date DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list monthly bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.MonthlyBooking
	for rows.Next() {
		m, err := scanMonthly(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monthly booking: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// FindActiveMonthlyCovering returns the user's confirmed monthly booking at
// the library whose window contains day.
func (q *Queries) FindActiveMonthlyCovering(ctx context.Context, userID, libraryID int64, day time.Time) (*models.MonthlyBooking, error) {
	d := day.Format(dateLayout)
	m, err := scanMonthly(q.run.QueryRowContext(ctx,
		`SELECT `+monthlyColumns+` FROM monthly_bookings
		 WHERE user_id = ? AND library_id = ? AND start_date <= ? AND end_date >= ? AND status = ?
		 ORDER BY start_date DESC LIMIT 1`,
		userID, libraryID, d, d, models.StatusConfirmed))
	if err != nil {
		return nil, notFound("monthly booking for user", userID, err)
	}
	return m, nil
}

// SaveMonthlyState persists status, payment and cancellation fields if the
// stored status still equals expectedStatus.
func (q *Queries) SaveMonthlyState(ctx context.Context, m *models.MonthlyBooking, expectedStatus string) error {
	now := nowUTC()
	res, err := q.run.ExecContext(ctx,
		`UPDATE monthly_bookings SET status = ?, payment_status = ?, cancelled_at = ?, cancelled_by = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		m.Status, m.PaymentStatus, timeArg(m.CancelledAt), int64Arg(m.CancelledBy), now, m.ID, expectedStatus)
	if err != nil {
		return fmt.Errorf("failed to update monthly booking: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.ErrConcurrentModification
	}
	m.UpdatedAt = now
	return nil
}

func (q *Queries) TransitionMonthlyStatus(ctx context.Context, id int64, from, to string) (bool, error) {
	res, err := q.run.ExecContext(ctx,
		`UPDATE monthly_bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, nowUTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update monthly booking status: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}
