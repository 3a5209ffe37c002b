package database

import (
	"context"
	"fmt"
	"time"

	"seatbook/internal/models"
)

// ListStaleBookings returns confirmed or checked-in bookings dated on or
// before through, with their slot and attendance counts.
func (q *Queries) ListStaleBookings(ctx context.Context, through time.Time) ([]*models.StaleBooking, error) {
	rows, err := q.run.QueryContext(ctx,
		`SELECT b.id, b.user_id, b.status, b.booking_date,
			s.id, s.library_id, s.name, s.start_time, s.end_time, s.price, s.is_active,
			(SELECT COUNT(*) FROM attendance a WHERE a.booking_id = b.id),
			(SELECT COUNT(*) FROM attendance a WHERE a.booking_id = b.id AND a.check_out_time IS NULL)
		 FROM bookings b
		 JOIN time_slots s ON s.id = b.time_slot_id
		 WHERE b.booking_date <= ? AND b.status IN (?, ?)
		 ORDER BY b.booking_date, b.id`,
		through.Format(dateLayout), models.StatusConfirmed, models.StatusCheckedIn)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.StaleBooking
	for rows.Next() {
		var sb models.StaleBooking
		var date string
		if err := rows.Scan(&sb.BookingID, &sb.UserID, &sb.Status, &date,
			&sb.Slot.ID, &sb.Slot.LibraryID, &sb.Slot.Name, &sb.Slot.StartTime, &sb.Slot.EndTime,
			&sb.Slot.Price, &sb.Slot.IsActive, &sb.AttendanceRows, &sb.OpenRows); err != nil {
			return nil, fmt.Errorf("failed to scan stale booking: %w", err)
		}
		if sb.BookingDate, err = parseDate(date); err != nil {
			return nil, err
		}
		out = append(out, &sb)
	}
	return out, rows.Err()
}

// ListEndedMonthly returns confirmed monthly bookings whose end date is
// before endedBefore, with the number of attended days in their window.
func (q *Queries) ListEndedMonthly(ctx context.Context, endedBefore time.Time) ([]*models.EndedMonthly, error) {
	rows, err := q.run.QueryContext(ctx,
		`SELECT m.id, m.user_id, m.status, m.start_date, m.end_date,
			(SELECT COUNT(*) FROM monthly_attendance a
			 WHERE a.monthly_booking_id = m.id AND a.date >= m.start_date AND a.date <= m.end_date)
		 FROM monthly_bookings m
		 WHERE m.end_date < ? AND m.status = ?
		 ORDER BY m.end_date, m.id`,
		endedBefore.Format(dateLayout), models.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to list ended monthly bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.EndedMonthly
	for rows.Next() {
		var em models.EndedMonthly
		var start, end string
		if err := rows.Scan(&em.ID, &em.UserID, &em.Status, &start, &end, &em.AttendanceDays); err != nil {
			return nil, fmt.Errorf("failed to scan monthly booking: %w", err)
		}
		if em.StartDate, err = parseDate(start); err != nil {
			return nil, err
		}
		if em.EndDate, err = parseDate(end); err != nil {
			return nil, err
		}
		out = append(out, &em)
	}
	return out, rows.Err()
}
