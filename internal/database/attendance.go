package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"seatbook/internal/domain"
	"seatbook/internal/models"
)

const attendanceColumns = `id, user_id, library_id, booking_id, time_slot_id, check_in_time,
	check_out_time, duration_minutes, method`

func scanAttendance(row interface{ Scan(...any) error }) (*models.Attendance, error) {
	var a models.Attendance
	var out sql.NullTime
	var duration sql.NullInt64
	if err := row.Scan(&a.ID, &a.UserID, &a.LibraryID, &a.BookingID, &a.TimeSlotID, &a.CheckInTime,
		&out, &duration, &a.Method); err != nil {
		return nil, err
	}
	a.CheckInTime = a.CheckInTime.UTC()
	a.CheckOutTime = nullTimePtr(out)
	if duration.Valid {
		d := int(duration.Int64)
		a.DurationMinutes = &d
	}
	return &a, nil
}

// LatestAttendance returns the most recent check-in episode for a booking.
func (q *Queries) LatestAttendance(ctx context.Context, bookingID int64) (*models.Attendance, error) {
	a, err := scanAttendance(q.run.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE booking_id = ? ORDER BY id DESC LIMIT 1`, bookingID))
	if err != nil {
		return nil, notFound("attendance for booking", bookingID, err)
	}
	return a, nil
}

func (q *Queries) CreateAttendance(ctx context.Context, a *models.Attendance) error {
	res, err := q.run.ExecContext(ctx,
		`INSERT INTO attendance (user_id, library_id, booking_id, time_slot_id, check_in_time, method)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.UserID, a.LibraryID, a.BookingID, a.TimeSlotID, a.CheckInTime.UTC(), a.Method)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSessionOpen
		}
		return fmt.Errorf("failed to create attendance: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

// CloseAttendance stores check-out fields on a still-open row.
func (q *Queries) CloseAttendance(ctx context.Context, a *models.Attendance) error {
	if a.CheckOutTime == nil || a.DurationMinutes == nil {
		return errors.New("attendance has no check-out to store")
	}
	res, err := q.run.ExecContext(ctx,
		`UPDATE attendance SET check_out_time = ?, duration_minutes = ? WHERE id = ? AND check_out_time IS NULL`,
		a.CheckOutTime.UTC(), *a.DurationMinutes, a.ID)
	if err != nil {
		return fmt.Errorf("failed to close attendance: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.ErrNoActiveSession
	}
	return nil
}

// ListUserAttendance returns check-ins at a library within [from, to).
func (q *Queries) ListUserAttendance(ctx context.Context, userID, libraryID int64, from, to time.Time) ([]*models.Attendance, error) {
	rows, err := q.run.QueryContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance
		 WHERE user_id = ? AND library_id = ? AND check_in_time >= ? AND check_in_time < ?
		 ORDER BY check_in_time`,
		userID, libraryID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	defer rows.Close()

	var out []*models.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanMonthlyAttendance(row interface{ Scan(...any) error }) (*models.MonthlyAttendance, error) {
	var m models.MonthlyAttendance
	var date, sessions string
	if err := row.Scan(&m.ID, &m.MonthlyBookingID, &m.UserID, &m.LibraryID, &date, &sessions,
		&m.TotalDurationMinutes); err != nil {
		return nil, err
	}
	var err error
	if m.Date, err = parseDate(date); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sessions), &m.Sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions for %d: %w", m.ID, err)
	}
	return &m, nil
}

const monthlyAttendanceColumns = `id, monthly_booking_id, user_id, library_id, date, sessions, total_duration_minutes`

func (q *Queries) GetMonthlyAttendance(ctx context.Context, bookingID int64, day time.Time) (*models.MonthlyAttendance, error) {
	m, err := scanMonthlyAttendance(q.run.QueryRowContext(ctx,
		`SELECT `+monthlyAttendanceColumns+` FROM monthly_attendance WHERE monthly_booking_id = ? AND date = ?`,
		bookingID, day.Format(dateLayout)))
	if err != nil {
		return nil, notFound("monthly attendance for booking", bookingID, err)
	}
	return m, nil
}

// SaveMonthlyAttendance inserts or replaces the day document. The total is
// recomputed from the sessions on every save.
func (q *Queries) SaveMonthlyAttendance(ctx context.Context, m *models.MonthlyAttendance) error {
	m.Recompute()
	if m.Sessions == nil {
		m.Sessions = []models.Session{}
	}
	raw, err := json.Marshal(m.Sessions)
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}

	if m.ID == 0 {
		res, err := q.run.ExecContext(ctx,
			`INSERT INTO monthly_attendance (monthly_booking_id, user_id, library_id, date, sessions, total_duration_minutes)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			m.MonthlyBookingID, m.UserID, m.LibraryID, m.Date.Format(dateLayout), string(raw), m.TotalDurationMinutes)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConcurrentModification
			}
			return fmt.Errorf("failed to create monthly attendance: %w", err)
		}
		m.ID, err = res.LastInsertId()
		return err
	}

	_, err = q.run.ExecContext(ctx,
		`UPDATE monthly_attendance SET sessions = ?, total_duration_minutes = ? WHERE id = ?`,
		string(raw), m.TotalDurationMinutes, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update monthly attendance: %w", err)
	}
	return nil
}

func (q *Queries) ListMonthlyAttendance(ctx context.Context, bookingID int64) ([]*models.MonthlyAttendance, error) {
	return q.listMonthlyAttendance(ctx,
		`SELECT `+monthlyAttendanceColumns+` FROM monthly_attendance WHERE monthly_booking_id = ? ORDER BY date`,
		bookingID)
}

// ListOpenMonthlyAttendance returns day documents dated before the given day
// that still hold a session without check-out.
func (q *Queries) ListOpenMonthlyAttendance(ctx context.Context, before time.Time) ([]*models.MonthlyAttendance, error) {
	return q.listMonthlyAttendance(ctx,
		`SELECT `+monthlyAttendanceColumns+` FROM monthly_attendance
		 WHERE date < ? AND EXISTS (
			SELECT 1 FROM json_each(monthly_attendance.sessions)
			WHERE json_extract(value, '$.check_out_time') IS NULL
		 )
		 ORDER BY date, id`,
		before.Format(dateLayout))
}

func (q *Queries) listMonthlyAttendance(ctx context.Context, query string, args ...any) ([]*models.MonthlyAttendance, error) {
	rows, err := q.run.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list monthly attendance: %w", err)
	}
	defer rows.Close()

	var out []*models.MonthlyAttendance
	for rows.Next() {
		m, err := scanMonthlyAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monthly attendance: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
