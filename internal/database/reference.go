package database

import (
	"context"
	"database/sql"
	"fmt"

	"seatbook/internal/models"

	"github.com/shopspring/decimal"
)

func (q *Queries) CreateLibrary(ctx context.Context, lib *models.Library) error {
	res, err := q.run.ExecContext(ctx,
		`INSERT INTO libraries (name, owner_id, monthly_fee, is_active) VALUES (?, ?, ?, ?)`,
		lib.Name, lib.OwnerID, lib.MonthlyFee, lib.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create library: %w", err)
	}
	lib.ID, err = res.LastInsertId()
	return err
}

func (q *Queries) GetLibrary(ctx context.Context, id int64) (*models.Library, error) {
	var lib models.Library
	err := q.run.QueryRowContext(ctx,
		`SELECT id, name, owner_id, monthly_fee, is_active FROM libraries WHERE id = ?`, id,
	).Scan(&lib.ID, &lib.Name, &lib.OwnerID, &lib.MonthlyFee, &lib.IsActive)
	if err != nil {
		return nil, notFound("library", id, err)
	}
	return &lib, nil
}

func (q *Queries) CreateSeat(ctx context.Context, seat *models.Seat) error {
	res, err := q.run.ExecContext(ctx,
		`INSERT INTO seats (library_id, label, is_active) VALUES (?, ?, ?)`,
		seat.LibraryID, seat.Label, seat.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create seat: %w", err)
	}
	seat.ID, err = res.LastInsertId()
	return err
}

func (q *Queries) GetSeat(ctx context.Context, id int64) (*models.Seat, error) {
	var seat models.Seat
	err := q.run.QueryRowContext(ctx,
		`SELECT id, library_id, label, is_active FROM seats WHERE id = ?`, id,
	).Scan(&seat.ID, &seat.LibraryID, &seat.Label, &seat.IsActive)
	if err != nil {
		return nil, notFound("seat", id, err)
	}
	return &seat, nil
}

func (q *Queries) CreateTimeSlot(ctx context.Context, slot *models.TimeSlot) error {
	var monthly any
	if slot.MonthlyPrice != nil {
		monthly = *slot.MonthlyPrice
	}
	res, err := q.run.ExecContext(ctx,
		`INSERT INTO time_slots (library_id, name, start_time, end_time, price, monthly_price, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		slot.LibraryID, slot.Name, slot.StartTime, slot.EndTime, slot.Price, monthly, slot.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create time slot: %w", err)
	}
	slot.ID, err = res.LastInsertId()
	return err
}

func (q *Queries) GetTimeSlot(ctx context.Context, id int64) (*models.TimeSlot, error) {
	var slot models.TimeSlot
	var monthly decimal.NullDecimal
	err := q.run.QueryRowContext(ctx,
		`SELECT id, library_id, name, start_time, end_time, price, monthly_price, is_active
		 FROM time_slots WHERE id = ?`, id,
	).Scan(&slot.ID, &slot.LibraryID, &slot.Name, &slot.StartTime, &slot.EndTime,
		&slot.Price, &monthly, &slot.IsActive)
	if err != nil {
		return nil, notFound("time slot", id, err)
	}
	if monthly.Valid {
		slot.MonthlyPrice = &monthly.Decimal
	}
	return &slot, nil
}

// LinkSeatSlot declares that slot serves seat.
func (q *Queries) LinkSeatSlot(ctx context.Context, seatID, slotID int64) error {
	_, err := q.run.ExecContext(ctx,
		`INSERT OR IGNORE INTO seat_time_slots (seat_id, time_slot_id) VALUES (?, ?)`, seatID, slotID)
	if err != nil {
		return fmt.Errorf("failed to link seat %d to slot %d: %w", seatID, slotID, err)
	}
	return nil
}

// SeatServesSlot is true when the seat has no explicit slot mapping or the
// mapping includes slotID.
func (q *Queries) SeatServesSlot(ctx context.Context, seatID, slotID int64) (bool, error) {
	var total int
	var matched sql.NullInt64
	err := q.run.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(time_slot_id = ?) FROM seat_time_slots WHERE seat_id = ?`,
		slotID, seatID,
	).Scan(&total, &matched)
	if err != nil {
		return false, fmt.Errorf("failed to check seat slot mapping: %w", err)
	}
	if total == 0 {
		return true, nil
	}
	return matched.Int64 > 0, nil
}

func (q *Queries) GetSettings(ctx context.Context) (*models.Settings, error) {
	var s models.Settings
	err := q.run.QueryRowContext(ctx,
		`SELECT coin_price, wallet_commission, booking_commission, updated_at FROM settings WHERE id = 1`,
	).Scan(&s.CoinPrice, &s.WalletCommission, &s.BookingCommission, &s.UpdatedAt)
	if err != nil {
		return nil, notFound("settings", 1, err)
	}
	return &s, nil
}

func (q *Queries) SaveSettings(ctx context.Context, s *models.Settings) error {
	s.UpdatedAt = nowUTC()
	_, err := q.run.ExecContext(ctx,
		`INSERT INTO settings (id, coin_price, wallet_commission, booking_commission, updated_at)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			coin_price = excluded.coin_price,
			wallet_commission = excluded.wallet_commission,
			booking_commission = excluded.booking_commission,
			updated_at = excluded.updated_at`,
		s.CoinPrice, s.WalletCommission, s.BookingCommission, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
