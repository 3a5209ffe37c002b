package database

import (
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS libraries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		owner_id INTEGER NOT NULL,
		monthly_fee TEXT NOT NULL DEFAULT '0',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS seats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		library_id INTEGER NOT NULL REFERENCES libraries(id),
		label TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS time_slots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		library_id INTEGER NOT NULL REFERENCES libraries(id),
		name TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		price TEXT NOT NULL,
		monthly_price TEXT,
		is_active BOOLEAN NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS seat_time_slots (
		seat_id INTEGER NOT NULL REFERENCES seats(id),
		time_slot_id INTEGER NOT NULL REFERENCES time_slots(id),
		PRIMARY KEY (seat_id, time_slot_id)
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		coin_price TEXT NOT NULL,
		wallet_commission TEXT NOT NULL,
		booking_commission TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wallets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE,
		balance TEXT NOT NULL DEFAULT '0' CHECK (CAST(balance AS REAL) >= 0),
		currency TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		wallet_id INTEGER NOT NULL REFERENCES wallets(id),
		user_id INTEGER NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('credit', 'debit', 'refund')),
		amount TEXT NOT NULL CHECK (CAST(amount AS REAL) > 0),
		description TEXT NOT NULL DEFAULT '',
		reference TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		monthly_booking_id INTEGER,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transaction_bookings (
		transaction_id INTEGER NOT NULL REFERENCES transactions(id),
		booking_id INTEGER NOT NULL REFERENCES bookings(id),
		PRIMARY KEY (transaction_id, booking_id)
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		seat_id INTEGER NOT NULL REFERENCES seats(id),
		time_slot_id INTEGER NOT NULL REFERENCES time_slots(id),
		library_id INTEGER NOT NULL REFERENCES libraries(id),
		booking_date TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		amount TEXT NOT NULL,
		transaction_id INTEGER REFERENCES transactions(id),
		cancelled_at DATETIME,
		cancelled_by INTEGER,
		rejected_at DATETIME,
		rejected_by INTEGER,
		reject_reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS monthly_bookings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		seat_id INTEGER NOT NULL REFERENCES seats(id),
		time_slot_id INTEGER REFERENCES time_slots(id),
		library_id INTEGER NOT NULL REFERENCES libraries(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		pricing TEXT NOT NULL,
		transaction_id INTEGER REFERENCES transactions(id),
		booked_at DATETIME NOT NULL,
		cancelled_at DATETIME,
		cancelled_by INTEGER,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		library_id INTEGER NOT NULL,
		booking_id INTEGER NOT NULL REFERENCES bookings(id),
		time_slot_id INTEGER NOT NULL,
		check_in_time DATETIME NOT NULL,
		check_out_time DATETIME,
		duration_minutes INTEGER,
		method TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS monthly_attendance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		monthly_booking_id INTEGER NOT NULL REFERENCES monthly_bookings(id),
		user_id INTEGER NOT NULL,
		library_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		sessions TEXT NOT NULL DEFAULT '[]',
		total_duration_minutes INTEGER NOT NULL DEFAULT 0,
		UNIQUE (monthly_booking_id, date)
	)`,

	// at most one active booking per seat, slot and date
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_slot
		ON bookings(seat_id, time_slot_id, booking_date)
		WHERE status IN ('pending', 'confirmed', 'checked-in')`,
	// at most one open attendance row per booking
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_open
		ON attendance(booking_id) WHERE check_out_time IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference) WHERE reference IS NOT NULL AND reference <> ''`,

	`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_date_status ON bookings(booking_date, status)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_library_date ON bookings(library_id, booking_date)`,
	`CREATE INDEX IF NOT EXISTS idx_monthly_seat ON monthly_bookings(seat_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_monthly_user ON monthly_bookings(user_id, library_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions(wallet_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transaction_bookings_booking ON transaction_bookings(booking_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_booking ON attendance(booking_id)`,
}

func migrate(db *sql.DB) error {
	for _, query := range schema {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
