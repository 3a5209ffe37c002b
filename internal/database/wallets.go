package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"seatbook/internal/domain"
	"seatbook/internal/models"

	"github.com/shopspring/decimal"
)

// GetOrCreateWallet returns the user's wallet, creating an empty one on
// first use.
func (q *Queries) GetOrCreateWallet(ctx context.Context, userID int64, currency string) (*models.Wallet, error) {
	w, err := q.getWallet(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	now := nowUTC()
	_, err = q.run.ExecContext(ctx,
		`INSERT INTO wallets (user_id, balance, currency, created_at, updated_at)
		 VALUES (?, '0', ?, ?, ?) ON CONFLICT(user_id) DO NOTHING`,
		userID, currency, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	w, err = q.getWallet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load created wallet: %w", err)
	}
	return w, nil
}

func (q *Queries) getWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	var w models.Wallet
	err := q.run.QueryRowContext(ctx,
		`SELECT id, user_id, balance, currency, created_at, updated_at FROM wallets WHERE user_id = ?`, userID,
	).Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// UpdateWalletBalance stores a balance computed inside the same unit of work.
func (q *Queries) UpdateWalletBalance(ctx context.Context, walletID int64, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return fmt.Errorf("wallet %d: %w", walletID, domain.ErrInsufficientFunds)
	}
	res, err := q.run.ExecContext(ctx,
		`UPDATE wallets SET balance = ?, updated_at = ? WHERE id = ?`, balance, nowUTC(), walletID)
	if err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("wallet %d: %w", walletID, domain.ErrNotFound)
	}
	return nil
}

func (q *Queries) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := tx.Linkage.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	}
	now := nowUTC()
	var reference any
	if tx.Reference != "" {
		reference = tx.Reference
	}
	res, err := q.run.ExecContext(ctx,
		`INSERT INTO transactions (wallet_id, user_id, kind, amount, description, reference, status,
			monthly_booking_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.WalletID, tx.UserID, tx.Kind, tx.Amount, tx.Description, reference, tx.Status,
		int64Arg(tx.MonthlyBookingID), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReference
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	tx.ID = id
	tx.CreatedAt = now
	tx.UpdatedAt = now

	if len(tx.BookingIDs) > 0 {
		return q.insertTransactionBookings(ctx, id, tx.BookingIDs)
	}
	return nil
}

// LinkTransaction attaches booking references created after the entry.
func (q *Queries) LinkTransaction(ctx context.Context, txID int64, link models.Linkage) error {
	if err := link.RequireBooking(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	}

	var existing sql.NullInt64
	var linked int
	err := q.run.QueryRowContext(ctx,
		`SELECT monthly_booking_id, (SELECT COUNT(*) FROM transaction_bookings WHERE transaction_id = t.id)
		 FROM transactions t WHERE id = ?`, txID,
	).Scan(&existing, &linked)
	if err != nil {
		return notFound("transaction", txID, err)
	}

	if link.MonthlyBookingID != nil {
		if linked > 0 {
			return fmt.Errorf("%w: transaction %d already linked to bookings", domain.ErrInvalidState, txID)
		}
		_, err = q.run.ExecContext(ctx,
			`UPDATE transactions SET monthly_booking_id = ?, updated_at = ? WHERE id = ?`,
			*link.MonthlyBookingID, nowUTC(), txID)
		if err != nil {
			return fmt.Errorf("failed to link monthly booking: %w", err)
		}
		return nil
	}

	if existing.Valid {
		return fmt.Errorf("%w: transaction %d already linked to a monthly booking", domain.ErrInvalidState, txID)
	}
	return q.insertTransactionBookings(ctx, txID, link.BookingIDs)
}

func (q *Queries) insertTransactionBookings(ctx context.Context, txID int64, bookingIDs []int64) error {
	for _, id := range bookingIDs {
		_, err := q.run.ExecContext(ctx,
			`INSERT OR IGNORE INTO transaction_bookings (transaction_id, booking_id) VALUES (?, ?)`, txID, id)
		if err != nil {
			return fmt.Errorf("failed to link booking %d to transaction %d: %w", id, txID, err)
		}
	}
	return nil
}

// SetTransactionStatus moves a pending entry to completed or failed.
func (q *Queries) SetTransactionStatus(ctx context.Context, txID int64, status string) error {
	res, err := q.run.ExecContext(ctx,
		`UPDATE transactions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		status, nowUTC(), txID, models.TxPending)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

const transactionColumns = `id, wallet_id, user_id, kind, amount, description, COALESCE(reference, ''),
	status, monthly_booking_id, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	var t models.Transaction
	var monthly sql.NullInt64
	if err := row.Scan(&t.ID, &t.WalletID, &t.UserID, &t.Kind, &t.Amount, &t.Description, &t.Reference,
		&t.Status, &monthly, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.MonthlyBookingID = nullInt64Ptr(monthly)
	return &t, nil
}

func (q *Queries) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	t, err := scanTransaction(q.run.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if err != nil {
		return nil, notFound("transaction", id, err)
	}
	if err := q.loadBookingLinks(ctx, []*models.Transaction{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTransactions returns the newest entries first; limit <= 0 means all.
func (q *Queries) ListTransactions(ctx context.Context, walletID int64, limit int) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE wallet_id = ? ORDER BY id DESC`
	args := []any{walletID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := q.run.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := q.loadBookingLinks(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queries) loadBookingLinks(ctx context.Context, txs []*models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Transaction, len(txs))
	args := make([]any, 0, len(txs))
	for _, t := range txs {
		byID[t.ID] = t
		args = append(args, t.ID)
	}
	rows, err := q.run.QueryContext(ctx,
		`SELECT transaction_id, booking_id FROM transaction_bookings
		 WHERE transaction_id IN (`+placeholders(len(args))+`) ORDER BY booking_id`, args...)
	if err != nil {
		return fmt.Errorf("failed to load transaction links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var txID, bookingID int64
		if err := rows.Scan(&txID, &bookingID); err != nil {
			return fmt.Errorf("failed to scan transaction link: %w", err)
		}
		if t := byID[txID]; t != nil {
			t.BookingIDs = append(t.BookingIDs, bookingID)
		}
	}
	return rows.Err()
}

// ReferenceExists reports whether a ledger entry already carries reference.
func (q *Queries) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	if strings.TrimSpace(reference) == "" {
		return false, nil
	}
	var n int
	err := q.run.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE reference = ?`, reference).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction reference: %w", err)
	}
	return n > 0, nil
}

// TransactionsForBooking returns the ledger entries linked to a single-day booking.
func (q *Queries) TransactionsForBooking(ctx context.Context, bookingID int64) ([]*models.Transaction, error) {
	return q.listTransactionsWhere(ctx,
		`id IN (SELECT transaction_id FROM transaction_bookings WHERE booking_id = ?)`, bookingID)
}

// TransactionsForMonthly returns the ledger entries linked to a monthly booking.
func (q *Queries) TransactionsForMonthly(ctx context.Context, monthlyID int64) ([]*models.Transaction, error) {
	return q.listTransactionsWhere(ctx, `monthly_booking_id = ?`, monthlyID)
}

func (q *Queries) listTransactionsWhere(ctx context.Context, where string, args ...any) ([]*models.Transaction, error) {
	rows, err := q.run.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if err := q.loadBookingLinks(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}
