package service

import (
	"context"
	"fmt"

	"seatbook/internal/domain"
	"seatbook/internal/models"

	"github.com/shopspring/decimal"
)

// The helpers below run inside a unit of work. Each pairs exactly one
// wallet mutation with one ledger entry; the balance is read and written in
// the same transaction so concurrent debits cannot both pass the check.

// debit takes amount from the user's wallet and records a pending debit
// entry. The caller links and completes it with settle.
func debit(ctx context.Context, q domain.Queries, userID int64, currency string, amount decimal.Decimal, description string) (*models.Wallet, *models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, nil, domain.InvalidInput("amount must be positive")
	}
	w, err := q.GetOrCreateWallet(ctx, userID, currency)
	if err != nil {
		return nil, nil, err
	}
	if w.Balance.LessThan(amount) {
		return nil, nil, &domain.InsufficientFundsError{Required: amount, Available: w.Balance}
	}

	entry := &models.Transaction{
		WalletID:    w.ID,
		UserID:      userID,
		Kind:        models.KindDebit,
		Amount:      amount,
		Description: description,
		Status:      models.TxPending,
	}
	if err := q.CreateTransaction(ctx, entry); err != nil {
		return nil, nil, err
	}
	w.Balance = w.Balance.Sub(amount)
	if err := q.UpdateWalletBalance(ctx, w.ID, w.Balance); err != nil {
		return nil, nil, err
	}
	return w, entry, nil
}

// credit adds amount to the wallet under a completed entry of kind credit
// or refund.
func credit(ctx context.Context, q domain.Queries, userID int64, currency string, amount decimal.Decimal,
	kind, description, reference string, link models.Linkage) (*models.Wallet, *models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, nil, domain.InvalidInput("amount must be positive")
	}
	if kind == models.KindRefund {
		if err := link.RequireBooking(); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
		}
	}
	w, err := q.GetOrCreateWallet(ctx, userID, currency)
	if err != nil {
		return nil, nil, err
	}

	entry := &models.Transaction{
		WalletID:    w.ID,
		UserID:      userID,
		Kind:        kind,
		Amount:      amount,
		Description: description,
		Reference:   reference,
		Status:      models.TxPending,
		Linkage:     link,
	}
	if err := q.CreateTransaction(ctx, entry); err != nil {
		return nil, nil, err
	}
	w.Balance = w.Balance.Add(amount)
	if err := q.UpdateWalletBalance(ctx, w.ID, w.Balance); err != nil {
		return nil, nil, err
	}
	if err := settle(ctx, q, entry, models.Linkage{}); err != nil {
		return nil, nil, err
	}
	return w, entry, nil
}

// settle attaches late linkage, if any, and completes a pending entry.
func settle(ctx context.Context, q domain.Queries, entry *models.Transaction, link models.Linkage) error {
	if !link.IsEmpty() {
		if err := q.LinkTransaction(ctx, entry.ID, link); err != nil {
			return err
		}
		entry.Linkage = link
	}
	if err := q.SetTransactionStatus(ctx, entry.ID, models.TxCompleted); err != nil {
		return err
	}
	entry.Status = models.TxCompleted
	return nil
}

// refund returns a booking's charge to its owner.
func refund(ctx context.Context, q domain.Queries, userID int64, currency string, amount decimal.Decimal, link models.Linkage) (*models.Transaction, error) {
	_, entry, err := credit(ctx, q, userID, currency, amount, models.KindRefund, "Booking refund", "", link)
	return entry, err
}
