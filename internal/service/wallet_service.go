package service

import (
	"context"
	"time"

	"seatbook/internal/domain"
	"seatbook/internal/events"
	"seatbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultTransactionLimit = 50

type WalletService struct {
	store    domain.Store
	eventBus domain.EventPublisher
	policy   Policy
	logger   *zerolog.Logger
}

func NewWalletService(store domain.Store, eventBus domain.EventPublisher, policy Policy, logger *zerolog.Logger) *WalletService {
	return &WalletService{store: store, eventBus: eventBus, policy: policy, logger: logger}
}

// Balance returns the caller's wallet, creating an empty one on first use.
func (s *WalletService) Balance(ctx context.Context, p models.Principal) (*models.Wallet, error) {
	return s.store.GetOrCreateWallet(ctx, p.UserID, s.policy.Currency)
}

// Transactions lists the caller's ledger, newest first.
func (s *WalletService) Transactions(ctx context.Context, p models.Principal, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultTransactionLimit
	}
	w, err := s.store.GetOrCreateWallet(ctx, p.UserID, s.policy.Currency)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, w.ID, limit)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	return txs, nil
}

// TopUp credits a confirmed external payment. The payment reference is
// unique across the ledger, so a replayed confirmation is refused.
func (s *WalletService) TopUp(ctx context.Context, userID int64, amount decimal.Decimal, reference string) (*models.Transaction, error) {
	if userID <= 0 {
		return nil, domain.InvalidInput("user_id is required")
	}
	if reference == "" {
		return nil, domain.InvalidInput("payment reference is required")
	}
	if !amount.IsPositive() {
		return nil, domain.InvalidInput("amount must be positive")
	}

	var w *models.Wallet
	var entry *models.Transaction
	err := s.store.WithTx(ctx, func(q domain.Queries) error {
		exists, err := q.ReferenceExists(ctx, reference)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrDuplicateReference
		}
		w, entry, err = credit(ctx, q, userID, s.policy.Currency, amount, models.KindCredit, models.TopUpDescription, reference, models.Linkage{})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", userID).Str("amount", amount.String()).Str("reference", reference).Msg("wallet topped up")
	s.publishWallet(events.EventWalletCredited, w, entry)
	return entry, nil
}

// Withdraw pays out part of a staff member's wallet balance. Bookings are
// not credited to the library owner here; payouts draw on whatever the
// settlement side has topped up.
func (s *WalletService) Withdraw(ctx context.Context, p models.Principal, amount decimal.Decimal) (*models.Transaction, error) {
	if !p.IsLibrarian() && !p.IsAdmin() {
		return nil, domain.Forbidden("only librarians and admins can withdraw")
	}

	var w *models.Wallet
	var entry *models.Transaction
	err := s.store.WithTx(ctx, func(q domain.Queries) error {
		var err error
		w, entry, err = debit(ctx, q, p.UserID, s.policy.Currency, amount, models.WithdrawDescription)
		if err != nil {
			return err
		}
		return settle(ctx, q, entry, models.Linkage{})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", p.UserID).Str("amount", amount.String()).Msg("wallet withdrawn")
	s.publishWallet(events.EventWalletWithdrawn, w, entry)
	return entry, nil
}

// ReconcileReport compares a wallet balance with its ledger.
type ReconcileReport struct {
	UserID    int64           `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	LedgerSum decimal.Decimal `json:"ledger_sum"`
	Entries   int             `json:"entries"`
	OK        bool            `json:"ok"`
	CheckedAt time.Time       `json:"checked_at"`
}

// Reconcile checks that the balance equals the signed sum of completed
// ledger entries.
func (s *WalletService) Reconcile(ctx context.Context, userID int64) (*ReconcileReport, error) {
	var rep *ReconcileReport
	err := s.store.WithTx(ctx, func(q domain.Queries) error {
		w, err := q.GetOrCreateWallet(ctx, userID, s.policy.Currency)
		if err != nil {
			return err
		}
		entries, err := q.ListTransactions(ctx, w.ID, 0)
		if err != nil {
			return err
		}
		sum := models.LedgerSum(entries)
		rep = &ReconcileReport{
			UserID:    userID,
			Balance:   w.Balance,
			LedgerSum: sum,
			Entries:   len(entries),
			OK:        w.Balance.Equal(sum),
			CheckedAt: time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !rep.OK {
		s.logger.Error().Int64("user_id", userID).Str("balance", rep.Balance.String()).
			Str("ledger_sum", rep.LedgerSum.String()).Msg("wallet ledger mismatch")
	}
	return rep, nil
}

func (s *WalletService) publishWallet(eventType string, w *models.Wallet, entry *models.Transaction) {
	publish(s.eventBus, s.logger, eventType, events.WalletEventPayload{
		UserID:        w.UserID,
		WalletID:      w.ID,
		TransactionID: entry.ID,
		Kind:          entry.Kind,
		Amount:        entry.Amount.String(),
		Balance:       w.Balance.String(),
		Reference:     entry.Reference,
	})
}
