// Package ledger owns every change to a wallet balance. Each change locks the
// wallet row, updates the balance and appends one ledger entry inside the same
// transaction, so the sum of completed entries always equals the balance.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cradoe/songbid/internal/models"
	"github.com/cradoe/songbid/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Movement describes a single debit or credit. Amount is always positive; the
// direction comes from the call.
type Movement struct {
	UserID         string
	Amount         decimal.Decimal
	Type           string
	RelatedID      string
	IdempotencyKey string
	Description    string
}

type Service struct {
	DB     repository.Database
	Logger *slog.Logger
}

func NewService(db repository.Database, logger *slog.Logger) *Service {
	return &Service{DB: db, Logger: logger}
}

func (s *Service) Debit(ctx context.Context, m Movement) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry

	err := s.DB.WithTx(ctx, func(tx repository.Database) error {
		var err error
		entry, err = s.DebitTx(ctx, tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// DebitTx debits inside a caller-owned transaction. Only the available part of
// the balance (balance minus reserved) can be spent.
func (s *Service) DebitTx(ctx context.Context, tx repository.Database, m Movement) (*models.LedgerEntry, error) {
	if !m.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	wallet, found, err := tx.Wallet().GetForUpdate(ctx, m.UserID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	// a user without a wallet has nothing to spend
	if !found || wallet.Available().LessThan(m.Amount) {
		return nil, ErrInsufficientFunds
	}

	balance := wallet.Balance.Sub(m.Amount)
	if err := tx.Wallet().SetBalances(ctx, m.UserID, balance, wallet.Reserved); err != nil {
		return nil, fmt.Errorf("update wallet: %w", err)
	}

	return insertEntry(ctx, tx, m, m.Amount.Neg(), balance, models.LedgerEntryStatusCompleted)
}

// Credit returns applied=false, together with the entry that was recorded
// first, when the idempotency key was already used.
func (s *Service) Credit(ctx context.Context, m Movement) (*models.LedgerEntry, bool, error) {
	var (
		entry   *models.LedgerEntry
		applied bool
	)

	err := s.DB.WithTx(ctx, func(tx repository.Database) error {
		var err error
		entry, applied, err = s.CreditTx(ctx, tx, m)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	return entry, applied, nil
}

func (s *Service) CreditTx(ctx context.Context, tx repository.Database, m Movement) (*models.LedgerEntry, bool, error) {
	if !m.Amount.IsPositive() {
		return nil, false, ErrInvalidAmount
	}

	if err := tx.Wallet().Ensure(ctx, m.UserID, repository.DefaultCurrency); err != nil {
		return nil, false, fmt.Errorf("ensure wallet: %w", err)
	}

	wallet, found, err := tx.Wallet().GetForUpdate(ctx, m.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("lock wallet: %w", err)
	}
	if !found {
		return nil, false, ErrWalletNotFound
	}

	// the wallet lock serialises credits with the same key, so this read is
	// authoritative
	if m.IdempotencyKey != "" {
		existing, found, err := tx.Ledger().FindCompletedByKey(ctx, m.IdempotencyKey)
		if err != nil {
			return nil, false, fmt.Errorf("find entry: %w", err)
		}
		if found {
			s.Logger.Info("duplicate credit ignored", "user_id", m.UserID, "idempotency_key", m.IdempotencyKey)
			return existing, false, nil
		}
	}

	balance := wallet.Balance.Add(m.Amount)
	if err := tx.Wallet().SetBalances(ctx, m.UserID, balance, wallet.Reserved); err != nil {
		return nil, false, fmt.Errorf("update wallet: %w", err)
	}

	entry, err := insertEntry(ctx, tx, m, m.Amount, balance, models.LedgerEntryStatusCompleted)
	if err != nil {
		return nil, false, err
	}

	return entry, true, nil
}

// RecordFailed appends a failed entry for audit. It does not touch the balance.
func (s *Service) RecordFailed(ctx context.Context, tx repository.Database, m Movement) (*models.LedgerEntry, error) {
	wallet, found, err := tx.Wallet().GetOne(ctx, m.UserID)
	if err != nil {
		return nil, err
	}

	balance := decimal.Zero
	if found {
		balance = wallet.Balance
	} else if err := tx.Wallet().Ensure(ctx, m.UserID, repository.DefaultCurrency); err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}

	return insertEntry(ctx, tx, m, m.Amount, balance, models.LedgerEntryStatusFailed)
}

// Hold reserves amount of the available balance. Held funds stay in the
// balance but can no longer be spent.
func (s *Service) Hold(ctx context.Context, tx repository.Database, userID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	wallet, found, err := tx.Wallet().GetForUpdate(ctx, userID)
	if err != nil {
		return fmt.Errorf("lock wallet: %w", err)
	}
	if !found {
		return ErrInsufficientFunds
	}

	if wallet.Available().LessThan(amount) {
		return ErrInsufficientFunds
	}

	return tx.Wallet().SetBalances(ctx, userID, wallet.Balance, wallet.Reserved.Add(amount))
}

// Release returns held funds to the available balance.
func (s *Service) Release(ctx context.Context, tx repository.Database, userID string, amount decimal.Decimal) error {
	wallet, found, err := tx.Wallet().GetForUpdate(ctx, userID)
	if err != nil {
		return fmt.Errorf("lock wallet: %w", err)
	}
	if !found {
		return ErrWalletNotFound
	}

	reserved := wallet.Reserved.Sub(amount)
	if reserved.IsNegative() {
		return fmt.Errorf("release %s exceeds reserved %s", amount, wallet.Reserved)
	}

	return tx.Wallet().SetBalances(ctx, userID, wallet.Balance, reserved)
}

// Capture turns a hold into a debit: both balance and reserved shrink by the
// movement amount and a completed entry is appended.
func (s *Service) Capture(ctx context.Context, tx repository.Database, m Movement) (*models.LedgerEntry, error) {
	if !m.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	wallet, found, err := tx.Wallet().GetForUpdate(ctx, m.UserID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	if !found {
		return nil, ErrWalletNotFound
	}

	if wallet.Reserved.LessThan(m.Amount) {
		return nil, fmt.Errorf("capture %s exceeds reserved %s", m.Amount, wallet.Reserved)
	}

	balance := wallet.Balance.Sub(m.Amount)
	if err := tx.Wallet().SetBalances(ctx, m.UserID, balance, wallet.Reserved.Sub(m.Amount)); err != nil {
		return nil, fmt.Errorf("update wallet: %w", err)
	}

	return insertEntry(ctx, tx, m, m.Amount.Neg(), balance, models.LedgerEntryStatusCompleted)
}

// Balance reads the wallet. A user without a wallet has a zero balance.
func (s *Service) Balance(ctx context.Context, userID string) (*models.Wallet, error) {
	wallet, found, err := s.DB.Wallet().GetOne(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.Wallet{UserID: userID, Currency: repository.DefaultCurrency}, nil
	}

	return wallet, nil
}

func (s *Service) Entries(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	return s.DB.Ledger().ListByWallet(ctx, userID, limit, offset)
}

type Reconciliation struct {
	UserID      string          `json:"user_id"`
	Balance     decimal.Decimal `json:"balance"`
	LedgerTotal decimal.Decimal `json:"ledger_total"`
	Consistent  bool            `json:"consistent"`
}

// Reconcile compares the stored balance with the sum of completed entries.
func (s *Service) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	var result Reconciliation

	// one transaction so both reads see the same snapshot of this wallet
	err := s.DB.WithTx(ctx, func(tx repository.Database) error {
		wallet, found, err := tx.Wallet().GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if !found {
			return ErrWalletNotFound
		}

		total, err := tx.Ledger().SumCompleted(ctx, userID)
		if err != nil {
			return err
		}

		result = Reconciliation{
			UserID:      userID,
			Balance:     wallet.Balance,
			LedgerTotal: total,
			Consistent:  wallet.Balance.Equal(total),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Consistent {
		s.Logger.Error("wallet out of balance with ledger", "user_id", userID,
			"balance", result.Balance.String(), "ledger_total", result.LedgerTotal.String())
	}

	return &result, nil
}

func insertEntry(ctx context.Context, tx repository.Database, m Movement, amount, balanceAfter decimal.Decimal, status string) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{
		ID:             uuid.NewString(),
		WalletUserID:   m.UserID,
		Type:           m.Type,
		Amount:         amount,
		BalanceAfter:   balanceAfter,
		RelatedID:      m.RelatedID,
		IdempotencyKey: m.IdempotencyKey,
		Status:         status,
		Description:    m.Description,
	}
	if entry.IdempotencyKey == "" {
		entry.IdempotencyKey = m.Type + ":" + entry.ID
	}

	if err := tx.Ledger().Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	return entry, nil
}

// IsDomainError reports whether err is one of the sentinel errors callers are
// expected to handle, as opposed to an infrastructure failure.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrInsufficientFunds, ErrInvalidAmount, ErrMethodNotFound, ErrUnauthorized,
		ErrAlreadyTerminal, ErrGatewayUnavailable, ErrGatewayTimeout,
		ErrDuplicateProcessing, ErrWalletNotFound, ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
