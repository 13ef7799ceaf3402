package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is keyed by the owning user. Reserved is the part of Balance held by
// pending withdrawal requests; it never exceeds Balance.
type Wallet struct {
	UserID          string          `db:"user_id"`
	Balance         decimal.Decimal `db:"balance"`
	Reserved        decimal.Decimal `db:"reserved"`
	PendingEarnings decimal.Decimal `db:"pending_earnings"`
	Currency        string          `db:"currency"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// Available is the spendable part of the balance.
func (w *Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.Reserved)
}

const (
	LedgerEntryTypeTopUp      = "topup"
	LedgerEntryTypeWithdrawal = "withdrawal"
	LedgerEntryTypeBid        = "bid"
	LedgerEntryTypeEarning    = "earning"
	LedgerEntryTypeRefund     = "refund"
)

const (
	LedgerEntryStatusCompleted = "completed"
	LedgerEntryStatusFailed    = "failed"
)

// LedgerEntry rows are append-only. Amount is signed: credits are positive,
// debits negative.
type LedgerEntry struct {
	ID             string          `db:"id"`
	WalletUserID   string          `db:"wallet_user_id"`
	Type           string          `db:"type"`
	Amount         decimal.Decimal `db:"amount"`
	BalanceAfter   decimal.Decimal `db:"balance_after"`
	RelatedID      string          `db:"related_id"`
	IdempotencyKey string          `db:"idempotency_key"`
	Status         string          `db:"status"`
	Description    string          `db:"description"`
	CreatedAt      time.Time       `db:"created_at"`
}
