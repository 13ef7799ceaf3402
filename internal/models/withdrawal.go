package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

const (
	WithdrawalStatusPending   = "pending"
	WithdrawalStatusApproved  = "approved"
	WithdrawalStatusRejected  = "rejected"
	WithdrawalStatusCompleted = "completed"
)

type WithdrawalRequest struct {
	ID                 string          `db:"id"`
	UserID             string          `db:"user_id"`
	Amount             decimal.Decimal `db:"amount"`
	WithdrawalMethodID string          `db:"withdrawal_method_id"`
	Currency           string          `db:"currency"`
	Status             string          `db:"status"`
	Reference          string          `db:"reference"`
	Reason             string          `db:"reason"`
	CreatedAt          time.Time       `db:"created_at"`
	ProcessedAt        sql.NullTime    `db:"processed_at"`
	ProcessedBy        string          `db:"processed_by"`
	CompletedAt        sql.NullTime    `db:"completed_at"`
}

const (
	WithdrawalMethodMobileMoney = "mobile_money"
	WithdrawalMethodBank        = "bank"
)

// WithdrawalMethod is a payout destination registered by a user. A zero
// MinAmount or MaxAmount means that bound is not enforced.
type WithdrawalMethod struct {
	ID        string          `db:"id"`
	UserID    string          `db:"user_id"`
	Kind      string          `db:"kind"`
	Account   string          `db:"account"`
	MinAmount decimal.Decimal `db:"min_amount"`
	MaxAmount decimal.Decimal `db:"max_amount"`
	CreatedAt time.Time       `db:"created_at"`
}

// Allows reports whether amount is inside the method limits.
func (m *WithdrawalMethod) Allows(amount decimal.Decimal) bool {
	if m.MinAmount.IsPositive() && amount.LessThan(m.MinAmount) {
		return false
	}
	if m.MaxAmount.IsPositive() && amount.GreaterThan(m.MaxAmount) {
		return false
	}
	return true
}
