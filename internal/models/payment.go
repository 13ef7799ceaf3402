package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusInitiated = "initiated"
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusExpired   = "expired"
)

type PendingPayment struct {
	ID            string          `db:"id"`
	UserID        string          `db:"user_id"`
	CorrelationID string          `db:"correlation_id"`
	Reference     string          `db:"reference"`
	Phone         string          `db:"phone"`
	Amount        decimal.Decimal `db:"amount"`
	Currency      string          `db:"currency"`
	Status        string          `db:"status"`
	FailureReason string          `db:"failure_reason"`
	EmailSent     bool            `db:"email_sent"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
	CompletedAt   sql.NullTime    `db:"completed_at"`
}

// IsPaymentTerminal reports whether no further transition may leave status.
func IsPaymentTerminal(status string) bool {
	switch status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired:
		return true
	}
	return false
}

func (p *PendingPayment) IsTerminal() bool {
	return IsPaymentTerminal(p.Status)
}
