// Package notify publishes terminal-transition events for asynchronous
// delivery. Publishing never blocks or fails the money movement that caused it.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Topic carries every wallet notification; consumers switch on Event.Type.
const Topic = "wallet.notifications"

const (
	EventPaymentCompleted    = "payment.completed"
	EventPaymentFailed       = "payment.failed"
	EventPaymentCancelled    = "payment.cancelled"
	EventPaymentExpired      = "payment.expired"
	EventWithdrawalApproved  = "withdrawal.approved"
	EventWithdrawalRejected  = "withdrawal.rejected"
	EventWithdrawalCompleted = "withdrawal.completed"
)

type Event struct {
	Type       string          `json:"type"`
	UserID     string          `json:"user_id"`
	EntityID   string          `json:"entity_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type Publisher interface {
	ProduceMessage(topic, key string, message []byte) error
}

type Dispatcher struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewDispatcher(publisher Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{publisher: publisher, logger: logger}
}

// Notify publishes event keyed by user so a user's events stay ordered.
func (d *Dispatcher) Notify(_ context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	message, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("encode notification", "type", event.Type, "error", err)
		return
	}

	if err := d.publisher.ProduceMessage(Topic, event.UserID, message); err != nil {
		d.logger.Error("publish notification", "type", event.Type, "entity_id", event.EntityID, "error", err)
	}
}
