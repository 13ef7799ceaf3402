// Package payment runs mobile-money top-ups: it pushes a prompt through the
// gateway, tracks the pending payment and credits the wallet exactly once when
// the gateway confirms.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cradoe/songbid/internal/gateway"
	"github.com/cradoe/songbid/internal/ledger"
	"github.com/cradoe/songbid/internal/models"
	"github.com/cradoe/songbid/internal/notify"
	"github.com/cradoe/songbid/internal/policy"
	"github.com/cradoe/songbid/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxTopUpAmount is the largest single mobile-money push the gateway accepts.
var MaxTopUpAmount = decimal.NewFromInt(250000)

type Engine struct {
	DB       repository.Database
	Ledger   *ledger.Service
	Gateway  gateway.Gateway
	Notifier notify.Notifier
	Logger   *slog.Logger
}

func NewEngine(db repository.Database, ledgerSvc *ledger.Service, gw gateway.Gateway, notifier notify.Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		DB:       db,
		Ledger:   ledgerSvc,
		Gateway:  gw,
		Notifier: notifier,
		Logger:   logger,
	}
}

// InitiateTopUp records the payment and pushes the prompt to phone. The row is
// written before the gateway call; one the push never confirmed stays
// initiated until the reconciler expires it.
func (e *Engine) InitiateTopUp(ctx context.Context, actor policy.Actor, userID string, amount decimal.Decimal, phone string) (*models.PendingPayment, error) {
	if err := policy.Authorize(actor, policy.ActionTopUp, userID); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}
	if amount.GreaterThan(MaxTopUpAmount) {
		return nil, fmt.Errorf("amount above %s top-up limit: %w", MaxTopUpAmount, ledger.ErrInvalidAmount)
	}

	id := uuid.New()
	payment := &models.PendingPayment{
		ID:        id.String(),
		UserID:    userID,
		Reference: "TOPUP" + strings.ToUpper(id.String()[:8]),
		Phone:     phone,
		Amount:    amount,
		Currency:  repository.DefaultCurrency,
		Status:    models.PaymentStatusInitiated,
	}

	if err := e.DB.Payment().Insert(ctx, payment); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	res, err := e.Gateway.Push(ctx, gateway.PushRequest{Phone: phone, Amount: amount, Reference: payment.Reference})
	if err != nil {
		e.Logger.Error("stk push failed", "payment_id", payment.ID, "user_id", userID, "error", err)

		// the caller may already be gone
		rerr := e.DB.Payment().Resolve(context.WithoutCancel(ctx), payment.ID, models.PaymentStatusFailed, err.Error(), sql.NullTime{})
		if rerr != nil && !errors.Is(rerr, repository.ErrNoRowsAffected) {
			e.Logger.Error("mark payment failed", "payment_id", payment.ID, "error", rerr)
		}
		return nil, err
	}

	payment.CorrelationID = res.CorrelationID
	payment.Status = models.PaymentStatusPending

	// the push is out, so the handset prompt exists whether or not the
	// caller is still waiting. The correlation id is returned either way.
	if err := e.DB.Payment().MarkPending(context.WithoutCancel(ctx), payment.ID, res.CorrelationID); err != nil {
		e.Logger.Error("mark payment pending", "payment_id", payment.ID, "correlation_id", res.CorrelationID, "user_id", userID, "error", err)
		return payment, nil
	}

	e.Logger.Info("top up initiated", "payment_id", payment.ID, "correlation_id", res.CorrelationID, "user_id", userID)

	return payment, nil
}

// PollStatus returns the payment after, if needed, asking the gateway about it.
// Terminal payments are answered locally. The gateway is queried outside the
// transaction; the terminal check is repeated under the row lock.
func (e *Engine) PollStatus(ctx context.Context, correlationID string) (*models.PendingPayment, error) {
	payment, found, err := e.DB.Payment().GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ledger.ErrNotFound
	}
	if payment.IsTerminal() {
		return payment, nil
	}

	res, err := e.Gateway.Query(ctx, correlationID)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case gateway.StatusSuccess:
		return e.complete(ctx, correlationID)
	case gateway.StatusFailed:
		return e.fail(ctx, correlationID, res.Reason)
	default:
		return payment, nil
	}
}

// CheckStatus is PollStatus for a caller who must own the payment.
func (e *Engine) CheckStatus(ctx context.Context, actor policy.Actor, correlationID string) (*models.PendingPayment, error) {
	payment, found, err := e.DB.Payment().GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ledger.ErrNotFound
	}
	if err := policy.Authorize(actor, policy.ActionTopUp, payment.UserID); err != nil {
		return nil, err
	}

	return e.PollStatus(ctx, correlationID)
}

func (e *Engine) complete(ctx context.Context, correlationID string) (*models.PendingPayment, error) {
	var (
		payment    *models.PendingPayment
		transition bool
	)

	err := e.DB.WithTx(ctx, func(tx repository.Database) error {
		var found bool
		var err error

		payment, found, err = tx.Payment().GetByCorrelationIDForUpdate(ctx, correlationID)
		if err != nil {
			return err
		}
		if !found {
			return ledger.ErrNotFound
		}
		if payment.IsTerminal() {
			return nil
		}

		_, applied, err := e.Ledger.CreditTx(ctx, tx, ledger.Movement{
			UserID:         payment.UserID,
			Amount:         payment.Amount,
			Type:           models.LedgerEntryTypeTopUp,
			RelatedID:      correlationID,
			IdempotencyKey: topUpKey(correlationID),
			Description:    "M-Pesa top up " + payment.Reference,
		})
		if err != nil {
			return err
		}
		if !applied {
			e.Logger.Warn("top up already credited, closing payment", "correlation_id", correlationID)
		}

		now := time.Now().UTC()
		if err := tx.Payment().Resolve(ctx, payment.ID, models.PaymentStatusCompleted, "", sql.NullTime{Time: now, Valid: true}); err != nil {
			return err
		}

		payment.Status = models.PaymentStatusCompleted
		payment.CompletedAt = sql.NullTime{Time: now, Valid: true}
		transition = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transition {
		e.Logger.Info("top up completed", "correlation_id", correlationID, "user_id", payment.UserID, "amount", payment.Amount.String())
		e.notify(ctx, payment, notify.EventPaymentCompleted)
	}

	return payment, nil
}

func (e *Engine) fail(ctx context.Context, correlationID, reason string) (*models.PendingPayment, error) {
	var (
		payment    *models.PendingPayment
		transition bool
	)

	err := e.DB.WithTx(ctx, func(tx repository.Database) error {
		var found bool
		var err error

		payment, found, err = tx.Payment().GetByCorrelationIDForUpdate(ctx, correlationID)
		if err != nil {
			return err
		}
		if !found {
			return ledger.ErrNotFound
		}
		if payment.IsTerminal() {
			return nil
		}

		_, err = e.Ledger.RecordFailed(ctx, tx, ledger.Movement{
			UserID:         payment.UserID,
			Amount:         payment.Amount,
			Type:           models.LedgerEntryTypeTopUp,
			RelatedID:      correlationID,
			IdempotencyKey: topUpKey(correlationID),
			Description:    reason,
		})
		if err != nil {
			return err
		}

		if err := tx.Payment().Resolve(ctx, payment.ID, models.PaymentStatusFailed, reason, sql.NullTime{}); err != nil {
			return err
		}

		payment.Status = models.PaymentStatusFailed
		payment.FailureReason = reason
		transition = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transition {
		e.Logger.Info("top up failed", "correlation_id", correlationID, "user_id", payment.UserID, "reason", reason)
		e.notify(ctx, payment, notify.EventPaymentFailed)
	}

	return payment, nil
}

// Cancel closes a payment the user gave up on. A payment that already reached
// a terminal state, including one a concurrent poll just completed, yields
// ErrAlreadyTerminal.
func (e *Engine) Cancel(ctx context.Context, actor policy.Actor, correlationID string) (*models.PendingPayment, error) {
	var payment *models.PendingPayment

	err := e.DB.WithTx(ctx, func(tx repository.Database) error {
		var found bool
		var err error

		payment, found, err = tx.Payment().GetByCorrelationIDForUpdate(ctx, correlationID)
		if err != nil {
			return err
		}
		if !found {
			return ledger.ErrNotFound
		}
		if err := policy.Authorize(actor, policy.ActionCancelTopUp, payment.UserID); err != nil {
			return err
		}
		if payment.IsTerminal() {
			return ledger.ErrAlreadyTerminal
		}

		err = tx.Payment().Resolve(ctx, payment.ID, models.PaymentStatusCancelled, "cancelled by user", sql.NullTime{})
		if errors.Is(err, repository.ErrNoRowsAffected) {
			return ledger.ErrAlreadyTerminal
		}
		if err != nil {
			return err
		}

		payment.Status = models.PaymentStatusCancelled
		payment.FailureReason = "cancelled by user"
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.Logger.Info("top up cancelled", "correlation_id", correlationID, "user_id", payment.UserID)
	e.notify(ctx, payment, notify.EventPaymentCancelled)

	return payment, nil
}

// Expire closes a payment the gateway never resolved. It is a no-op for a
// payment that is already terminal.
func (e *Engine) Expire(ctx context.Context, paymentID, reason string) (bool, error) {
	err := e.DB.Payment().Resolve(ctx, paymentID, models.PaymentStatusExpired, reason, sql.NullTime{})
	if errors.Is(err, repository.ErrNoRowsAffected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	payment, found, err := e.DB.Payment().GetOne(ctx, paymentID)
	if err != nil {
		return true, err
	}
	if found {
		e.Logger.Info("top up expired", "payment_id", paymentID, "user_id", payment.UserID)
		e.notify(ctx, payment, notify.EventPaymentExpired)
	}

	return true, nil
}

func (e *Engine) notify(ctx context.Context, payment *models.PendingPayment, eventType string) {
	e.Notifier.Notify(ctx, notify.Event{
		Type:     eventType,
		UserID:   payment.UserID,
		EntityID: payment.ID,
		Amount:   payment.Amount,
		Currency: payment.Currency,
		Reason:   payment.FailureReason,
	})
}

func topUpKey(correlationID string) string {
	return "topup:" + correlationID
}

// IsTransient reports whether err is a gateway failure worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ledger.ErrGatewayUnavailable) || errors.Is(err, ledger.ErrGatewayTimeout)
}
