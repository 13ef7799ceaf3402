// Package withdrawal implements payout requests. Funds are held when the user
// asks, captured when an admin approves and released when an admin rejects.
package withdrawal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cradoe/songbid/internal/ledger"
	"github.com/cradoe/songbid/internal/models"
	"github.com/cradoe/songbid/internal/notify"
	"github.com/cradoe/songbid/internal/policy"
	"github.com/cradoe/songbid/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	DB       repository.Database
	Ledger   *ledger.Service
	Notifier notify.Notifier
	Logger   *slog.Logger
}

func NewService(db repository.Database, ledgerSvc *ledger.Service, notifier notify.Notifier, logger *slog.Logger) *Service {
	return &Service{
		DB:       db,
		Ledger:   ledgerSvc,
		Notifier: notifier,
		Logger:   logger,
	}
}

type Request struct {
	UserID   string
	Amount   decimal.Decimal
	MethodID string
	Currency string
}

// Request creates a pending withdrawal and holds its amount. The spendable
// balance is checked under the wallet lock, so two requests can never hold
// more than the wallet has.
func (s *Service) Request(ctx context.Context, actor policy.Actor, req Request) (*models.WithdrawalRequest, error) {
	if err := policy.Authorize(actor, policy.ActionRequestWithdrawal, req.UserID); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	currency := req.Currency
	if currency == "" {
		currency = repository.DefaultCurrency
	}

	id := uuid.New()
	withdrawal := &models.WithdrawalRequest{
		ID:                 id.String(),
		UserID:             req.UserID,
		Amount:             req.Amount,
		WithdrawalMethodID: req.MethodID,
		Currency:           currency,
		Status:             models.WithdrawalStatusPending,
		Reference:          "WD" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:10]),
	}

	err := s.DB.WithTx(ctx, func(tx repository.Database) error {
		method, found, err := tx.WithdrawalMethod().GetOne(ctx, req.MethodID)
		if err != nil {
			return err
		}
		// someone else's method is reported as missing
		if !found || method.UserID != req.UserID {
			return ledger.ErrMethodNotFound
		}
		if !method.Allows(req.Amount) {
			return fmt.Errorf("amount outside %s limits: %w", method.Kind, ledger.ErrInvalidAmount)
		}

		if err := s.Ledger.Hold(ctx, tx, req.UserID, req.Amount); err != nil {
			return err
		}

		return tx.Withdrawal().Insert(ctx, withdrawal)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("withdrawal requested", "withdrawal_id", withdrawal.ID, "user_id", req.UserID, "amount", req.Amount.String())

	return withdrawal, nil
}

// Approve moves a pending request to approved and debits the held funds. A
// second approve finds the request no longer pending and debits nothing.
func (s *Service) Approve(ctx context.Context, actor policy.Actor, withdrawalID string) (*models.WithdrawalRequest, error) {
	if err := policy.Authorize(actor, policy.ActionApproveWithdrawal, ""); err != nil {
		return nil, err
	}

	withdrawal, err := s.transition(ctx, withdrawalID, models.WithdrawalStatusPending, func(tx repository.Database, w *models.WithdrawalRequest) error {
		_, err := s.Ledger.Capture(ctx, tx, ledger.Movement{
			UserID:         w.UserID,
			Amount:         w.Amount,
			Type:           models.LedgerEntryTypeWithdrawal,
			RelatedID:      w.ID,
			IdempotencyKey: "withdrawal:" + w.ID,
			Description:    "Withdrawal " + w.Reference,
		})
		if err != nil {
			return err
		}

		w.Status = models.WithdrawalStatusApproved
		w.ProcessedAt = now()
		w.ProcessedBy = actor.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("withdrawal approved", "withdrawal_id", withdrawal.ID, "admin_id", actor.ID)
	s.notify(ctx, withdrawal, notify.EventWithdrawalApproved)

	return withdrawal, nil
}

// Reject moves a pending request to rejected and releases its hold.
func (s *Service) Reject(ctx context.Context, actor policy.Actor, withdrawalID, reason string) (*models.WithdrawalRequest, error) {
	if err := policy.Authorize(actor, policy.ActionRejectWithdrawal, ""); err != nil {
		return nil, err
	}

	withdrawal, err := s.transition(ctx, withdrawalID, models.WithdrawalStatusPending, func(tx repository.Database, w *models.WithdrawalRequest) error {
		if err := s.Ledger.Release(ctx, tx, w.UserID, w.Amount); err != nil {
			return err
		}

		w.Status = models.WithdrawalStatusRejected
		w.Reason = reason
		w.ProcessedAt = now()
		w.ProcessedBy = actor.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("withdrawal rejected", "withdrawal_id", withdrawal.ID, "admin_id", actor.ID, "reason", reason)
	s.notify(ctx, withdrawal, notify.EventWithdrawalRejected)

	return withdrawal, nil
}

// Complete records that an approved payout left the platform. No money moves.
func (s *Service) Complete(ctx context.Context, actor policy.Actor, withdrawalID string) (*models.WithdrawalRequest, error) {
	if err := policy.Authorize(actor, policy.ActionCompleteWithdrawal, ""); err != nil {
		return nil, err
	}

	withdrawal, err := s.transition(ctx, withdrawalID, models.WithdrawalStatusApproved, func(_ repository.Database, w *models.WithdrawalRequest) error {
		w.Status = models.WithdrawalStatusCompleted
		w.CompletedAt = now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("withdrawal completed", "withdrawal_id", withdrawal.ID, "admin_id", actor.ID)
	s.notify(ctx, withdrawal, notify.EventWithdrawalCompleted)

	return withdrawal, nil
}

// transition locks the request, checks it is still in from, lets apply mutate
// money and fields, and persists the new state in the same transaction.
func (s *Service) transition(ctx context.Context, withdrawalID, from string, apply func(tx repository.Database, w *models.WithdrawalRequest) error) (*models.WithdrawalRequest, error) {
	var withdrawal *models.WithdrawalRequest

	err := s.DB.WithTx(ctx, func(tx repository.Database) error {
		w, found, err := tx.Withdrawal().GetForUpdate(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if !found {
			return ledger.ErrNotFound
		}
		if w.Status != from {
			return fmt.Errorf("withdrawal is %s: %w", w.Status, ledger.ErrAlreadyTerminal)
		}

		if err := apply(tx, w); err != nil {
			return err
		}

		err = tx.Withdrawal().Transition(ctx, w, from)
		if errors.Is(err, repository.ErrNoRowsAffected) {
			return ledger.ErrAlreadyTerminal
		}
		if err != nil {
			return err
		}

		withdrawal = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	return withdrawal, nil
}

func (s *Service) Get(ctx context.Context, actor policy.Actor, withdrawalID string) (*models.WithdrawalRequest, error) {
	withdrawal, found, err := s.DB.Withdrawal().GetOne(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ledger.ErrNotFound
	}
	if err := policy.Authorize(actor, policy.ActionViewWithdrawal, withdrawal.UserID); err != nil {
		return nil, err
	}

	return withdrawal, nil
}

func (s *Service) ListByUser(ctx context.Context, actor policy.Actor, userID string, limit, offset int) ([]models.WithdrawalRequest, error) {
	if err := policy.Authorize(actor, policy.ActionViewWithdrawal, userID); err != nil {
		return nil, err
	}

	return s.DB.Withdrawal().ListByUser(ctx, userID, limit, offset)
}

func (s *Service) ListByStatus(ctx context.Context, actor policy.Actor, status string, limit, offset int) ([]models.WithdrawalRequest, error) {
	if err := policy.Authorize(actor, policy.ActionAudit, ""); err != nil {
		return nil, err
	}

	return s.DB.Withdrawal().ListByStatus(ctx, status, limit, offset)
}

func (s *Service) notify(ctx context.Context, w *models.WithdrawalRequest, eventType string) {
	s.Notifier.Notify(ctx, notify.Event{
		Type:     eventType,
		UserID:   w.UserID,
		EntityID: w.ID,
		Amount:   w.Amount,
		Currency: w.Currency,
		Reason:   w.Reason,
	})
}

func now() sql.NullTime {
	return sql.NullTime{Time: time.Now().UTC(), Valid: true}
}
