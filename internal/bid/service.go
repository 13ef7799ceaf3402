package bid

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cradoe/songbid/internal/ledger"
	"github.com/cradoe/songbid/internal/models"
	"github.com/cradoe/songbid/internal/policy"
	"github.com/cradoe/songbid/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	DB     repository.Database
	Ledger *ledger.Service
	Logger *slog.Logger
}

func NewService(db repository.Database, ledgerSvc *ledger.Service, logger *slog.Logger) *Service {
	return &Service{DB: db, Ledger: ledgerSvc, Logger: logger}
}

// Create debits the bid amount and records the bid in one transaction. On
// insufficient funds neither the debit nor the bid exists.
func (s *Service) Create(ctx context.Context, actor policy.Actor, userID, songRef string, amount decimal.Decimal) (*models.Bid, error) {
	if err := policy.Authorize(actor, policy.ActionPlaceBid, userID); err != nil {
		return nil, err
	}

	bid := &models.Bid{
		ID:      uuid.NewString(),
		UserID:  userID,
		SongRef: songRef,
		Amount:  amount,
		Status:  models.BidStatusPending,
	}

	err := s.DB.WithTx(ctx, func(tx repository.Database) error {
		_, err := s.Ledger.DebitTx(ctx, tx, ledger.Movement{
			UserID:         userID,
			Amount:         amount,
			Type:           models.LedgerEntryTypeBid,
			RelatedID:      bid.ID,
			IdempotencyKey: "bid:" + bid.ID,
			Description:    "Bid on " + songRef,
		})
		if err != nil {
			return err
		}

		return tx.Bid().Insert(ctx, bid)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("bid placed", "bid_id", bid.ID, "user_id", userID, "song_ref", songRef, "amount", amount.String())

	return bid, nil
}

// Accept keeps the debited amount.
func (s *Service) Accept(ctx context.Context, actor policy.Actor, bidID string) (*models.Bid, error) {
	if err := policy.Authorize(actor, policy.ActionAcceptBid, ""); err != nil {
		return nil, err
	}

	return s.settle(ctx, bidID, models.BidStatusAccepted, nil)
}

// Reject refunds the bid amount to the bidder.
func (s *Service) Reject(ctx context.Context, actor policy.Actor, bidID string) (*models.Bid, error) {
	if err := policy.Authorize(actor, policy.ActionRejectBid, ""); err != nil {
		return nil, err
	}

	return s.settle(ctx, bidID, models.BidStatusRejected, func(tx repository.Database, b *models.Bid) error {
		_, _, err := s.Ledger.CreditTx(ctx, tx, ledger.Movement{
			UserID:         b.UserID,
			Amount:         b.Amount,
			Type:           models.LedgerEntryTypeRefund,
			RelatedID:      b.ID,
			IdempotencyKey: "refund:" + b.ID,
			Description:    "Refund for rejected bid on " + b.SongRef,
		})
		return err
	})
}

func (s *Service) settle(ctx context.Context, bidID, status string, apply func(tx repository.Database, b *models.Bid) error) (*models.Bid, error) {
	var bid *models.Bid

	err := s.DB.WithTx(ctx, func(tx repository.Database) error {
		b, found, err := tx.Bid().GetForUpdate(ctx, bidID)
		if err != nil {
			return err
		}
		if !found {
			return ledger.ErrNotFound
		}
		if b.Status != models.BidStatusPending {
			return fmt.Errorf("bid is %s: %w", b.Status, ledger.ErrAlreadyTerminal)
		}

		if apply != nil {
			if err := apply(tx, b); err != nil {
				return err
			}
		}

		processedAt := sql.NullTime{Time: time.Now().UTC(), Valid: true}
		err = tx.Bid().Transition(ctx, b.ID, status, processedAt)
		if errors.Is(err, repository.ErrNoRowsAffected) {
			return ledger.ErrAlreadyTerminal
		}
		if err != nil {
			return err
		}

		b.Status = status
		b.ProcessedAt = processedAt
		bid = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("bid settled", "bid_id", bid.ID, "status", status)

	return bid, nil
}
