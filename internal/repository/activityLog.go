// Every balance-affecting outcome is mirrored into the activity log so support
// staff can trace what happened to a wallet without reading the ledger itself.
// We use polymorphism to define entity and entity_id, which allows the table to
// be used for payments, withdrawals and bids alike.
package repository

import (
	"context"

	"github.com/cradoe/songbid/internal/models"
	"github.com/jmoiron/sqlx"
)

type ActivityRepository interface {
	Insert(ctx context.Context, log *models.ActivityLog) (*models.ActivityLog, error)
}

const (
	// ActivityLogPaymentEntity is used for top-up activities and the pending_payments table
	ActivityLogPaymentEntity = "payment"

	// ActivityLogWithdrawalEntity is used for payout activities and the withdrawal_requests table
	ActivityLogWithdrawalEntity = "withdrawal"

	// ActivityLogBidEntity is used for bid activities and the bids table
	ActivityLogBidEntity = "bid"
)

type ActivityRepositoryImpl struct {
	db sqlx.ExtContext
}

func NewActivityRepository(db sqlx.ExtContext) ActivityRepository {
	return &ActivityRepositoryImpl{db: db}
}

func (repo *ActivityRepositoryImpl) Insert(ctx context.Context, log *models.ActivityLog) (*models.ActivityLog, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var created models.ActivityLog

	query := `
		INSERT INTO activity_logs (user_id, entity, entity_id, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, entity, entity_id, description, created_at`

	err := sqlx.GetContext(ctx, repo.db, &created, query,
		log.UserID,
		log.Entity,
		log.EntityId,
		log.Description,
	)
	if err != nil {
		return nil, err
	}

	return &created, nil
}
