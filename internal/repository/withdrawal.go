package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/songbid/internal/models"
	"github.com/jmoiron/sqlx"
)

type WithdrawalRepository interface {
	Insert(ctx context.Context, withdrawal *models.WithdrawalRequest) error
	GetOne(ctx context.Context, id string) (*models.WithdrawalRequest, bool, error)
	GetForUpdate(ctx context.Context, id string) (*models.WithdrawalRequest, bool, error)
	// Transition persists status, reason and processing fields, but only when the
	// stored status still equals from. It returns ErrNoRowsAffected otherwise.
	Transition(ctx context.Context, withdrawal *models.WithdrawalRequest, from string) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.WithdrawalRequest, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.WithdrawalRequest, error)
}

type WithdrawalRepositoryImpl struct {
	db sqlx.ExtContext
}

func NewWithdrawalRepository(db sqlx.ExtContext) WithdrawalRepository {
	return &WithdrawalRepositoryImpl{db: db}
}

const withdrawalColumns = `id, user_id, amount, withdrawal_method_id, currency, status, reference, reason,
	created_at, processed_at, COALESCE(processed_by::text, '') AS processed_by, completed_at`

func (repo *WithdrawalRepositoryImpl) Insert(ctx context.Context, withdrawal *models.WithdrawalRequest) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		INSERT INTO withdrawal_requests (id, user_id, amount, withdrawal_method_id, currency, status, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	return sqlx.GetContext(ctx, repo.db, &withdrawal.CreatedAt, query,
		withdrawal.ID,
		withdrawal.UserID,
		withdrawal.Amount,
		withdrawal.WithdrawalMethodID,
		withdrawal.Currency,
		withdrawal.Status,
		withdrawal.Reference,
	)
}

func (repo *WithdrawalRepositoryImpl) GetOne(ctx context.Context, id string) (*models.WithdrawalRequest, bool, error) {
	return repo.get(ctx, id, false)
}

func (repo *WithdrawalRepositoryImpl) GetForUpdate(ctx context.Context, id string) (*models.WithdrawalRequest, bool, error) {
	return repo.get(ctx, id, true)
}

func (repo *WithdrawalRepositoryImpl) get(ctx context.Context, id string, lock bool) (*models.WithdrawalRequest, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var withdrawal models.WithdrawalRequest

	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	err := sqlx.GetContext(ctx, repo.db, &withdrawal, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &withdrawal, true, nil
}

func (repo *WithdrawalRepositoryImpl) Transition(ctx context.Context, withdrawal *models.WithdrawalRequest, from string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		UPDATE withdrawal_requests
		SET status = $1, reason = $2, processed_at = $3, processed_by = NULLIF($4, '')::uuid, completed_at = $5
		WHERE id = $6 AND status = $7`

	res, err := repo.db.ExecContext(ctx, query,
		withdrawal.Status,
		withdrawal.Reason,
		withdrawal.ProcessedAt,
		withdrawal.ProcessedBy,
		withdrawal.CompletedAt,
		withdrawal.ID,
		from,
	)
	if err != nil {
		return err
	}

	return expectOneRow(res)
}

func (repo *WithdrawalRepositoryImpl) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.WithdrawalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	withdrawals := []models.WithdrawalRequest{}

	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	err := sqlx.SelectContext(ctx, repo.db, &withdrawals, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	return withdrawals, nil
}

func (repo *WithdrawalRepositoryImpl) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.WithdrawalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	withdrawals := []models.WithdrawalRequest{}

	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3`

	err := sqlx.SelectContext(ctx, repo.db, &withdrawals, query, status, limit, offset)
	if err != nil {
		return nil, err
	}

	return withdrawals, nil
}
