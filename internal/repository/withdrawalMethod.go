package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/songbid/internal/models"
	"github.com/jmoiron/sqlx"
)

type WithdrawalMethodRepository interface {
	Insert(ctx context.Context, method *models.WithdrawalMethod) (string, error)
	GetOne(ctx context.Context, id string) (*models.WithdrawalMethod, bool, error)
}

type WithdrawalMethodRepositoryImpl struct {
	db sqlx.ExtContext
}

func NewWithdrawalMethodRepository(db sqlx.ExtContext) WithdrawalMethodRepository {
	return &WithdrawalMethodRepositoryImpl{db: db}
}

func (repo *WithdrawalMethodRepositoryImpl) Insert(ctx context.Context, method *models.WithdrawalMethod) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var id string

	query := `
		INSERT INTO withdrawal_methods (user_id, kind, account, min_amount, max_amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := sqlx.GetContext(ctx, repo.db, &id, query,
		method.UserID,
		method.Kind,
		method.Account,
		method.MinAmount,
		method.MaxAmount,
	)
	if err != nil {
		return "", err
	}

	return id, nil
}

func (repo *WithdrawalMethodRepositoryImpl) GetOne(ctx context.Context, id string) (*models.WithdrawalMethod, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var method models.WithdrawalMethod

	query := `SELECT id, user_id, kind, account, min_amount, max_amount, created_at FROM withdrawal_methods WHERE id = $1`

	err := sqlx.GetContext(ctx, repo.db, &method, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &method, true, nil
}
