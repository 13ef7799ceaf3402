package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/songbid/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// LedgerRepository only ever appends. There is deliberately no update or delete.
type LedgerRepository interface {
	Insert(ctx context.Context, entry *models.LedgerEntry) error
	FindCompletedByKey(ctx context.Context, idempotencyKey string) (*models.LedgerEntry, bool, error)
	ListByWallet(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error)
	SumCompleted(ctx context.Context, userID string) (decimal.Decimal, error)
}

type LedgerRepositoryImpl struct {
	db sqlx.ExtContext
}

func NewLedgerRepository(db sqlx.ExtContext) LedgerRepository {
	return &LedgerRepositoryImpl{db: db}
}

const ledgerColumns = `id, wallet_user_id, type, amount, balance_after, related_id, idempotency_key, status, description, created_at`

func (repo *LedgerRepositoryImpl) Insert(ctx context.Context, entry *models.LedgerEntry) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		INSERT INTO ledger_entries (id, wallet_user_id, type, amount, balance_after, related_id, idempotency_key, status, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	return sqlx.GetContext(ctx, repo.db, &entry.CreatedAt, query,
		entry.ID,
		entry.WalletUserID,
		entry.Type,
		entry.Amount,
		entry.BalanceAfter,
		entry.RelatedID,
		entry.IdempotencyKey,
		entry.Status,
		entry.Description,
	)
}

func (repo *LedgerRepositoryImpl) FindCompletedByKey(ctx context.Context, idempotencyKey string) (*models.LedgerEntry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var entry models.LedgerEntry

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE idempotency_key = $1 AND status = $2`

	err := sqlx.GetContext(ctx, repo.db, &entry, query, idempotencyKey, models.LedgerEntryStatusCompleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &entry, true, nil
}

func (repo *LedgerRepositoryImpl) ListByWallet(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	entries := []models.LedgerEntry{}

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE wallet_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	err := sqlx.SelectContext(ctx, repo.db, &entries, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (repo *LedgerRepositoryImpl) SumCompleted(ctx context.Context, userID string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var sum decimal.Decimal

	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE wallet_user_id = $1 AND status = $2`

	err := sqlx.GetContext(ctx, repo.db, &sum, query, userID, models.LedgerEntryStatusCompleted)
	if err != nil {
		return decimal.Zero, err
	}

	return sum, nil
}
