package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/songbid/internal/models"
	"github.com/jmoiron/sqlx"
)

type BidRepository interface {
	Insert(ctx context.Context, bid *models.Bid) error
	GetOne(ctx context.Context, id string) (*models.Bid, bool, error)
	GetForUpdate(ctx context.Context, id string) (*models.Bid, bool, error)
	// Transition sets the status only while the bid is still pending
	Transition(ctx context.Context, id, status string, processedAt sql.NullTime) error
}

type BidRepositoryImpl struct {
	db sqlx.ExtContext
}

func NewBidRepository(db sqlx.ExtContext) BidRepository {
	return &BidRepositoryImpl{db: db}
}

func (repo *BidRepositoryImpl) Insert(ctx context.Context, bid *models.Bid) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		INSERT INTO bids (id, user_id, song_ref, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	return sqlx.GetContext(ctx, repo.db, &bid.CreatedAt, query,
		bid.ID,
		bid.UserID,
		bid.SongRef,
		bid.Amount,
		bid.Status,
	)
}

func (repo *BidRepositoryImpl) GetOne(ctx context.Context, id string) (*models.Bid, bool, error) {
	return repo.get(ctx, id, false)
}

func (repo *BidRepositoryImpl) GetForUpdate(ctx context.Context, id string) (*models.Bid, bool, error) {
	return repo.get(ctx, id, true)
}

func (repo *BidRepositoryImpl) get(ctx context.Context, id string, lock bool) (*models.Bid, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var bid models.Bid

	query := `SELECT id, user_id, song_ref, amount, status, created_at, processed_at FROM bids WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	err := sqlx.GetContext(ctx, repo.db, &bid, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &bid, true, nil
}

func (repo *BidRepositoryImpl) Transition(ctx context.Context, id, status string, processedAt sql.NullTime) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `UPDATE bids SET status = $1, processed_at = $2 WHERE id = $3 AND status = $4`

	res, err := repo.db.ExecContext(ctx, query, status, processedAt, id, models.BidStatusPending)
	if err != nil {
		return err
	}

	return expectOneRow(res)
}
