package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/songbid/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const DefaultCurrency = "KES"

type WalletRepository interface {
	// Ensure creates an empty wallet for the user if none exists yet.
	Ensure(ctx context.Context, userID, currency string) error
	GetOne(ctx context.Context, userID string) (*models.Wallet, bool, error)
	// GetForUpdate reads the wallet and locks its row until the surrounding
	// transaction ends. Only meaningful inside Database.WithTx.
	GetForUpdate(ctx context.Context, userID string) (*models.Wallet, bool, error)
	SetBalances(ctx context.Context, userID string, balance, reserved decimal.Decimal) error
}

type WalletRepositoryImpl struct {
	db sqlx.ExtContext
}

func NewWalletRepository(db sqlx.ExtContext) WalletRepository {
	return &WalletRepositoryImpl{db: db}
}

func (repo *WalletRepositoryImpl) Ensure(ctx context.Context, userID, currency string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		INSERT INTO wallets (user_id, currency)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`

	_, err := repo.db.ExecContext(ctx, query, userID, currency)
	return err
}

func (repo *WalletRepositoryImpl) GetOne(ctx context.Context, userID string) (*models.Wallet, bool, error) {
	return repo.get(ctx, userID, false)
}

func (repo *WalletRepositoryImpl) GetForUpdate(ctx context.Context, userID string) (*models.Wallet, bool, error) {
	// pessimistic lock: concurrent debits/credits on the same wallet queue up here
	return repo.get(ctx, userID, true)
}

func (repo *WalletRepositoryImpl) get(ctx context.Context, userID string, lock bool) (*models.Wallet, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var wallet models.Wallet

	query := `
		SELECT user_id, balance, reserved, pending_earnings, currency, created_at, updated_at
		FROM wallets WHERE user_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	err := sqlx.GetContext(ctx, repo.db, &wallet, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &wallet, true, nil
}

func (repo *WalletRepositoryImpl) SetBalances(ctx context.Context, userID string, balance, reserved decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		UPDATE wallets SET balance = $1, reserved = $2, updated_at = NOW() WHERE user_id = $3`

	res, err := repo.db.ExecContext(ctx, query, balance, reserved, userID)
	if err != nil {
		return err
	}

	return expectOneRow(res)
}

// expectOneRow turns a no-op UPDATE into ErrNoRowsAffected
func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrNoRowsAffected
	}
	return nil
}

var ErrNoRowsAffected = errors.New("no rows affected")
