package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cradoe/songbid/assets"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/lib/pq"
)

const defaultTimeout = 3 * time.Second

// Database interface defines available repositories
type Database interface {
	User() UserRepository
	Activity() ActivityRepository
	Wallet() WalletRepository
	Ledger() LedgerRepository
	Payment() PaymentRepository
	Withdrawal() WithdrawalRepository
	WithdrawalMethod() WithdrawalMethodRepository
	Bid() BidRepository

	// WithTx runs fn against a Database bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	// Calling WithTx on an already transactional Database reuses it.
	WithTx(ctx context.Context, fn func(tx Database) error) error

	Close() error
}

// DatabaseImpl implements the Database interface.
// q is either the pool or the transaction the repositories are bound to.
type DatabaseImpl struct {
	db *sqlx.DB
	tx *sqlx.Tx
	q  sqlx.ExtContext

	userRepo             UserRepository
	activityRepo         ActivityRepository
	walletRepo           WalletRepository
	ledgerRepo           LedgerRepository
	paymentRepo          PaymentRepository
	withdrawalRepo       WithdrawalRepository
	withdrawalMethodRepo WithdrawalMethodRepository
	bidRepo              BidRepository

	mu sync.Mutex
}

// New initializes a database connection and runs migrations if enabled
func New(dsn string, automigrate bool) (Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", "postgres://"+dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	// Run migrations if enabled
	if automigrate {
		iofsDriver, err := iofs.New(assets.EmbeddedFiles, "migrations")
		if err != nil {
			return nil, err
		}

		migrator, err := migrate.NewWithSourceInstance("iofs", iofsDriver, "postgres://"+dsn)
		if err != nil {
			return nil, err
		}

		if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, err
		}
	}

	return &DatabaseImpl{db: db, q: db}, nil
}

func (d *DatabaseImpl) Close() error {
	if d.tx != nil {
		return nil
	}
	return d.db.Close()
}

func (d *DatabaseImpl) WithTx(ctx context.Context, fn func(tx Database) error) (err error) {
	if d.tx != nil {
		return fn(d)
	}

	tx, err := d.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		// always make sure it rolls back if fn failed or panicked
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	err = fn(&DatabaseImpl{db: d.db, tx: tx, q: tx})
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (d *DatabaseImpl) User() UserRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.userRepo == nil {
		d.userRepo = NewUserRepository(d.q)
	}
	return d.userRepo
}

func (d *DatabaseImpl) Activity() ActivityRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.activityRepo == nil {
		d.activityRepo = NewActivityRepository(d.q)
	}
	return d.activityRepo
}

func (d *DatabaseImpl) Wallet() WalletRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.walletRepo == nil {
		d.walletRepo = NewWalletRepository(d.q)
	}
	return d.walletRepo
}

func (d *DatabaseImpl) Ledger() LedgerRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ledgerRepo == nil {
		d.ledgerRepo = NewLedgerRepository(d.q)
	}
	return d.ledgerRepo
}

func (d *DatabaseImpl) Payment() PaymentRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.paymentRepo == nil {
		d.paymentRepo = NewPaymentRepository(d.q)
	}
	return d.paymentRepo
}

func (d *DatabaseImpl) Withdrawal() WithdrawalRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.withdrawalRepo == nil {
		d.withdrawalRepo = NewWithdrawalRepository(d.q)
	}
	return d.withdrawalRepo
}

func (d *DatabaseImpl) WithdrawalMethod() WithdrawalMethodRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.withdrawalMethodRepo == nil {
		d.withdrawalMethodRepo = NewWithdrawalMethodRepository(d.q)
	}
	return d.withdrawalMethodRepo
}

func (d *DatabaseImpl) Bid() BidRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bidRepo == nil {
		d.bidRepo = NewBidRepository(d.q)
	}
	return d.bidRepo
}
