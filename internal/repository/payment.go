package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cradoe/songbid/internal/models"
	"github.com/jmoiron/sqlx"
)

type PaymentRepository interface {
	Insert(ctx context.Context, payment *models.PendingPayment) error
	GetOne(ctx context.Context, id string) (*models.PendingPayment, bool, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*models.PendingPayment, bool, error)
	// GetByCorrelationIDForUpdate locks the payment row for the rest of the transaction
	GetByCorrelationIDForUpdate(ctx context.Context, correlationID string) (*models.PendingPayment, bool, error)
	// MarkPending moves an initiated payment to pending once the gateway issued a correlation id
	MarkPending(ctx context.Context, id, correlationID string) error
	// Resolve moves a non-terminal payment into a terminal status.
	// It returns ErrNoRowsAffected when the payment was already terminal.
	Resolve(ctx context.Context, id, status, failureReason string, completedAt sql.NullTime) error
	// MarkEmailSent returns false when the flag was already set
	MarkEmailSent(ctx context.Context, id string) (bool, error)
	ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]models.PendingPayment, error)
}

type PaymentRepositoryImpl struct {
	db sqlx.ExtContext
}

func NewPaymentRepository(db sqlx.ExtContext) PaymentRepository {
	return &PaymentRepositoryImpl{db: db}
}

// correlation_id stays NULL until the gateway accepted the push
const paymentColumns = `id, user_id, COALESCE(correlation_id, '') AS correlation_id, reference, phone, amount, currency,
	status, failure_reason, email_sent, created_at, updated_at, completed_at`

func (repo *PaymentRepositoryImpl) Insert(ctx context.Context, payment *models.PendingPayment) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		INSERT INTO pending_payments (id, user_id, correlation_id, reference, phone, amount, currency, status)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	return repo.db.QueryRowxContext(ctx, query,
		payment.ID,
		payment.UserID,
		payment.CorrelationID,
		payment.Reference,
		payment.Phone,
		payment.Amount,
		payment.Currency,
		payment.Status,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
}

func (repo *PaymentRepositoryImpl) GetOne(ctx context.Context, id string) (*models.PendingPayment, bool, error) {
	return repo.getBy(ctx, `id = $1`, id, false)
}

func (repo *PaymentRepositoryImpl) GetByCorrelationID(ctx context.Context, correlationID string) (*models.PendingPayment, bool, error) {
	return repo.getBy(ctx, `correlation_id = $1`, correlationID, false)
}

func (repo *PaymentRepositoryImpl) GetByCorrelationIDForUpdate(ctx context.Context, correlationID string) (*models.PendingPayment, bool, error) {
	return repo.getBy(ctx, `correlation_id = $1`, correlationID, true)
}

func (repo *PaymentRepositoryImpl) getBy(ctx context.Context, where string, arg any, lock bool) (*models.PendingPayment, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var payment models.PendingPayment

	query := `SELECT ` + paymentColumns + ` FROM pending_payments WHERE ` + where
	if lock {
		query += ` FOR UPDATE`
	}

	err := sqlx.GetContext(ctx, repo.db, &payment, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &payment, true, nil
}

func (repo *PaymentRepositoryImpl) MarkPending(ctx context.Context, id, correlationID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		UPDATE pending_payments SET correlation_id = $1, status = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`

	res, err := repo.db.ExecContext(ctx, query, correlationID, models.PaymentStatusPending, id, models.PaymentStatusInitiated)
	if err != nil {
		return err
	}

	return expectOneRow(res)
}

func (repo *PaymentRepositoryImpl) Resolve(ctx context.Context, id, status, failureReason string, completedAt sql.NullTime) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	// the status guard keeps terminal rows immutable even if a caller skipped the lock
	query := `
		UPDATE pending_payments SET status = $1, failure_reason = $2, completed_at = $3, updated_at = NOW()
		WHERE id = $4 AND status IN ($5, $6)`

	res, err := repo.db.ExecContext(ctx, query,
		status,
		failureReason,
		completedAt,
		id,
		models.PaymentStatusInitiated,
		models.PaymentStatusPending,
	)
	if err != nil {
		return err
	}

	return expectOneRow(res)
}

func (repo *PaymentRepositoryImpl) MarkEmailSent(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `UPDATE pending_payments SET email_sent = TRUE WHERE id = $1 AND email_sent = FALSE`

	res, err := repo.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (repo *PaymentRepositoryImpl) ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]models.PendingPayment, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	payments := []models.PendingPayment{}

	query := `SELECT ` + paymentColumns + ` FROM pending_payments
		WHERE status IN ($1, $2) AND created_at < $3
		ORDER BY created_at
		LIMIT $4`

	err := sqlx.SelectContext(ctx, repo.db, &payments, query,
		models.PaymentStatusInitiated,
		models.PaymentStatusPending,
		createdBefore,
		limit,
	)
	if err != nil {
		return nil, err
	}

	return payments, nil
}
