package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/songbid/internal/models"
	"github.com/jmoiron/sqlx"
)

type UserRepository interface {
	Insert(ctx context.Context, user *models.User) (string, error)
	GetOne(ctx context.Context, id string) (*models.User, bool, error)
	GetByEmail(ctx context.Context, email string) (*models.User, bool, error)
}

const (
	// UserAccountActiveStatus indicates that the user's account is active and fully functional.
	UserAccountActiveStatus = "active"

	// UserAccountLockedStatus indicates that the user's account has been locked by an administrator
	// or by the authentication service. A locked account cannot move money.
	UserAccountLockedStatus = "locked"
)

type UserRepositoryImpl struct {
	db sqlx.ExtContext
}

func NewUserRepository(db sqlx.ExtContext) UserRepository {
	return &UserRepositoryImpl{db: db}
}

func (repo *UserRepositoryImpl) Insert(ctx context.Context, user *models.User) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var id string
	query := `
		INSERT INTO users (first_name, last_name, phone_number, email, role, hashed_password)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id`

	err := sqlx.GetContext(ctx, repo.db, &id, query,
		user.FirstName,
		user.LastName,
		user.PhoneNumber,
		user.Email,
		user.Role,
		user.HashedPassword,
	)
	if err != nil {
		return "", err
	}

	return id, nil
}

func (repo *UserRepositoryImpl) GetOne(ctx context.Context, id string) (*models.User, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var user models.User

	query := `SELECT id, first_name, last_name, phone_number, email, role, status, hashed_password, created_at
		FROM users WHERE id = $1`

	err := sqlx.GetContext(ctx, repo.db, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return &user, true, nil
}

func (repo *UserRepositoryImpl) GetByEmail(ctx context.Context, email string) (*models.User, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var user models.User

	query := `SELECT id, first_name, last_name, phone_number, email, role, status, hashed_password, created_at
		FROM users WHERE email = $1`

	err := sqlx.GetContext(ctx, repo.db, &user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return &user, true, nil
}
