package seeders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cradoe/gopass"
	"github.com/cradoe/songbid/internal/models"
	"github.com/cradoe/songbid/internal/repository"
)

const defaultTimeout = 5 * time.Second

type Seeder struct {
	DB     repository.Database
	Logger *slog.Logger
}

// Account is a user the seeder bootstraps. Phone, when set, becomes the
// user's mobile money withdrawal method.
type Account struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Phone     string
	Role      string
}

func New(DB repository.Database, logger *slog.Logger) *Seeder {
	return &Seeder{
		DB:     DB,
		Logger: logger,
	}
}

// Run creates each account together with its wallet. Accounts are matched by
// email, so running it twice is harmless.
func (seeder *Seeder) Run(ctx context.Context, accounts ...Account) error {
	for _, account := range accounts {
		if err := seeder.seedAccount(ctx, account); err != nil {
			return fmt.Errorf("seed %s: %w", account.Email, err)
		}
	}
	return nil
}

func (seeder *Seeder) seedAccount(ctx context.Context, account Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if account.Email == "" {
		return errors.New("email is required")
	}

	_, errs := gopass.Validate(account.Password)
	if errs != nil {
		return fmt.Errorf("weak password: %v", errs)
	}

	_, found, err := seeder.DB.User().GetByEmail(ctx, account.Email)
	if err != nil {
		return err
	}
	if found {
		seeder.Logger.Info("account already seeded", "email", account.Email)
		return nil
	}

	hashedPassword, err := gopass.Hash(account.Password)
	if err != nil {
		return err
	}

	role := account.Role
	if role == "" {
		role = models.UserRoleUser
	}

	return seeder.DB.WithTx(ctx, func(tx repository.Database) error {
		userID, err := tx.User().Insert(ctx, &models.User{
			FirstName:      account.FirstName,
			LastName:       account.LastName,
			PhoneNumber:    account.Phone,
			Email:          account.Email,
			Role:           role,
			HashedPassword: hashedPassword,
		})
		if err != nil {
			return err
		}

		if err := tx.Wallet().Ensure(ctx, userID, repository.DefaultCurrency); err != nil {
			return err
		}

		if account.Phone != "" {
			_, err = tx.WithdrawalMethod().Insert(ctx, &models.WithdrawalMethod{
				UserID:  userID,
				Kind:    models.WithdrawalMethodMobileMoney,
				Account: account.Phone,
			})
			if err != nil {
				return err
			}
		}

		seeder.Logger.Info("account seeded", "email", account.Email, "role", role, "user_id", userID)
		return nil
	})
}
