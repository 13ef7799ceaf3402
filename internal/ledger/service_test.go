package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cradoe/songbid/internal/mocks"
	"github.com/cradoe/songbid/internal/models"
	"github.com/cradoe/songbid/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *mocks.Store) {
	t.Helper()

	store := mocks.NewStore()
	return NewService(store.DB(), mocks.NewLogger()), store
}

func ledgerTotal(entries []models.LedgerEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		if e.Status == models.LedgerEntryStatusCompleted {
			sum = sum.Add(e.Amount)
		}
	}
	return sum
}

func TestDebit_Success(t *testing.T) {
	svc, store := newTestService(t)
	store.SeedWallet("u1", decimal.NewFromInt(100))

	entry, err := svc.Debit(context.Background(), Movement{
		UserID: "u1", Amount: decimal.NewFromInt(30), Type: models.LedgerEntryTypeBid, RelatedID: "b1",
	})
	require.NoError(t, err)
	require.True(t, entry.Amount.Equal(decimal.NewFromInt(-30)))
	require.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(70)))

	wallet, _ := store.Wallet("u1")
	require.True(t, wallet.Balance.Equal(decimal.NewFromInt(70)))
}

func TestDebit_InsufficientFunds(t *testing.T) {
	svc, store := newTestService(t)
	store.SeedWallet("u1", decimal.NewFromInt(10))

	_, err := svc.Debit(context.Background(), Movement{UserID: "u1", Amount: decimal.NewFromInt(11), Type: models.LedgerEntryTypeBid})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	wallet, _ := store.Wallet("u1")
	require.True(t, wallet.Balance.Equal(decimal.NewFromInt(10)))
	require.Len(t, store.Entries("u1"), 1)
}

func TestDebit_MissingWallet(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Debit(context.Background(), Movement{UserID: "nobody", Amount: decimal.NewFromInt(1), Type: models.LedgerEntryTypeBid})
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestDebit_InvalidAmount(t *testing.T) {
	svc, store := newTestService(t)
	store.SeedWallet("u1", decimal.NewFromInt(10))

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := svc.Debit(context.Background(), Movement{UserID: "u1", Amount: amount, Type: models.LedgerEntryTypeBid})
		require.ErrorIs(t, err, ErrInvalidAmount)
	}
}

func TestDebit_ReservedFundsAreNotSpendable(t *testing.T) {
	svc, store := newTestService(t)
	store.SeedWallet("u1", decimal.NewFromInt(100))

	err := store.DB().WithTx(context.Background(), func(tx repository.Database) error {
		return svc.Hold(context.Background(), tx, "u1", decimal.NewFromInt(80))
	})
	require.NoError(t, err)

	_, err = svc.Debit(context.Background(), Movement{UserID: "u1", Amount: decimal.NewFromInt(30), Type: models.LedgerEntryTypeBid})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = svc.Debit(context.Background(), Movement{UserID: "u1", Amount: decimal.NewFromInt(20), Type: models.LedgerEntryTypeBid})
	require.NoError(t, err)
}

func TestDebit_RollsBackWhenEntryInsertFails(t *testing.T) {
	svc, store := newTestService(t)
	store.SeedWallet("u1", decimal.NewFromInt(50))
	store.SetFault("ledger.insert", errors.New("disk full"))

	_, err := svc.Debit(context.Background(), Movement{UserID: "u1", Amount: decimal.NewFromInt(20), Type: models.LedgerEntryTypeBid})
	require.Error(t, err)

	wallet, _ := store.Wallet("u1")
	require.True(t, wallet.Balance.Equal(decimal.NewFromInt(50)))
}

func TestCredit_IsIdempotent(t *testing.T) {
	svc, store := newTestService(t)

	m := Movement{
		UserID:         "u1",
		Amount:         decimal.NewFromInt(50),
		Type:           models.LedgerEntryTypeTopUp,
		RelatedID:      "corr-1",
		IdempotencyKey: "topup:corr-1",
	}

	first, applied, err := svc.Credit(context.Background(), m)
	require.NoError(t, err)
	require.True(t, applied)

	second, applied, err := svc.Credit(context.Background(), m)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, first.ID, second.ID)

	wallet, found := store.Wallet("u1")
	require.True(t, found)
	require.True(t, wallet.Balance.Equal(decimal.NewFromInt(50)))
	require.Len(t, store.Entries("u1"), 1)
}

func TestCredit_ConcurrentSameKeyAppliesOnce(t *testing.T) {
	svc, store := newTestService(t)
	store.SeedWallet("u1", decimal.Zero)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Credit(context.Background(), Movement{
				UserID: "u1", Amount: decimal.NewFromInt(50), Type: models.LedgerEntryTypeTopUp, IdempotencyKey: "topup:x",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	wallet, _ := store.Wallet("u1")
	require.True(t, wallet.Balance.Equal(decimal.NewFromInt(50)))
}

func TestConcurrentDebitCredit_BalanceMatchesLedger(t *testing.T) {
	svc, store := newTestService(t)
	store.SeedWallet("u1", decimal.NewFromInt(100))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(context.Background(), Movement{UserID: "u1", Amount: decimal.NewFromInt(7), Type: models.LedgerEntryTypeBid})
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientFunds)
			}
		}()
		go func() {
			defer wg.Done()
			_, _, err := svc.Credit(context.Background(), Movement{UserID: "u1", Amount: decimal.NewFromInt(3), Type: models.LedgerEntryTypeEarning})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	wallet, _ := store.Wallet("u1")
	require.False(t, wallet.Balance.IsNegative())
	require.True(t, wallet.Balance.Equal(ledgerTotal(store.Entries("u1"))))

	rec, err := svc.Reconcile(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, rec.Consistent)
}

func TestHoldReleaseCapture(t *testing.T) {
	svc, store := newTestService(t)
	store.SeedWallet("u1", decimal.NewFromInt(100))
	ctx := context.Background()

	err := store.DB().WithTx(ctx, func(tx repository.Database) error {
		return svc.Hold(ctx, tx, "u1", decimal.NewFromInt(60))
	})
	require.NoError(t, err)

	err = store.DB().WithTx(ctx, func(tx repository.Database) error {
		return svc.Hold(ctx, tx, "u1", decimal.NewFromInt(60))
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	err = store.DB().WithTx(ctx, func(tx repository.Database) error {
		return svc.Release(ctx, tx, "u1", decimal.NewFromInt(20))
	})
	require.NoError(t, err)

	err = store.DB().WithTx(ctx, func(tx repository.Database) error {
		_, err := svc.Capture(ctx, tx, Movement{UserID: "u1", Amount: decimal.NewFromInt(40), Type: models.LedgerEntryTypeWithdrawal})
		return err
	})
	require.NoError(t, err)

	wallet, _ := store.Wallet("u1")
	require.True(t, wallet.Balance.Equal(decimal.NewFromInt(60)))
	require.True(t, wallet.Reserved.IsZero())
	require.True(t, wallet.Balance.Equal(ledgerTotal(store.Entries("u1"))))
}

func TestBalance_MissingWalletIsZero(t *testing.T) {
	svc, _ := newTestService(t)

	wallet, err := svc.Balance(context.Background(), "ghost")
	require.NoError(t, err)
	require.True(t, wallet.Balance.IsZero())
	require.Equal(t, repository.DefaultCurrency, wallet.Currency)
}

func TestRecordFailed_DoesNotMoveBalance(t *testing.T) {
	svc, store := newTestService(t)
	store.SeedWallet("u1", decimal.NewFromInt(10))
	ctx := context.Background()

	err := store.DB().WithTx(ctx, func(tx repository.Database) error {
		_, err := svc.RecordFailed(ctx, tx, Movement{UserID: "u1", Amount: decimal.NewFromInt(5), Type: models.LedgerEntryTypeTopUp, IdempotencyKey: "topup:c"})
		return err
	})
	require.NoError(t, err)

	wallet, _ := store.Wallet("u1")
	require.True(t, wallet.Balance.Equal(decimal.NewFromInt(10)))
	require.Len(t, store.Entries("u1"), 2)
}
