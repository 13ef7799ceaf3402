package bid

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cradoe/songbid/internal/ledger"
	"github.com/cradoe/songbid/internal/mocks"
	"github.com/cradoe/songbid/internal/models"
	"github.com/cradoe/songbid/internal/policy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	bidder = policy.Actor{ID: "u1", Role: models.UserRoleUser}
	admin  = policy.Actor{ID: "a1", Role: models.UserRoleAdmin}
)

func newTestService(t *testing.T, balance int64) (*Service, *mocks.Store) {
	t.Helper()

	store := mocks.NewStore()
	logger := mocks.NewLogger()
	store.SeedWallet("u1", decimal.NewFromInt(balance))

	return NewService(store.DB(), ledger.NewService(store.DB(), logger), logger), store
}

func balance(t *testing.T, store *mocks.Store) decimal.Decimal {
	t.Helper()

	w, ok := store.Wallet("u1")
	require.True(t, ok)
	return w.Balance
}

func TestCreate(t *testing.T) {
	svc, store := newTestService(t, 50)

	b, err := svc.Create(context.Background(), bidder, "u1", "song-1", decimal.NewFromInt(20))
	require.NoError(t, err)
	require.Equal(t, models.BidStatusPending, b.Status)

	require.True(t, balance(t, store).Equal(decimal.NewFromInt(30)))
	require.Len(t, store.Bids(), 1)
}

// Scenario C
func TestCreate_InsufficientFundsLeavesNoTrace(t *testing.T) {
	svc, store := newTestService(t, 15)
	before := len(store.Entries("u1"))

	_, err := svc.Create(context.Background(), bidder, "u1", "song-1", decimal.NewFromInt(20))
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	require.Empty(t, store.Bids())
	require.Len(t, store.Entries("u1"), before)
	require.True(t, balance(t, store).Equal(decimal.NewFromInt(15)))
}

func TestCreate_BidInsertFailureRollsBackDebit(t *testing.T) {
	svc, store := newTestService(t, 50)
	store.SetFault("bid.insert", errors.New("connection lost"))

	_, err := svc.Create(context.Background(), bidder, "u1", "song-1", decimal.NewFromInt(20))
	require.Error(t, err)

	require.Empty(t, store.Bids())
	require.True(t, balance(t, store).Equal(decimal.NewFromInt(50)))
	require.Len(t, store.Entries("u1"), 1)
}

func TestCreate_ConcurrentBidsNeverOverspend(t *testing.T) {
	svc, store := newTestService(t, 100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Create(context.Background(), bidder, "u1", "song-1", decimal.NewFromInt(30))
		}()
	}
	wg.Wait()

	require.Len(t, store.Bids(), 3)
	require.True(t, balance(t, store).Equal(decimal.NewFromInt(10)))
}

func TestCreate_ForAnotherUser(t *testing.T) {
	svc, _ := newTestService(t, 100)

	_, err := svc.Create(context.Background(), policy.Actor{ID: "u2"}, "u1", "song-1", decimal.NewFromInt(5))
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestReject_Refunds(t *testing.T) {
	svc, store := newTestService(t, 50)

	b, err := svc.Create(context.Background(), bidder, "u1", "song-1", decimal.NewFromInt(20))
	require.NoError(t, err)

	rejected, err := svc.Reject(context.Background(), admin, b.ID)
	require.NoError(t, err)
	require.Equal(t, models.BidStatusRejected, rejected.Status)
	require.True(t, balance(t, store).Equal(decimal.NewFromInt(50)))

	_, err = svc.Reject(context.Background(), admin, b.ID)
	require.ErrorIs(t, err, ledger.ErrAlreadyTerminal)
	require.True(t, balance(t, store).Equal(decimal.NewFromInt(50)))
}

func TestAccept(t *testing.T) {
	svc, store := newTestService(t, 50)

	b, err := svc.Create(context.Background(), bidder, "u1", "song-1", decimal.NewFromInt(20))
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), bidder, b.ID)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	accepted, err := svc.Accept(context.Background(), admin, b.ID)
	require.NoError(t, err)
	require.Equal(t, models.BidStatusAccepted, accepted.Status)

	_, err = svc.Reject(context.Background(), admin, b.ID)
	require.ErrorIs(t, err, ledger.ErrAlreadyTerminal)
	require.True(t, balance(t, store).Equal(decimal.NewFromInt(30)))
}

func TestSettle_UnknownBid(t *testing.T) {
	svc, _ := newTestService(t, 50)

	_, err := svc.Accept(context.Background(), admin, "missing")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}
