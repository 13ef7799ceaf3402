package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cradoe/songbid/internal/config"
	"github.com/cradoe/songbid/internal/gateway"
	"github.com/cradoe/songbid/internal/mocks"
	"github.com/cradoe/songbid/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type memLocker struct {
	mu    sync.Mutex
	held  map[string]string
	fails error
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]string{}}
}

func (l *memLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fails != nil {
		return "", false, l.fails
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.held[key] = "token"
	return "token", true, nil
}

func (l *memLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func newTestReconciler(f *engineFixture, locker Locker, now time.Time) *Reconciler {
	r := NewReconciler(f.engine, locker, mocks.NewConfig(), mocks.NewLogger())
	r.now = func() time.Time { return now }
	return r
}

func TestSweep_ResolvesAndExpires(t *testing.T) {
	f := newEngineFixture(t)
	f.initiate(t, 50, "DONE")
	f.initiate(t, 30, "SLOW")
	f.gateway.On("Query", mock.Anything, "DONE").Return(&gateway.QueryResult{Status: gateway.StatusSuccess}, nil)
	f.gateway.On("Query", mock.Anything, "SLOW").Return(&gateway.QueryResult{Status: gateway.StatusProcessing}, nil)

	// an initiated row whose push never came back
	f.store.SeedPayment(models.PendingPayment{
		ID:        "orphan",
		UserID:    "u1",
		Amount:    decimal.NewFromInt(10),
		Status:    models.PaymentStatusInitiated,
		CreatedAt: time.Now(),
	})

	r := newTestReconciler(f, newMemLocker(), time.Now().Add(2*time.Hour))

	stats, err := r.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.Checked)
	require.Equal(t, int64(1), stats.Resolved)
	require.Equal(t, int64(2), stats.Expired)

	require.True(t, f.balance(t).Equal(decimal.NewFromInt(50)))

	orphan, _ := f.store.Payment("orphan")
	require.Equal(t, models.PaymentStatusExpired, orphan.Status)
}

func TestSweep_YoungProcessingPaymentStaysOpen(t *testing.T) {
	f := newEngineFixture(t)
	p := f.initiate(t, 30, "SLOW")
	f.gateway.On("Query", mock.Anything, "SLOW").Return(&gateway.QueryResult{Status: gateway.StatusProcessing}, nil)

	r := newTestReconciler(f, newMemLocker(), time.Now().Add(time.Minute))

	stats, err := r.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), stats.Expired)

	stored, _ := f.store.Payment(p.ID)
	require.Equal(t, models.PaymentStatusPending, stored.Status)
}

func TestSweep_SkipsWhenLockHeld(t *testing.T) {
	f := newEngineFixture(t)
	f.initiate(t, 30, "X")

	locker := newMemLocker()
	locker.held[reconcileLockKey] = "someone-else"

	stats, err := newTestReconciler(f, locker, time.Now().Add(time.Hour)).Sweep(context.Background())
	require.NoError(t, err)
	require.True(t, stats.Skipped)
	f.gateway.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestSweep_LockErrorIsReturned(t *testing.T) {
	f := newEngineFixture(t)
	locker := newMemLocker()
	locker.fails = errors.New("redis down")

	_, err := newTestReconciler(f, locker, time.Now()).Sweep(context.Background())
	require.Error(t, err)
}

func TestSweep_GatewayErrorsAreCounted(t *testing.T) {
	f := newEngineFixture(t)
	f.initiate(t, 30, "X")
	f.gateway.On("Query", mock.Anything, "X").Return(nil, errors.New("boom"))

	locker := newMemLocker()
	stats, err := newTestReconciler(f, locker, time.Now().Add(time.Minute)).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Failed)

	// lock is released after the sweep
	require.Empty(t, locker.held)
}

func TestRun_StopsWithContext(t *testing.T) {
	f := newEngineFixture(t)
	r := newTestReconciler(f, newMemLocker(), time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestNewReconciler_Defaults(t *testing.T) {
	f := newEngineFixture(t)

	r := NewReconciler(f.engine, newMemLocker(), &config.Config{}, mocks.NewLogger())
	require.Equal(t, DefaultReconcileEvery, r.Every)
	require.Equal(t, DefaultExpireAfter, r.ExpireAfter)
	require.Equal(t, DefaultReconcileBatch, r.Batch)
}
