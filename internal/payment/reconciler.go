package payment

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cradoe/songbid/internal/config"
	"github.com/cradoe/songbid/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	reconcileLockKey = "lock:payments:reconcile"
	sweepConcurrency = 4
)

const (
	DefaultReconcileEvery = time.Minute
	DefaultExpireAfter    = 30 * time.Minute
	DefaultReconcileBatch = 100
)

// Locker is a cross-instance mutex; cache.Cache implements it with Redis.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// Reconciler resolves payments whose client stopped polling. Only one
// instance sweeps at a time.
type Reconciler struct {
	Engine      *Engine
	Locker      Locker
	Logger      *slog.Logger
	Every       time.Duration
	ExpireAfter time.Duration
	Batch       int
	Concurrency int

	now func() time.Time
}

// NewReconciler reads its schedule from cfg.Payments; unset values fall back
// to the package defaults.
func NewReconciler(engine *Engine, locker Locker, cfg *config.Config, logger *slog.Logger) *Reconciler {
	r := &Reconciler{
		Engine:      engine,
		Locker:      locker,
		Logger:      logger,
		Every:       cfg.Payments.ReconcileEvery,
		ExpireAfter: cfg.Payments.ExpireAfter,
		Batch:       cfg.Payments.ReconcileBatch,
		Concurrency: sweepConcurrency,
		now:         time.Now,
	}

	if r.Every <= 0 {
		r.Every = DefaultReconcileEvery
	}
	if r.ExpireAfter <= 0 {
		r.ExpireAfter = DefaultExpireAfter
	}
	if r.Batch <= 0 {
		r.Batch = DefaultReconcileBatch
	}

	return r
}

type SweepStats struct {
	Checked  int64
	Resolved int64
	Expired  int64
	Failed   int64
	Skipped  bool
}

// Run sweeps every r.Every until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, err := r.Sweep(ctx)
			if err != nil {
				r.Logger.Error("payment reconciliation failed", "error", err)
				continue
			}
			if stats.Checked > 0 {
				r.Logger.Info("payment reconciliation",
					"checked", stats.Checked, "resolved", stats.Resolved, "expired", stats.Expired, "failed", stats.Failed)
			}
		}
	}
}

// Sweep polls one batch of open payments. Per-payment failures are counted,
// not returned.
func (r *Reconciler) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	token, ok, err := r.Locker.TryLock(ctx, reconcileLockKey, r.lockTTL())
	if err != nil {
		return stats, err
	}
	if !ok {
		stats.Skipped = true
		return stats, nil
	}
	defer func() {
		if err := r.Locker.Unlock(context.WithoutCancel(ctx), reconcileLockKey, token); err != nil {
			r.Logger.Error("release reconciliation lock", "error", err)
		}
	}()

	now := r.now()

	// give fresh payments one poll interval to get their correlation id
	open, err := r.Engine.DB.Payment().ListOpen(ctx, now.Add(-r.Every), r.Batch)
	if err != nil {
		return stats, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())

	for _, p := range open {
		g.Go(func() error {
			atomic.AddInt64(&stats.Checked, 1)
			r.reconcile(gctx, p, now, &stats)
			return nil
		})
	}

	// the workers never return errors
	_ = g.Wait()

	return stats, nil
}

func (r *Reconciler) reconcile(ctx context.Context, p models.PendingPayment, now time.Time, stats *SweepStats) {
	stale := now.Sub(p.CreatedAt) >= r.ExpireAfter

	// the push never got a correlation id, so there is nothing to ask the gateway
	if p.CorrelationID == "" {
		if stale {
			r.expire(ctx, p, "gateway never accepted the push", stats)
		}
		return
	}

	payment, err := r.Engine.PollStatus(ctx, p.CorrelationID)
	if err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		r.Logger.Warn("reconcile poll failed", "correlation_id", p.CorrelationID, "error", err)
		return
	}

	if payment.IsTerminal() {
		atomic.AddInt64(&stats.Resolved, 1)
		return
	}

	if stale {
		r.expire(ctx, p, "gateway still processing after expiry window", stats)
	}
}

func (r *Reconciler) expire(ctx context.Context, p models.PendingPayment, reason string, stats *SweepStats) {
	expired, err := r.Engine.Expire(ctx, p.ID, reason)
	if err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		r.Logger.Error("expire payment", "payment_id", p.ID, "error", err)
		return
	}
	if expired {
		atomic.AddInt64(&stats.Expired, 1)
	}
}

// the lock outlives a sweep that overruns one tick but never a crashed holder for long
func (r *Reconciler) lockTTL() time.Duration {
	ttl := 2 * r.Every
	if ttl < 30*time.Second {
		ttl = 30 * time.Second
	}
	return ttl
}

func (r *Reconciler) concurrency() int {
	if r.Concurrency <= 0 {
		return 1
	}
	return r.Concurrency
}
