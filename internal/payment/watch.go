package payment

import (
	"context"
	"time"

	"github.com/cradoe/songbid/internal/config"
	"github.com/cradoe/songbid/internal/models"
)

// Policy bounds a Watch. The zero value is replaced by DefaultPolicy.
type Policy struct {
	Interval           time.Duration
	MaxTransportErrors int
	DelayedAfter       time.Duration
}

var DefaultPolicy = Policy{
	Interval:           5 * time.Second,
	MaxTransportErrors: 5,
	DelayedAfter:       2 * time.Minute,
}

func PolicyFromConfig(cfg *config.Config) Policy {
	p := Policy{
		Interval:           cfg.Payments.PollInterval,
		MaxTransportErrors: cfg.Payments.MaxTransportErrors,
		DelayedAfter:       cfg.Payments.DelayedAfter,
	}
	return p.withDefaults()
}

func (p Policy) withDefaults() Policy {
	if p.Interval <= 0 {
		p.Interval = DefaultPolicy.Interval
	}
	if p.MaxTransportErrors <= 0 {
		p.MaxTransportErrors = DefaultPolicy.MaxTransportErrors
	}
	if p.DelayedAfter <= 0 {
		p.DelayedAfter = DefaultPolicy.DelayedAfter
	}
	return p
}

type Outcome string

const (
	// OutcomeResolved: the payment reached a terminal status
	OutcomeResolved Outcome = "resolved"
	// OutcomeTransientFailure: the gateway kept failing; the payment is untouched
	OutcomeTransientFailure Outcome = "transient_failure"
	// OutcomeDelayed: no terminal status in time; a later poll may still resolve it
	OutcomeDelayed Outcome = "delayed"
	// OutcomeStopped: the watch was cancelled
	OutcomeStopped Outcome = "stopped"
	// OutcomeError: a non-retriable error such as an unknown correlation id
	OutcomeError Outcome = "error"
)

type WatchResult struct {
	Outcome Outcome
	Payment *models.PendingPayment
	Err     error
	Polls   int
}

// Watch polls the payment immediately and then every p.Interval until it is
// terminal, the gateway fails p.MaxTransportErrors times in a row, p.DelayedAfter
// elapses or ctx is cancelled. Its counters live on the stack of this call, so
// any number of watches may run side by side.
func (e *Engine) Watch(ctx context.Context, correlationID string, p Policy) WatchResult {
	p = p.withDefaults()

	deadline := time.NewTimer(p.DelayedAfter)
	defer deadline.Stop()

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	var (
		result          WatchResult
		transportErrors int
	)

	for {
		payment, err := e.PollStatus(ctx, correlationID)
		result.Polls++

		switch {
		case err == nil:
			transportErrors = 0
			result.Payment = payment
			if payment.IsTerminal() {
				result.Outcome = OutcomeResolved
				return result
			}
		case ctx.Err() != nil:
			result.Outcome = OutcomeStopped
			result.Err = ctx.Err()
			return result
		case IsTransient(err):
			transportErrors++
			result.Err = err
			if transportErrors >= p.MaxTransportErrors {
				result.Outcome = OutcomeTransientFailure
				return result
			}
		default:
			result.Outcome = OutcomeError
			result.Err = err
			return result
		}

		select {
		case <-ctx.Done():
			result.Outcome = OutcomeStopped
			result.Err = ctx.Err()
			return result
		case <-deadline.C:
			result.Outcome = OutcomeDelayed
			return result
		case <-ticker.C:
		}
	}
}
