// Package bulk applies one admin action to many withdrawals or bids. Every
// item runs in its own transaction, so one failure never undoes the others.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cradoe/songbid/internal/bid"
	"github.com/cradoe/songbid/internal/ledger"
	"github.com/cradoe/songbid/internal/policy"
	"github.com/cradoe/songbid/internal/withdrawal"
	"golang.org/x/sync/errgroup"
)

type Target string

const (
	TargetWithdrawals Target = "withdrawals"
	TargetBids        Target = "bids"
)

const (
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionComplete = "complete"
	ActionAccept   = "accept"
)

// MaxItems caps a single bulk call.
const MaxItems = 500

var ErrUnknownAction = errors.New("unknown bulk action")

type Item struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type Result struct {
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Items     []Item `json:"items"`
}

type Operator struct {
	Withdrawals *withdrawal.Service
	Bids        *bid.Service
	Concurrency int
	Logger      *slog.Logger
}

func NewOperator(withdrawals *withdrawal.Service, bids *bid.Service, concurrency int, logger *slog.Logger) *Operator {
	return &Operator{
		Withdrawals: withdrawals,
		Bids:        bids,
		Concurrency: concurrency,
		Logger:      logger,
	}
}

// Actions lists what Apply accepts for target.
func Actions(target Target) []string {
	switch target {
	case TargetWithdrawals:
		return []string{ActionApprove, ActionReject, ActionComplete}
	case TargetBids:
		return []string{ActionAccept, ActionReject}
	}
	return nil
}

// Apply runs action on every distinct id. Items come back in the order the ids
// were first given. reason is only used when rejecting withdrawals.
func (o *Operator) Apply(ctx context.Context, actor policy.Actor, target Target, ids []string, action, reason string) (*Result, error) {
	if err := policy.Authorize(actor, policy.ActionBulk, ""); err != nil {
		return nil, err
	}

	apply, err := o.resolve(actor, target, action, reason)
	if err != nil {
		return nil, err
	}

	ids = dedupe(ids)
	if len(ids) > MaxItems {
		return nil, fmt.Errorf("at most %d ids per call", MaxItems)
	}

	items := make([]Item, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency())

	var mu sync.Mutex
	result := &Result{}

	for i, id := range ids {
		g.Go(func() error {
			item := Item{ID: id, OK: true}

			if err := apply(gctx, id); err != nil {
				item.OK = false
				item.Error = itemError(err)
				if !ledger.IsDomainError(err) {
					o.Logger.Error("bulk item failed", "target", target, "action", action, "id", id, "error", err)
				}
			}

			items[i] = item

			mu.Lock()
			if item.OK {
				result.Succeeded++
			} else {
				result.Failed++
			}
			mu.Unlock()

			// per-item failures are reported, never propagated
			return nil
		})
	}
	_ = g.Wait()

	result.Items = items

	o.Logger.Info("bulk action applied", "target", target, "action", action,
		"admin_id", actor.ID, "succeeded", result.Succeeded, "failed", result.Failed)

	return result, nil
}

func (o *Operator) resolve(actor policy.Actor, target Target, action, reason string) (func(ctx context.Context, id string) error, error) {
	switch target {
	case TargetWithdrawals:
		switch action {
		case ActionApprove:
			return func(ctx context.Context, id string) error {
				_, err := o.Withdrawals.Approve(ctx, actor, id)
				return err
			}, nil
		case ActionReject:
			if reason == "" {
				return nil, fmt.Errorf("reject requires a reason: %w", ErrUnknownAction)
			}
			return func(ctx context.Context, id string) error {
				_, err := o.Withdrawals.Reject(ctx, actor, id, reason)
				return err
			}, nil
		case ActionComplete:
			return func(ctx context.Context, id string) error {
				_, err := o.Withdrawals.Complete(ctx, actor, id)
				return err
			}, nil
		}
	case TargetBids:
		switch action {
		case ActionAccept:
			return func(ctx context.Context, id string) error {
				_, err := o.Bids.Accept(ctx, actor, id)
				return err
			}, nil
		case ActionReject:
			return func(ctx context.Context, id string) error {
				_, err := o.Bids.Reject(ctx, actor, id)
				return err
			}, nil
		}
	}

	return nil, fmt.Errorf("%q on %s: %w", action, target, ErrUnknownAction)
}

func (o *Operator) concurrency() int {
	if o.Concurrency <= 0 {
		return 1
	}
	return o.Concurrency
}

// itemError hides infrastructure details from the per-item report.
func itemError(err error) string {
	if ledger.IsDomainError(err) {
		return err.Error()
	}
	return "internal error"
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
