// Package policy decides who may perform a mutating action. Every service
// calls Authorize before touching money so role checks live in one place.
package policy

import (
	"fmt"

	"github.com/cradoe/songbid/internal/ledger"
	"github.com/cradoe/songbid/internal/models"
)

type Action string

const (
	ActionTopUp              Action = "wallet.topup"
	ActionCancelTopUp        Action = "wallet.topup.cancel"
	ActionRequestWithdrawal  Action = "withdrawal.request"
	ActionViewWithdrawal     Action = "withdrawal.view"
	ActionApproveWithdrawal  Action = "withdrawal.approve"
	ActionRejectWithdrawal   Action = "withdrawal.reject"
	ActionCompleteWithdrawal Action = "withdrawal.complete"
	ActionPlaceBid           Action = "bid.create"
	ActionAcceptBid          Action = "bid.accept"
	ActionRejectBid          Action = "bid.reject"
	ActionBulk               Action = "admin.bulk"
	ActionAudit              Action = "admin.audit"
)

// Actor is whoever is calling. A zero Actor is anonymous.
type Actor struct {
	ID   string
	Role string
}

func ActorFromUser(user *models.User) Actor {
	if user == nil {
		return Actor{}
	}
	return Actor{ID: user.ID, Role: user.Role}
}

func (a Actor) IsAdmin() bool {
	return a.ID != "" && a.Role == models.UserRoleAdmin
}

var adminActions = map[Action]bool{
	ActionApproveWithdrawal:  true,
	ActionRejectWithdrawal:   true,
	ActionCompleteWithdrawal: true,
	ActionAcceptBid:          true,
	ActionRejectBid:          true,
	ActionBulk:               true,
	ActionAudit:              true,
}

// Authorize returns nil when actor may perform action on a resource owned by
// ownerID. Owner actions are not open to admins: moving a user's money is
// always the user's call.
func Authorize(actor Actor, action Action, ownerID string) error {
	if actor.ID == "" {
		return fmt.Errorf("%s: %w", action, ledger.ErrUnauthorized)
	}

	if adminActions[action] {
		if actor.IsAdmin() {
			return nil
		}
		return fmt.Errorf("%s requires admin: %w", action, ledger.ErrUnauthorized)
	}

	// viewing a withdrawal is the one owner action admins share
	if action == ActionViewWithdrawal && actor.IsAdmin() {
		return nil
	}

	if ownerID == "" || actor.ID != ownerID {
		return fmt.Errorf("%s on resource of another user: %w", action, ledger.ErrUnauthorized)
	}

	return nil
}
