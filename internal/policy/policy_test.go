package policy

import (
	"testing"

	"github.com/cradoe/songbid/internal/ledger"
	"github.com/cradoe/songbid/internal/models"
	"github.com/stretchr/testify/require"
)

func TestAuthorize(t *testing.T) {
	user := Actor{ID: "u1", Role: models.UserRoleUser}
	admin := Actor{ID: "a1", Role: models.UserRoleAdmin}

	tests := []struct {
		name    string
		actor   Actor
		action  Action
		owner   string
		allowed bool
	}{
		{"owner tops up", user, ActionTopUp, "u1", true},
		{"other user tops up", user, ActionTopUp, "u2", false},
		{"admin tops up for user", admin, ActionTopUp, "u1", false},
		{"anonymous", Actor{}, ActionTopUp, "", false},
		{"user approves", user, ActionApproveWithdrawal, "", false},
		{"admin approves", admin, ActionApproveWithdrawal, "", true},
		{"admin runs bulk", admin, ActionBulk, "", true},
		{"user runs bulk", user, ActionBulk, "", false},
		{"admin views withdrawal", admin, ActionViewWithdrawal, "u1", true},
		{"owner views withdrawal", user, ActionViewWithdrawal, "u1", true},
		{"admin role without id", Actor{Role: models.UserRoleAdmin}, ActionAudit, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.actor, tt.action, tt.owner)
			if tt.allowed {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ledger.ErrUnauthorized)
		})
	}
}

func TestActorFromUser(t *testing.T) {
	require.Equal(t, Actor{}, ActorFromUser(nil))
	require.True(t, ActorFromUser(&models.User{ID: "a", Role: models.UserRoleAdmin}).IsAdmin())
}
