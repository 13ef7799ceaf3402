package context

import (
	"context"
	"net/http"

	"github.com/cradoe/songbid/internal/models"
	"github.com/cradoe/songbid/internal/policy"
)

type contextKey string

const (
	authenticatedUserContextKey = contextKey("authenticatedUser")
)

func ContextSetAuthenticatedUser(r *http.Request, user *models.User) *http.Request {
	ctx := context.WithValue(r.Context(), authenticatedUserContextKey, user)
	return r.WithContext(ctx)
}

func ContextGetAuthenticatedUser(r *http.Request) *models.User {
	user, ok := r.Context().Value(authenticatedUserContextKey).(*models.User)
	if !ok {
		return nil
	}

	return user
}

// ContextGetActor returns the authenticated user as a policy actor. An
// anonymous request yields the zero Actor, which no policy check accepts.
func ContextGetActor(r *http.Request) policy.Actor {
	user := ContextGetAuthenticatedUser(r)
	if user == nil {
		return policy.Actor{}
	}

	return policy.ActorFromUser(user)
}
