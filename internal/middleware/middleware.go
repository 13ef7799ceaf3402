package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cradoe/songbid/internal/config"
	"github.com/cradoe/songbid/internal/context"
	"github.com/cradoe/songbid/internal/errHandler"
	"github.com/cradoe/songbid/internal/models"
	"github.com/cradoe/songbid/internal/repository"
	"github.com/cradoe/songbid/internal/response"

	"github.com/pascaldekloe/jwt"
	"github.com/tomasen/realip"
)

type Middleware struct {
	errHandler *errHandler.ErrorRepository
	logger     *slog.Logger
	UserRepo   repository.UserRepository
	config     *config.Config
}

func New(errHandler *errHandler.ErrorRepository, logger *slog.Logger, UserRepo repository.UserRepository, config *config.Config) *Middleware {
	return &Middleware{
		errHandler: errHandler,
		logger:     logger,
		UserRepo:   UserRepo,
		config:     config,
	}
}

func (mid *Middleware) RecoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err != nil {
				mid.errHandler.ServerError(w, r, fmt.Errorf("%s", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (mid *Middleware) LogAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		mw := response.NewMetricsResponseWriter(w)
		next.ServeHTTP(mw, r)

		var (
			ip     = realip.FromRequest(r)
			method = r.Method
			url    = r.URL.String()
			proto  = r.Proto
		)

		userAttrs := slog.Group("user", "ip", ip)
		requestAttrs := slog.Group("request", "method", method, "url", url, "proto", proto)
		responseAttrs := slog.Group("response", "status", mw.StatusCode, "size", mw.BytesCount, "duration", time.Since(start).String())

		mid.logger.Info("access", userAttrs, requestAttrs, responseAttrs)
	})
}

// Authenticate resolves a bearer token issued for this service into the
// request's user. Requests without a token pass through anonymous.
func (mid *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Authorization")

		authorizationHeader := r.Header.Get("Authorization")

		if authorizationHeader != "" {
			headerParts := strings.Split(authorizationHeader, " ")

			if len(headerParts) != 2 || headerParts[0] != "Bearer" {
				mid.errHandler.InvalidAuthenticationToken(w, r)
				return
			}

			claims, err := jwt.HMACCheck([]byte(headerParts[1]), []byte(mid.config.Jwt.SecretKey))
			if err != nil {
				mid.errHandler.InvalidAuthenticationToken(w, r)
				return
			}

			if !claims.Valid(time.Now()) {
				mid.errHandler.InvalidAuthenticationToken(w, r)
				return
			}

			if claims.Issuer != mid.config.BaseURL {
				mid.errHandler.InvalidAuthenticationToken(w, r)
				return
			}

			if !claims.AcceptAudience(mid.config.BaseURL) {
				mid.errHandler.InvalidAuthenticationToken(w, r)
				return
			}

			user, found, err := mid.UserRepo.GetOne(r.Context(), claims.Subject)
			if err != nil {
				mid.errHandler.ServerError(w, r, err)
				return
			}

			// a deleted or locked account keeps no access from an old token
			if !found || user.Status != repository.UserAccountActiveStatus {
				mid.errHandler.InvalidAuthenticationToken(w, r)
				return
			}

			r = context.ContextSetAuthenticatedUser(r, user)
		}

		next.ServeHTTP(w, r)
	})
}

func (mid *Middleware) RequireAuthenticatedUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authenticatedUser := context.ContextGetAuthenticatedUser(r)

		if authenticatedUser == nil {
			mid.errHandler.AuthenticationRequired(w, r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects non-admin users before the handler runs. Services still
// evaluate the policy themselves.
func (mid *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return mid.RequireAuthenticatedUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if context.ContextGetAuthenticatedUser(r).Role != models.UserRoleAdmin {
			mid.errHandler.Forbidden(w, r)
			return
		}

		next.ServeHTTP(w, r)
	}))
}
