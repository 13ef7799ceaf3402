package app

import (
	"net/http"

	"github.com/cradoe/songbid/internal/handler"
	"github.com/cradoe/songbid/internal/middleware"
	"github.com/cradoe/songbid/internal/payment"
)

func (app *Application) routes() http.Handler {
	mux := http.NewServeMux()

	middlewareRepo := middleware.New(app.errorHandler, app.Logger, app.DB.User(), &app.Config)

	healthHandler := handler.NewHealthCheckHandler(&handler.HealthCheckHandler{
		ErrHandler: app.errorHandler,
		Cache:      app.Cache,
	})
	walletHandler := handler.NewWalletHandler(&handler.WalletHandler{
		Ledger:      app.Ledger,
		Payments:    app.Payments,
		Helper:      app.helper,
		ErrHandler:  app.errorHandler,
		WatchPolicy: payment.PolicyFromConfig(&app.Config),
		Ctx:         app.ctx,
	})
	withdrawalHandler := handler.NewWithdrawalHandler(&handler.WithdrawalHandler{
		Withdrawals: app.Withdrawals,
		ErrHandler:  app.errorHandler,
	})
	bidHandler := handler.NewBidHandler(&handler.BidHandler{
		Bids:       app.Bids,
		ErrHandler: app.errorHandler,
	})
	bulkHandler := handler.NewBulkHandler(&handler.BulkHandler{
		Operator:   app.Bulk,
		ErrHandler: app.errorHandler,
	})

	authenticated := func(h http.HandlerFunc) http.Handler {
		return middlewareRepo.RequireAuthenticatedUser(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return middlewareRepo.RequireAdmin(h)
	}

	mux.HandleFunc("GET /health", healthHandler.HandleHealthCheck)
	mux.HandleFunc("GET /status", healthHandler.HandleStatus)

	mux.Handle("GET /wallet/balance", authenticated(walletHandler.HandleWalletBalance))
	mux.Handle("GET /wallet/entries", authenticated(walletHandler.HandleWalletEntries))
	mux.Handle("POST /wallet/topup", authenticated(walletHandler.HandleTopUp))
	mux.Handle("GET /wallet/topup/status", authenticated(walletHandler.HandleTopUpStatus))
	mux.Handle("POST /wallet/topup/cancel", authenticated(walletHandler.HandleTopUpCancel))
	mux.Handle("POST /wallet/withdrawals", authenticated(withdrawalHandler.HandleWithdrawalCreate))
	mux.Handle("GET /wallet/withdrawals", authenticated(withdrawalHandler.HandleUserWithdrawals))

	mux.Handle("POST /bids", authenticated(bidHandler.HandleBidCreate))

	mux.Handle("GET /admin/withdrawals", admin(withdrawalHandler.HandleAdminWithdrawals))
	mux.Handle("PUT /admin/withdrawals/{id}/approve", admin(withdrawalHandler.HandleWithdrawalApprove))
	mux.Handle("PUT /admin/withdrawals/{id}/reject", admin(withdrawalHandler.HandleWithdrawalReject))
	mux.Handle("PUT /admin/withdrawals/{id}/complete", admin(withdrawalHandler.HandleWithdrawalComplete))
	mux.Handle("POST /admin/withdrawals/bulk", admin(bulkHandler.HandleWithdrawalsBulk))
	mux.Handle("POST /admin/bids/bulk", admin(bulkHandler.HandleBidsBulk))
	mux.Handle("GET /admin/wallets/{userId}/reconcile", admin(walletHandler.HandleWalletReconcile))

	return middlewareRepo.LogAccess(middlewareRepo.RecoverPanic(middlewareRepo.Authenticate(mux)))
}
