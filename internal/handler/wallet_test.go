package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/cradoe/songbid/internal/gateway"
	"github.com/cradoe/songbid/internal/ledger"
	"github.com/cradoe/songbid/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHandleWalletBalance(t *testing.T) {
	f := newFixture(t)

	rr, env := serve(t, f.wallets.HandleWalletBalance, newRequest(http.MethodGet, "/wallet/balance", "", testUser))
	require.Equal(t, http.StatusOK, rr.Code)

	var data WalletResponseData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.True(t, data.Balance.Equal(decimal.NewFromInt(1000)))
	require.True(t, data.Available.Equal(decimal.NewFromInt(1000)))
	require.Equal(t, "KES", data.Currency)
}

func TestHandleWalletEntries(t *testing.T) {
	f := newFixture(t)

	rr, env := serve(t, f.wallets.HandleWalletEntries, newRequest(http.MethodGet, "/wallet/entries?limit=5", "", testUser))
	require.Equal(t, http.StatusOK, rr.Code)

	var data []LedgerEntryResponseData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data, 1)
	require.Equal(t, models.LedgerEntryTypeEarning, data[0].Type)
}

func TestHandleTopUp(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("Push", mock.Anything, mock.Anything).Return(&gateway.PushResult{CorrelationID: "ws_CO_1"}, nil).Once()
	f.gateway.On("Query", mock.Anything, "ws_CO_1").Return(&gateway.QueryResult{Status: gateway.StatusSuccess}, nil)

	body := `{"phone": "254712345678", "amount": 500}`
	rr, env := serve(t, f.wallets.HandleTopUp, newRequest(http.MethodPost, "/wallet/topup", body, testUser))
	require.Equal(t, http.StatusCreated, rr.Code)

	var data TopUpResponseData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, "ws_CO_1", data.CorrelationID)
	require.Equal(t, TopUpStatusPending, data.Status)

	// the background watcher confirms the payment
	f.wg.Wait()

	wallet, ok := f.store.Wallet("u1")
	require.True(t, ok)
	require.True(t, wallet.Balance.Equal(decimal.NewFromInt(1500)), wallet.Balance.String())
}

func TestHandleTopUp_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing phone", `{"amount": 100}`, http.StatusUnprocessableEntity},
		{"local phone format", `{"phone": "0712345678", "amount": 100}`, http.StatusUnprocessableEntity},
		{"zero amount", `{"phone": "254712345678", "amount": 0}`, http.StatusUnprocessableEntity},
		{"fractional amount", `{"phone": "254712345678", "amount": 10.5}`, http.StatusUnprocessableEntity},
		{"above push limit", `{"phone": "254712345678", "amount": 250001}`, http.StatusUnprocessableEntity},
		{"unknown field", `{"phone": "254712345678", "amount": 10, "pin": "1234"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, env := serve(t, f.wallets.HandleTopUp, newRequest(http.MethodPost, "/wallet/topup", tt.body, testUser))
			require.Equal(t, tt.code, rr.Code)
			require.False(t, env.Success)
		})
	}

	f.gateway.AssertNotCalled(t, "Push", mock.Anything, mock.Anything)
}

func TestHandleTopUp_GatewayUnavailable(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("Push", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("dial: %w", ledger.ErrGatewayUnavailable)).Once()

	rr, _ := serve(t, f.wallets.HandleTopUp, newRequest(http.MethodPost, "/wallet/topup", `{"phone": "254712345678", "amount": 100}`, testUser))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func seedPendingPayment(f *fixture, correlationID string) {
	f.store.SeedPayment(models.PendingPayment{
		ID:            "p-" + correlationID,
		UserID:        "u1",
		CorrelationID: correlationID,
		Reference:     "TOPUP" + correlationID,
		Phone:         "254712345678",
		Amount:        decimal.NewFromInt(200),
		Currency:      "KES",
		Status:        models.PaymentStatusPending,
	})
}

func TestHandleTopUpStatus(t *testing.T) {
	f := newFixture(t)
	seedPendingPayment(f, "c1")
	f.gateway.On("Query", mock.Anything, "c1").Return(&gateway.QueryResult{Status: gateway.StatusFailed, Reason: "insufficient balance"}, nil).Once()

	rr, env := serve(t, f.wallets.HandleTopUpStatus, newRequest(http.MethodGet, "/wallet/topup/status?correlation_id=c1", "", testUser))
	require.Equal(t, http.StatusOK, rr.Code)

	var data TopUpResponseData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, TopUpStatusFailed, data.Status)
	require.Equal(t, models.PaymentStatusFailed, data.Detail)
	require.Equal(t, "insufficient balance", data.FailureReason)
}

func TestHandleTopUpStatus_CamelCaseParam(t *testing.T) {
	f := newFixture(t)
	seedPendingPayment(f, "c1")
	f.gateway.On("Query", mock.Anything, "c1").Return(&gateway.QueryResult{Status: gateway.StatusProcessing}, nil).Once()

	rr, env := serve(t, f.wallets.HandleTopUpStatus, newRequest(http.MethodGet, "/wallet/topup/status?correlationId=c1", "", testUser))
	require.Equal(t, http.StatusOK, rr.Code)

	var data TopUpResponseData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, TopUpStatusPending, data.Status)
	require.False(t, data.Delayed)
}

func TestHandleTopUpStatus_GatewayDownIsDelayed(t *testing.T) {
	f := newFixture(t)
	seedPendingPayment(f, "c1")
	f.gateway.On("Query", mock.Anything, "c1").Return(nil, ledger.ErrGatewayTimeout).Once()

	rr, env := serve(t, f.wallets.HandleTopUpStatus, newRequest(http.MethodGet, "/wallet/topup/status?correlation_id=c1", "", testUser))
	require.Equal(t, http.StatusOK, rr.Code)

	var data TopUpResponseData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, TopUpStatusPending, data.Status)
	require.True(t, data.Delayed)
}

func TestHandleTopUpStatus_Errors(t *testing.T) {
	f := newFixture(t)
	seedPendingPayment(f, "c1")

	rr, _ := serve(t, f.wallets.HandleTopUpStatus, newRequest(http.MethodGet, "/wallet/topup/status", "", testUser))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr, _ = serve(t, f.wallets.HandleTopUpStatus, newRequest(http.MethodGet, "/wallet/topup/status?correlation_id=nope", "", testUser))
	require.Equal(t, http.StatusNotFound, rr.Code)

	stranger := &models.User{ID: "u2", Role: models.UserRoleUser}
	rr, _ = serve(t, f.wallets.HandleTopUpStatus, newRequest(http.MethodGet, "/wallet/topup/status?correlation_id=c1", "", stranger))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandleTopUpCancel(t *testing.T) {
	f := newFixture(t)
	seedPendingPayment(f, "c1")

	rr, env := serve(t, f.wallets.HandleTopUpCancel, newRequest(http.MethodPost, "/wallet/topup/cancel", `{"correlation_id": "c1"}`, testUser))
	require.Equal(t, http.StatusOK, rr.Code)

	var data TopUpResponseData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, TopUpStatusFailed, data.Status)
	require.Equal(t, models.PaymentStatusCancelled, data.Detail)

	// a second cancel finds it terminal
	rr, _ = serve(t, f.wallets.HandleTopUpCancel, newRequest(http.MethodPost, "/wallet/topup/cancel", `{"correlation_id": "c1"}`, testUser))
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandleTopUpCancel_CamelCaseBody(t *testing.T) {
	f := newFixture(t)
	seedPendingPayment(f, "c1")

	rr, env := serve(t, f.wallets.HandleTopUpCancel, newRequest(http.MethodPost, "/wallet/topup/cancel", `{"correlationId": "c1"}`, testUser))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var data TopUpResponseData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, models.PaymentStatusCancelled, data.Detail)
}

func TestHandleWalletReconcile(t *testing.T) {
	f := newFixture(t)

	r := newRequest(http.MethodGet, "/admin/wallets/u1/reconcile", "", testAdmin)
	r.SetPathValue("userId", "u1")

	rr, env := serve(t, f.wallets.HandleWalletReconcile, r)
	require.Equal(t, http.StatusOK, rr.Code)

	var data ledger.Reconciliation
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.True(t, data.Consistent)

	r = newRequest(http.MethodGet, "/admin/wallets/u1/reconcile", "", testUser)
	r.SetPathValue("userId", "u1")
	rr, _ = serve(t, f.wallets.HandleWalletReconcile, r)
	require.Equal(t, http.StatusForbidden, rr.Code)

	r = newRequest(http.MethodGet, "/admin/wallets/ghost/reconcile", "", testAdmin)
	r.SetPathValue("userId", "ghost")
	rr, _ = serve(t, f.wallets.HandleWalletReconcile, r)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPublicTopUpStatus(t *testing.T) {
	tests := map[string]string{
		models.PaymentStatusInitiated: TopUpStatusPending,
		models.PaymentStatusPending:   TopUpStatusPending,
		models.PaymentStatusCompleted: TopUpStatusCompleted,
		models.PaymentStatusFailed:    TopUpStatusFailed,
		models.PaymentStatusCancelled: TopUpStatusFailed,
		models.PaymentStatusExpired:   TopUpStatusFailed,
	}

	for status, want := range tests {
		require.Equal(t, want, publicTopUpStatus(status), status)
	}
}
