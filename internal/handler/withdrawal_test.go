package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/cradoe/songbid/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func createWithdrawal(t *testing.T, f *fixture, body string) WithdrawalResponseData {
	t.Helper()

	rr, env := serve(t, f.withdrawals.HandleWithdrawalCreate, newRequest(http.MethodPost, "/wallet/withdrawals", body, testUser))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var data WithdrawalResponseData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}

func adminRequest(id, body string) *http.Request {
	r := newRequest(http.MethodPut, "/admin/withdrawals/"+id, body, testAdmin)
	r.SetPathValue("id", id)
	return r
}

func TestHandleWithdrawalCreate(t *testing.T) {
	f := newFixture(t)

	data := createWithdrawal(t, f, `{"amount": 300, "method_id": "m1"}`)
	require.Equal(t, models.WithdrawalStatusPending, data.Status)
	require.Equal(t, "KES", data.Currency)
	require.NotEmpty(t, data.Reference)
	require.Nil(t, data.ProcessedAt)

	wallet, _ := f.store.Wallet("u1")
	require.True(t, wallet.Reserved.Equal(decimal.NewFromInt(300)))
	require.True(t, wallet.Balance.Equal(decimal.NewFromInt(1000)))
}

func TestHandleWithdrawalCreate_CamelCaseBody(t *testing.T) {
	f := newFixture(t)

	data := createWithdrawal(t, f, `{"amount": 120, "methodId": "m1", "currency": "KES"}`)
	require.Equal(t, models.WithdrawalStatusPending, data.Status)

	wallet, _ := f.store.Wallet("u1")
	require.True(t, wallet.Reserved.Equal(decimal.NewFromInt(120)))
}

func TestHandleWithdrawalCreate_Rejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"too many decimals", `{"amount": 10.125, "method_id": "m1"}`, http.StatusUnprocessableEntity},
		{"negative", `{"amount": -5, "method_id": "m1"}`, http.StatusUnprocessableEntity},
		{"no method", `{"amount": 10}`, http.StatusUnprocessableEntity},
		{"bad currency", `{"amount": 10, "method_id": "m1", "currency": "kshs"}`, http.StatusUnprocessableEntity},
		{"foreign currency", `{"amount": 10, "method_id": "m1", "currency": "USD"}`, http.StatusUnprocessableEntity},
		{"unknown method", `{"amount": 10, "method_id": "m404"}`, http.StatusUnprocessableEntity},
		{"insufficient funds", `{"amount": 5000, "method_id": "m1"}`, http.StatusUnprocessableEntity},
		{"malformed", `{"amount": `, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, env := serve(t, f.withdrawals.HandleWithdrawalCreate, newRequest(http.MethodPost, "/wallet/withdrawals", tt.body, testUser))
			require.Equal(t, tt.code, rr.Code)
			require.False(t, env.Success)
		})
	}

	wallet, _ := f.store.Wallet("u1")
	require.True(t, wallet.Reserved.IsZero())
}

func TestHandleWithdrawalLifecycle(t *testing.T) {
	f := newFixture(t)
	w := createWithdrawal(t, f, `{"amount": 250, "method_id": "m1"}`)

	rr, env := serve(t, f.withdrawals.HandleWithdrawalApprove, adminRequest(w.ID, ""))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var data WithdrawalResponseData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, models.WithdrawalStatusApproved, data.Status)
	require.Equal(t, testAdmin.ID, data.ProcessedBy)
	require.NotNil(t, data.ProcessedAt)

	rr, env = serve(t, f.withdrawals.HandleWithdrawalComplete, adminRequest(w.ID, ""))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, models.WithdrawalStatusCompleted, data.Status)
	require.NotNil(t, data.CompletedAt)

	wallet, _ := f.store.Wallet("u1")
	require.True(t, wallet.Balance.Equal(decimal.NewFromInt(750)))
	require.True(t, wallet.Reserved.IsZero())

	// terminal requests cannot move again
	rr, _ = serve(t, f.withdrawals.HandleWithdrawalApprove, adminRequest(w.ID, ""))
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandleWithdrawalReject(t *testing.T) {
	f := newFixture(t)
	w := createWithdrawal(t, f, `{"amount": 100, "method_id": "m1"}`)

	rr, _ := serve(t, f.withdrawals.HandleWithdrawalReject, adminRequest(w.ID, `{"reason": "  "}`))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr, env := serve(t, f.withdrawals.HandleWithdrawalReject, adminRequest(w.ID, `{"reason": "account name mismatch"}`))
	require.Equal(t, http.StatusOK, rr.Code)

	var data WithdrawalResponseData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, models.WithdrawalStatusRejected, data.Status)
	require.Equal(t, "account name mismatch", data.Reason)

	wallet, _ := f.store.Wallet("u1")
	require.True(t, wallet.Balance.Equal(decimal.NewFromInt(1000)))
	require.True(t, wallet.Reserved.IsZero())
}

func TestHandleWithdrawalApprove_NotAdmin(t *testing.T) {
	f := newFixture(t)
	w := createWithdrawal(t, f, `{"amount": 100, "method_id": "m1"}`)

	r := newRequest(http.MethodPut, "/admin/withdrawals/"+w.ID+"/approve", "", testUser)
	r.SetPathValue("id", w.ID)

	rr, _ := serve(t, f.withdrawals.HandleWithdrawalApprove, r)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandleWithdrawalApprove_Unknown(t *testing.T) {
	f := newFixture(t)

	rr, _ := serve(t, f.withdrawals.HandleWithdrawalApprove, adminRequest("missing", ""))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleWithdrawalLists(t *testing.T) {
	f := newFixture(t)
	first := createWithdrawal(t, f, `{"amount": 100, "method_id": "m1"}`)
	createWithdrawal(t, f, `{"amount": 50, "method_id": "m1"}`)

	serve(t, f.withdrawals.HandleWithdrawalApprove, adminRequest(first.ID, ""))

	rr, env := serve(t, f.withdrawals.HandleUserWithdrawals, newRequest(http.MethodGet, "/wallet/withdrawals", "", testUser))
	require.Equal(t, http.StatusOK, rr.Code)

	var mine []WithdrawalResponseData
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	require.Len(t, mine, 2)

	rr, env = serve(t, f.withdrawals.HandleAdminWithdrawals, newRequest(http.MethodGet, "/admin/withdrawals", "", testAdmin))
	require.Equal(t, http.StatusOK, rr.Code)

	var pending []WithdrawalResponseData
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	require.Len(t, pending, 1)
	require.Equal(t, models.WithdrawalStatusPending, pending[0].Status)

	rr, env = serve(t, f.withdrawals.HandleAdminWithdrawals, newRequest(http.MethodGet, "/admin/withdrawals?status=approved", "", testAdmin))
	require.Equal(t, http.StatusOK, rr.Code)

	var approved []WithdrawalResponseData
	require.NoError(t, json.Unmarshal(env.Data, &approved))
	require.Len(t, approved, 1)
	require.Equal(t, first.ID, approved[0].ID)

	rr, _ = serve(t, f.withdrawals.HandleAdminWithdrawals, newRequest(http.MethodGet, "/admin/withdrawals?status=lost", "", testAdmin))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr, _ = serve(t, f.withdrawals.HandleAdminWithdrawals, newRequest(http.MethodGet, "/admin/withdrawals", "", testUser))
	require.Equal(t, http.StatusForbidden, rr.Code)
}
