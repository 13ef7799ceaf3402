package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/cradoe/songbid/internal/bulk"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestHandleWithdrawalsBulk(t *testing.T) {
	f := newFixture(t)
	first := createWithdrawal(t, f, `{"amount": 100, "method_id": "m1"}`)
	second := createWithdrawal(t, f, `{"amount": 200, "method_id": "m1"}`)

	body := fmt.Sprintf(`{"ids": [%q, %q, "missing"], "action": "reject", "reason": "batch closed"}`, first.ID, second.ID)
	rr, env := serve(t, f.bulk.HandleWithdrawalsBulk, newRequest(http.MethodPost, "/admin/withdrawals/bulk", body, testAdmin))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result bulk.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, 2, result.Succeeded)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Items, 3)
	require.Equal(t, "missing", result.Items[2].ID)
	require.False(t, result.Items[2].OK)

	wallet, _ := f.store.Wallet("u1")
	require.True(t, wallet.Reserved.IsZero())
	require.True(t, wallet.Balance.Equal(decimal.NewFromInt(1000)))
}

func TestHandleBidsBulk(t *testing.T) {
	f := newFixture(t)

	rr, env := serve(t, f.bids.HandleBidCreate, newRequest(http.MethodPost, "/bids", `{"song_ref": "s1", "amount": 40}`, testUser))
	require.Equal(t, http.StatusCreated, rr.Code)

	var b BidResponseData
	require.NoError(t, json.Unmarshal(env.Data, &b))

	rr, env = serve(t, f.bulk.HandleBidsBulk, newRequest(http.MethodPost, "/admin/bids/bulk", fmt.Sprintf(`{"ids": [%q], "action": "reject"}`, b.ID), testAdmin))
	require.Equal(t, http.StatusOK, rr.Code)

	var result bulk.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, 1, result.Succeeded)

	// the rejected bid is refunded
	wallet, _ := f.store.Wallet("u1")
	require.True(t, wallet.Balance.Equal(decimal.NewFromInt(1000)))
}

func TestHandleBulk_Validation(t *testing.T) {
	f := newFixture(t)

	tooMany := make([]string, bulk.MaxItems+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("%q", fmt.Sprint("w", i))
	}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		body    string
	}{
		{"no ids", f.bulk.HandleWithdrawalsBulk, `{"ids": [], "action": "approve"}`},
		{"too many ids", f.bulk.HandleWithdrawalsBulk, `{"ids": [` + strings.Join(tooMany, ",") + `], "action": "approve"}`},
		{"unknown action", f.bulk.HandleWithdrawalsBulk, `{"ids": ["w1"], "action": "accept"}`},
		{"reject without reason", f.bulk.HandleWithdrawalsBulk, `{"ids": ["w1"], "action": "reject"}`},
		{"withdrawal action on bids", f.bulk.HandleBidsBulk, `{"ids": ["b1"], "action": "complete"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, env := serve(t, tt.handler, newRequest(http.MethodPost, "/admin/bulk", tt.body, testAdmin))
			require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
			require.False(t, env.Success)
		})
	}
}

func TestHandleBulk_NotAdmin(t *testing.T) {
	f := newFixture(t)

	rr, _ := serve(t, f.bulk.HandleWithdrawalsBulk, newRequest(http.MethodPost, "/admin/withdrawals/bulk", `{"ids": ["w1"], "action": "approve"}`, testUser))
	require.Equal(t, http.StatusForbidden, rr.Code)
}
