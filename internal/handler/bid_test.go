package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/cradoe/songbid/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestHandleBidCreate(t *testing.T) {
	f := newFixture(t)

	rr, env := serve(t, f.bids.HandleBidCreate, newRequest(http.MethodPost, "/bids", `{"song_ref": "spotify:track:42", "amount": 120.50}`, testUser))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var data BidResponseData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, "spotify:track:42", data.SongRef)
	require.Equal(t, models.BidStatusPending, data.Status)
	require.True(t, data.Amount.Equal(decimal.RequireFromString("120.50")))

	wallet, _ := f.store.Wallet("u1")
	require.True(t, wallet.Balance.Equal(decimal.RequireFromString("879.50")))
}

func TestHandleBidCreate_CamelCaseBody(t *testing.T) {
	f := newFixture(t)

	rr, env := serve(t, f.bids.HandleBidCreate, newRequest(http.MethodPost, "/bids", `{"songRef": "s9", "amount": 10}`, testUser))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var data BidResponseData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, "s9", data.SongRef)
}

func TestHandleBidCreate_Rejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"no song", `{"amount": 10}`, http.StatusUnprocessableEntity},
		{"zero amount", `{"song_ref": "s1", "amount": 0}`, http.StatusUnprocessableEntity},
		{"sub-cent amount", `{"song_ref": "s1", "amount": 0.001}`, http.StatusUnprocessableEntity},
		{"insufficient funds", `{"song_ref": "s1", "amount": 1000.01}`, http.StatusUnprocessableEntity},
		{"empty body", ``, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, env := serve(t, f.bids.HandleBidCreate, newRequest(http.MethodPost, "/bids", tt.body, testUser))
			require.Equal(t, tt.code, rr.Code)
			require.False(t, env.Success)
		})
	}

	require.Empty(t, f.store.Bids())

	wallet, _ := f.store.Wallet("u1")
	require.True(t, wallet.Balance.Equal(decimal.NewFromInt(1000)))
}
