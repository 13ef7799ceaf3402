package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONOkResponse_SnakeCasesMapKeys(t *testing.T) {
	rr := httptest.NewRecorder()

	err := JSONOkResponse(rr, map[string]any{
		"correlationId":   "ws_CO_1",
		"pendingEarnings": "0",
		"nested":          map[string]any{"userId": "u1"},
	}, "", nil)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body struct {
		Status  int            `json:"status"`
		Success bool           `json:"success"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	require.True(t, body.Success)
	require.Equal(t, "Request successful", body.Message)
	require.Equal(t, "ws_CO_1", body.Data["correlation_id"])
	require.Contains(t, body.Data, "pending_earnings")
	require.Equal(t, map[string]any{"user_id": "u1"}, body.Data["nested"])
}

func TestSnakeCaseKeys(t *testing.T) {
	got := SnakeCaseKeys(map[string]any{
		"correlationID": "c1",
		"Status":        "available",
		"already_snake": 1,
		"items":         []any{map[string]any{"songRef": "s1"}, "plain"},
	})

	require.Equal(t, map[string]any{
		"correlation_id": "c1",
		"status":         "available",
		"already_snake":  1,
		"items":          []any{map[string]any{"song_ref": "s1"}, "plain"},
	}, got)
}

func TestJSONErrorResponse_Defaults(t *testing.T) {
	rr := httptest.NewRecorder()

	require.NoError(t, JSONErrorResponse(rr, nil, "", 0, nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var body Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "Request failed", body.Message)
	require.False(t, body.Success)
}

func TestJSONErrorResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	headers := http.Header{"Www-Authenticate": []string{"Bearer"}}

	err := JSONErrorResponse(rr, []string{"Amount is required"}, "Validation failed", http.StatusUnprocessableEntity, headers)
	require.NoError(t, err)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, false, body["success"])
	require.Equal(t, []any{"Amount is required"}, body["error"])
}

func TestMetricsResponseWriter(t *testing.T) {
	rr := httptest.NewRecorder()
	mw := NewMetricsResponseWriter(rr)

	mw.WriteHeader(http.StatusCreated)
	mw.WriteHeader(http.StatusInternalServerError)
	_, err := mw.Write([]byte("hello"))
	require.NoError(t, err)

	require.Equal(t, http.StatusCreated, mw.StatusCode)
	require.Equal(t, 5, mw.BytesCount)
	require.Equal(t, rr, mw.Unwrap())
}
