package funcs

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		currency string
		amount   string
		want     string
	}{
		{"KES", "1500", "KES 1,500.00"},
		{"KES", "1234567.5", "KES 1,234,567.50"},
		{"", "0.05", "0.05"},
		{"KES", "9.999", "KES 10.00"},
		{"KES", "-0.5", "KES -0.50"},
		{"KES", "-1200.25", "KES -1,200.25"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			require.Equal(t, tt.want, formatMoney(tt.currency, decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestDefaultString(t *testing.T) {
	require.Equal(t, "n/a", defaultString("n/a", "  "))
	require.Equal(t, "x", defaultString("n/a", "x"))
	require.Equal(t, "Expired", title("expired"))
}
