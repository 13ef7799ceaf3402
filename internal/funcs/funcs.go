package funcs

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

var TemplateFuncs = map[string]any{
	// Time functions
	"now":        time.Now,
	"formatTime": formatTime,

	// String functions
	"uppercase": strings.ToUpper,
	"lowercase": strings.ToLower,
	"title":     title,
	"default":   defaultString,

	// Money functions
	"formatMoney": formatMoney,
}

func formatTime(format string, t time.Time) string {
	return t.Format(format)
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func defaultString(fallback, s string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// formatMoney renders amount with thousands separators and two decimals,
// prefixed by currency when it is set.
func formatMoney(currency string, amount decimal.Decimal) string {
	whole := amount.Truncate(0)
	cents := amount.Sub(whole).Abs().Shift(2).Round(0).IntPart()
	if cents == 100 {
		whole = whole.Add(decimal.NewFromInt(int64(amount.Sign())))
		cents = 0
	}

	formatted := printer.Sprintf("%d", whole.IntPart())
	if amount.IsNegative() && whole.IsZero() {
		formatted = "-" + formatted
	}
	formatted = fmt.Sprintf("%s.%02d", formatted, cents)

	if currency == "" {
		return formatted
	}
	return currency + " " + formatted
}
