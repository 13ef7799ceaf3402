package validator

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	// RgxPhoneNumber matches MSISDNs in international format without the plus
	// sign, as the mobile-money gateway expects them (e.g. 254712345678).
	RgxPhoneNumber = regexp.MustCompile(`^[1-9][0-9]{9,14}$`)
)

type Validator struct {
	Errors []string `json:",omitempty"`
}

func (v Validator) HasErrors() bool {
	return len(v.Errors) != 0
}

func (v *Validator) AddError(message string) {
	if v.Errors == nil {
		v.Errors = []string{}
	}

	v.Errors = append(v.Errors, message)
}

func (v *Validator) Check(ok bool, message string) {
	if !ok {
		v.AddError(message)
	}
}

func NotBlank(value string) bool {
	return strings.TrimSpace(value) != ""
}

func MaxRunes(value string, n int) bool {
	return utf8.RuneCountInString(value) <= n
}

func Matches(value string, rx *regexp.Regexp) bool {
	return rx.MatchString(value)
}

func PermittedValue[T comparable](value T, permittedValues ...T) bool {
	return slices.Contains(permittedValues, value)
}

func IsPositive(amount decimal.Decimal) bool {
	return amount.IsPositive()
}

// MaxDecimalPlaces reports whether amount has at most places fractional digits.
func MaxDecimalPlaces(amount decimal.Decimal, places int32) bool {
	return amount.Equal(amount.Truncate(places))
}

// IsCurrency reports whether code is an ISO 4217 currency code.
func IsCurrency(code string) bool {
	if len(code) != 3 || strings.ToUpper(code) != code {
		return false
	}

	_, err := currency.ParseISO(code)
	return err == nil
}

func NoDuplicates[T comparable](values []T) bool {
	seen := make(map[T]bool, len(values))
	for _, value := range values {
		if seen[value] {
			return false
		}
		seen[value] = true
	}
	return true
}
