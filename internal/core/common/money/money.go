// Package money converts between major-unit decimal strings and the
// integer minor units the provider works in.
package money

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
)

var exponents = map[string]int32{
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "OMR": 3, "TND": 3,
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
}

func Exponent(currency string) int32 {
	if exp, ok := exponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// ToMinor parses "499.50" into 49950 for a two-decimal currency. Values with
// more precision than the currency allows are rejected.
func ToMinor(currency, major string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(major))
	if err != nil {
		return 0, internal.ErrInvalidAmount.WithCause(err)
	}
	minor := d.Shift(Exponent(currency))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, internal.ErrInvalidAmount.WithMessage("amount %s has too many decimal places for %s", major, currency)
	}
	if minor.Sign() <= 0 {
		return 0, internal.ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// Format renders minor units as a fixed-point major-unit string.
func Format(currency string, minor int64) string {
	exp := Exponent(currency)
	return decimal.New(minor, -exp).StringFixed(exp)
}
