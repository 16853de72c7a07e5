// Package money holds the shared decimal arithmetic helpers used by pricing
// and persistence. All monetary values in the system are shopspring decimals;
// binary floats never enter the computation path.
package money

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Hundred is the divisor for percentage discounts.
var Hundred = decimal.NewFromInt(100)

// Zero is the canonical zero amount.
var Zero = decimal.Zero

// ErrNegativeAmount is returned when parsing or validating a value that must
// not be negative.
var ErrNegativeAmount = errors.New("amount must not be negative")

// minorUnits is the number of decimal places of the currency minor unit.
const minorUnits = 2

// RoundMinor rounds to the currency minor unit using half-up rounding.
// It is applied once when a pricing result is finalized for persistence,
// never at intermediate steps.
func RoundMinor(d decimal.Decimal) decimal.Decimal {
	return d.Round(minorUnits)
}

// Percent returns amount * pct / 100 without rounding.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(Hundred)
}

// MulQty returns amount * quantity without rounding.
func MulQty(amount decimal.Decimal, quantity int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(quantity)))
}

// ParseNonNegative parses a decimal string and rejects negative values.
// An empty string parses as zero, matching optional tax/shipping inputs.
func ParseNonNegative(s string) (decimal.Decimal, error) {
	if s == "" {
		return Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, errors.Wrap(err, "parse amount")
	}
	if d.IsNegative() {
		return Zero, ErrNegativeAmount
	}
	return d, nil
}
