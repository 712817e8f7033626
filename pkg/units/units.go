// Package units converts between the ledger's smallest integer unit and the
// human-readable unit.
package units

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LamportsPerUnit is the fixed ratio between the human unit and the smallest unit.
const LamportsPerUnit int64 = 1_000_000_000

var perUnit = decimal.NewFromInt(LamportsPerUnit)

// ToUnits converts a smallest-unit amount to the human unit. Exact.
func ToUnits(smallest int64) decimal.Decimal {
	return decimal.NewFromInt(smallest).Div(perUnit)
}

// FromUnits converts a human-unit amount to the smallest unit, truncating
// any fraction below one smallest unit toward zero.
func FromUnits(u decimal.Decimal) int64 {
	return u.Mul(perUnit).Truncate(0).IntPart()
}

// ParseUnits parses a decimal string in the human unit.
func ParseUnits(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromUnits(d), nil
}

// Format renders a smallest-unit amount in the human unit without trailing zeros.
func Format(smallest int64) string {
	return ToUnits(smallest).String()
}
