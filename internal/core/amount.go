package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount coerces a user supplied amount into a decimal.
//
// Both dot (4.50) and comma (4,50) decimal separators are accepted. When
// both appear, commas are treated as thousands separators (1,234.50).
// Signed values are allowed; blank or non-numeric input yields
// ErrInvalidAmount, as does any value too large to store as a float64
// ledger cell.
//
//	ParseAmount("4.50")     -> 4.5
//	ParseAmount("4,50")     -> 4.5
//	ParseAmount("1,234.50") -> 1234.5
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrMissingAmount
	}
	if strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !IsFiniteAmount(d) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// IsFiniteAmount reports whether d survives conversion to a float64.
// Spreadsheet backends store amounts as doubles, so anything that
// overflows to ±Inf cannot be written back faithfully.
func IsFiniteAmount(d decimal.Decimal) bool {
	f := d.InexactFloat64()
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}
