// Package money represents amounts as an integer count of cents. Floating
// point never touches an amount: parsing and percentage scaling go through
// decimal arithmetic, and every fractional result is rounded to the nearest
// cent with ties rounding up (toward +infinity).
package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in cents. Negative values represent debits/refunds.
type Money int64

var ErrInvalidAmount = errors.New("invalid amount")

var (
	oneHundred = decimal.NewFromInt(100)
	half       = decimal.New(5, -1) // 0.5
)

// roundHalfUpToInt rounds d to the nearest integer with ties toward
// +infinity: 0.5 -> 1, -0.5 -> 0, 1.5 -> 2.
func roundHalfUpToInt(d decimal.Decimal) int64 {
	return d.Add(half).Floor().IntPart()
}

// FromCents wraps a raw cent count.
func FromCents(cents int64) Money { return Money(cents) }

// Cents returns the raw cent count.
func (m Money) Cents() int64 { return int64(m) }

// Parse converts a human-readable decimal amount ("12.34", "-0.5") into
// cents, rounding half-up on the boundary cent.
func Parse(input string) (Money, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, input)
	}
	return Money(roundHalfUpToInt(d.Mul(oneHundred))), nil
}

// Format renders the amount for display with thousands separators and a
// fixed two-digit fraction: 123456 -> "$1,234.56", -50 -> "-$0.50",
// 0 -> "$0.00".
func (m Money) Format() string {
	cents := int64(m)
	var sign string
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100
	return fmt.Sprintf("%s$%s.%02d", sign, groupThousands(whole), frac)
}

// String implements fmt.Stringer using Format.
func (m Money) String() string { return m.Format() }

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// Add returns m + other.
func (m Money) Add(other Money) Money { return m + other }

// Sub returns m - other.
func (m Money) Sub(other Money) Money { return m - other }

// Cmp compares three-way: -1 if m < other, 0 if equal, +1 if m > other.
func (m Money) Cmp(other Money) int {
	switch {
	case m < other:
		return -1
	case m > other:
		return 1
	default:
		return 0
	}
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// Sign reports -1 for negative amounts, 0 for zero, +1 for positive.
func (m Money) Sign() int {
	switch {
	case m < 0:
		return -1
	case m > 0:
		return 1
	default:
		return 0
	}
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m < 0 }

// Scale returns m scaled by a percentage expressed as a decimal number
// (15.5 means 15.5%), rounded half-up to the nearest cent. Scaling by 0
// returns zero; there is no silent truncation on fractional results.
func (m Money) Scale(percent float64) Money {
	if percent == 0 {
		return 0
	}
	// Shift(-2) divides by 100 exactly; Div would round at a fixed
	// precision and could disturb the half-cent boundary.
	factor := decimal.NewFromFloat(percent).Shift(-2)
	scaled := decimal.NewFromInt(int64(m)).Mul(factor)
	return Money(roundHalfUpToInt(scaled))
}

// ApplyMarkup returns m plus percent of m: ApplyMarkup(a, 0) == a, and
// ApplyMarkup(a, p) == a + Scale(a, p) for all a.
func (m Money) ApplyMarkup(percent float64) Money {
	return m + m.Scale(percent)
}
