// Package money keeps every amount as integer minor units (cents) and turns
// free-text input from the register into cents exactly once.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Cents is an amount in the smallest currency unit.
type Cents int64

// MaxAmount is the largest amount, in either sign, the register accepts as
// input: ten million euros. Sums of many such amounts still fit in int64.
const MaxAmount Cents = 1_000_000_000

var ErrInvalidAmount = errors.New("invalid amount")

var (
	hundred   = decimal.NewFromInt(100)
	maxAmount = decimal.NewFromInt(int64(MaxAmount))
)

// Parse reads amounts typed as "4,50", "4.50", "1.234,56" or "1,234.56".
// The value is rounded half away from zero to whole cents.
func Parse(raw string) (Cents, error) {
	normalized := normalize(raw)
	if normalized == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return FromDecimal(d)
}

// ParseLenient is Parse for input fields where empty, invalid or negative
// input counts as zero.
func ParseLenient(raw string) Cents {
	c, err := Parse(raw)
	if err != nil || c < 0 {
		return 0
	}
	return c
}

// FromDecimal rounds a currency value to cents. Values beyond MaxAmount are
// rejected instead of wrapping around.
func FromDecimal(d decimal.Decimal) (Cents, error) {
	cents := d.Mul(hundred).Round(0)
	if cents.Abs().GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%w: %s exceeds %s", ErrInvalidAmount, d.String(), MaxAmount)
	}
	return Cents(cents.IntPart()), nil
}

func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String renders the amount with two fraction digits, e.g. "9.00".
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

func Max(a Cents, b Cents) Cents {
	if a > b {
		return a
	}
	return b
}

func Clamp(v Cents, lo Cents, hi Cents) Cents {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "€")
	s = strings.TrimPrefix(s, "€")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		// whichever separator comes last is the decimal mark
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return s
		}
		s = strings.Replace(s, ",", ".", 1)
	}
	return s
}
