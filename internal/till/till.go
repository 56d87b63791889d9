// Package till counts the cash drawer by denomination and compares the count
// with what the ledger says should be there.
package till

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"vereinskasse/backend/internal/money"
)

var ErrUnknownDenomination = errors.New("unknown denomination")

// MaxCount is the largest count accepted per denomination. Larger input is
// treated like any other invalid count.
const MaxCount = 1_000_000

// DefaultDenominations are the euro notes and coins the venue counts, largest
// first. Coins below ten cents are not kept in the drawer.
var DefaultDenominations = []money.Cents{
	20000, 10000, 5000, 2000, 1000, 500, 200, 100, 50, 20, 10,
}

// maxDenomination keeps count × denomination far from the int64 range.
const maxDenomination = money.Cents(1_000_000)

// ParseDenominations turns labels such as "200" or "0,50" into cents once, so
// later sums never touch fractional values. The result is largest first
// without duplicates.
func ParseDenominations(labels []string) ([]money.Cents, error) {
	denoms := make([]money.Cents, 0, len(labels))
	seen := make(map[money.Cents]struct{}, len(labels))
	for _, label := range labels {
		value, err := money.Parse(label)
		if err != nil {
			return nil, err
		}
		if value <= 0 || value > maxDenomination {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDenomination, label)
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		denoms = append(denoms, value)
	}
	if len(denoms) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrUnknownDenomination)
	}
	slices.SortFunc(denoms, func(a, b money.Cents) int { return cmp.Compare(b, a) })
	return denoms, nil
}

// ParseCounts reads the raw count fields keyed by denomination label. A count
// that is empty, not a whole number or negative counts as zero; a label that
// is not one of denoms is rejected.
func ParseCounts(raw map[string]string, denoms []money.Cents) (map[money.Cents]int64, error) {
	allowed := make(map[money.Cents]struct{}, len(denoms))
	for _, d := range denoms {
		allowed[d] = struct{}{}
	}

	counts := make(map[money.Cents]int64, len(raw))
	for label, value := range raw {
		denom, err := money.Parse(label)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDenomination, label)
		}
		if _, ok := allowed[denom]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDenomination, label)
		}
		n := parseCount(value)
		if n == 0 {
			continue
		}
		counts[denom] += n
	}
	return counts, nil
}

// CountTotal is Σ count × denomination over denoms. Counts for anything not in
// denoms, and counts outside [1, MaxCount], are ignored. The total saturates
// at math.MaxInt64 instead of wrapping.
func CountTotal(counts map[money.Cents]int64, denoms []money.Cents) money.Cents {
	var total money.Cents
	for _, d := range denoms {
		n := counts[d]
		if n <= 0 || n > MaxCount || d <= 0 || d > maxDenomination {
			continue
		}
		line := money.Cents(n) * d
		if total > math.MaxInt64-line {
			return math.MaxInt64
		}
		total += line
	}
	return total
}

// Reconcile returns counted minus expected: positive means surplus in the
// drawer, negative means cash is missing.
func Reconcile(counted money.Cents, expected money.Cents) money.Cents {
	return counted - expected
}

func parseCount(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 || n > MaxCount {
		return 0
	}
	return n
}
