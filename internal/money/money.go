// Package money provides the fixed-point arithmetic every calculation in
// the core goes through: 2 decimal places for amounts, 6 for rates, and
// round-half-to-even applied exactly once to a final result.
package money

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/domain"
)

const (
	AmountScale = 2
	RateScale   = 6
)

// ParseAmount parses a positive monetary string with at most 2 fractional
// digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ParseAmount: %q: %w", s, domain.ErrInvalidAmount)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, fmt.Errorf("ParseAmount: %q: %w", s, err)
	}
	return d, nil
}

// ValidateAmount rejects negative values and values with more than 2
// fractional digits.
func ValidateAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return domain.ErrInvalidAmount
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return domain.ErrInvalidAmount
	}
	return nil
}

func ValidateRate(d decimal.Decimal) error {
	if d.IsNegative() {
		return domain.ErrInvalidRate
	}
	if !d.Equal(d.Truncate(RateScale)) {
		return domain.ErrInvalidRate
	}
	return nil
}

// Round2 applies banker's rounding to 2 decimal places. It must only ever
// be applied to a final result, never to intermediate terms.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(AmountScale)
}

// ApplyRate computes amount x rate with a single final rounding.
func ApplyRate(amount, rate decimal.Decimal) decimal.Decimal {
	return Round2(amount.Mul(rate))
}

type Weight struct {
	ID     string
	Weight decimal.Decimal
}

type Share struct {
	ID     string
	Amount decimal.Decimal
}

// Distribute splits total across the weighted parties so that the shares
// sum to total exactly. Each share is round2(total x w / sumW); any rounding
// remainder goes to the party with the largest weight, ties broken by
// lexicographically smallest ID so the split is reproducible.
func Distribute(total decimal.Decimal, weights []Weight) ([]Share, error) {
	if err := ValidateAmount(total); err != nil {
		return nil, fmt.Errorf("Distribute: total: %w", err)
	}
	if len(weights) == 0 {
		return nil, fmt.Errorf("Distribute: no weights: %w", domain.ErrValidation)
	}

	sumW := decimal.Zero
	for _, w := range weights {
		if w.Weight.IsNegative() {
			return nil, fmt.Errorf("Distribute: weight %s: %w", w.ID, domain.ErrValidation)
		}
		sumW = sumW.Add(w.Weight)
	}
	if sumW.IsZero() {
		return nil, fmt.Errorf("Distribute: zero total weight: %w", domain.ErrValidation)
	}

	shares := make([]Share, len(weights))
	allocated := decimal.Zero
	for i, w := range weights {
		amt := Round2(total.Mul(w.Weight).Div(sumW))
		shares[i] = Share{ID: w.ID, Amount: amt}
		allocated = allocated.Add(amt)
	}

	remainder := total.Sub(allocated)
	if !remainder.IsZero() {
		i := remainderIndex(weights)
		shares[i].Amount = shares[i].Amount.Add(remainder)
	}
	return shares, nil
}

// remainderIndex picks the largest-weight party, lexicographically smallest
// ID on ties.
func remainderIndex(weights []Weight) int {
	idx := make([]int, len(weights))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		wa, wb := weights[idx[a]], weights[idx[b]]
		if !wa.Weight.Equal(wb.Weight) {
			return wa.Weight.GreaterThan(wb.Weight)
		}
		return wa.ID < wb.ID
	})
	return idx[0]
}
