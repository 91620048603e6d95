package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chamaflow/fundcore/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{name: "whole amount", in: "5000", want: "5000"},
		{name: "two decimals", in: "1234.56", want: "1234.56"},
		{name: "zero", in: "0", want: "0"},
		{name: "three decimals", in: "10.505", wantErr: domain.ErrInvalidAmount},
		{name: "negative", in: "-1.00", wantErr: domain.ErrInvalidAmount},
		{name: "garbage", in: "ten", wantErr: domain.ErrInvalidAmount},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.in)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tc.want)), "got %s, want %s", got, tc.want)
		})
	}
}

func TestRound2Bankers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2.675", "2.68"},
		{"2.665", "2.66"},
		{"2.685", "2.68"},
		{"0.005", "0.00"},
		{"0.015", "0.02"},
		{"1000.004", "1000.00"},
		{"1000.006", "1000.01"},
	}

	for _, tc := range tests {
		got := Round2(d(tc.in))
		assert.True(t, got.Equal(d(tc.want)), "Round2(%s): got %s, want %s", tc.in, got, tc.want)
	}
}

func TestApplyRate(t *testing.T) {
	// 50,000 at 2% monthly: the month-1 interest of the worked loan example.
	got := ApplyRate(d("50000"), d("0.02"))
	assert.True(t, got.Equal(d("1000.00")), "got %s", got)

	// Rounding happens once, on the final product.
	got = ApplyRate(d("800"), d("0.02"))
	assert.True(t, got.Equal(d("16.00")), "got %s", got)
}

func TestDistributeExact(t *testing.T) {
	// Interest pool 30,000 over weights 1,000/2,000/3,000 splits with zero
	// rounding drift.
	shares, err := Distribute(d("30000"), []Weight{
		{ID: "alice", Weight: d("1000")},
		{ID: "bob", Weight: d("2000")},
		{ID: "carol", Weight: d("3000")},
	})
	require.NoError(t, err)
	require.Len(t, shares, 3)

	assert.True(t, shares[0].Amount.Equal(d("5000.00")), "alice: %s", shares[0].Amount)
	assert.True(t, shares[1].Amount.Equal(d("10000.00")), "bob: %s", shares[1].Amount)
	assert.True(t, shares[2].Amount.Equal(d("15000.00")), "carol: %s", shares[2].Amount)
}

func TestDistributeRemainderToLargestWeight(t *testing.T) {
	// Rounded shares 14.29 + 14.29 + 71.43 overshoot by 0.01; the single
	// largest weight absorbs the correction.
	shares, err := Distribute(d("100"), []Weight{
		{ID: "a", Weight: d("1")},
		{ID: "b", Weight: d("1")},
		{ID: "c", Weight: d("5")},
	})
	require.NoError(t, err)

	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s.Amount)
	}
	assert.True(t, sum.Equal(d("100")), "shares must sum to total, got %s", sum)
	assert.True(t, shares[0].Amount.Equal(d("14.29")), "a: %s", shares[0].Amount)
	assert.True(t, shares[1].Amount.Equal(d("14.29")), "b: %s", shares[1].Amount)
	assert.True(t, shares[2].Amount.Equal(d("71.42")), "c: %s", shares[2].Amount)
}

func TestDistributeRemainderTieBreak(t *testing.T) {
	// All weights equal: remainder goes to the lexicographically smallest ID,
	// regardless of input order.
	shares, err := Distribute(d("100"), []Weight{
		{ID: "zeta", Weight: d("1")},
		{ID: "alpha", Weight: d("1")},
		{ID: "mike", Weight: d("1")},
	})
	require.NoError(t, err)

	// Equal thirds round to 33.33 each, remainder 0.01 -> "alpha".
	assert.True(t, shares[0].Amount.Equal(d("33.33")), "zeta: %s", shares[0].Amount)
	assert.True(t, shares[1].Amount.Equal(d("33.34")), "alpha: %s", shares[1].Amount)
	assert.True(t, shares[2].Amount.Equal(d("33.33")), "mike: %s", shares[2].Amount)
}

func TestDistributeRoundingLaw(t *testing.T) {
	// For a spread of awkward weights the shares always reassemble the total
	// exactly.
	totals := []string{"30000", "100.01", "999.99", "0.01", "7777.77"}
	weights := []Weight{
		{ID: "m1", Weight: d("333")},
		{ID: "m2", Weight: d("1250.50")},
		{ID: "m3", Weight: d("71")},
		{ID: "m4", Weight: d("2048")},
	}

	for _, total := range totals {
		shares, err := Distribute(d(total), weights)
		require.NoError(t, err)

		sum := decimal.Zero
		for _, s := range shares {
			sum = sum.Add(s.Amount)
		}
		assert.True(t, sum.Equal(d(total)), "total %s: shares sum to %s", total, sum)
	}
}

func TestDistributeValidation(t *testing.T) {
	_, err := Distribute(d("100"), nil)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = Distribute(d("100"), []Weight{{ID: "a", Weight: d("0")}})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = Distribute(d("100"), []Weight{{ID: "a", Weight: d("-1")}})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = Distribute(d("100.005"), []Weight{{ID: "a", Weight: d("1")}})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}
