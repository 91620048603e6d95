package schedule

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chamaflow/fundcore/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeInstallment(t *testing.T) {
	tests := []struct {
		name          string
		outstanding   string
		rate          string
		minPrincipal  string
		scheduled     string
		wantInterest  string
		wantPrincipal string
		wantTotal     string
		wantErr       error
	}{
		{
			name:          "month one of 50k at 2 percent",
			outstanding:   "50000",
			rate:          "0.02",
			minPrincipal:  "1000",
			scheduled:     "1000",
			wantInterest:  "1000.00",
			wantPrincipal: "1000",
			wantTotal:     "2000.00",
		},
		{
			name:          "scheduled above floor wins",
			outstanding:   "50000",
			rate:          "0.02",
			minPrincipal:  "1000",
			scheduled:     "2500",
			wantInterest:  "1000.00",
			wantPrincipal: "2500",
			wantTotal:     "3500.00",
		},
		{
			name:          "final installment capped at outstanding",
			outstanding:   "800.00",
			rate:          "0.02",
			minPrincipal:  "1000.00",
			scheduled:     "1000.00",
			wantInterest:  "16.00",
			wantPrincipal: "800.00",
			wantTotal:     "816.00",
		},
		{
			name:          "interest uses bankers rounding",
			outstanding:   "818.75",
			rate:          "0.02",
			minPrincipal:  "100",
			scheduled:     "100",
			wantInterest:  "16.38",
			wantPrincipal: "100",
			wantTotal:     "116.38",
		},
		{
			name:         "zero outstanding means closed loan",
			outstanding:  "0",
			rate:         "0.02",
			minPrincipal: "1000",
			scheduled:    "1000",
			wantErr:      domain.ErrLoanClosed,
		},
		{
			name:         "rate with too many digits rejected",
			outstanding:  "1000",
			rate:         "0.0200001",
			minPrincipal: "100",
			scheduled:    "100",
			wantErr:      domain.ErrInvalidRate,
		},
		{
			name:         "negative floor rejected",
			outstanding:  "1000",
			rate:         "0.02",
			minPrincipal: "-1",
			scheduled:    "100",
			wantErr:      domain.ErrInvalidAmount,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeInstallment(d(tc.outstanding), d(tc.rate), d(tc.minPrincipal), d(tc.scheduled))

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			assert.True(t, got.Interest.Equal(d(tc.wantInterest)), "interest: %s", got.Interest)
			assert.True(t, got.Principal.Equal(d(tc.wantPrincipal)), "principal: %s", got.Principal)
			assert.True(t, got.Total.Equal(d(tc.wantTotal)), "total: %s", got.Total)
		})
	}
}

func TestReducingBalanceRunsToZero(t *testing.T) {
	// Replaying installments against a shrinking balance must terminate at
	// exactly zero with no residual cents.
	outstanding := d("5000")
	rate := d("0.02")
	floor := d("1000")

	months := 0
	for !outstanding.IsZero() {
		inst, err := ComputeInstallment(outstanding, rate, floor, floor)
		require.NoError(t, err)
		outstanding = outstanding.Sub(inst.Principal)
		require.False(t, outstanding.IsNegative(), "balance went negative")
		months++
		require.LessOrEqual(t, months, 6, "did not terminate")
	}

	assert.Equal(t, 5, months)
	assert.True(t, outstanding.IsZero())
}
