package schedule

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/money"
)

// Installment is one month's due on a reducing-balance loan.
type Installment struct {
	Interest  decimal.Decimal
	Principal decimal.Decimal
	Total     decimal.Decimal
}

// ComputeInstallment derives the month's due from the currently outstanding
// principal:
//
//	interest  = round2(outstanding x rate)
//	principal = min(max(minPrincipal, scheduled), outstanding)
//
// The principal floor never pushes the installment past the remaining
// balance, so the final installment pays the loan off exactly. A zero
// outstanding balance yields no installment; the caller closes the loan
// instead.
func ComputeInstallment(outstanding, rate, minPrincipal, scheduled decimal.Decimal) (Installment, error) {
	if err := money.ValidateAmount(outstanding); err != nil {
		return Installment{}, fmt.Errorf("ComputeInstallment: outstanding: %w", err)
	}
	if err := money.ValidateRate(rate); err != nil {
		return Installment{}, fmt.Errorf("ComputeInstallment: rate: %w", err)
	}
	if minPrincipal.IsNegative() || scheduled.IsNegative() {
		return Installment{}, fmt.Errorf("ComputeInstallment: %w", domain.ErrInvalidAmount)
	}
	if outstanding.IsZero() {
		return Installment{}, fmt.Errorf("ComputeInstallment: %w", domain.ErrLoanClosed)
	}

	interest := money.ApplyRate(outstanding, rate)

	principal := minPrincipal
	if scheduled.GreaterThan(principal) {
		principal = scheduled
	}
	if principal.GreaterThan(outstanding) {
		principal = outstanding
	}

	return Installment{
		Interest:  interest,
		Principal: principal,
		Total:     interest.Add(principal),
	}, nil
}
