package settlement

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/money"
)

// MemberInput is everything the payout math needs for one member, all of it
// replayed from the ledger and the obligation/loan tables.
type MemberInput struct {
	MemberID             uuid.UUID
	Weight               decimal.Decimal
	PaidContributions    decimal.Decimal
	OutstandingPrincipal decimal.Decimal
	UnpaidInterest       decimal.Decimal
	UnpaidDues           decimal.Decimal
}

// ComputeLines is the pure dissolution calculation:
//
//	interestShare = round2(pool x weight / totalWeight), remainder to the
//	                largest weight
//	gross         = paidContributions + interestShare
//	net           = gross - outstandingPrincipal - unpaidInterest - unpaidDues
//
// Lines come back ordered by member ID so recalculation is reproducible.
func ComputeLines(interestPool decimal.Decimal, members []MemberInput) ([]domain.SettlementLine, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("ComputeLines: no members: %w", domain.ErrValidation)
	}

	sorted := make([]MemberInput, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MemberID.String() < sorted[j].MemberID.String()
	})

	weights := make([]money.Weight, len(sorted))
	for i, m := range sorted {
		weights[i] = money.Weight{ID: m.MemberID.String(), Weight: m.Weight}
	}

	shares, err := money.Distribute(interestPool, weights)
	if err != nil {
		return nil, fmt.Errorf("ComputeLines: %w", err)
	}

	lines := make([]domain.SettlementLine, len(sorted))
	for i, m := range sorted {
		gross := m.PaidContributions.Add(shares[i].Amount)
		net := gross.Sub(m.OutstandingPrincipal).Sub(m.UnpaidInterest).Sub(m.UnpaidDues)
		lines[i] = domain.SettlementLine{
			ID:                   uuid.New(),
			MemberID:             m.MemberID,
			Weight:               m.Weight,
			PaidContributions:    m.PaidContributions,
			InterestShare:        shares[i].Amount,
			OutstandingPrincipal: m.OutstandingPrincipal,
			UnpaidInterest:       m.UnpaidInterest,
			UnpaidDues:           m.UnpaidDues,
			GrossPayout:          gross,
			NetPayout:            net,
		}
	}
	return lines, nil
}

// BlockingLines lists every member whose net payout is negative; a single
// entry blocks confirmation of the whole settlement.
func BlockingLines(lines []domain.SettlementLine) []domain.BlockingLine {
	var blocking []domain.BlockingLine
	for _, l := range lines {
		if l.NetPayout.IsNegative() {
			blocking = append(blocking, domain.BlockingLine{
				MemberID:  l.MemberID,
				NetPayout: l.NetPayout,
				Shortfall: l.NetPayout.Neg(),
			})
		}
	}
	return blocking
}

// NegativePayoutError carries the full blocking report back to the caller.
type NegativePayoutError struct {
	Blocking []domain.BlockingLine
}

func (e *NegativePayoutError) Error() string {
	return fmt.Sprintf("settlement blocked by %d negative net payouts", len(e.Blocking))
}

func (e *NegativePayoutError) Unwrap() error {
	return domain.ErrNegativePayout
}
