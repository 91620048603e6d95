package settlement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chamaflow/fundcore/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func member(n byte) uuid.UUID {
	return uuid.UUID{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, n}
}

func TestComputeLinesWorkedExample(t *testing.T) {
	// Interest pool 30,000 over weights 1,000 / 2,000 / 3,000 must split
	// 5,000 / 10,000 / 15,000 with zero drift.
	inputs := []MemberInput{
		{MemberID: member(1), Weight: d("1000"), PaidContributions: d("12000")},
		{MemberID: member(2), Weight: d("2000"), PaidContributions: d("24000")},
		{MemberID: member(3), Weight: d("3000"), PaidContributions: d("36000")},
	}
	for i := range inputs {
		inputs[i].OutstandingPrincipal = decimal.Zero
		inputs[i].UnpaidInterest = decimal.Zero
		inputs[i].UnpaidDues = decimal.Zero
	}

	lines, err := ComputeLines(d("30000"), inputs)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	wantShares := []string{"5000.00", "10000.00", "15000.00"}
	wantGross := []string{"17000.00", "34000.00", "51000.00"}
	sum := decimal.Zero
	for i, l := range lines {
		assert.True(t, l.InterestShare.Equal(d(wantShares[i])), "share %d: %s", i, l.InterestShare)
		assert.True(t, l.GrossPayout.Equal(d(wantGross[i])), "gross %d: %s", i, l.GrossPayout)
		assert.True(t, l.NetPayout.Equal(l.GrossPayout), "no deductions, net == gross")
		sum = sum.Add(l.InterestShare)
	}
	assert.True(t, sum.Equal(d("30000")), "shares sum to %s", sum)
}

func TestComputeLinesDeductions(t *testing.T) {
	inputs := []MemberInput{
		{
			MemberID:             member(1),
			Weight:               d("1000"),
			PaidContributions:    d("10000"),
			OutstandingPrincipal: d("4000"),
			UnpaidInterest:       d("80"),
			UnpaidDues:           d("1000"),
		},
		{
			MemberID:          member(2),
			Weight:            d("1000"),
			PaidContributions: d("12000"),
		},
	}

	lines, err := ComputeLines(d("2000"), inputs)
	require.NoError(t, err)

	// Member 1: 10,000 + 1,000 - 4,000 - 80 - 1,000 = 5,920.
	assert.True(t, lines[0].InterestShare.Equal(d("1000.00")), "share: %s", lines[0].InterestShare)
	assert.True(t, lines[0].NetPayout.Equal(d("5920.00")), "net: %s", lines[0].NetPayout)
	// Member 2: 12,000 + 1,000 = 13,000.
	assert.True(t, lines[1].NetPayout.Equal(d("13000.00")), "net: %s", lines[1].NetPayout)
}

func TestComputeLinesOrderedByMemberID(t *testing.T) {
	inputs := []MemberInput{
		{MemberID: member(9), Weight: d("100"), PaidContributions: d("0")},
		{MemberID: member(2), Weight: d("100"), PaidContributions: d("0")},
		{MemberID: member(5), Weight: d("100"), PaidContributions: d("0")},
	}

	lines, err := ComputeLines(d("300"), inputs)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, member(2), lines[0].MemberID)
	assert.Equal(t, member(5), lines[1].MemberID)
	assert.Equal(t, member(9), lines[2].MemberID)
}

func TestBlockingLines(t *testing.T) {
	lines := []domain.SettlementLine{
		{MemberID: member(1), NetPayout: d("100.00")},
		{MemberID: member(2), NetPayout: d("-250.50")},
		{MemberID: member(3), NetPayout: d("0")},
		{MemberID: member(4), NetPayout: d("-0.01")},
	}

	blocking := BlockingLines(lines)
	require.Len(t, blocking, 2)

	assert.Equal(t, member(2), blocking[0].MemberID)
	assert.True(t, blocking[0].Shortfall.Equal(d("250.50")), "shortfall: %s", blocking[0].Shortfall)
	assert.Equal(t, member(4), blocking[1].MemberID)
	assert.True(t, blocking[1].Shortfall.Equal(d("0.01")), "shortfall: %s", blocking[1].Shortfall)
}

func TestNegativePayoutErrorUnwraps(t *testing.T) {
	err := &NegativePayoutError{Blocking: []domain.BlockingLine{
		{MemberID: member(2), NetPayout: d("-5")},
	}}
	require.ErrorIs(t, err, domain.ErrNegativePayout)
}

func TestComputeLinesEmpty(t *testing.T) {
	_, err := ComputeLines(d("100"), nil)
	require.ErrorIs(t, err, domain.ErrValidation)
}
