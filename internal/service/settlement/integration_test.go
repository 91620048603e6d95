package settlement_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/repository"
	"github.com/chamaflow/fundcore/internal/service/settlement"
	"github.com/chamaflow/fundcore/internal/testutil"
)

func setupSettlement(t *testing.T, db *sql.DB) *settlement.Service {
	t.Helper()
	return settlement.NewService(
		repository.NewMemberRepository(db),
		repository.NewLedgerRepository(db),
		repository.NewLoanRepository(db),
		repository.NewObligationRepository(db),
		repository.NewSettlementRepository(db),
		repository.NewFundRepository(db),
		repository.NewOutboxRepository(db),
		db,
	)
}

func seedContributionEntry(t *testing.T, db *sql.DB, fundID, memberID uuid.UUID, amount string) {
	t.Helper()
	testutil.SeedLedgerEntry(t, db, &domain.LedgerEntry{
		FundID:         fundID,
		MemberID:       memberID,
		Kind:           domain.EntryKindContribution,
		Amount:         decimal.RequireFromString(amount),
		IdempotencyKey: uuid.NewString(),
		RefType:        domain.RefTypeObligation,
		RefID:          uuid.New(),
	})
}

func seedInterestEntry(t *testing.T, db *sql.DB, fundID, memberID uuid.UUID, amount string) {
	t.Helper()
	testutil.SeedLedgerEntry(t, db, &domain.LedgerEntry{
		FundID:         fundID,
		MemberID:       memberID,
		Kind:           domain.EntryKindInterestIncome,
		Amount:         decimal.RequireFromString(amount),
		IdempotencyKey: uuid.NewString(),
		RefType:        domain.RefTypeObligation,
		RefID:          uuid.New(),
	})
}

func TestRecalculate_DistributesInterestByWeight(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlement(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	a := testutil.SeedMember(t, db, fund.ID, "Amina", "1000.00")
	b := testutil.SeedMember(t, db, fund.ID, "Brian", "2000.00")
	c := testutil.SeedMember(t, db, fund.ID, "Carol", "3000.00")

	seedContributionEntry(t, db, fund.ID, a.ID, "12000.00")
	seedContributionEntry(t, db, fund.ID, b.ID, "24000.00")
	seedContributionEntry(t, db, fund.ID, c.ID, "36000.00")
	seedInterestEntry(t, db, fund.ID, a.ID, "30000.00")

	report, err := svc.Recalculate(ctx, fund.ID)
	require.NoError(t, err)
	require.Len(t, report.Lines, 3)
	assert.Empty(t, report.Blocking)
	assert.True(t, report.Settlement.InterestPool.Equal(decimal.RequireFromString("30000.00")))
	assert.True(t, report.Settlement.TotalWeight.Equal(decimal.RequireFromString("6000.00")))

	// Shares by weight: 5000 / 10000 / 15000; lines ordered by member ID.
	byMember := map[uuid.UUID]domain.SettlementLine{}
	for _, line := range report.Lines {
		byMember[line.MemberID] = line
	}
	assert.True(t, byMember[a.ID].InterestShare.Equal(decimal.RequireFromString("5000.00")))
	assert.True(t, byMember[b.ID].InterestShare.Equal(decimal.RequireFromString("10000.00")))
	assert.True(t, byMember[c.ID].InterestShare.Equal(decimal.RequireFromString("15000.00")))

	// Sum of shares equals the pool exactly.
	sum := decimal.Zero
	for _, line := range report.Lines {
		sum = sum.Add(line.InterestShare)
	}
	assert.True(t, sum.Equal(report.Settlement.InterestPool))

	assert.True(t, byMember[a.ID].GrossPayout.Equal(decimal.RequireFromString("17000.00")))
	assert.True(t, byMember[a.ID].NetPayout.Equal(decimal.RequireFromString("17000.00")))
}

func TestRecalculate_IsRepeatableBeforeConfirmation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlement(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "1000.00")
	seedContributionEntry(t, db, fund.ID, member.ID, "12000.00")

	first, err := svc.Recalculate(ctx, fund.ID)
	require.NoError(t, err)

	// New ledger activity lands between recalculations.
	seedContributionEntry(t, db, fund.ID, member.ID, "1000.00")

	second, err := svc.Recalculate(ctx, fund.ID)
	require.NoError(t, err)
	assert.True(t, second.Lines[0].PaidContributions.Equal(
		first.Lines[0].PaidContributions.Add(decimal.RequireFromString("1000.00"))))

	// Only one settlement row per fund.
	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM settlements WHERE fund_id = $1`, fund.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConfirm_WritesPayoutEntriesAndDissolvesFund(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlement(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	a := testutil.SeedMember(t, db, fund.ID, "Amina", "1000.00")
	b := testutil.SeedMember(t, db, fund.ID, "Brian", "1000.00")
	seedContributionEntry(t, db, fund.ID, a.ID, "12000.00")
	seedContributionEntry(t, db, fund.ID, b.ID, "12000.00")
	seedInterestEntry(t, db, fund.ID, a.ID, "1000.00")

	_, err := svc.Recalculate(ctx, fund.ID)
	require.NoError(t, err)
	_, err = svc.Review(ctx, fund.ID)
	require.NoError(t, err)

	report, err := svc.Confirm(ctx, settlement.ConfirmRequest{
		FundID:         fund.ID,
		IdempotencyKey: "settle-1",
		RecordedBy:     "admin:test",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStatusConfirmed, report.Settlement.Status)
	assert.NotNil(t, report.Settlement.ConfirmedAt)

	var payouts int
	err = db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries WHERE fund_id = $1 AND kind = 'settlement'`,
		fund.ID,
	).Scan(&payouts)
	require.NoError(t, err)
	assert.Equal(t, 2, payouts)

	var fundStatus string
	err = db.QueryRow(`SELECT status FROM funds WHERE id = $1`, fund.ID).Scan(&fundStatus)
	require.NoError(t, err)
	assert.Equal(t, "dissolved", fundStatus)
}

func TestConfirm_BlockedByNegativeNetPayout(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlement(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	a := testutil.SeedMember(t, db, fund.ID, "Amina", "1000.00")
	seedContributionEntry(t, db, fund.ID, a.ID, "1000.00")
	// Outstanding loan principal larger than everything owed back.
	testutil.SeedActiveLoan(t, db, fund.ID, a.ID, "5000.00", "0.02", "1000.00", "1000.00")

	report, err := svc.Recalculate(ctx, fund.ID)
	require.NoError(t, err)
	require.NotEmpty(t, report.Blocking)

	_, err = svc.Review(ctx, fund.ID)
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, settlement.ConfirmRequest{
		FundID:         fund.ID,
		IdempotencyKey: "settle-1",
		RecordedBy:     "admin:test",
	})
	require.ErrorIs(t, err, domain.ErrNegativePayout)

	var negErr *settlement.NegativePayoutError
	require.ErrorAs(t, err, &negErr)
	require.Len(t, negErr.Blocking, 1)
	assert.Equal(t, a.ID, negErr.Blocking[0].MemberID)
	assert.True(t, negErr.Blocking[0].Shortfall.IsPositive())

	// Nothing written, nothing dissolved.
	var payouts int
	err = db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries WHERE fund_id = $1 AND kind = 'settlement'`,
		fund.ID,
	).Scan(&payouts)
	require.NoError(t, err)
	assert.Equal(t, 0, payouts)
}

func TestRecalculate_FrozenAfterConfirmation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlement(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	a := testutil.SeedMember(t, db, fund.ID, "Amina", "1000.00")
	seedContributionEntry(t, db, fund.ID, a.ID, "12000.00")

	_, err := svc.Recalculate(ctx, fund.ID)
	require.NoError(t, err)
	_, err = svc.Review(ctx, fund.ID)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, settlement.ConfirmRequest{
		FundID:         fund.ID,
		IdempotencyKey: "settle-1",
		RecordedBy:     "admin:test",
	})
	require.NoError(t, err)

	_, err = svc.Recalculate(ctx, fund.ID)
	require.ErrorIs(t, err, domain.ErrSettlementFrozen)

	_, err = svc.Confirm(ctx, settlement.ConfirmRequest{
		FundID:         fund.ID,
		IdempotencyKey: "settle-2",
		RecordedBy:     "admin:test",
	})
	require.ErrorIs(t, err, domain.ErrSettlementFrozen)
}
