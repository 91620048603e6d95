package schedule_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/repository"
	"github.com/chamaflow/fundcore/internal/service/schedule"
	"github.com/chamaflow/fundcore/internal/testutil"
)

func setupGenerator(t *testing.T, db *sql.DB) *schedule.Generator {
	t.Helper()
	return schedule.NewGenerator(
		repository.NewMemberRepository(db),
		repository.NewLoanRepository(db),
		repository.NewObligationRepository(db),
		repository.NewFundRepository(db),
		repository.NewOutboxRepository(db),
		db,
	)
}

func TestGenerateContributionDues_IsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	gen := setupGenerator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	testutil.SeedMember(t, db, fund.ID, "Brian", "3000.00")

	first, err := gen.GenerateContributionDues(ctx, fund.ID, "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 0, first.Skipped)

	second, err := gen.GenerateContributionDues(ctx, fund.ID, "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Skipped)

	var count int
	err = db.QueryRow(
		`SELECT COUNT(*) FROM obligations WHERE fund_id = $1 AND period = '2026-08'`,
		fund.ID,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGenerateContributionDues_UsesMemberContribution(t *testing.T) {
	db := testutil.SetupTestDB(t)
	gen := setupGenerator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")

	_, err := gen.GenerateContributionDues(ctx, fund.ID, "2026-08")
	require.NoError(t, err)

	var amountDue decimal.Decimal
	var dueDate time.Time
	err = db.QueryRow(
		`SELECT amount_due, due_date FROM obligations WHERE fund_id = $1 AND member_id = $2`,
		fund.ID, member.ID,
	).Scan(&amountDue, &dueDate)
	require.NoError(t, err)
	assert.True(t, amountDue.Equal(decimal.RequireFromString("5000.00")))
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), dueDate.UTC())
}

func TestGenerateRepaymentInstallments_ComputesFromLoanSnapshot(t *testing.T) {
	db := testutil.SetupTestDB(t)
	gen := setupGenerator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	loan := testutil.SeedActiveLoan(t, db, fund.ID, member.ID, "50000.00", "0.02", "1000.00", "1000.00")

	res, err := gen.GenerateRepaymentInstallments(ctx, fund.ID, "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	var interestDue, principalDue, amountDue decimal.Decimal
	err = db.QueryRow(
		`SELECT interest_due, principal_due, amount_due FROM obligations WHERE loan_id = $1`,
		loan.ID,
	).Scan(&interestDue, &principalDue, &amountDue)
	require.NoError(t, err)
	// 50000 * 0.02 = 1000 interest; scheduled principal 1000.
	assert.True(t, interestDue.Equal(decimal.RequireFromString("1000.00")))
	assert.True(t, principalDue.Equal(decimal.RequireFromString("1000.00")))
	assert.True(t, amountDue.Equal(decimal.RequireFromString("2000.00")))
}

func TestGenerateRepaymentInstallments_ClosesRepaidLoans(t *testing.T) {
	db := testutil.SetupTestDB(t)
	gen := setupGenerator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	loan := testutil.SeedActiveLoan(t, db, fund.ID, member.ID, "1000.00", "0.02", "1000.00", "1000.00")
	_, err := db.Exec(`UPDATE loans SET outstanding_principal = 0 WHERE id = $1`, loan.ID)
	require.NoError(t, err)

	res, err := gen.GenerateRepaymentInstallments(ctx, fund.ID, "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)

	stored := testutil.GetLoan(t, db, loan.ID)
	assert.Equal(t, domain.LoanStatusClosed, stored.Status)
	assert.NotNil(t, stored.ClosedAt)

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM obligations WHERE loan_id = $1`, loan.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMarkLateContributions_RespectsGracePeriod(t *testing.T) {
	db := testutil.SetupTestDB(t)
	gen := setupGenerator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	testutil.SeedFundConfig(t, db, fund.ID, "0.02", "1000.00", 5)
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")

	now := time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC)
	lapsed := testutil.SeedObligation(t, db, &domain.Obligation{
		FundID:    fund.ID,
		MemberID:  member.ID,
		Kind:      domain.ObligationKindContribution,
		Period:    "2026-08",
		AmountDue: decimal.RequireFromString("5000.00"),
		Status:    domain.ObligationStatusPending,
		DueDate:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	inGrace := testutil.SeedObligation(t, db, &domain.Obligation{
		FundID:    fund.ID,
		MemberID:  member.ID,
		Kind:      domain.ObligationKindContribution,
		Period:    "2026-09",
		AmountDue: decimal.RequireFromString("5000.00"),
		Status:    domain.ObligationStatusPending,
		DueDate:   time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC),
	})

	res, err := gen.MarkLateContributions(ctx, fund.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Transitioned)

	assert.Equal(t, domain.ObligationStatusLate, testutil.GetObligation(t, db, lapsed.ID).Status)
	assert.Equal(t, domain.ObligationStatusPending, testutil.GetObligation(t, db, inGrace.ID).Status)

	// Rerunning transitions nothing new.
	res, err = gen.MarkLateContributions(ctx, fund.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Transitioned)
}

func TestMarkOverdueRepayments(t *testing.T) {
	db := testutil.SetupTestDB(t)
	gen := setupGenerator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	loan := testutil.SeedActiveLoan(t, db, fund.ID, member.ID, "50000.00", "0.02", "1000.00", "1000.00")

	o := testutil.SeedObligation(t, db, &domain.Obligation{
		FundID:       fund.ID,
		MemberID:     member.ID,
		LoanID:       &loan.ID,
		Kind:         domain.ObligationKindRepayment,
		Period:       "2026-08",
		AmountDue:    decimal.RequireFromString("2000.00"),
		InterestDue:  decimal.RequireFromString("1000.00"),
		PrincipalDue: decimal.RequireFromString("1000.00"),
		Status:       domain.ObligationStatusPartial,
		DueDate:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	})

	res, err := gen.MarkOverdueRepayments(ctx, fund.ID, time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Transitioned)
	assert.Equal(t, domain.ObligationStatusOverdue, testutil.GetObligation(t, db, o.ID).Status)
}

func TestClosePeriod_MarksUnpaidContributionsMissed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	gen := setupGenerator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	other := testutil.SeedMember(t, db, fund.ID, "Brian", "3000.00")

	unpaid := testutil.SeedObligation(t, db, &domain.Obligation{
		FundID:    fund.ID,
		MemberID:  member.ID,
		Kind:      domain.ObligationKindContribution,
		Period:    "2026-08",
		AmountDue: decimal.RequireFromString("5000.00"),
		Status:    domain.ObligationStatusLate,
		DueDate:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	paid := testutil.SeedObligation(t, db, &domain.Obligation{
		FundID:     fund.ID,
		MemberID:   other.ID,
		Kind:       domain.ObligationKindContribution,
		Period:     "2026-08",
		AmountDue:  decimal.RequireFromString("3000.00"),
		AmountPaid: decimal.RequireFromString("3000.00"),
		Status:     domain.ObligationStatusPaid,
		DueDate:    time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	})

	res, err := gen.ClosePeriod(ctx, fund.ID, "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Transitioned)

	assert.Equal(t, domain.ObligationStatusMissed, testutil.GetObligation(t, db, unpaid.ID).Status)
	assert.Equal(t, domain.ObligationStatusPaid, testutil.GetObligation(t, db, paid.ID).Status)

	// Terminal states stay terminal on replays.
	res, err = gen.ClosePeriod(ctx, fund.ID, "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Transitioned)
}
