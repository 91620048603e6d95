package disbursement_test

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
	"github.com/chamaflow/fundcore/internal/service/disbursement"
	"github.com/chamaflow/fundcore/internal/testutil"
)

func setupDisbursement(t *testing.T, db *sql.DB) *disbursement.Service {
	t.Helper()
	return disbursement.NewService(
		repository.NewLoanRepository(db),
		repository.NewFundRepository(db),
		repository.NewMemberRepository(db),
		repository.NewLedgerRepository(db),
		repository.NewOutboxRepository(db),
		db,
	)
}

func seedPool(t *testing.T, db *sql.DB, fundID, memberID uuid.UUID, amount string) {
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

func TestDisburse_HappyPath(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupDisbursement(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	testutil.SeedFundConfig(t, db, fund.ID, "0.02", "1000.00", 5)
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	seedPool(t, db, fund.ID, member.ID, "100000.00")

	loan, err := svc.RequestLoan(ctx, disbursement.RequestLoanInput{
		FundID:      fund.ID,
		MemberID:    member.ID,
		Principal:   decimal.RequireFromString("50000.00"),
		Installment: decimal.RequireFromString("2000.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusPending, loan.Status)

	approved, err := svc.ApproveLoan(ctx, fund.ID, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusApproved, approved.Status)

	disbursed, err := svc.Disburse(ctx, disbursement.DisburseRequest{
		FundID:         fund.ID,
		LoanID:         loan.ID,
		IdempotencyKey: uuid.NewString(),
		RecordedBy:     "admin:test",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, disbursed.Status)
	assert.True(t, disbursed.OutstandingPrincipal.Equal(decimal.RequireFromString("50000.00")))
	// Terms snapshotted from the fund config at disbursement time.
	assert.True(t, disbursed.MonthlyRate.Equal(decimal.RequireFromString("0.02")))
	assert.True(t, disbursed.MinPrincipal.Equal(decimal.RequireFromString("1000.00")))
	assert.NotNil(t, disbursed.DisbursedAt)

	// Pool: 100000 in, 50000 out.
	assert.True(t, testutil.GetPoolBalance(t, db, fund.ID).Equal(decimal.RequireFromString("50000.00")))
}

func TestDisburse_SnapshotSurvivesConfigChange(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupDisbursement(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	testutil.SeedFundConfig(t, db, fund.ID, "0.02", "1000.00", 5)
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	seedPool(t, db, fund.ID, member.ID, "100000.00")

	loan, err := svc.RequestLoan(ctx, disbursement.RequestLoanInput{
		FundID:      fund.ID,
		MemberID:    member.ID,
		Principal:   decimal.RequireFromString("10000.00"),
		Installment: decimal.RequireFromString("1000.00"),
	})
	require.NoError(t, err)
	_, err = svc.ApproveLoan(ctx, fund.ID, loan.ID)
	require.NoError(t, err)
	_, err = svc.Disburse(ctx, disbursement.DisburseRequest{
		FundID:         fund.ID,
		LoanID:         loan.ID,
		IdempotencyKey: uuid.NewString(),
		RecordedBy:     "admin:test",
	})
	require.NoError(t, err)

	// Raise the rate after disbursement; the loan must keep its snapshot.
	testutil.SeedFundConfig(t, db, fund.ID, "0.05", "2000.00", 5)

	stored := testutil.GetLoan(t, db, loan.ID)
	assert.True(t, stored.MonthlyRate.Equal(decimal.RequireFromString("0.02")))
	assert.True(t, stored.MinPrincipal.Equal(decimal.RequireFromString("1000.00")))
}

func TestDisburse_InsufficientPoolCompensates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupDisbursement(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	testutil.SeedFundConfig(t, db, fund.ID, "0.02", "1000.00", 5)
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	seedPool(t, db, fund.ID, member.ID, "10000.00")

	loan, err := svc.RequestLoan(ctx, disbursement.RequestLoanInput{
		FundID:      fund.ID,
		MemberID:    member.ID,
		Principal:   decimal.RequireFromString("50000.00"),
		Installment: decimal.RequireFromString("2000.00"),
	})
	require.NoError(t, err)
	_, err = svc.ApproveLoan(ctx, fund.ID, loan.ID)
	require.NoError(t, err)

	_, err = svc.Disburse(ctx, disbursement.DisburseRequest{
		FundID:         fund.ID,
		LoanID:         loan.ID,
		IdempotencyKey: uuid.NewString(),
		RecordedBy:     "admin:test",
	})
	require.ErrorIs(t, err, domain.ErrInsufficientPool)

	// Compensation leaves the loan approved and the pool untouched.
	stored := testutil.GetLoan(t, db, loan.ID)
	assert.Equal(t, domain.LoanStatusApproved, stored.Status)
	assert.True(t, testutil.GetPoolBalance(t, db, fund.ID).Equal(decimal.RequireFromString("10000.00")))
}

func TestDisburse_RejectsNonApprovedLoan(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupDisbursement(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	testutil.SeedFundConfig(t, db, fund.ID, "0.02", "1000.00", 5)
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	seedPool(t, db, fund.ID, member.ID, "100000.00")

	loan, err := svc.RequestLoan(ctx, disbursement.RequestLoanInput{
		FundID:      fund.ID,
		MemberID:    member.ID,
		Principal:   decimal.RequireFromString("50000.00"),
		Installment: decimal.RequireFromString("2000.00"),
	})
	require.NoError(t, err)

	_, err = svc.Disburse(ctx, disbursement.DisburseRequest{
		FundID:         fund.ID,
		LoanID:         loan.ID,
		IdempotencyKey: uuid.NewString(),
		RecordedBy:     "admin:test",
	})
	require.ErrorIs(t, err, domain.ErrLoanNotDisbursable)
}

func TestRequestLoan_RejectsInactiveMember(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupDisbursement(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	_, err := db.Exec(`UPDATE members SET status = 'exited' WHERE id = $1`, member.ID)
	require.NoError(t, err)

	_, err = svc.RequestLoan(ctx, disbursement.RequestLoanInput{
		FundID:      fund.ID,
		MemberID:    member.ID,
		Principal:   decimal.RequireFromString("1000.00"),
		Installment: decimal.RequireFromString("100.00"),
	})
	require.ErrorIs(t, err, domain.ErrMemberInactive)
}
