package allocator_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/repository"
	"github.com/chamaflow/fundcore/internal/service/allocator"
	"github.com/chamaflow/fundcore/internal/testutil"
)

func setupAllocator(t *testing.T, db *sql.DB) *allocator.Service {
	t.Helper()
	return allocator.NewService(
		repository.NewObligationRepository(db),
		repository.NewLoanRepository(db),
		repository.NewLedgerRepository(db),
		repository.NewOutboxRepository(db),
		db,
	)
}

func seedContributionDue(t *testing.T, db *sql.DB, fundID, memberID uuid.UUID, amount string) *domain.Obligation {
	t.Helper()
	return testutil.SeedObligation(t, db, &domain.Obligation{
		FundID:    fundID,
		MemberID:  memberID,
		Kind:      domain.ObligationKindContribution,
		Period:    "2026-08",
		AmountDue: decimal.RequireFromString(amount),
		Status:    domain.ObligationStatusPending,
		DueDate:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	})
}

func seedRepaymentDue(t *testing.T, db *sql.DB, loan *domain.Loan, interest, principal string) *domain.Obligation {
	t.Helper()
	i := decimal.RequireFromString(interest)
	p := decimal.RequireFromString(principal)
	return testutil.SeedObligation(t, db, &domain.Obligation{
		FundID:       loan.FundID,
		MemberID:     loan.MemberID,
		LoanID:       &loan.ID,
		Kind:         domain.ObligationKindRepayment,
		Period:       "2026-08",
		AmountDue:    i.Add(p),
		InterestDue:  i,
		PrincipalDue: p,
		Status:       domain.ObligationStatusPending,
		DueDate:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	})
}

func TestRecordPayment_ContributionHappyPath(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAllocator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	o := seedContributionDue(t, db, fund.ID, member.ID, "5000.00")

	result, err := svc.RecordPayment(ctx, allocator.RecordPaymentRequest{
		FundID:          fund.ID,
		ObligationID:    o.ID,
		Amount:          decimal.RequireFromString("5000.00"),
		ExpectedVersion: 0,
		IdempotencyKey:  uuid.NewString(),
		RecordedBy:      "treasurer:test",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ObligationStatusPaid, result.Status)
	assert.True(t, result.RemainingBalance.IsZero())
	assert.Equal(t, int64(1), result.Version)

	assert.True(t, testutil.GetPoolBalance(t, db, fund.ID).Equal(decimal.RequireFromString("5000.00")))
}

func TestRecordPayment_PartialThenFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAllocator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	o := seedContributionDue(t, db, fund.ID, member.ID, "5000.00")

	first, err := svc.RecordPayment(ctx, allocator.RecordPaymentRequest{
		FundID:          fund.ID,
		ObligationID:    o.ID,
		Amount:          decimal.RequireFromString("2000.00"),
		ExpectedVersion: 0,
		IdempotencyKey:  uuid.NewString(),
		RecordedBy:      "treasurer:test",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ObligationStatusPartial, first.Status)
	assert.True(t, first.RemainingBalance.Equal(decimal.RequireFromString("3000.00")))

	second, err := svc.RecordPayment(ctx, allocator.RecordPaymentRequest{
		FundID:          fund.ID,
		ObligationID:    o.ID,
		Amount:          decimal.RequireFromString("3000.00"),
		ExpectedVersion: first.Version,
		IdempotencyKey:  uuid.NewString(),
		RecordedBy:      "treasurer:test",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ObligationStatusPaid, second.Status)
	assert.True(t, second.RemainingBalance.IsZero())
}

func TestRecordPayment_StaleVersionFailsWithoutSideEffects(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAllocator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	o := seedContributionDue(t, db, fund.ID, member.ID, "5000.00")

	_, err := svc.RecordPayment(ctx, allocator.RecordPaymentRequest{
		FundID:          fund.ID,
		ObligationID:    o.ID,
		Amount:          decimal.RequireFromString("2000.00"),
		ExpectedVersion: 0,
		IdempotencyKey:  uuid.NewString(),
		RecordedBy:      "treasurer:test",
	})
	require.NoError(t, err)

	// Replay with the version we observed before the first write.
	_, err = svc.RecordPayment(ctx, allocator.RecordPaymentRequest{
		FundID:          fund.ID,
		ObligationID:    o.ID,
		Amount:          decimal.RequireFromString("2000.00"),
		ExpectedVersion: 0,
		IdempotencyKey:  uuid.NewString(),
		RecordedBy:      "treasurer:test",
	})
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	stored := testutil.GetObligation(t, db, o.ID)
	assert.True(t, stored.AmountPaid.Equal(decimal.RequireFromString("2000.00")))
	assert.True(t, testutil.GetPoolBalance(t, db, fund.ID).Equal(decimal.RequireFromString("2000.00")))
}

func TestRecordPayment_ConcurrentWritersOneWins(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAllocator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	o := seedContributionDue(t, db, fund.ID, member.ID, "5000.00")

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordPayment(ctx, allocator.RecordPaymentRequest{
				FundID:          fund.ID,
				ObligationID:    o.ID,
				Amount:          decimal.RequireFromString("1000.00"),
				ExpectedVersion: 0,
				IdempotencyKey:  uuid.NewString(),
				RecordedBy:      "treasurer:test",
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, domain.ErrVersionConflict)
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	stored := testutil.GetObligation(t, db, o.ID)
	assert.True(t, stored.AmountPaid.Equal(decimal.RequireFromString("1000.00")))
}

func TestRecordPayment_RepaymentSplitsInterestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAllocator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	loan := testutil.SeedActiveLoan(t, db, fund.ID, member.ID, "50000.00", "0.02", "1000.00", "1000.00")
	o := seedRepaymentDue(t, db, loan, "1000.00", "1000.00")

	key := uuid.NewString()
	result, err := svc.RecordPayment(ctx, allocator.RecordPaymentRequest{
		FundID:          fund.ID,
		ObligationID:    o.ID,
		Amount:          decimal.RequireFromString("1500.00"),
		ExpectedVersion: 0,
		IdempotencyKey:  key,
		RecordedBy:      "treasurer:test",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ObligationStatusPartial, result.Status)
	assert.True(t, result.InterestApplied.Equal(decimal.RequireFromString("1000.00")))
	assert.True(t, result.PrincipalApplied.Equal(decimal.RequireFromString("500.00")))
	assert.True(t, result.ExcessToPrincipal.IsZero())
	require.NotNil(t, result.LoanOutstanding)
	assert.True(t, result.LoanOutstanding.Equal(decimal.RequireFromString("49500.00")))

	// One principal entry and one interest-income twin under a single key.
	assert.Equal(t, 2, testutil.CountLedgerEntries(t, db, fund.ID, key))
}

func TestRecordPayment_ExcessReducesLoanPrincipal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAllocator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	loan := testutil.SeedActiveLoan(t, db, fund.ID, member.ID, "50000.00", "0.02", "1000.00", "1000.00")
	o := seedRepaymentDue(t, db, loan, "1000.00", "1000.00")

	result, err := svc.RecordPayment(ctx, allocator.RecordPaymentRequest{
		FundID:          fund.ID,
		ObligationID:    o.ID,
		Amount:          decimal.RequireFromString("3000.00"),
		ExpectedVersion: 0,
		IdempotencyKey:  uuid.NewString(),
		RecordedBy:      "treasurer:test",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ObligationStatusPaid, result.Status)
	assert.True(t, result.InterestApplied.Equal(decimal.RequireFromString("1000.00")))
	assert.True(t, result.PrincipalApplied.Equal(decimal.RequireFromString("1000.00")))
	assert.True(t, result.ExcessToPrincipal.Equal(decimal.RequireFromString("1000.00")))
	require.NotNil(t, result.LoanOutstanding)
	assert.True(t, result.LoanOutstanding.Equal(decimal.RequireFromString("48000.00")))
}

func TestRecordPayment_FinalPaymentClosesLoan(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAllocator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	loan := testutil.SeedActiveLoan(t, db, fund.ID, member.ID, "1000.00", "0.02", "1000.00", "1000.00")
	o := seedRepaymentDue(t, db, loan, "20.00", "1000.00")

	result, err := svc.RecordPayment(ctx, allocator.RecordPaymentRequest{
		FundID:          fund.ID,
		ObligationID:    o.ID,
		Amount:          decimal.RequireFromString("1020.00"),
		ExpectedVersion: 0,
		IdempotencyKey:  uuid.NewString(),
		RecordedBy:      "treasurer:test",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ObligationStatusPaid, result.Status)
	assert.True(t, result.LoanClosed)

	stored := testutil.GetLoan(t, db, loan.ID)
	assert.Equal(t, domain.LoanStatusClosed, stored.Status)
	assert.True(t, stored.OutstandingPrincipal.IsZero())
	assert.NotNil(t, stored.ClosedAt)
}

func TestRecordPayment_OverpaymentBeyondLoanRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAllocator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	loan := testutil.SeedActiveLoan(t, db, fund.ID, member.ID, "1000.00", "0.02", "1000.00", "1000.00")
	o := seedRepaymentDue(t, db, loan, "20.00", "1000.00")

	_, err := svc.RecordPayment(ctx, allocator.RecordPaymentRequest{
		FundID:          fund.ID,
		ObligationID:    o.ID,
		Amount:          decimal.RequireFromString("2000.00"),
		ExpectedVersion: 0,
		IdempotencyKey:  uuid.NewString(),
		RecordedBy:      "treasurer:test",
	})

	require.ErrorIs(t, err, domain.ErrPaymentExceedsLoan)

	stored := testutil.GetLoan(t, db, loan.ID)
	assert.True(t, stored.OutstandingPrincipal.Equal(decimal.RequireFromString("1000.00")))
	assert.True(t, testutil.GetPoolBalance(t, db, fund.ID).IsZero())
}

func TestRecordPayment_RejectsSubCentPrecision(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAllocator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	o := seedContributionDue(t, db, fund.ID, member.ID, "5000.00")

	_, err := svc.RecordPayment(ctx, allocator.RecordPaymentRequest{
		FundID:          fund.ID,
		ObligationID:    o.ID,
		Amount:          decimal.RequireFromString("100.005"),
		ExpectedVersion: 0,
		IdempotencyKey:  uuid.NewString(),
		RecordedBy:      "treasurer:test",
	})

	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestRecordPayment_SettledObligationRejectsMore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAllocator(t, db)
	ctx := context.Background()

	fund := testutil.SeedFund(t, db, "Umoja Fund")
	member := testutil.SeedMember(t, db, fund.ID, "Amina", "5000.00")
	o := seedContributionDue(t, db, fund.ID, member.ID, "5000.00")

	first, err := svc.RecordPayment(ctx, allocator.RecordPaymentRequest{
		FundID:          fund.ID,
		ObligationID:    o.ID,
		Amount:          decimal.RequireFromString("5000.00"),
		ExpectedVersion: 0,
		IdempotencyKey:  uuid.NewString(),
		RecordedBy:      "treasurer:test",
	})
	require.NoError(t, err)
	require.Equal(t, domain.ObligationStatusPaid, first.Status)

	_, err = svc.RecordPayment(ctx, allocator.RecordPaymentRequest{
		FundID:          fund.ID,
		ObligationID:    o.ID,
		Amount:          decimal.RequireFromString("1.00"),
		ExpectedVersion: first.Version,
		IdempotencyKey:  uuid.NewString(),
		RecordedBy:      "treasurer:test",
	})
	require.ErrorIs(t, err, domain.ErrObligationSettled)
}
