package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/domain"
)

func SeedFund(t *testing.T, db *sql.DB, name string) *domain.Fund {
	t.Helper()

	f := &domain.Fund{
		ID:        uuid.New(),
		Name:      name,
		Status:    domain.FundStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO funds (id, name, status, created_at) VALUES ($1, $2, $3, $4)`,
		f.ID, f.Name, f.Status, f.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed fund %s: %v", name, err)
	}
	return f
}

func SeedFundConfig(t *testing.T, db *sql.DB, fundID uuid.UUID, monthlyRate, minPrincipal string, graceDays int) *domain.FundConfig {
	t.Helper()

	cfg := &domain.FundConfig{
		FundID:       fundID,
		MonthlyRate:  decimal.RequireFromString(monthlyRate),
		MinPrincipal: decimal.RequireFromString(minPrincipal),
		GraceDays:    graceDays,
		UpdatedAt:    time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO fund_configs (fund_id, monthly_rate, min_principal, grace_days, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (fund_id) DO UPDATE SET
			monthly_rate = EXCLUDED.monthly_rate,
			min_principal = EXCLUDED.min_principal,
			grace_days = EXCLUDED.grace_days,
			updated_at = EXCLUDED.updated_at`,
		cfg.FundID, cfg.MonthlyRate, cfg.MinPrincipal, cfg.GraceDays, cfg.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed fund config %s: %v", fundID, err)
	}
	return cfg
}

func SeedMember(t *testing.T, db *sql.DB, fundID uuid.UUID, name, monthlyContribution string) *domain.Member {
	t.Helper()

	m := &domain.Member{
		ID:                  uuid.New(),
		FundID:              fundID,
		Name:                name,
		MonthlyContribution: decimal.RequireFromString(monthlyContribution),
		Status:              domain.MemberStatusActive,
		JoinedAt:            time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO members (id, fund_id, name, monthly_contribution, status, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.FundID, m.Name, m.MonthlyContribution, m.Status, m.JoinedAt,
	)
	if err != nil {
		t.Fatalf("seed member %s: %v", name, err)
	}
	return m
}

// SeedActiveLoan writes a loan already past disbursement, with its terms
// snapshot filled in and the full principal outstanding.
func SeedActiveLoan(t *testing.T, db *sql.DB, fundID, memberID uuid.UUID, principal, monthlyRate, minPrincipal, installment string) *domain.Loan {
	t.Helper()

	now := time.Now().UTC()
	l := &domain.Loan{
		ID:                   uuid.New(),
		FundID:               fundID,
		MemberID:             memberID,
		Principal:            decimal.RequireFromString(principal),
		OutstandingPrincipal: decimal.RequireFromString(principal),
		MonthlyRate:          decimal.RequireFromString(monthlyRate),
		MinPrincipal:         decimal.RequireFromString(minPrincipal),
		Installment:          decimal.RequireFromString(installment),
		Status:               domain.LoanStatusActive,
		Version:              0,
		DisbursedAt:          &now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	_, err := db.Exec(
		`INSERT INTO loans (id, fund_id, member_id, principal, outstanding_principal,
			monthly_rate, min_principal, installment, status, version, disbursed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		l.ID, l.FundID, l.MemberID, l.Principal, l.OutstandingPrincipal,
		l.MonthlyRate, l.MinPrincipal, l.Installment, l.Status, l.Version, l.DisbursedAt, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed active loan for %s: %v", memberID, err)
	}
	return l
}

func SeedObligation(t *testing.T, db *sql.DB, o *domain.Obligation) *domain.Obligation {
	t.Helper()

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
		o.UpdatedAt = now
	}
	_, err := db.Exec(
		`INSERT INTO obligations (id, fund_id, member_id, loan_id, kind, period,
			amount_due, interest_due, principal_due, amount_paid, interest_paid,
			status, due_date, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		o.ID, o.FundID, o.MemberID, o.LoanID, o.Kind, o.Period,
		o.AmountDue, o.InterestDue, o.PrincipalDue, o.AmountPaid, o.InterestPaid,
		o.Status, o.DueDate, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed obligation: %v", err)
	}
	return o
}

// SeedLedgerEntry writes one entry directly, bypassing the append path.
func SeedLedgerEntry(t *testing.T, db *sql.DB, e *domain.LedgerEntry) *domain.LedgerEntry {
	t.Helper()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.RecordedBy == "" {
		e.RecordedBy = "test:seed"
	}
	_, err := db.Exec(
		`INSERT INTO ledger_entries (id, fund_id, member_id, kind, amount,
			idempotency_key, ref_type, ref_id, recorded_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.FundID, e.MemberID, e.Kind, e.Amount,
		e.IdempotencyKey, e.RefType, e.RefID, e.RecordedBy, e.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed ledger entry: %v", err)
	}
	return e
}

func GetPoolBalance(t *testing.T, db *sql.DB, fundID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(
		`SELECT COALESCE(SUM(CASE WHEN kind IN ('disbursement', 'settlement')
			THEN -amount ELSE amount END), 0)
		 FROM ledger_entries WHERE fund_id = $1`,
		fundID,
	).Scan(&balance)
	if err != nil {
		t.Fatalf("get pool balance %s: %v", fundID, err)
	}
	return balance
}

func CountLedgerEntries(t *testing.T, db *sql.DB, fundID uuid.UUID, key string) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries WHERE fund_id = $1 AND idempotency_key = $2`,
		fundID, key,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries for key %s: %v", key, err)
	}
	return count
}

func GetObligation(t *testing.T, db *sql.DB, id uuid.UUID) *domain.Obligation {
	t.Helper()

	var o domain.Obligation
	err := db.QueryRow(
		`SELECT id, fund_id, member_id, loan_id, kind, period, amount_due, interest_due,
			principal_due, amount_paid, interest_paid, status, due_date, version
		 FROM obligations WHERE id = $1`,
		id,
	).Scan(&o.ID, &o.FundID, &o.MemberID, &o.LoanID, &o.Kind, &o.Period, &o.AmountDue,
		&o.InterestDue, &o.PrincipalDue, &o.AmountPaid, &o.InterestPaid, &o.Status, &o.DueDate, &o.Version)
	if err != nil {
		t.Fatalf("get obligation %s: %v", id, err)
	}
	return &o
}

func GetLoan(t *testing.T, db *sql.DB, id uuid.UUID) *domain.Loan {
	t.Helper()

	var l domain.Loan
	err := db.QueryRow(
		`SELECT id, fund_id, member_id, principal, outstanding_principal, monthly_rate,
			min_principal, installment, status, version, disbursed_at, closed_at
		 FROM loans WHERE id = $1`,
		id,
	).Scan(&l.ID, &l.FundID, &l.MemberID, &l.Principal, &l.OutstandingPrincipal, &l.MonthlyRate,
		&l.MinPrincipal, &l.Installment, &l.Status, &l.Version, &l.DisbursedAt, &l.ClosedAt)
	if err != nil {
		t.Fatalf("get loan %s: %v", id, err)
	}
	return &l
}
