package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/domain"
)

const loanColumns = `id, fund_id, member_id, principal, outstanding_principal,
	monthly_rate, min_principal, installment, status, version,
	disbursed_at, closed_at, created_at, updated_at`

type LoanRepository struct {
	db *sql.DB
}

func NewLoanRepository(db *sql.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

func (r *LoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO loans (
			id, fund_id, member_id, principal, outstanding_principal,
			monthly_rate, min_principal, installment, status, version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		loan.ID, loan.FundID, loan.MemberID, loan.Principal, loan.OutstandingPrincipal,
		loan.MonthlyRate, loan.MinPrincipal, loan.Installment, loan.Status, loan.Version,
		loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *LoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = $1`, id,
	)
	l, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return l, nil
}

func (r *LoanRepository) GetTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Loan, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = $1`, id,
	)
	l, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetTx: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetTx: %w", err)
	}
	return l, nil
}

func (r *LoanRepository) ListByFundAndStatus(ctx context.Context, fundID uuid.UUID, status domain.LoanStatus) ([]domain.Loan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+loanColumns+` FROM loans
		WHERE fund_id = $1 AND status = $2 ORDER BY id`,
		fundID, status,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByFundAndStatus: %w", err)
	}
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByFundAndStatus: scan: %w", err)
		}
		loans = append(loans, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByFundAndStatus: rows: %w", err)
	}
	return loans, nil
}

// SumOutstandingByMember aggregates un-repaid principal on active loans per
// member, the deduction side of the settlement calculation.
func (r *LoanRepository) SumOutstandingByMember(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT member_id, COALESCE(SUM(outstanding_principal), 0)
		FROM loans WHERE fund_id = $1 AND status = $2
		GROUP BY member_id`,
		fundID, domain.LoanStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("SumOutstandingByMember: %w", err)
	}
	defer rows.Close()

	sums := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var id uuid.UUID
		var sum decimal.Decimal
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, fmt.Errorf("SumOutstandingByMember: scan: %w", err)
		}
		sums[id] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SumOutstandingByMember: rows: %w", err)
	}
	return sums, nil
}

// UpdateOutstanding commits a new outstanding balance under the loan's
// version guard. Zero rows means a concurrent writer won.
func (r *LoanRepository) UpdateOutstanding(ctx context.Context, tx *sql.Tx, id uuid.UUID, outstanding decimal.Decimal, status domain.LoanStatus, closedAt *time.Time, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE loans SET outstanding_principal = $1, status = $2, closed_at = $3,
			version = $4, updated_at = now()
		WHERE id = $5 AND version = $6`,
		outstanding, status, closedAt, newVersion, id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateOutstanding: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateOutstanding: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateOutstanding: %w", domain.ErrVersionConflict)
	}
	return nil
}

// MarkDisbursed flips the loan to active and snapshots its terms in one
// version-guarded write.
func (r *LoanRepository) MarkDisbursed(ctx context.Context, tx *sql.Tx, loan *domain.Loan) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE loans SET status = $1, outstanding_principal = $2,
			monthly_rate = $3, min_principal = $4, installment = $5,
			disbursed_at = $6, version = $7, updated_at = now()
		WHERE id = $8 AND version = $9`,
		loan.Status, loan.OutstandingPrincipal,
		loan.MonthlyRate, loan.MinPrincipal, loan.Installment,
		loan.DisbursedAt, loan.Version, loan.ID, loan.Version-1,
	)
	if err != nil {
		return fmt.Errorf("MarkDisbursed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkDisbursed: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkDisbursed: %w", domain.ErrVersionConflict)
	}
	return nil
}

func (r *LoanRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LoanStatus, newVersion int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE loans SET status = $1, version = $2, updated_at = now()
		WHERE id = $3 AND version = $4`,
		status, newVersion, id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrVersionConflict)
	}
	return nil
}

func scanLoan(s scanner) (*domain.Loan, error) {
	var l domain.Loan
	err := s.Scan(
		&l.ID, &l.FundID, &l.MemberID, &l.Principal, &l.OutstandingPrincipal,
		&l.MonthlyRate, &l.MinPrincipal, &l.Installment, &l.Status, &l.Version,
		&l.DisbursedAt, &l.ClosedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
