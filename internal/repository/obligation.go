package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/domain"
)

const obligationColumns = `id, fund_id, member_id, loan_id, kind, period,
	amount_due, interest_due, principal_due, amount_paid, interest_paid,
	status, due_date, version, created_at, updated_at`

type ObligationRepository struct {
	db *sql.DB
}

func NewObligationRepository(db *sql.DB) *ObligationRepository {
	return &ObligationRepository{db: db}
}

// CreateIfAbsent inserts the obligation unless one already exists for the
// same (member, period) / (loan, period), which is how period-boundary
// generation stays idempotent across reruns. Returns false when the row was
// already there.
func (r *ObligationRepository) CreateIfAbsent(ctx context.Context, o *domain.Obligation) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO obligations (
			id, fund_id, member_id, loan_id, kind, period,
			amount_due, interest_due, principal_due, amount_paid, interest_paid,
			status, due_date, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT DO NOTHING`,
		o.ID, o.FundID, o.MemberID, o.LoanID, o.Kind, o.Period,
		o.AmountDue, o.InterestDue, o.PrincipalDue, o.AmountPaid, o.InterestPaid,
		o.Status, o.DueDate, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("CreateIfAbsent: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("CreateIfAbsent: rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *ObligationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Obligation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+obligationColumns+` FROM obligations WHERE id = $1`, id,
	)
	o, err := scanObligation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return o, nil
}

// GetTx reads the obligation inside the mutating transaction so the version
// check and the write share one consistent view.
func (r *ObligationRepository) GetTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Obligation, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+obligationColumns+` FROM obligations WHERE id = $1`, id,
	)
	o, err := scanObligation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetTx: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetTx: %w", err)
	}
	return o, nil
}

// ApplyPayment commits new paid amounts and status under the version guard.
func (r *ObligationRepository) ApplyPayment(ctx context.Context, tx *sql.Tx, id uuid.UUID, amountPaid, interestPaid decimal.Decimal, status domain.ObligationStatus, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE obligations SET amount_paid = $1, interest_paid = $2, status = $3,
			version = $4, updated_at = now()
		WHERE id = $5 AND version = $6`,
		amountPaid, interestPaid, status, newVersion, id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("ApplyPayment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ApplyPayment: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ApplyPayment: %w", domain.ErrVersionConflict)
	}
	return nil
}

func (r *ObligationRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.ObligationStatus, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE obligations SET status = $1, version = $2, updated_at = now()
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

// ListLapsed returns open obligations of the given kind whose due date is
// before the cutoff, for the time-driven sweeps.
func (r *ObligationRepository) ListLapsed(ctx context.Context, fundID uuid.UUID, kind domain.ObligationKind, statuses []domain.ObligationStatus, before time.Time) ([]domain.Obligation, error) {
	ss := make([]string, len(statuses))
	for i, s := range statuses {
		ss[i] = string(s)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+obligationColumns+` FROM obligations
		WHERE fund_id = $1 AND kind = $2 AND status = ANY($3) AND due_date < $4
		ORDER BY id`,
		fundID, kind, pq.Array(ss), before,
	)
	if err != nil {
		return nil, fmt.Errorf("ListLapsed: %w", err)
	}
	defer rows.Close()

	var obligations []domain.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("ListLapsed: scan: %w", err)
		}
		obligations = append(obligations, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListLapsed: rows: %w", err)
	}
	return obligations, nil
}

func (r *ObligationRepository) ListByFundAndPeriod(ctx context.Context, fundID uuid.UUID, kind domain.ObligationKind, period domain.PeriodKey) ([]domain.Obligation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+obligationColumns+` FROM obligations
		WHERE fund_id = $1 AND kind = $2 AND period = $3 ORDER BY id`,
		fundID, kind, period,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByFundAndPeriod: %w", err)
	}
	defer rows.Close()

	var obligations []domain.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByFundAndPeriod: scan: %w", err)
		}
		obligations = append(obligations, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByFundAndPeriod: rows: %w", err)
	}
	return obligations, nil
}

// SumUnpaidInterestByMember totals uncollected interest on open repayment
// obligations per member.
func (r *ObligationRepository) SumUnpaidInterestByMember(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	return r.sumByMember(ctx,
		`SELECT member_id, COALESCE(SUM(interest_due - interest_paid), 0)
		FROM obligations
		WHERE fund_id = $1 AND kind = 'repayment'
			AND status IN ('pending', 'partial', 'overdue')
		GROUP BY member_id`,
		fundID)
}

// SumUnpaidDuesByMember totals unpaid contribution balances per member,
// including periods already marked missed.
func (r *ObligationRepository) SumUnpaidDuesByMember(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	return r.sumByMember(ctx,
		`SELECT member_id, COALESCE(SUM(GREATEST(amount_due - amount_paid, 0)), 0)
		FROM obligations
		WHERE fund_id = $1 AND kind = 'contribution'
			AND status IN ('pending', 'partial', 'late', 'missed')
		GROUP BY member_id`,
		fundID)
}

func (r *ObligationRepository) sumByMember(ctx context.Context, query string, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, query, fundID)
	if err != nil {
		return nil, fmt.Errorf("sumByMember: %w", err)
	}
	defer rows.Close()

	sums := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var id uuid.UUID
		var sum decimal.Decimal
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, fmt.Errorf("sumByMember: scan: %w", err)
		}
		sums[id] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sumByMember: rows: %w", err)
	}
	return sums, nil
}

func scanObligation(s scanner) (*domain.Obligation, error) {
	var o domain.Obligation
	err := s.Scan(
		&o.ID, &o.FundID, &o.MemberID, &o.LoanID, &o.Kind, &o.Period,
		&o.AmountDue, &o.InterestDue, &o.PrincipalDue, &o.AmountPaid, &o.InterestPaid,
		&o.Status, &o.DueDate, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
