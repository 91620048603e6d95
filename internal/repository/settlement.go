package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chamaflow/fundcore/internal/domain"
)

type SettlementRepository struct {
	db *sql.DB
}

func NewSettlementRepository(db *sql.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) GetByFund(ctx context.Context, fundID uuid.UUID) (*domain.Settlement, error) {
	var s domain.Settlement
	err := r.db.QueryRowContext(ctx,
		`SELECT id, fund_id, status, interest_pool, total_contributions, total_weight,
			created_at, updated_at, confirmed_at
		FROM settlements WHERE fund_id = $1`, fundID,
	).Scan(&s.ID, &s.FundID, &s.Status, &s.InterestPool, &s.TotalContributions,
		&s.TotalWeight, &s.CreatedAt, &s.UpdatedAt, &s.ConfirmedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetByFund: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetByFund: %w", err)
	}
	return &s, nil
}

func (r *SettlementRepository) GetLines(ctx context.Context, settlementID uuid.UUID) ([]domain.SettlementLine, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, settlement_id, member_id, weight, paid_contributions,
			interest_share, outstanding_principal, unpaid_interest, unpaid_dues,
			gross_payout, net_payout
		FROM settlement_lines WHERE settlement_id = $1 ORDER BY member_id`,
		settlementID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetLines: %w", err)
	}
	defer rows.Close()

	var lines []domain.SettlementLine
	for rows.Next() {
		var l domain.SettlementLine
		err := rows.Scan(&l.ID, &l.SettlementID, &l.MemberID, &l.Weight,
			&l.PaidContributions, &l.InterestShare, &l.OutstandingPrincipal,
			&l.UnpaidInterest, &l.UnpaidDues, &l.GrossPayout, &l.NetPayout)
		if err != nil {
			return nil, fmt.Errorf("GetLines: scan: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetLines: rows: %w", err)
	}
	return lines, nil
}

// Replace stores a freshly computed settlement and its lines atomically.
// A confirmed settlement is frozen: the guarded update touches zero rows
// and the whole replace rolls back.
func (r *SettlementRepository) Replace(ctx context.Context, s *domain.Settlement, lines []domain.SettlementLine) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Replace: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO settlements (
			id, fund_id, status, interest_pool, total_contributions, total_weight,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (fund_id) DO UPDATE SET
			status = EXCLUDED.status,
			interest_pool = EXCLUDED.interest_pool,
			total_contributions = EXCLUDED.total_contributions,
			total_weight = EXCLUDED.total_weight,
			updated_at = EXCLUDED.updated_at
		WHERE settlements.status != 'confirmed'`,
		s.ID, s.FundID, s.Status, s.InterestPool, s.TotalContributions,
		s.TotalWeight, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Replace: upsert: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Replace: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Replace: %w", domain.ErrSettlementFrozen)
	}

	// The stored row keeps its original id on recalculation.
	var storedID uuid.UUID
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM settlements WHERE fund_id = $1`, s.FundID,
	).Scan(&storedID)
	if err != nil {
		return fmt.Errorf("Replace: read id: %w", err)
	}
	s.ID = storedID

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM settlement_lines WHERE settlement_id = $1`, storedID,
	); err != nil {
		return fmt.Errorf("Replace: clear lines: %w", err)
	}

	for i := range lines {
		lines[i].SettlementID = storedID
		_, err := tx.ExecContext(ctx,
			`INSERT INTO settlement_lines (
				id, settlement_id, member_id, weight, paid_contributions,
				interest_share, outstanding_principal, unpaid_interest, unpaid_dues,
				gross_payout, net_payout
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			lines[i].ID, lines[i].SettlementID, lines[i].MemberID, lines[i].Weight,
			lines[i].PaidContributions, lines[i].InterestShare,
			lines[i].OutstandingPrincipal, lines[i].UnpaidInterest, lines[i].UnpaidDues,
			lines[i].GrossPayout, lines[i].NetPayout,
		)
		if err != nil {
			return fmt.Errorf("Replace: insert line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Replace: commit: %w", err)
	}
	return nil
}

func (r *SettlementRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.SettlementStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE settlements SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrInvalidTransition)
	}
	return nil
}

// Confirm is the one-way freeze. It runs inside the caller's transaction
// together with the payout ledger entries.
func (r *SettlementRepository) Confirm(ctx context.Context, tx *sql.Tx, id uuid.UUID, confirmedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE settlements SET status = $1, confirmed_at = $2, updated_at = now()
		WHERE id = $3 AND status != $1`,
		domain.SettlementStatusConfirmed, confirmedAt, id,
	)
	if err != nil {
		return fmt.Errorf("Confirm: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Confirm: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Confirm: %w", domain.ErrSettlementFrozen)
	}
	return nil
}
