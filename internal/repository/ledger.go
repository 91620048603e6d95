package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/domain"
)

const ledgerColumns = `id, fund_id, member_id, kind, amount, idempotency_key,
	ref_type, ref_id, recorded_by, created_at`

// LedgerRepository is append-only: entries are never updated or deleted,
// and every balance is a replay over them.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Append(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error {
	if !entry.Kind.IsValid() {
		return fmt.Errorf("Append: kind %q: %w", entry.Kind, domain.ErrValidation)
	}
	if entry.Amount.IsNegative() {
		return fmt.Errorf("Append: negative amount: %w", domain.ErrInvariantViolation)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (
			id, fund_id, member_id, kind, amount, idempotency_key,
			ref_type, ref_id, recorded_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.FundID, entry.MemberID, entry.Kind, entry.Amount,
		entry.IdempotencyKey, entry.RefType, entry.RefID, entry.RecordedBy,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

// PoolBalance replays the fund's entries into its current lendable balance:
// inflows minus outflows. Runs inside the caller's transaction so a
// disbursement's check-then-deduct is atomic.
func (r *LedgerRepository) PoolBalance(ctx context.Context, tx *sql.Tx, fundID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(
			CASE WHEN kind IN ('disbursement', 'settlement') THEN -amount ELSE amount END
		), 0) FROM ledger_entries WHERE fund_id = $1`,
		fundID,
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("PoolBalance: %w", err)
	}
	return balance, nil
}

func (r *LedgerRepository) SumByKind(ctx context.Context, fundID uuid.UUID, kind domain.EntryKind) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE fund_id = $1 AND kind = $2`,
		fundID, kind,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("SumByKind: %w", err)
	}
	return sum, nil
}

func (r *LedgerRepository) SumByMemberAndKind(ctx context.Context, fundID uuid.UUID, kind domain.EntryKind) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT member_id, COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE fund_id = $1 AND kind = $2 GROUP BY member_id`,
		fundID, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("SumByMemberAndKind: %w", err)
	}
	defer rows.Close()

	sums := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var id uuid.UUID
		var sum decimal.Decimal
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, fmt.Errorf("SumByMemberAndKind: scan: %w", err)
		}
		sums[id] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SumByMemberAndKind: rows: %w", err)
	}
	return sums, nil
}

func (r *LedgerRepository) GetByRef(ctx context.Context, refType domain.RefType, refID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE ref_type = $1 AND ref_id = $2 ORDER BY created_at, kind`,
		refType, refID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByRef: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByRef: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByRef: rows: %w", err)
	}
	return entries, nil
}

func (r *LedgerRepository) GetByFund(ctx context.Context, fundID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE fund_id = $1`, fundID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByFund: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE fund_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		fundID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByFund: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("GetByFund: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("GetByFund: rows: %w", err)
	}
	return entries, total, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := s.Scan(
		&e.ID, &e.FundID, &e.MemberID, &e.Kind, &e.Amount, &e.IdempotencyKey,
		&e.RefType, &e.RefID, &e.RecordedBy, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
