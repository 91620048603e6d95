package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chamaflow/fundcore/internal/domain"
)

const memberColumns = `id, fund_id, name, monthly_contribution, status, joined_at`

type MemberRepository struct {
	db *sql.DB
}

func NewMemberRepository(db *sql.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Upsert makes membership events safe to replay: the member service
// delivers at-least-once, so a repeated "member joined" must converge on
// the same row.
func (r *MemberRepository) Upsert(ctx context.Context, m *domain.Member) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO members (id, fund_id, name, monthly_contribution, status, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			monthly_contribution = EXCLUDED.monthly_contribution,
			status = EXCLUDED.status`,
		m.ID, m.FundID, m.Name, m.MonthlyContribution, m.Status, m.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (r *MemberRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id,
	)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return m, nil
}

func (r *MemberRepository) ListActiveByFund(ctx context.Context, fundID uuid.UUID) ([]domain.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members
		WHERE fund_id = $1 AND status = $2 ORDER BY id`,
		fundID, domain.MemberStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("ListActiveByFund: %w", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("ListActiveByFund: scan: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListActiveByFund: rows: %w", err)
	}
	return members, nil
}

func scanMember(s scanner) (*domain.Member, error) {
	var m domain.Member
	err := s.Scan(&m.ID, &m.FundID, &m.Name, &m.MonthlyContribution, &m.Status, &m.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
