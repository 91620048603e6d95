package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chamaflow/fundcore/internal/domain"
)

type FundRepository struct {
	db *sql.DB
}

func NewFundRepository(db *sql.DB) *FundRepository {
	return &FundRepository{db: db}
}

func (r *FundRepository) Create(ctx context.Context, fund *domain.Fund) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO funds (id, name, status, created_at) VALUES ($1, $2, $3, $4)`,
		fund.ID, fund.Name, fund.Status, fund.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *FundRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Fund, error) {
	var f domain.Fund
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, status, created_at FROM funds WHERE id = $1`, id,
	).Scan(&f.ID, &f.Name, &f.Status, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return &f, nil
}

func (r *FundRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.FundStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE funds SET status = $1 WHERE id = $2`, status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	return nil
}

func (r *FundRepository) GetConfig(ctx context.Context, fundID uuid.UUID) (*domain.FundConfig, error) {
	var c domain.FundConfig
	err := r.db.QueryRowContext(ctx,
		`SELECT fund_id, monthly_rate, min_principal, grace_days, updated_at
		FROM fund_configs WHERE fund_id = $1`, fundID,
	).Scan(&c.FundID, &c.MonthlyRate, &c.MinPrincipal, &c.GraceDays, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetConfig: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetConfig: %w", err)
	}
	return &c, nil
}

func (r *FundRepository) UpsertConfig(ctx context.Context, cfg *domain.FundConfig) error {
	_, err := r.db.ExecContext(ctx,
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
		return fmt.Errorf("UpsertConfig: %w", err)
	}
	return nil
}
