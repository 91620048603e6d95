package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type IdempotencyStatus string

const (
	IdempotencyInProgress IdempotencyStatus = "in_progress"
	IdempotencyCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord is one reservation per (fund, key, endpoint). It starts
// in_progress when the request is first seen and carries the cached response
// once the operation completes.
type IdempotencyRecord struct {
	FundID       uuid.UUID
	Key          string
	Endpoint     string
	RequestHash  string
	Status       IdempotencyStatus
	StatusCode   sql.NullInt32
	ResponseBody []byte
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Reserve claims the key for this request. When the insert loses to an
// existing row the current record is returned instead, so the caller can
// decide between replay, conflict and in-flight handling.
func (r *IdempotencyRepository) Reserve(ctx context.Context, rec *IdempotencyRecord) (bool, *IdempotencyRecord, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO idempotency_cache (
			fund_id, idempotency_key, endpoint, request_hash, status, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (fund_id, idempotency_key, endpoint) DO NOTHING`,
		rec.FundID, rec.Key, rec.Endpoint, rec.RequestHash, IdempotencyInProgress,
		rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return false, nil, fmt.Errorf("Reserve: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("Reserve: rows affected: %w", err)
	}
	if rows == 1 {
		return true, nil, nil
	}

	existing, err := r.Get(ctx, rec.FundID, rec.Key, rec.Endpoint)
	if err != nil {
		return false, nil, fmt.Errorf("Reserve: %w", err)
	}
	return false, existing, nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, fundID uuid.UUID, key, endpoint string) (*IdempotencyRecord, error) {
	var rec IdempotencyRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT fund_id, idempotency_key, endpoint, request_hash, status,
			status_code, response_body, created_at, expires_at
		FROM idempotency_cache
		WHERE fund_id = $1 AND idempotency_key = $2 AND endpoint = $3 AND expires_at > now()`,
		fundID, key, endpoint,
	).Scan(&rec.FundID, &rec.Key, &rec.Endpoint, &rec.RequestHash, &rec.Status,
		&rec.StatusCode, &rec.ResponseBody, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &rec, nil
}

// TakeOver re-claims an in_progress reservation whose original request
// apparently died: the row must still be in_progress and older than the
// staleness cutoff. Returns false when the original is still live.
func (r *IdempotencyRepository) TakeOver(ctx context.Context, fundID uuid.UUID, key, endpoint, requestHash string, staleBefore, expiresAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE idempotency_cache
		SET request_hash = $1, created_at = now(), expires_at = $2
		WHERE fund_id = $3 AND idempotency_key = $4 AND endpoint = $5
			AND status = $6 AND created_at < $7`,
		requestHash, expiresAt, fundID, key, endpoint, IdempotencyInProgress, staleBefore,
	)
	if err != nil {
		return false, fmt.Errorf("TakeOver: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("TakeOver: rows affected: %w", err)
	}
	return rows == 1, nil
}

// Complete stores the serialized result against the reservation.
func (r *IdempotencyRepository) Complete(ctx context.Context, fundID uuid.UUID, key, endpoint string, statusCode int, body []byte) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE idempotency_cache
		SET status = $1, status_code = $2, response_body = $3
		WHERE fund_id = $4 AND idempotency_key = $5 AND endpoint = $6`,
		IdempotencyCompleted, statusCode, body, fundID, key, endpoint,
	)
	if err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	return nil
}

// Release drops the reservation so the caller may retry, used when the
// operation failed before producing a cacheable result.
func (r *IdempotencyRepository) Release(ctx context.Context, fundID uuid.UUID, key, endpoint string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_cache
		WHERE fund_id = $1 AND idempotency_key = $2 AND endpoint = $3 AND status = $4`,
		fundID, key, endpoint, IdempotencyInProgress,
	)
	if err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}

// CleanExpired purges records past the retention window. Completed ledger
// entries are unaffected; only the replay cache ages out.
func (r *IdempotencyRepository) CleanExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_cache WHERE expires_at < now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: rows affected: %w", err)
	}
	return n, nil
}
