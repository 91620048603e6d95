package service

import (
	"context"
	"log/slog"
	"time"
)

type idempotencyRepo interface {
	CleanExpired(ctx context.Context) (int64, error)
}

// RetentionSweeper periodically purges idempotency records past their
// retention window. Expiry only forgets the replay cache; committed ledger
// entries are untouched.
type RetentionSweeper struct {
	idempotency idempotencyRepo
	logger      *slog.Logger
	interval    time.Duration
}

func NewRetentionSweeper(idempotency idempotencyRepo, logger *slog.Logger, interval time.Duration) *RetentionSweeper {
	return &RetentionSweeper{
		idempotency: idempotency,
		logger:      logger,
		interval:    interval,
	}
}

func (s *RetentionSweeper) Start(ctx context.Context) {
	s.logger.Info("idempotency retention sweeper started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("idempotency retention sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.idempotency.CleanExpired(ctx)
			if err != nil {
				s.logger.Error("idempotency sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("expired idempotency records purged", "count", n)
			}
		}
	}
}
