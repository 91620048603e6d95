package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chamaflow/fundcore/internal/domain"
)

type outboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OutboxStatus) error
}

// Publisher hands a domain event to whatever transport the deployment
// wires in. Delivery guarantees live in the transport; the core publishes
// fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, event domain.OutboxEvent) error
}

// LogPublisher is the default sink: it logs the event and nothing else.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.OutboxEvent) error {
	p.logger.Info("domain event published",
		"event_id", event.ID,
		"event_type", event.EventType,
		"fund_id", event.FundID,
	)
	return nil
}

// Dispatcher drains the outbox on an interval and marks each event
// dispatched or failed. A failed item is logged and skipped; the batch
// continues.
type Dispatcher struct {
	outbox    outboxRepo
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewDispatcher(outbox outboxRepo, publisher Publisher, logger *slog.Logger, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: 50,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("event dispatcher started", "interval", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("event dispatcher stopped")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *Dispatcher) poll(ctx context.Context) {
	events, err := d.outbox.GetPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("failed to fetch pending events", "error", err)
		return
	}

	for _, event := range events {
		status := domain.OutboxStatusDispatched
		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Error("event publish failed",
				"event_id", event.ID,
				"event_type", event.EventType,
				"error", err,
			)
			status = domain.OutboxStatusFailed
		}
		if err := d.outbox.UpdateStatus(ctx, event.ID, status); err != nil {
			d.logger.Error("failed to update event status",
				"event_id", event.ID, "error", err)
		}
	}
}
