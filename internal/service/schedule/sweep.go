package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/logging"
)

type SweepResult struct {
	Transitioned int `json:"transitioned"`
	Failed       int `json:"failed"`
}

// MarkLateContributions moves contribution dues whose grace period has
// elapsed to Late. Already-late rows no longer match the filter, so the
// sweep is a no-op on reruns.
func (g *Generator) MarkLateContributions(ctx context.Context, fundID uuid.UUID, now time.Time) (*SweepResult, error) {
	cfg, err := g.funds.GetConfig(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("MarkLateContributions: %w", err)
	}

	cutoff := now.UTC().AddDate(0, 0, -cfg.GraceDays)
	lapsed, err := g.obligations.ListLapsed(ctx, fundID, domain.ObligationKindContribution,
		[]domain.ObligationStatus{domain.ObligationStatusPending, domain.ObligationStatusPartial}, cutoff)
	if err != nil {
		return nil, fmt.Errorf("MarkLateContributions: %w", err)
	}

	return g.transitionAll(ctx, lapsed, domain.ObligationStatusLate, domain.EventTypeObligationLate), nil
}

// MarkOverdueRepayments moves repayment installments past their due date to
// Overdue.
func (g *Generator) MarkOverdueRepayments(ctx context.Context, fundID uuid.UUID, now time.Time) (*SweepResult, error) {
	lapsed, err := g.obligations.ListLapsed(ctx, fundID, domain.ObligationKindRepayment,
		[]domain.ObligationStatus{domain.ObligationStatusPending, domain.ObligationStatusPartial}, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("MarkOverdueRepayments: %w", err)
	}

	return g.transitionAll(ctx, lapsed, domain.ObligationStatusOverdue, domain.EventTypeObligationOverdue), nil
}

// ClosePeriod marks the period's still-unpaid contribution dues as Missed.
// Reprocessing an already-closed period transitions nothing.
func (g *Generator) ClosePeriod(ctx context.Context, fundID uuid.UUID, period domain.PeriodKey) (*SweepResult, error) {
	if !period.IsValid() {
		return nil, fmt.Errorf("ClosePeriod: %w", domain.ErrInvalidPeriod)
	}

	obligations, err := g.obligations.ListByFundAndPeriod(ctx, fundID, domain.ObligationKindContribution, period)
	if err != nil {
		return nil, fmt.Errorf("ClosePeriod: %w", err)
	}

	var open []domain.Obligation
	for _, o := range obligations {
		if o.CanTransition(domain.ObligationStatusMissed) {
			open = append(open, o)
		}
	}

	return g.transitionAll(ctx, open, domain.ObligationStatusMissed, domain.EventTypeObligationMissed), nil
}

// transitionAll applies one status transition per obligation, each in its
// own small transaction with its event. A version conflict means a payment
// landed concurrently; the item is skipped and the next sweep re-evaluates.
func (g *Generator) transitionAll(ctx context.Context, obligations []domain.Obligation, to domain.ObligationStatus, eventType domain.EventType) *SweepResult {
	log := logging.FromContext(ctx)

	res := &SweepResult{}
	for _, o := range obligations {
		if !o.CanTransition(to) {
			continue
		}
		if err := g.transitionOne(ctx, o, to, eventType); err != nil {
			log.Error("obligation sweep transition failed",
				"obligation_id", o.ID, "to", to, "error", err)
			res.Failed++
			continue
		}
		res.Transitioned++
	}
	return res
}

func (g *Generator) transitionOne(ctx context.Context, o domain.Obligation, to domain.ObligationStatus, eventType domain.EventType) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transitionOne: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := g.obligations.UpdateStatus(ctx, tx, o.ID, to, o.Version+1); err != nil {
		return fmt.Errorf("transitionOne: %w", err)
	}

	if err := stageEvent(ctx, g.outbox, tx, o.FundID, eventType, obligationEventPayload{
		ObligationID: o.ID,
		MemberID:     o.MemberID,
		Kind:         o.Kind,
		Period:       o.Period,
		Status:       to,
	}); err != nil {
		return fmt.Errorf("transitionOne: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transitionOne: commit: %w", err)
	}
	return nil
}

type obligationEventPayload struct {
	ObligationID uuid.UUID               `json:"obligation_id"`
	MemberID     uuid.UUID               `json:"member_id"`
	Kind         domain.ObligationKind   `json:"kind"`
	Period       domain.PeriodKey        `json:"period"`
	Status       domain.ObligationStatus `json:"status"`
}

type loanEventPayload struct {
	LoanID   uuid.UUID `json:"loan_id"`
	MemberID uuid.UUID `json:"member_id"`
}

func stageEvent(ctx context.Context, outbox outboxRepo, tx *sql.Tx, fundID uuid.UUID, eventType domain.EventType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("stageEvent: marshal: %w", err)
	}
	return outbox.Create(ctx, tx, &domain.OutboxEvent{
		ID:        uuid.New(),
		FundID:    fundID,
		EventType: eventType,
		Payload:   body,
		Status:    domain.OutboxStatusPending,
		CreatedAt: time.Now().UTC(),
	})
}
