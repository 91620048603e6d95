package settlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/logging"
)

type memberRepo interface {
	ListActiveByFund(ctx context.Context, fundID uuid.UUID) ([]domain.Member, error)
}

type ledgerRepo interface {
	Append(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
	SumByKind(ctx context.Context, fundID uuid.UUID, kind domain.EntryKind) (decimal.Decimal, error)
	SumByMemberAndKind(ctx context.Context, fundID uuid.UUID, kind domain.EntryKind) (map[uuid.UUID]decimal.Decimal, error)
}

type loanRepo interface {
	SumOutstandingByMember(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
}

type obligationRepo interface {
	SumUnpaidInterestByMember(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	SumUnpaidDuesByMember(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
}

type settlementRepo interface {
	GetByFund(ctx context.Context, fundID uuid.UUID) (*domain.Settlement, error)
	GetLines(ctx context.Context, settlementID uuid.UUID) ([]domain.SettlementLine, error)
	Replace(ctx context.Context, s *domain.Settlement, lines []domain.SettlementLine) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.SettlementStatus) error
	Confirm(ctx context.Context, tx *sql.Tx, id uuid.UUID, confirmedAt time.Time) error
}

type fundRepo interface {
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.FundStatus) error
}

type outboxRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.OutboxEvent) error
}

type Service struct {
	members     memberRepo
	ledger      ledgerRepo
	loans       loanRepo
	obligations obligationRepo
	settlements settlementRepo
	funds       fundRepo
	outbox      outboxRepo
	db          *sql.DB
}

func NewService(members memberRepo, ledger ledgerRepo, loans loanRepo, obligations obligationRepo, settlements settlementRepo, funds fundRepo, outbox outboxRepo, db *sql.DB) *Service {
	return &Service{
		members:     members,
		ledger:      ledger,
		loans:       loans,
		obligations: obligations,
		settlements: settlements,
		funds:       funds,
		outbox:      outbox,
		db:          db,
	}
}

// Report is the full settlement breakdown plus the calculation inputs, so
// external reporting can render it without re-deriving any math.
type Report struct {
	Settlement domain.Settlement
	Lines      []domain.SettlementLine
	Blocking   []domain.BlockingLine
}

// Recalculate rebuilds the settlement from current ledger state. It is a
// pure function of that state and safe to repeat any number of times before
// confirmation; a confirmed settlement is frozen and rejects recalculation.
func (s *Service) Recalculate(ctx context.Context, fundID uuid.UUID) (*Report, error) {
	log := logging.FromContext(ctx)

	members, err := s.members.ListActiveByFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("Recalculate: %w", err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("Recalculate: fund has no active members: %w", domain.ErrValidation)
	}

	interest, err := s.ledger.SumByKind(ctx, fundID, domain.EntryKindInterestIncome)
	if err != nil {
		return nil, fmt.Errorf("Recalculate: %w", err)
	}
	penalties, err := s.ledger.SumByKind(ctx, fundID, domain.EntryKindPenalty)
	if err != nil {
		return nil, fmt.Errorf("Recalculate: %w", err)
	}
	// Penalty income is distributed with interest; both are fund income.
	pool := interest.Add(penalties)

	contributions, err := s.ledger.SumByMemberAndKind(ctx, fundID, domain.EntryKindContribution)
	if err != nil {
		return nil, fmt.Errorf("Recalculate: %w", err)
	}
	outstanding, err := s.loans.SumOutstandingByMember(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("Recalculate: %w", err)
	}
	unpaidInterest, err := s.obligations.SumUnpaidInterestByMember(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("Recalculate: %w", err)
	}
	unpaidDues, err := s.obligations.SumUnpaidDuesByMember(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("Recalculate: %w", err)
	}

	inputs := make([]MemberInput, len(members))
	totalWeight := decimal.Zero
	totalContributions := decimal.Zero
	for i, m := range members {
		inputs[i] = MemberInput{
			MemberID:             m.ID,
			Weight:               m.MonthlyContribution,
			PaidContributions:    orZero(contributions, m.ID),
			OutstandingPrincipal: orZero(outstanding, m.ID),
			UnpaidInterest:       orZero(unpaidInterest, m.ID),
			UnpaidDues:           orZero(unpaidDues, m.ID),
		}
		totalWeight = totalWeight.Add(m.MonthlyContribution)
		totalContributions = totalContributions.Add(inputs[i].PaidContributions)
	}

	lines, err := ComputeLines(pool, inputs)
	if err != nil {
		return nil, fmt.Errorf("Recalculate: %w", err)
	}

	now := time.Now().UTC()
	stl := &domain.Settlement{
		ID:                 uuid.New(),
		FundID:             fundID,
		Status:             domain.SettlementStatusComputing,
		InterestPool:       pool,
		TotalContributions: totalContributions,
		TotalWeight:        totalWeight,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.settlements.Replace(ctx, stl, lines); err != nil {
		return nil, fmt.Errorf("Recalculate: %w", err)
	}

	log.Info("settlement recalculated",
		"fund_id", fundID,
		"interest_pool", pool,
		"members", len(lines),
	)
	return &Report{Settlement: *stl, Lines: lines, Blocking: BlockingLines(lines)}, nil
}

// GetReport returns the stored settlement without recomputing it.
func (s *Service) GetReport(ctx context.Context, fundID uuid.UUID) (*Report, error) {
	stl, err := s.settlements.GetByFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("GetReport: %w", err)
	}
	lines, err := s.settlements.GetLines(ctx, stl.ID)
	if err != nil {
		return nil, fmt.Errorf("GetReport: %w", err)
	}
	return &Report{Settlement: *stl, Lines: lines, Blocking: BlockingLines(lines)}, nil
}

// Review marks the computed settlement as reviewed, the gate before
// confirmation.
func (s *Service) Review(ctx context.Context, fundID uuid.UUID) (*domain.Settlement, error) {
	stl, err := s.settlements.GetByFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("Review: %w", err)
	}
	if err := s.settlements.UpdateStatus(ctx, stl.ID, domain.SettlementStatusComputing, domain.SettlementStatusReviewed); err != nil {
		return nil, fmt.Errorf("Review: %w", err)
	}
	stl.Status = domain.SettlementStatusReviewed
	return stl, nil
}

type ConfirmRequest struct {
	FundID         uuid.UUID
	IdempotencyKey string
	RecordedBy     string
}

// Confirm freezes the settlement and writes one payout ledger entry per
// member with a positive net. Any negative net payout blocks the whole
// confirmation with the full report of who is short and by how much.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*Report, error) {
	log := logging.FromContext(ctx)

	stl, err := s.settlements.GetByFund(ctx, req.FundID)
	if err != nil {
		return nil, fmt.Errorf("Confirm: %w", err)
	}
	if stl.Status == domain.SettlementStatusConfirmed {
		return nil, fmt.Errorf("Confirm: %w", domain.ErrSettlementFrozen)
	}
	if stl.Status != domain.SettlementStatusReviewed {
		return nil, fmt.Errorf("Confirm: settlement not reviewed: %w", domain.ErrInvalidTransition)
	}
	lines, err := s.settlements.GetLines(ctx, stl.ID)
	if err != nil {
		return nil, fmt.Errorf("Confirm: %w", err)
	}

	if blocking := BlockingLines(lines); len(blocking) > 0 {
		return nil, fmt.Errorf("Confirm: %w", &NegativePayoutError{Blocking: blocking})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Confirm: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := s.settlements.Confirm(ctx, tx, stl.ID, now); err != nil {
		return nil, fmt.Errorf("Confirm: %w", err)
	}

	for _, line := range lines {
		if !line.NetPayout.IsPositive() {
			continue
		}
		entry := &domain.LedgerEntry{
			ID:             uuid.New(),
			FundID:         req.FundID,
			MemberID:       line.MemberID,
			Kind:           domain.EntryKindSettlement,
			Amount:         line.NetPayout,
			IdempotencyKey: fmt.Sprintf("%s:%s", req.IdempotencyKey, line.MemberID),
			RefType:        domain.RefTypeSettlement,
			RefID:          stl.ID,
			RecordedBy:     req.RecordedBy,
			CreatedAt:      now,
		}
		if err := s.ledger.Append(ctx, tx, entry); err != nil {
			return nil, fmt.Errorf("Confirm: payout entry: %w", err)
		}
	}

	if err := s.funds.UpdateStatus(ctx, tx, req.FundID, domain.FundStatusDissolved); err != nil {
		return nil, fmt.Errorf("Confirm: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"settlement_id": stl.ID,
		"interest_pool": stl.InterestPool,
		"members":       len(lines),
	})
	if err != nil {
		return nil, fmt.Errorf("Confirm: marshal event: %w", err)
	}
	if err := s.outbox.Create(ctx, tx, &domain.OutboxEvent{
		ID:        uuid.New(),
		FundID:    req.FundID,
		EventType: domain.EventTypeSettlementConfirmed,
		Payload:   payload,
		Status:    domain.OutboxStatusPending,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("Confirm: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Confirm: commit: %w", err)
	}

	stl.Status = domain.SettlementStatusConfirmed
	stl.ConfirmedAt = &now

	log.Info("settlement confirmed",
		"fund_id", req.FundID,
		"settlement_id", stl.ID,
		"interest_pool", stl.InterestPool,
	)
	return &Report{Settlement: *stl, Lines: lines}, nil
}

func orZero(m map[uuid.UUID]decimal.Decimal, id uuid.UUID) decimal.Decimal {
	if v, ok := m[id]; ok {
		return v
	}
	return decimal.Zero
}
