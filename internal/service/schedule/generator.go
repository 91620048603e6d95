package schedule

import (
	"context"
	"database/sql"
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

type loanRepo interface {
	ListByFundAndStatus(ctx context.Context, fundID uuid.UUID, status domain.LoanStatus) ([]domain.Loan, error)
	UpdateOutstanding(ctx context.Context, tx *sql.Tx, id uuid.UUID, outstanding decimal.Decimal, status domain.LoanStatus, closedAt *time.Time, newVersion int64) error
}

type obligationRepo interface {
	CreateIfAbsent(ctx context.Context, o *domain.Obligation) (bool, error)
	ListLapsed(ctx context.Context, fundID uuid.UUID, kind domain.ObligationKind, statuses []domain.ObligationStatus, before time.Time) ([]domain.Obligation, error)
	ListByFundAndPeriod(ctx context.Context, fundID uuid.UUID, kind domain.ObligationKind, period domain.PeriodKey) ([]domain.Obligation, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.ObligationStatus, newVersion int64) error
}

type fundRepo interface {
	GetConfig(ctx context.Context, fundID uuid.UUID) (*domain.FundConfig, error)
}

type outboxRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.OutboxEvent) error
}

// Generator runs the period-boundary jobs: contribution due generation,
// repayment installment generation, and the time-driven status sweeps.
// Every job is safe to re-run; uniqueness constraints and status filters
// make replays no-ops.
type Generator struct {
	members     memberRepo
	loans       loanRepo
	obligations obligationRepo
	funds       fundRepo
	outbox      outboxRepo
	db          *sql.DB
}

func NewGenerator(members memberRepo, loans loanRepo, obligations obligationRepo, funds fundRepo, outbox outboxRepo, db *sql.DB) *Generator {
	return &Generator{
		members:     members,
		loans:       loans,
		obligations: obligations,
		funds:       funds,
		outbox:      outbox,
		db:          db,
	}
}

type GenerationResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// GenerateContributionDues creates the period's contribution obligation for
// every active member. Rerunning for an already-generated period creates
// nothing.
func (g *Generator) GenerateContributionDues(ctx context.Context, fundID uuid.UUID, period domain.PeriodKey) (*GenerationResult, error) {
	log := logging.FromContext(ctx)

	if !period.IsValid() {
		return nil, fmt.Errorf("GenerateContributionDues: %w", domain.ErrInvalidPeriod)
	}

	members, err := g.members.ListActiveByFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("GenerateContributionDues: %w", err)
	}

	now := time.Now().UTC()
	res := &GenerationResult{}
	for _, m := range members {
		o := &domain.Obligation{
			ID:           uuid.New(),
			FundID:       fundID,
			MemberID:     m.ID,
			Kind:         domain.ObligationKindContribution,
			Period:       period,
			AmountDue:    m.MonthlyContribution,
			InterestDue:  decimal.Zero,
			PrincipalDue: decimal.Zero,
			AmountPaid:   decimal.Zero,
			InterestPaid: decimal.Zero,
			Status:       domain.ObligationStatusPending,
			DueDate:      period.End(),
			Version:      0,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		created, err := g.obligations.CreateIfAbsent(ctx, o)
		if err != nil {
			// Partial-failure isolation: one bad member must not abort the batch.
			log.Error("contribution due generation failed",
				"fund_id", fundID, "member_id", m.ID, "period", period, "error", err)
			res.Failed++
			continue
		}
		if created {
			res.Created++
		} else {
			res.Skipped++
		}
	}

	log.Info("contribution dues generated",
		"fund_id", fundID, "period", period,
		"created", res.Created, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// GenerateRepaymentInstallments creates the period's installment for every
// active loan from its own terms snapshot. Loans already repaid to zero are
// closed instead of billed.
func (g *Generator) GenerateRepaymentInstallments(ctx context.Context, fundID uuid.UUID, period domain.PeriodKey) (*GenerationResult, error) {
	log := logging.FromContext(ctx)

	if !period.IsValid() {
		return nil, fmt.Errorf("GenerateRepaymentInstallments: %w", domain.ErrInvalidPeriod)
	}

	loans, err := g.loans.ListByFundAndStatus(ctx, fundID, domain.LoanStatusActive)
	if err != nil {
		return nil, fmt.Errorf("GenerateRepaymentInstallments: %w", err)
	}

	now := time.Now().UTC()
	res := &GenerationResult{}
	for _, loan := range loans {
		if loan.OutstandingPrincipal.IsZero() {
			if err := g.closeLoan(ctx, loan, now); err != nil {
				log.Error("loan close failed", "loan_id", loan.ID, "error", err)
				res.Failed++
			}
			continue
		}

		inst, err := ComputeInstallment(loan.OutstandingPrincipal, loan.MonthlyRate, loan.MinPrincipal, loan.Installment)
		if err != nil {
			log.Error("installment computation failed", "loan_id", loan.ID, "error", err)
			res.Failed++
			continue
		}

		loanID := loan.ID
		o := &domain.Obligation{
			ID:           uuid.New(),
			FundID:       fundID,
			MemberID:     loan.MemberID,
			LoanID:       &loanID,
			Kind:         domain.ObligationKindRepayment,
			Period:       period,
			AmountDue:    inst.Total,
			InterestDue:  inst.Interest,
			PrincipalDue: inst.Principal,
			AmountPaid:   decimal.Zero,
			InterestPaid: decimal.Zero,
			Status:       domain.ObligationStatusPending,
			DueDate:      period.End(),
			Version:      0,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		created, err := g.obligations.CreateIfAbsent(ctx, o)
		if err != nil {
			log.Error("repayment generation failed",
				"loan_id", loan.ID, "period", period, "error", err)
			res.Failed++
			continue
		}
		if created {
			res.Created++
		} else {
			res.Skipped++
		}
	}

	log.Info("repayment installments generated",
		"fund_id", fundID, "period", period,
		"created", res.Created, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (g *Generator) closeLoan(ctx context.Context, loan domain.Loan, now time.Time) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("closeLoan: begin tx: %w", err)
	}
	defer tx.Rollback()

	closedAt := now
	if err := g.loans.UpdateOutstanding(ctx, tx, loan.ID, decimal.Zero, domain.LoanStatusClosed, &closedAt, loan.Version+1); err != nil {
		return fmt.Errorf("closeLoan: %w", err)
	}
	if err := stageEvent(ctx, g.outbox, tx, loan.FundID, domain.EventTypeLoanClosed, loanEventPayload{
		LoanID:   loan.ID,
		MemberID: loan.MemberID,
	}); err != nil {
		return fmt.Errorf("closeLoan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("closeLoan: commit: %w", err)
	}
	return nil
}
