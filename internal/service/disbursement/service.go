package disbursement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/logging"
	"github.com/chamaflow/fundcore/internal/money"
)

type loanRepo interface {
	Create(ctx context.Context, loan *domain.Loan) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	MarkDisbursed(ctx context.Context, tx *sql.Tx, loan *domain.Loan) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LoanStatus, newVersion int64) error
}

type fundRepo interface {
	GetConfig(ctx context.Context, fundID uuid.UUID) (*domain.FundConfig, error)
}

type memberRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error)
}

type ledgerRepo interface {
	Append(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
	PoolBalance(ctx context.Context, tx *sql.Tx, fundID uuid.UUID) (decimal.Decimal, error)
}

type outboxRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.OutboxEvent) error
}

// Service owns the loan lifecycle up to and including disbursement. The
// disbursement itself is the one place the core needs stronger isolation
// than optimistic versioning: the pool-balance check and the deduction run
// in a single serializable transaction, because two concurrent
// disbursements that each pass a stale balance check would overdraw the
// fund.
type Service struct {
	loans   loanRepo
	funds   fundRepo
	members memberRepo
	ledger  ledgerRepo
	outbox  outboxRepo
	db      *sql.DB
}

func NewService(loans loanRepo, funds fundRepo, members memberRepo, ledger ledgerRepo, outbox outboxRepo, db *sql.DB) *Service {
	return &Service{
		loans:   loans,
		funds:   funds,
		members: members,
		ledger:  ledger,
		outbox:  outbox,
		db:      db,
	}
}

type RequestLoanInput struct {
	FundID      uuid.UUID
	MemberID    uuid.UUID
	Principal   decimal.Decimal
	Installment decimal.Decimal
}

// RequestLoan registers a pending loan application. Rate and principal
// floor are deliberately not set here; they are snapshotted from the fund
// config at disbursement time.
func (s *Service) RequestLoan(ctx context.Context, in RequestLoanInput) (*domain.Loan, error) {
	if err := money.ValidateAmount(in.Principal); err != nil {
		return nil, fmt.Errorf("RequestLoan: principal: %w", err)
	}
	if !in.Principal.IsPositive() {
		return nil, fmt.Errorf("RequestLoan: %w", domain.ErrInvalidAmount)
	}
	if err := money.ValidateAmount(in.Installment); err != nil {
		return nil, fmt.Errorf("RequestLoan: installment: %w", err)
	}

	m, err := s.members.GetByID(ctx, in.MemberID)
	if err != nil {
		return nil, fmt.Errorf("RequestLoan: %w", err)
	}
	if m.Status != domain.MemberStatusActive || m.FundID != in.FundID {
		return nil, fmt.Errorf("RequestLoan: %w", domain.ErrMemberInactive)
	}

	now := time.Now().UTC()
	loan := &domain.Loan{
		ID:                   uuid.New(),
		FundID:               in.FundID,
		MemberID:             in.MemberID,
		Principal:            in.Principal,
		OutstandingPrincipal: decimal.Zero,
		MonthlyRate:          decimal.Zero,
		MinPrincipal:         decimal.Zero,
		Installment:          in.Installment,
		Status:               domain.LoanStatusPending,
		Version:              0,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.loans.Create(ctx, loan); err != nil {
		return nil, fmt.Errorf("RequestLoan: %w", err)
	}
	return loan, nil
}

func (s *Service) ApproveLoan(ctx context.Context, fundID, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("ApproveLoan: %w", err)
	}
	if loan.FundID != fundID {
		return nil, fmt.Errorf("ApproveLoan: %w", domain.ErrNotFound)
	}
	if !loan.Status.CanTransition(domain.LoanStatusApproved) {
		return nil, fmt.Errorf("ApproveLoan: from %s: %w", loan.Status, domain.ErrInvalidTransition)
	}
	if err := s.loans.UpdateStatus(ctx, loanID, domain.LoanStatusApproved, loan.Version+1); err != nil {
		return nil, fmt.Errorf("ApproveLoan: %w", err)
	}
	loan.Status = domain.LoanStatusApproved
	loan.Version++
	return loan, nil
}

type DisburseRequest struct {
	FundID         uuid.UUID
	LoanID         uuid.UUID
	IdempotencyKey string
	RecordedBy     string
}

// Disburse moves the loan approved -> disbursing -> active. Claiming the
// disbursing state first gives partial failures one documented recovery
// path: any error after the claim compensates back to approved.
func (s *Service) Disburse(ctx context.Context, req DisburseRequest) (*domain.Loan, error) {
	log := logging.FromContext(ctx)

	loan, err := s.loans.GetByID(ctx, req.LoanID)
	if err != nil {
		return nil, fmt.Errorf("Disburse: %w", err)
	}
	if loan.FundID != req.FundID {
		return nil, fmt.Errorf("Disburse: %w", domain.ErrNotFound)
	}
	if !loan.Status.CanTransition(domain.LoanStatusDisbursing) {
		return nil, fmt.Errorf("Disburse: from %s: %w", loan.Status, domain.ErrLoanNotDisbursable)
	}

	cfg, err := s.funds.GetConfig(ctx, loan.FundID)
	if err != nil {
		return nil, fmt.Errorf("Disburse: %w", err)
	}

	if err := s.loans.UpdateStatus(ctx, req.LoanID, domain.LoanStatusDisbursing, loan.Version+1); err != nil {
		return nil, fmt.Errorf("Disburse: claim: %w", err)
	}
	loan.Version++

	disbursed, err := s.executeDisbursement(ctx, loan, cfg, req)
	if err != nil {
		// Compensate: the loan goes back to approved so the request can be
		// retried once the cause is resolved.
		if revertErr := s.loans.UpdateStatus(ctx, req.LoanID, domain.LoanStatusApproved, loan.Version+1); revertErr != nil {
			log.Error("disbursement compensation failed",
				"loan_id", req.LoanID, "error", revertErr)
		}
		return nil, fmt.Errorf("Disburse: %w", err)
	}

	log.Info("loan disbursed",
		"loan_id", disbursed.ID,
		"fund_id", disbursed.FundID,
		"member_id", disbursed.MemberID,
		"principal", disbursed.Principal,
		"monthly_rate", disbursed.MonthlyRate,
	)
	return disbursed, nil
}

func (s *Service) executeDisbursement(ctx context.Context, loan *domain.Loan, cfg *domain.FundConfig, req DisburseRequest) (*domain.Loan, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("executeDisbursement: begin tx: %w", err)
	}
	defer tx.Rollback()

	balance, err := s.ledger.PoolBalance(ctx, tx, loan.FundID)
	if err != nil {
		return nil, fmt.Errorf("executeDisbursement: %w", err)
	}
	if balance.LessThan(loan.Principal) {
		return nil, fmt.Errorf("executeDisbursement: pool %s, principal %s: %w",
			balance, loan.Principal, domain.ErrInsufficientPool)
	}

	now := time.Now().UTC()
	entry := &domain.LedgerEntry{
		ID:             uuid.New(),
		FundID:         loan.FundID,
		MemberID:       loan.MemberID,
		Kind:           domain.EntryKindDisbursement,
		Amount:         loan.Principal,
		IdempotencyKey: req.IdempotencyKey,
		RefType:        domain.RefTypeLoan,
		RefID:          loan.ID,
		RecordedBy:     req.RecordedBy,
		CreatedAt:      now,
	}
	if err := s.ledger.Append(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("executeDisbursement: %w", err)
	}

	// Terms snapshot: later fund config changes never touch this loan.
	loan.Status = domain.LoanStatusActive
	loan.OutstandingPrincipal = loan.Principal
	loan.MonthlyRate = cfg.MonthlyRate
	loan.MinPrincipal = cfg.MinPrincipal
	loan.DisbursedAt = &now
	loan.Version++
	loan.UpdatedAt = now

	if err := s.loans.MarkDisbursed(ctx, tx, loan); err != nil {
		return nil, fmt.Errorf("executeDisbursement: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"loan_id":   loan.ID,
		"member_id": loan.MemberID,
		"principal": loan.Principal,
	})
	if err != nil {
		return nil, fmt.Errorf("executeDisbursement: marshal event: %w", err)
	}
	if err := s.outbox.Create(ctx, tx, &domain.OutboxEvent{
		ID:        uuid.New(),
		FundID:    loan.FundID,
		EventType: domain.EventTypeLoanDisbursed,
		Payload:   payload,
		Status:    domain.OutboxStatusPending,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("executeDisbursement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return nil, fmt.Errorf("executeDisbursement: commit: %w", domain.ErrVersionConflict)
		}
		return nil, fmt.Errorf("executeDisbursement: commit: %w", err)
	}
	return loan, nil
}

// isSerializationFailure detects Postgres 40001, which a caller may retry
// exactly like an optimistic-lock conflict.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "40001"
}
