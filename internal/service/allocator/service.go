package allocator

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
	"github.com/chamaflow/fundcore/internal/money"
)

type obligationRepo interface {
	GetTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Obligation, error)
	ApplyPayment(ctx context.Context, tx *sql.Tx, id uuid.UUID, amountPaid, interestPaid decimal.Decimal, status domain.ObligationStatus, newVersion int64) error
}

type loanRepo interface {
	GetTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Loan, error)
	UpdateOutstanding(ctx context.Context, tx *sql.Tx, id uuid.UUID, outstanding decimal.Decimal, status domain.LoanStatus, closedAt *time.Time, newVersion int64) error
}

type ledgerRepo interface {
	Append(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
}

type outboxRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.OutboxEvent) error
}

// Service records payments against obligations. Every mutation happens in
// one version-guarded transaction keyed by the caller's idempotency key:
// obligation update, loan update, ledger entries and events commit together
// or not at all.
type Service struct {
	obligations obligationRepo
	loans       loanRepo
	ledger      ledgerRepo
	outbox      outboxRepo
	db          *sql.DB
}

func NewService(obligations obligationRepo, loans loanRepo, ledger ledgerRepo, outbox outboxRepo, db *sql.DB) *Service {
	return &Service{
		obligations: obligations,
		loans:       loans,
		ledger:      ledger,
		outbox:      outbox,
		db:          db,
	}
}

type RecordPaymentRequest struct {
	FundID          uuid.UUID
	ObligationID    uuid.UUID
	Amount          decimal.Decimal
	ExpectedVersion int64
	IdempotencyKey  string
	RecordedBy      string
}

type PaymentResult struct {
	ObligationID      uuid.UUID               `json:"obligation_id"`
	Status            domain.ObligationStatus `json:"status"`
	AmountPaid        decimal.Decimal         `json:"amount_paid"`
	RemainingBalance  decimal.Decimal         `json:"remaining_balance"`
	InterestApplied   decimal.Decimal         `json:"interest_applied"`
	PrincipalApplied  decimal.Decimal         `json:"principal_applied"`
	ExcessToPrincipal decimal.Decimal         `json:"excess_to_principal"`
	LoanOutstanding   *decimal.Decimal        `json:"loan_outstanding,omitempty"`
	LoanClosed        bool                    `json:"loan_closed"`
	Version           int64                   `json:"version"`
}

// RecordPayment applies one payment to one obligation. The caller must
// present the obligation version it last observed; a stale version fails
// with no side effect and the caller re-fetches and retries.
func (s *Service) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*PaymentResult, error) {
	log := logging.FromContext(ctx)

	if err := money.ValidateAmount(req.Amount); err != nil {
		return nil, fmt.Errorf("RecordPayment: %w", err)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("RecordPayment: %w", domain.ErrInvalidAmount)
	}
	if req.IdempotencyKey == "" {
		return nil, fmt.Errorf("RecordPayment: missing idempotency key: %w", domain.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("RecordPayment: begin tx: %w", err)
	}
	defer tx.Rollback()

	o, err := s.obligations.GetTx(ctx, tx, req.ObligationID)
	if err != nil {
		return nil, fmt.Errorf("RecordPayment: %w", err)
	}
	if o.FundID != req.FundID {
		return nil, fmt.Errorf("RecordPayment: obligation not in fund: %w", domain.ErrNotFound)
	}
	if o.Version != req.ExpectedVersion {
		return nil, fmt.Errorf("RecordPayment: expected version %d, have %d: %w",
			req.ExpectedVersion, o.Version, domain.ErrVersionConflict)
	}
	if !o.IsOpen() {
		return nil, fmt.Errorf("RecordPayment: status %s: %w", o.Status, domain.ErrObligationSettled)
	}

	var result *PaymentResult
	switch o.Kind {
	case domain.ObligationKindContribution:
		result, err = s.applyContribution(ctx, tx, o, req)
	case domain.ObligationKindRepayment:
		result, err = s.applyRepayment(ctx, tx, o, req)
	default:
		err = fmt.Errorf("unknown obligation kind %q: %w", o.Kind, domain.ErrInvariantViolation)
	}
	if err != nil {
		return nil, fmt.Errorf("RecordPayment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("RecordPayment: commit: %w", err)
	}

	log.Info("payment recorded",
		"fund_id", req.FundID,
		"obligation_id", req.ObligationID,
		"kind", o.Kind,
		"amount", req.Amount,
		"status", result.Status,
	)
	return result, nil
}

func (s *Service) applyContribution(ctx context.Context, tx *sql.Tx, o *domain.Obligation, req RecordPaymentRequest) (*PaymentResult, error) {
	newPaid := o.AmountPaid.Add(req.Amount)
	remaining := o.AmountDue.Sub(newPaid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	newStatus := o.StatusAfterPayment(remaining)

	if err := s.obligations.ApplyPayment(ctx, tx, o.ID, newPaid, o.InterestPaid, newStatus, o.Version+1); err != nil {
		return nil, fmt.Errorf("applyContribution: %w", err)
	}

	entry := &domain.LedgerEntry{
		ID:             uuid.New(),
		FundID:         o.FundID,
		MemberID:       o.MemberID,
		Kind:           domain.EntryKindContribution,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		RefType:        domain.RefTypeObligation,
		RefID:          o.ID,
		RecordedBy:     req.RecordedBy,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.ledger.Append(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("applyContribution: %w", err)
	}

	if newStatus == domain.ObligationStatusPaid {
		if err := s.stagePaidEvent(ctx, tx, o, newStatus); err != nil {
			return nil, fmt.Errorf("applyContribution: %w", err)
		}
	}

	return &PaymentResult{
		ObligationID:      o.ID,
		Status:            newStatus,
		AmountPaid:        newPaid,
		RemainingBalance:  remaining,
		InterestApplied:   decimal.Zero,
		PrincipalApplied:  req.Amount,
		ExcessToPrincipal: decimal.Zero,
		Version:           o.Version + 1,
	}, nil
}

func (s *Service) applyRepayment(ctx context.Context, tx *sql.Tx, o *domain.Obligation, req RecordPaymentRequest) (*PaymentResult, error) {
	if o.LoanID == nil {
		return nil, fmt.Errorf("applyRepayment: repayment obligation without loan: %w", domain.ErrInvariantViolation)
	}

	loan, err := s.loans.GetTx(ctx, tx, *o.LoanID)
	if err != nil {
		return nil, fmt.Errorf("applyRepayment: %w", err)
	}
	if loan.Status != domain.LoanStatusActive {
		return nil, fmt.Errorf("applyRepayment: loan %s: %w", loan.Status, domain.ErrLoanClosed)
	}

	principalPaidSoFar := o.AmountPaid.Sub(o.InterestPaid)
	principalRemaining := o.PrincipalDue.Sub(principalPaidSoFar)
	if principalRemaining.IsNegative() {
		principalRemaining = decimal.Zero
	}

	alloc := splitPayment(req.Amount, o.InterestRemaining(), principalRemaining)
	if !alloc.Interest.Add(alloc.Principal).Add(alloc.Excess).Equal(req.Amount) {
		return nil, fmt.Errorf("applyRepayment: allocation does not reassemble amount: %w", domain.ErrInvariantViolation)
	}

	principalReduction := alloc.Principal.Add(alloc.Excess)
	if principalReduction.GreaterThan(loan.OutstandingPrincipal) {
		return nil, fmt.Errorf("applyRepayment: %w", domain.ErrPaymentExceedsLoan)
	}

	newPaid := o.AmountPaid.Add(req.Amount)
	newInterestPaid := o.InterestPaid.Add(alloc.Interest)
	remaining := o.AmountDue.Sub(newPaid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	newStatus := o.StatusAfterPayment(remaining)

	if err := s.obligations.ApplyPayment(ctx, tx, o.ID, newPaid, newInterestPaid, newStatus, o.Version+1); err != nil {
		return nil, fmt.Errorf("applyRepayment: %w", err)
	}

	now := time.Now().UTC()
	if principalReduction.IsPositive() {
		entry := &domain.LedgerEntry{
			ID:             uuid.New(),
			FundID:         o.FundID,
			MemberID:       o.MemberID,
			Kind:           domain.EntryKindRepayment,
			Amount:         principalReduction,
			IdempotencyKey: req.IdempotencyKey,
			RefType:        domain.RefTypeObligation,
			RefID:          o.ID,
			RecordedBy:     req.RecordedBy,
			CreatedAt:      now,
		}
		if err := s.ledger.Append(ctx, tx, entry); err != nil {
			return nil, fmt.Errorf("applyRepayment: principal entry: %w", err)
		}
	}

	// Interest actually collected is its own entry so fund income stays
	// separately auditable.
	if alloc.Interest.IsPositive() {
		entry := &domain.LedgerEntry{
			ID:             uuid.New(),
			FundID:         o.FundID,
			MemberID:       o.MemberID,
			Kind:           domain.EntryKindInterestIncome,
			Amount:         alloc.Interest,
			IdempotencyKey: req.IdempotencyKey,
			RefType:        domain.RefTypeObligation,
			RefID:          o.ID,
			RecordedBy:     req.RecordedBy,
			CreatedAt:      now,
		}
		if err := s.ledger.Append(ctx, tx, entry); err != nil {
			return nil, fmt.Errorf("applyRepayment: interest entry: %w", err)
		}
	}

	newOutstanding := loan.OutstandingPrincipal.Sub(principalReduction)
	loanStatus := loan.Status
	var closedAt *time.Time
	loanClosed := false
	if newOutstanding.IsZero() {
		loanStatus = domain.LoanStatusClosed
		closedAt = &now
		loanClosed = true
	}

	if err := s.loans.UpdateOutstanding(ctx, tx, loan.ID, newOutstanding, loanStatus, closedAt, loan.Version+1); err != nil {
		return nil, fmt.Errorf("applyRepayment: %w", err)
	}

	if newStatus == domain.ObligationStatusPaid {
		if err := s.stagePaidEvent(ctx, tx, o, newStatus); err != nil {
			return nil, fmt.Errorf("applyRepayment: %w", err)
		}
	}
	if loanClosed {
		if err := s.stageEvent(ctx, tx, o.FundID, domain.EventTypeLoanClosed, map[string]any{
			"loan_id":   loan.ID,
			"member_id": loan.MemberID,
		}); err != nil {
			return nil, fmt.Errorf("applyRepayment: %w", err)
		}
	}

	return &PaymentResult{
		ObligationID:      o.ID,
		Status:            newStatus,
		AmountPaid:        newPaid,
		RemainingBalance:  remaining,
		InterestApplied:   alloc.Interest,
		PrincipalApplied:  alloc.Principal,
		ExcessToPrincipal: alloc.Excess,
		LoanOutstanding:   &newOutstanding,
		LoanClosed:        loanClosed,
		Version:           o.Version + 1,
	}, nil
}

func (s *Service) stagePaidEvent(ctx context.Context, tx *sql.Tx, o *domain.Obligation, status domain.ObligationStatus) error {
	return s.stageEvent(ctx, tx, o.FundID, domain.EventTypeObligationPaid, map[string]any{
		"obligation_id": o.ID,
		"member_id":     o.MemberID,
		"kind":          o.Kind,
		"period":        o.Period,
		"status":        status,
	})
}

func (s *Service) stageEvent(ctx context.Context, tx *sql.Tx, fundID uuid.UUID, eventType domain.EventType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("stageEvent: marshal: %w", err)
	}
	return s.outbox.Create(ctx, tx, &domain.OutboxEvent{
		ID:        uuid.New(),
		FundID:    fundID,
		EventType: eventType,
		Payload:   body,
		Status:    domain.OutboxStatusPending,
		CreatedAt: time.Now().UTC(),
	})
}
