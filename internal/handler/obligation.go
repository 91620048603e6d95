package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/logging"
)

type obligationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Obligation, error)
	ListByFundAndPeriod(ctx context.Context, fundID uuid.UUID, kind domain.ObligationKind, period domain.PeriodKey) ([]domain.Obligation, error)
}

type ObligationHandler struct {
	obligations obligationReader
}

func NewObligationHandler(obligations obligationReader) *ObligationHandler {
	return &ObligationHandler{obligations: obligations}
}

type obligationDTO struct {
	ID               uuid.UUID       `json:"id"`
	FundID           uuid.UUID       `json:"fund_id"`
	MemberID         uuid.UUID       `json:"member_id"`
	LoanID           *uuid.UUID      `json:"loan_id,omitempty"`
	Kind             string          `json:"kind"`
	Period           string          `json:"period"`
	AmountDue        decimal.Decimal `json:"amount_due"`
	InterestDue      decimal.Decimal `json:"interest_due"`
	PrincipalDue     decimal.Decimal `json:"principal_due"`
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	InterestPaid     decimal.Decimal `json:"interest_paid"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	Status           string          `json:"status"`
	DueDate          time.Time       `json:"due_date"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
}

func toObligationDTO(o *domain.Obligation) obligationDTO {
	return obligationDTO{
		ID:               o.ID,
		FundID:           o.FundID,
		MemberID:         o.MemberID,
		LoanID:           o.LoanID,
		Kind:             string(o.Kind),
		Period:           string(o.Period),
		AmountDue:        o.AmountDue,
		InterestDue:      o.InterestDue,
		PrincipalDue:     o.PrincipalDue,
		AmountPaid:       o.AmountPaid,
		InterestPaid:     o.InterestPaid,
		RemainingBalance: o.RemainingBalance(),
		Status:           string(o.Status),
		DueDate:          o.DueDate,
		Version:          o.Version,
		CreatedAt:        o.CreatedAt,
	}
}

func (h *ObligationHandler) Get(w http.ResponseWriter, r *http.Request) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	obligationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	o, err := h.obligations.GetByID(r.Context(), obligationID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("obligation lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	if o.FundID != fundID {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, toObligationDTO(o))
}

// ListByPeriod returns the fund's obligations for one period, filtered by
// kind via the ?kind= query parameter (defaults to contribution).
func (h *ObligationHandler) ListByPeriod(w http.ResponseWriter, r *http.Request) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	period, appErr := periodFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	kind := domain.ObligationKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = domain.ObligationKindContribution
	}
	if kind != domain.ObligationKindContribution && kind != domain.ObligationKindRepayment {
		RespondValidationError(w, []FieldError{
			{Field: "kind", Message: "must be contribution or repayment"},
		})
		return
	}

	obligations, err := h.obligations.ListByFundAndPeriod(r.Context(), fundID, kind, period)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list obligations", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]obligationDTO, len(obligations))
	for i := range obligations {
		dtos[i] = toObligationDTO(&obligations[i])
	}

	RespondSuccess(w, http.StatusOK, dtos)
}
