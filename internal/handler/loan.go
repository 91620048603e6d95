package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/logging"
	"github.com/chamaflow/fundcore/internal/service/disbursement"
)

type loanService interface {
	RequestLoan(ctx context.Context, in disbursement.RequestLoanInput) (*domain.Loan, error)
	ApproveLoan(ctx context.Context, fundID, loanID uuid.UUID) (*domain.Loan, error)
	Disburse(ctx context.Context, req disbursement.DisburseRequest) (*domain.Loan, error)
}

type loanReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	ListByFundAndStatus(ctx context.Context, fundID uuid.UUID, status domain.LoanStatus) ([]domain.Loan, error)
}

type LoanHandler struct {
	service loanService
	loans   loanReader
}

func NewLoanHandler(service loanService, loans loanReader) *LoanHandler {
	return &LoanHandler{service: service, loans: loans}
}

type requestLoanRequest struct {
	MemberID    string `json:"member_id"`
	Principal   string `json:"principal"`
	Installment string `json:"installment"`
}

func (r requestLoanRequest) Validate() []FieldError {
	var errs []FieldError

	if r.MemberID == "" {
		errs = append(errs, FieldError{Field: "member_id", Message: "required"})
	} else if _, err := uuid.Parse(r.MemberID); err != nil {
		errs = append(errs, FieldError{Field: "member_id", Message: "must be a valid UUID"})
	}

	if r.Principal == "" {
		errs = append(errs, FieldError{Field: "principal", Message: "required"})
	} else if p, err := decimal.NewFromString(r.Principal); err != nil {
		errs = append(errs, FieldError{Field: "principal", Message: "must be a decimal string"})
	} else if !p.IsPositive() {
		errs = append(errs, FieldError{Field: "principal", Message: "must be greater than 0"})
	}

	if r.Installment == "" {
		errs = append(errs, FieldError{Field: "installment", Message: "required"})
	} else if s, err := decimal.NewFromString(r.Installment); err != nil {
		errs = append(errs, FieldError{Field: "installment", Message: "must be a decimal string"})
	} else if s.IsNegative() {
		errs = append(errs, FieldError{Field: "installment", Message: "must not be negative"})
	}

	return errs
}

type loanDTO struct {
	ID                   uuid.UUID       `json:"id"`
	FundID               uuid.UUID       `json:"fund_id"`
	MemberID             uuid.UUID       `json:"member_id"`
	Principal            decimal.Decimal `json:"principal"`
	OutstandingPrincipal decimal.Decimal `json:"outstanding_principal"`
	MonthlyRate          decimal.Decimal `json:"monthly_rate"`
	MinPrincipal         decimal.Decimal `json:"min_principal"`
	Installment          decimal.Decimal `json:"installment"`
	Status               string          `json:"status"`
	Version              int64           `json:"version"`
	DisbursedAt          *time.Time      `json:"disbursed_at,omitempty"`
	ClosedAt             *time.Time      `json:"closed_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

func toLoanDTO(l *domain.Loan) loanDTO {
	return loanDTO{
		ID:                   l.ID,
		FundID:               l.FundID,
		MemberID:             l.MemberID,
		Principal:            l.Principal,
		OutstandingPrincipal: l.OutstandingPrincipal,
		MonthlyRate:          l.MonthlyRate,
		MinPrincipal:         l.MinPrincipal,
		Installment:          l.Installment,
		Status:               string(l.Status),
		Version:              l.Version,
		DisbursedAt:          l.DisbursedAt,
		ClosedAt:             l.ClosedAt,
		CreatedAt:            l.CreatedAt,
	}
}

func (h *LoanHandler) Request(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req requestLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	memberID, _ := uuid.Parse(req.MemberID)
	principal, _ := decimal.NewFromString(req.Principal)
	installment, _ := decimal.NewFromString(req.Installment)

	loan, err := h.service.RequestLoan(r.Context(), disbursement.RequestLoanInput{
		FundID:      fundID,
		MemberID:    memberID,
		Principal:   principal,
		Installment: installment,
	})
	if err != nil {
		log.Warn("loan request failed", "error", err, "member_id", memberID)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/funds/%s/loans/%s", fundID, loan.ID))
	RespondSuccess(w, http.StatusCreated, toLoanDTO(loan))
}

func (h *LoanHandler) Approve(w http.ResponseWriter, r *http.Request) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	loanID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	loan, err := h.service.ApproveLoan(r.Context(), fundID, loanID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("loan approval failed", "error", err, "loan_id", loanID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toLoanDTO(loan))
}

func (h *LoanHandler) Disburse(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	actor, appErr := actorFromContext(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	loanID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	loan, err := h.service.Disburse(r.Context(), disbursement.DisburseRequest{
		FundID:         fundID,
		LoanID:         loanID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		RecordedBy:     actor,
	})
	if err != nil {
		log.Warn("loan disbursement failed", "error", err, "loan_id", loanID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toLoanDTO(loan))
}

func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	loanID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	loan, err := h.loans.GetByID(r.Context(), loanID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("loan lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	if loan.FundID != fundID {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, toLoanDTO(loan))
}

func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	status := domain.LoanStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.LoanStatusActive
	}

	loans, err := h.loans.ListByFundAndStatus(r.Context(), fundID, status)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list loans", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]loanDTO, len(loans))
	for i := range loans {
		dtos[i] = toLoanDTO(&loans[i])
	}

	RespondSuccess(w, http.StatusOK, dtos)
}
