package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/logging"
)

type memberRepo interface {
	Upsert(ctx context.Context, m *domain.Member) error
	ListActiveByFund(ctx context.Context, fundID uuid.UUID) ([]domain.Member, error)
}

// MemberHandler maintains the core's membership snapshot from events pushed
// by the member service. Sync is an upsert, so at-least-once delivery is
// harmless.
type MemberHandler struct {
	members memberRepo
}

func NewMemberHandler(members memberRepo) *MemberHandler {
	return &MemberHandler{members: members}
}

type syncMemberRequest struct {
	MemberID            string `json:"member_id"`
	Name                string `json:"name"`
	MonthlyContribution string `json:"monthly_contribution"`
	Status              string `json:"status"`
	JoinedAt            string `json:"joined_at"`
}

func (r syncMemberRequest) Validate() []FieldError {
	var errs []FieldError

	if r.MemberID == "" {
		errs = append(errs, FieldError{Field: "member_id", Message: "required"})
	} else if _, err := uuid.Parse(r.MemberID); err != nil {
		errs = append(errs, FieldError{Field: "member_id", Message: "must be a valid UUID"})
	}

	if r.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "required"})
	}

	if r.MonthlyContribution == "" {
		errs = append(errs, FieldError{Field: "monthly_contribution", Message: "required"})
	} else if c, err := decimal.NewFromString(r.MonthlyContribution); err != nil {
		errs = append(errs, FieldError{Field: "monthly_contribution", Message: "must be a decimal string"})
	} else if !c.IsPositive() {
		errs = append(errs, FieldError{Field: "monthly_contribution", Message: "must be greater than 0"})
	}

	switch domain.MemberStatus(r.Status) {
	case domain.MemberStatusActive, domain.MemberStatusExited:
	default:
		errs = append(errs, FieldError{Field: "status", Message: "must be active or exited"})
	}

	if r.JoinedAt != "" {
		if _, err := time.Parse(time.RFC3339, r.JoinedAt); err != nil {
			errs = append(errs, FieldError{Field: "joined_at", Message: "must be RFC3339"})
		}
	}

	return errs
}

type memberDTO struct {
	ID                  uuid.UUID       `json:"id"`
	FundID              uuid.UUID       `json:"fund_id"`
	Name                string          `json:"name"`
	MonthlyContribution decimal.Decimal `json:"monthly_contribution"`
	Status              string          `json:"status"`
	JoinedAt            time.Time       `json:"joined_at"`
}

func toMemberDTO(m *domain.Member) memberDTO {
	return memberDTO{
		ID:                  m.ID,
		FundID:              m.FundID,
		Name:                m.Name,
		MonthlyContribution: m.MonthlyContribution,
		Status:              string(m.Status),
		JoinedAt:            m.JoinedAt,
	}
}

func (h *MemberHandler) Sync(w http.ResponseWriter, r *http.Request) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req syncMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	memberID, _ := uuid.Parse(req.MemberID)
	contribution, _ := decimal.NewFromString(req.MonthlyContribution)
	joinedAt := time.Now().UTC()
	if req.JoinedAt != "" {
		joinedAt, _ = time.Parse(time.RFC3339, req.JoinedAt)
	}

	m := &domain.Member{
		ID:                  memberID,
		FundID:              fundID,
		Name:                req.Name,
		MonthlyContribution: contribution,
		Status:              domain.MemberStatus(req.Status),
		JoinedAt:            joinedAt,
	}
	if err := h.members.Upsert(r.Context(), m); err != nil {
		logging.FromContext(r.Context()).Error("member sync failed", "error", err, "member_id", memberID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toMemberDTO(m))
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	members, err := h.members.ListActiveByFund(r.Context(), fundID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list members", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]memberDTO, len(members))
	for i := range members {
		dtos[i] = toMemberDTO(&members[i])
	}

	RespondSuccess(w, http.StatusOK, dtos)
}
