package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/logging"
	"github.com/chamaflow/fundcore/internal/service/settlement"
)

type settlementService interface {
	Recalculate(ctx context.Context, fundID uuid.UUID) (*settlement.Report, error)
	GetReport(ctx context.Context, fundID uuid.UUID) (*settlement.Report, error)
	Review(ctx context.Context, fundID uuid.UUID) (*domain.Settlement, error)
	Confirm(ctx context.Context, req settlement.ConfirmRequest) (*settlement.Report, error)
}

type SettlementHandler struct {
	settlements settlementService
}

func NewSettlementHandler(settlements settlementService) *SettlementHandler {
	return &SettlementHandler{settlements: settlements}
}

type settlementDTO struct {
	ID                 uuid.UUID       `json:"id"`
	FundID             uuid.UUID       `json:"fund_id"`
	Status             string          `json:"status"`
	InterestPool       decimal.Decimal `json:"interest_pool"`
	TotalContributions decimal.Decimal `json:"total_contributions"`
	TotalWeight        decimal.Decimal `json:"total_weight"`
	ConfirmedAt        *time.Time      `json:"confirmed_at,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type settlementLineDTO struct {
	MemberID             uuid.UUID       `json:"member_id"`
	Weight               decimal.Decimal `json:"weight"`
	PaidContributions    decimal.Decimal `json:"paid_contributions"`
	InterestShare        decimal.Decimal `json:"interest_share"`
	OutstandingPrincipal decimal.Decimal `json:"outstanding_principal"`
	UnpaidInterest       decimal.Decimal `json:"unpaid_interest"`
	UnpaidDues           decimal.Decimal `json:"unpaid_dues"`
	GrossPayout          decimal.Decimal `json:"gross_payout"`
	NetPayout            decimal.Decimal `json:"net_payout"`
}

type settlementReportDTO struct {
	Settlement settlementDTO         `json:"settlement"`
	Lines      []settlementLineDTO   `json:"lines"`
	Blocking   []domain.BlockingLine `json:"blocking,omitempty"`
}

func toSettlementDTO(s *domain.Settlement) settlementDTO {
	return settlementDTO{
		ID:                 s.ID,
		FundID:             s.FundID,
		Status:             string(s.Status),
		InterestPool:       s.InterestPool,
		TotalContributions: s.TotalContributions,
		TotalWeight:        s.TotalWeight,
		ConfirmedAt:        s.ConfirmedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func toSettlementReportDTO(r *settlement.Report) settlementReportDTO {
	dto := settlementReportDTO{
		Settlement: toSettlementDTO(&r.Settlement),
		Lines:      make([]settlementLineDTO, len(r.Lines)),
		Blocking:   r.Blocking,
	}
	for i, line := range r.Lines {
		dto.Lines[i] = settlementLineDTO{
			MemberID:             line.MemberID,
			Weight:               line.Weight,
			PaidContributions:    line.PaidContributions,
			InterestShare:        line.InterestShare,
			OutstandingPrincipal: line.OutstandingPrincipal,
			UnpaidInterest:       line.UnpaidInterest,
			UnpaidDues:           line.UnpaidDues,
			GrossPayout:          line.GrossPayout,
			NetPayout:            line.NetPayout,
		}
	}
	return dto
}

func (h *SettlementHandler) Report(w http.ResponseWriter, r *http.Request) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	report, err := h.settlements.GetReport(r.Context(), fundID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("settlement report lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toSettlementReportDTO(report))
}

func (h *SettlementHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	report, err := h.settlements.Recalculate(r.Context(), fundID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("settlement recalculation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toSettlementReportDTO(report))
}

func (h *SettlementHandler) Review(w http.ResponseWriter, r *http.Request) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	stl, err := h.settlements.Review(r.Context(), fundID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("settlement review failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toSettlementDTO(stl))
}

func (h *SettlementHandler) Confirm(w http.ResponseWriter, r *http.Request) {
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

	report, err := h.settlements.Confirm(r.Context(), settlement.ConfirmRequest{
		FundID:         fundID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		RecordedBy:     actor,
	})
	if err != nil {
		log.Warn("settlement confirmation failed", "error", err, "fund_id", fundID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toSettlementReportDTO(report))
}
