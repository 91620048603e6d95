package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/logging"
	"github.com/chamaflow/fundcore/internal/service/schedule"
)

type scheduleService interface {
	GenerateContributionDues(ctx context.Context, fundID uuid.UUID, period domain.PeriodKey) (*schedule.GenerationResult, error)
	GenerateRepaymentInstallments(ctx context.Context, fundID uuid.UUID, period domain.PeriodKey) (*schedule.GenerationResult, error)
	MarkLateContributions(ctx context.Context, fundID uuid.UUID, now time.Time) (*schedule.SweepResult, error)
	MarkOverdueRepayments(ctx context.Context, fundID uuid.UUID, now time.Time) (*schedule.SweepResult, error)
	ClosePeriod(ctx context.Context, fundID uuid.UUID, period domain.PeriodKey) (*schedule.SweepResult, error)
}

// ScheduleHandler exposes the period lifecycle jobs: generating the month's
// dues and installments, lateness sweeps and closing a period. All of them
// are idempotent and safe to re-run.
type ScheduleHandler struct {
	schedules scheduleService
}

func NewScheduleHandler(schedules scheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

func (h *ScheduleHandler) GenerateContributions(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, h.schedules.GenerateContributionDues)
}

func (h *ScheduleHandler) GenerateRepayments(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, h.schedules.GenerateRepaymentInstallments)
}

func (h *ScheduleHandler) generate(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, domain.PeriodKey) (*schedule.GenerationResult, error)) {
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

	result, err := fn(r.Context(), fundID, period)
	if err != nil {
		logging.FromContext(r.Context()).Error("schedule generation failed", "error", err, "period", period)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, result)
}

func (h *ScheduleHandler) SweepLate(w http.ResponseWriter, r *http.Request) {
	h.sweep(w, r, h.schedules.MarkLateContributions)
}

func (h *ScheduleHandler) SweepOverdue(w http.ResponseWriter, r *http.Request) {
	h.sweep(w, r, h.schedules.MarkOverdueRepayments)
}

func (h *ScheduleHandler) sweep(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, time.Time) (*schedule.SweepResult, error)) {
	fundID, appErr := fundFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	result, err := fn(r.Context(), fundID, time.Now().UTC())
	if err != nil {
		logging.FromContext(r.Context()).Error("lateness sweep failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, result)
}

func (h *ScheduleHandler) ClosePeriod(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.schedules.ClosePeriod(r.Context(), fundID, period)
	if err != nil {
		logging.FromContext(r.Context()).Error("period close failed", "error", err, "period", period)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, result)
}
