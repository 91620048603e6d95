package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chamaflow/fundcore/internal/domain"
	"github.com/chamaflow/fundcore/internal/service/settlement"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

func RespondDomainError(w http.ResponseWriter, err error) {
	// Blocked settlements carry the offending lines as details.
	var negErr *settlement.NegativePayoutError
	if errors.As(err, &negErr) {
		RespondAppError(w, ErrNegativePayoutBlocked, negErr.Blocking)
		return
	}

	var appErr *AppError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrInvalidRate):
		appErr = ErrInvalidRate
	case errors.Is(err, domain.ErrInvalidPeriod):
		appErr = ErrInvalidPeriod
	case errors.Is(err, domain.ErrVersionConflict):
		appErr = ErrVersionConflict
	case errors.Is(err, domain.ErrIdempotencyKeyConflict):
		appErr = ErrIdempotencyConflict
	case errors.Is(err, domain.ErrRequestInProgress):
		appErr = ErrRequestInProgress
	case errors.Is(err, domain.ErrObligationSettled):
		appErr = ErrObligationSettled
	case errors.Is(err, domain.ErrPaymentExceedsLoan):
		appErr = ErrPaymentExceedsLoan
	case errors.Is(err, domain.ErrInvalidTransition):
		appErr = ErrInvalidTransition
	case errors.Is(err, domain.ErrLoanNotDisbursable):
		appErr = ErrLoanNotDisbursable
	case errors.Is(err, domain.ErrLoanClosed):
		appErr = ErrLoanClosed
	case errors.Is(err, domain.ErrInsufficientPool):
		appErr = ErrInsufficientPool
	case errors.Is(err, domain.ErrSettlementFrozen):
		appErr = ErrSettlementFrozen
	case errors.Is(err, domain.ErrNegativePayout):
		appErr = ErrNegativePayoutBlocked
	case errors.Is(err, domain.ErrMemberInactive):
		appErr = ErrMemberInactive
	case errors.Is(err, domain.ErrInvariantViolation):
		slog.Error("invariant violation", "error", err)
		appErr = ErrInvariantViolation
	case errors.Is(err, domain.ErrValidation):
		appErr = ErrValidationFailed
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, nil)
}
