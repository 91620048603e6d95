package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chamaflow/fundcore/internal/logging"
	"github.com/chamaflow/fundcore/internal/service/allocator"
)

type paymentService interface {
	RecordPayment(ctx context.Context, req allocator.RecordPaymentRequest) (*allocator.PaymentResult, error)
}

type PaymentHandler struct {
	payments paymentService
}

func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type recordPaymentRequest struct {
	ObligationID    string `json:"obligation_id"`
	Amount          string `json:"amount"`
	ExpectedVersion int64  `json:"expected_version"`
}

func (r recordPaymentRequest) Validate() []FieldError {
	var errs []FieldError

	if r.ObligationID == "" {
		errs = append(errs, FieldError{Field: "obligation_id", Message: "required"})
	} else if _, err := uuid.Parse(r.ObligationID); err != nil {
		errs = append(errs, FieldError{Field: "obligation_id", Message: "must be a valid UUID"})
	}

	if r.Amount == "" {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	} else if amt, err := decimal.NewFromString(r.Amount); err != nil {
		errs = append(errs, FieldError{Field: "amount", Message: "must be a decimal string"})
	} else if !amt.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	if r.ExpectedVersion < 0 {
		errs = append(errs, FieldError{Field: "expected_version", Message: "must not be negative"})
	}

	return errs
}

// Record applies one member payment to one obligation. Amounts travel as
// decimal strings end to end; binary floating point never touches them.
func (h *PaymentHandler) Record(w http.ResponseWriter, r *http.Request) {
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

	var req recordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	amount, _ := decimal.NewFromString(req.Amount)
	obligationID, _ := uuid.Parse(req.ObligationID)

	result, err := h.payments.RecordPayment(r.Context(), allocator.RecordPaymentRequest{
		FundID:          fundID,
		ObligationID:    obligationID,
		Amount:          amount,
		ExpectedVersion: req.ExpectedVersion,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
		RecordedBy:      actor,
	})
	if err != nil {
		log.Warn("payment recording failed", "error", err, "obligation_id", obligationID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, result)
}
