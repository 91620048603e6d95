package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrForbidden        = &AppError{http.StatusForbidden, "FORBIDDEN", "Role is not allowed to perform this operation"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount  = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be positive with at most two decimal places"}
	ErrInvalidRate    = &AppError{http.StatusBadRequest, "INVALID_RATE", "Rate must be non-negative with at most six decimal places"}
	ErrInvalidPeriod  = &AppError{http.StatusBadRequest, "INVALID_PERIOD", "Period must be formatted as YYYY-MM"}
	ErrMemberInactive = &AppError{http.StatusUnprocessableEntity, "MEMBER_INACTIVE", "Member is not active in this fund"}

	ErrVersionConflict       = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrRequestInProgress     = &AppError{http.StatusConflict, "REQUEST_IN_PROGRESS", "A request with this idempotency key is still being processed"}

	ErrObligationSettled  = &AppError{http.StatusUnprocessableEntity, "OBLIGATION_SETTLED", "Obligation is already fully settled"}
	ErrPaymentExceedsLoan = &AppError{http.StatusUnprocessableEntity, "PAYMENT_EXCEEDS_LOAN", "Payment exceeds the remaining loan balance"}
	ErrInvalidTransition  = &AppError{http.StatusUnprocessableEntity, "INVALID_TRANSITION", "Requested state transition is not allowed"}
	ErrLoanNotDisbursable = &AppError{http.StatusUnprocessableEntity, "LOAN_NOT_DISBURSABLE", "Loan is not in an approved state"}
	ErrLoanClosed         = &AppError{http.StatusUnprocessableEntity, "LOAN_CLOSED", "Loan is already closed"}
	ErrInsufficientPool   = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_POOL_BALANCE", "Pool balance cannot cover this disbursement"}

	ErrSettlementFrozen      = &AppError{http.StatusConflict, "SETTLEMENT_FROZEN", "Settlement is confirmed and can no longer change"}
	ErrNegativePayoutBlocked = &AppError{http.StatusUnprocessableEntity, "NEGATIVE_PAYOUT_BLOCKED", "One or more members have a negative net payout"}

	ErrInvariantViolation = &AppError{http.StatusInternalServerError, "INVARIANT_VIOLATION", "Internal consistency check failed"}
)
