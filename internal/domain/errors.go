package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
	ErrInvalidAmount          = errors.New("amount must be positive with at most 2 decimal places")
	ErrInvalidRate            = errors.New("rate must be non-negative with at most 6 decimal places")
	ErrInvalidPeriod          = errors.New("invalid period key")
	ErrVersionConflict        = errors.New("record was modified concurrently")
	ErrIdempotencyKeyConflict = errors.New("idempotency key reused with a different request")
	ErrRequestInProgress      = errors.New("request with this idempotency key is still executing")
	ErrInsufficientPool       = errors.New("fund pool balance insufficient for disbursement")
	ErrNegativePayout         = errors.New("settlement has members with negative net payout")
	ErrInvariantViolation     = errors.New("financial invariant violated")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrLoanNotDisbursable     = errors.New("loan is not in a disbursable state")
	ErrLoanClosed             = errors.New("loan already closed")
	ErrPaymentExceedsLoan     = errors.New("payment exceeds remaining loan balance")
	ErrSettlementFrozen       = errors.New("settlement already confirmed")
	ErrMemberInactive         = errors.New("member is not active")
	ErrObligationSettled      = errors.New("obligation already fully paid")
)
