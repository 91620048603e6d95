package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ObligationKind string

const (
	ObligationKindContribution ObligationKind = "contribution"
	ObligationKindRepayment    ObligationKind = "repayment"
)

type ObligationStatus string

const (
	ObligationStatusPending ObligationStatus = "pending"
	ObligationStatusPartial ObligationStatus = "partial"
	ObligationStatusPaid    ObligationStatus = "paid"
	ObligationStatusLate    ObligationStatus = "late"
	ObligationStatusMissed  ObligationStatus = "missed"
	ObligationStatusOverdue ObligationStatus = "overdue"
)

// Obligation is a period-scoped amount owed: a monthly contribution due or a
// loan repayment installment. Repayment obligations carry the interest and
// principal split; for contributions both are zero and AmountDue is the
// member's fixed monthly contribution.
type Obligation struct {
	ID           uuid.UUID
	FundID       uuid.UUID
	MemberID     uuid.UUID
	LoanID       *uuid.UUID
	Kind         ObligationKind
	Period       PeriodKey
	AmountDue    decimal.Decimal
	InterestDue  decimal.Decimal
	PrincipalDue decimal.Decimal
	AmountPaid   decimal.Decimal
	InterestPaid decimal.Decimal
	Status       ObligationStatus
	DueDate      time.Time
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RemainingBalance is always derived, never stored: max(0, due - paid).
func (o *Obligation) RemainingBalance() decimal.Decimal {
	rem := o.AmountDue.Sub(o.AmountPaid)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

func (o *Obligation) InterestRemaining() decimal.Decimal {
	rem := o.InterestDue.Sub(o.InterestPaid)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

func (o *Obligation) IsSettled() bool {
	return o.Status == ObligationStatusPaid
}

// IsOpen reports whether the obligation can still accept payments.
func (o *Obligation) IsOpen() bool {
	switch o.Status {
	case ObligationStatusPending, ObligationStatusPartial,
		ObligationStatusLate, ObligationStatusOverdue:
		return true
	}
	return false
}

var contributionTransitions = map[ObligationStatus][]ObligationStatus{
	ObligationStatusPending: {ObligationStatusPaid, ObligationStatusPartial, ObligationStatusLate, ObligationStatusMissed},
	ObligationStatusPartial: {ObligationStatusPaid, ObligationStatusLate, ObligationStatusMissed},
	ObligationStatusLate:    {ObligationStatusPaid, ObligationStatusMissed},
}

var repaymentTransitions = map[ObligationStatus][]ObligationStatus{
	ObligationStatusPending: {ObligationStatusPaid, ObligationStatusPartial, ObligationStatusOverdue},
	ObligationStatusPartial: {ObligationStatusPaid, ObligationStatusOverdue},
	ObligationStatusOverdue: {ObligationStatusPaid},
}

// CanTransition reports whether the obligation's state machine allows the
// move. Paid and Missed are terminal.
func (o *Obligation) CanTransition(to ObligationStatus) bool {
	table := contributionTransitions
	if o.Kind == ObligationKindRepayment {
		table = repaymentTransitions
	}
	for _, next := range table[o.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusAfterPayment is the payment-driven transition target for the given
// remaining balance after applying a payment. Late obligations settled in
// full go straight to Paid.
func (o *Obligation) StatusAfterPayment(remaining decimal.Decimal) ObligationStatus {
	if remaining.IsZero() {
		return ObligationStatusPaid
	}
	if o.Status == ObligationStatusLate || o.Status == ObligationStatusOverdue {
		return o.Status
	}
	return ObligationStatusPartial
}
