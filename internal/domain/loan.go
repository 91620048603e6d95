package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanStatusPending    LoanStatus = "pending"
	LoanStatusApproved   LoanStatus = "approved"
	LoanStatusDisbursing LoanStatus = "disbursing"
	LoanStatusActive     LoanStatus = "active"
	LoanStatusClosed     LoanStatus = "closed"
	LoanStatusRejected   LoanStatus = "rejected"
)

// Loan carries its own terms snapshot. MonthlyRate, MinPrincipal and
// Installment are copied from the fund config at disbursement and are
// immutable afterwards.
type Loan struct {
	ID                   uuid.UUID
	FundID               uuid.UUID
	MemberID             uuid.UUID
	Principal            decimal.Decimal
	OutstandingPrincipal decimal.Decimal
	MonthlyRate          decimal.Decimal
	MinPrincipal         decimal.Decimal
	Installment          decimal.Decimal
	Status               LoanStatus
	Version              int64
	DisbursedAt          *time.Time
	ClosedAt             *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusPending:    {LoanStatusApproved, LoanStatusRejected},
	LoanStatusApproved:   {LoanStatusDisbursing, LoanStatusRejected},
	LoanStatusDisbursing: {LoanStatusActive, LoanStatusApproved},
	LoanStatusActive:     {LoanStatusClosed},
}

// CanTransition reports whether a loan may move between the two statuses.
// Disbursing -> Approved is the compensating step of a failed disbursement.
func (s LoanStatus) CanTransition(to LoanStatus) bool {
	for _, next := range loanTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
