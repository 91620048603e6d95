package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	EntryKindContribution   EntryKind = "contribution"
	EntryKindDisbursement   EntryKind = "disbursement"
	EntryKindRepayment      EntryKind = "repayment"
	EntryKindInterestIncome EntryKind = "interest_income"
	EntryKindPenalty        EntryKind = "penalty"
	EntryKindSettlement     EntryKind = "settlement"
)

func (k EntryKind) IsValid() bool {
	switch k {
	case EntryKindContribution, EntryKindDisbursement, EntryKindRepayment,
		EntryKindInterestIncome, EntryKindPenalty, EntryKindSettlement:
		return true
	}
	return false
}

// Direction is +1 for money entering the pool, -1 for money leaving it.
func (k EntryKind) Direction() int {
	switch k {
	case EntryKindDisbursement, EntryKindSettlement:
		return -1
	default:
		return 1
	}
}

type RefType string

const (
	RefTypeObligation RefType = "obligation"
	RefTypeLoan       RefType = "loan"
	RefTypeSettlement RefType = "settlement"
)

// LedgerEntry is one immutable money movement. Amount is always
// non-negative; the direction comes from the kind. Corrections are new
// offsetting entries, never updates.
type LedgerEntry struct {
	ID             uuid.UUID
	FundID         uuid.UUID
	MemberID       uuid.UUID
	Kind           EntryKind
	Amount         decimal.Decimal
	IdempotencyKey string
	RefType        RefType
	RefID          uuid.UUID
	RecordedBy     string
	CreatedAt      time.Time
}
