package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SettlementStatus string

const (
	SettlementStatusComputing SettlementStatus = "computing"
	SettlementStatusReviewed  SettlementStatus = "reviewed"
	SettlementStatusConfirmed SettlementStatus = "confirmed"
)

// Settlement is the dissolution payout computation for one fund. Numbers
// are freely recomputable while computing/reviewed and frozen on
// confirmation.
type Settlement struct {
	ID                 uuid.UUID
	FundID             uuid.UUID
	Status             SettlementStatus
	InterestPool       decimal.Decimal
	TotalContributions decimal.Decimal
	TotalWeight        decimal.Decimal
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ConfirmedAt        *time.Time
}

type SettlementLine struct {
	ID                   uuid.UUID
	SettlementID         uuid.UUID
	MemberID             uuid.UUID
	Weight               decimal.Decimal
	PaidContributions    decimal.Decimal
	InterestShare        decimal.Decimal
	OutstandingPrincipal decimal.Decimal
	UnpaidInterest       decimal.Decimal
	UnpaidDues           decimal.Decimal
	GrossPayout          decimal.Decimal
	NetPayout            decimal.Decimal
}

// BlockingLine describes one member whose net payout is negative and the
// shortfall that must be cleared before confirmation.
type BlockingLine struct {
	MemberID  uuid.UUID       `json:"member_id"`
	NetPayout decimal.Decimal `json:"net_payout"`
	Shortfall decimal.Decimal `json:"shortfall"`
}
