package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MemberStatus string

const (
	MemberStatusActive MemberStatus = "active"
	MemberStatusExited MemberStatus = "exited"
)

// Member is the core's snapshot of a fund member, maintained from
// membership events published by the member service. MonthlyContribution is
// the member's fixed obligation per period and doubles as their settlement
// weight.
type Member struct {
	ID                  uuid.UUID
	FundID              uuid.UUID
	Name                string
	MonthlyContribution decimal.Decimal
	Status              MemberStatus
	JoinedAt            time.Time
}
