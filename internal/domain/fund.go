package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type FundStatus string

const (
	FundStatusActive     FundStatus = "active"
	FundStatusDissolving FundStatus = "dissolving"
	FundStatusDissolved  FundStatus = "dissolved"
)

type Fund struct {
	ID        uuid.UUID
	Name      string
	Status    FundStatus
	CreatedAt time.Time
}

// FundConfig holds the fund-level lending defaults. It is a read-only input
// to the calculators; a loan copies the values it needs at disbursement so
// later config changes never alter an existing loan's math.
type FundConfig struct {
	FundID       uuid.UUID
	MonthlyRate  decimal.Decimal
	MinPrincipal decimal.Decimal
	GraceDays    int
	UpdatedAt    time.Time
}

// PeriodKey identifies a contribution/repayment month as "YYYY-MM".
type PeriodKey string

const periodLayout = "2006-01"

func PeriodOf(t time.Time) PeriodKey {
	return PeriodKey(t.UTC().Format(periodLayout))
}

func ParsePeriod(s string) (PeriodKey, error) {
	t, err := time.Parse(periodLayout, s)
	if err != nil {
		return "", fmt.Errorf("ParsePeriod: %q: %w", s, ErrInvalidPeriod)
	}
	return PeriodOf(t), nil
}

// Start returns midnight UTC on the first day of the period.
func (p PeriodKey) Start() time.Time {
	t, err := time.Parse(periodLayout, string(p))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// End returns the instant the period closes (start of the next month).
func (p PeriodKey) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

func (p PeriodKey) IsValid() bool {
	_, err := time.Parse(periodLayout, string(p))
	return err == nil
}
