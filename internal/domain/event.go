package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeObligationPaid      EventType = "obligation.paid"
	EventTypeObligationOverdue   EventType = "obligation.overdue"
	EventTypeObligationLate      EventType = "obligation.late"
	EventTypeObligationMissed    EventType = "obligation.missed"
	EventTypeLoanDisbursed       EventType = "loan.disbursed"
	EventTypeLoanClosed          EventType = "loan.closed"
	EventTypeSettlementConfirmed EventType = "settlement.confirmed"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusDispatched OutboxStatus = "dispatched"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// OutboxEvent is a domain event staged in the same transaction as the state
// change that produced it. Delivery is fire-and-forget: the dispatcher
// hands it to a publisher and records the attempt; retries belong to the
// transport.
type OutboxEvent struct {
	ID          uuid.UUID
	FundID      uuid.UUID
	EventType   EventType
	Payload     json.RawMessage
	Status      OutboxStatus
	Attempts    int
	LastAttempt *time.Time
	CreatedAt   time.Time
}
