package domain

import (
	"time"

	"github.com/google/uuid"
)

// Source identifies the component that performed a status transition.
type Source string

const (
	SourceAPI    Source = "Api"
	SourceWorker Source = "Worker"
)

// OrderStatusHistory is an append-only record of one status transition.
type OrderStatusHistory struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	FromStatus    *Status
	ToStatus      Status
	OccurredAt    time.Time
	CorrelationID string
	Source        Source
	EventID       string
	Reason        string
}

// NewStatusHistory builds the history row for a transition. A blank correlationID
// falls back to the order id.
func NewStatusHistory(
	orderID uuid.UUID,
	from *Status,
	to Status,
	correlationID string,
	source Source,
	eventID string,
	reason string,
	now time.Time,
) *OrderStatusHistory {
	return &OrderStatusHistory{
		ID:            uuid.Must(uuid.NewV7()),
		OrderID:       orderID,
		FromStatus:    from,
		ToStatus:      to,
		OccurredAt:    now.UTC(),
		CorrelationID: ResolveCorrelationID(correlationID, orderID),
		Source:        source,
		EventID:       eventID,
		Reason:        reason,
	}
}
