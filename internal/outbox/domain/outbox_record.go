// Package domain defines the outbox record, the integration event contract, the
// publish outcome variants and the static event registry.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/orderflow/internal/errors"
)

// IntegrationEvent is a domain fact staged in the outbox and delivered to other processes.
type IntegrationEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredOn() time.Time
	Correlation() string
}

// OutboxRecord is an event awaiting delivery. It lives in the store from the commit of
// the business transaction that produced it until the transport confirms delivery.
type OutboxRecord struct {
	// ID is shared with the event id and becomes the transport message id.
	ID            uuid.UUID
	Type          string
	Payload       string
	OccurredAt    time.Time
	CorrelationID string
	Attempts      int
	LastError     *string
}

// NewRecord serializes event into an OutboxRecord.
func NewRecord(event IntegrationEvent) (*OutboxRecord, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal integration event")
	}

	return &OutboxRecord{
		ID:            event.EventID(),
		Type:          event.EventType(),
		Payload:       string(payload),
		OccurredAt:    event.OccurredOn().UTC(),
		CorrelationID: event.Correlation(),
	}, nil
}
