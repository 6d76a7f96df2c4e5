package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/allisson/orderflow/internal/messaging"
	"github.com/allisson/orderflow/internal/outbox/domain"
)

// Permanent failure reasons reported by the Publisher.
const (
	ReasonEntityDisabled  = "entity_disabled"
	ReasonEntityNotFound  = "entity_not_found"
	ReasonMessageTooLarge = "message_too_large"
	ReasonQuotaExceeded   = "quota_exceeded"
)

// Publisher sends outbox records through a messaging.Sender.
type Publisher struct {
	sender messaging.Sender
}

// NewPublisher creates a new Publisher
func NewPublisher(sender messaging.Sender) *Publisher {
	return &Publisher{sender: sender}
}

// Publish sends record with its id as the message id and its correlation id propagated.
// It never panics: a panicking transport is reported as a RetryableFailure.
func (p *Publisher) Publish(ctx context.Context, record *domain.OutboxRecord) (outcome domain.PublishOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = domain.RetryableFailure{Err: fmt.Errorf("transport panic: %v", r)}
		}
	}()

	err := p.sender.Send(ctx, messaging.Message{
		ID:            record.ID.String(),
		Type:          record.Type,
		CorrelationID: record.CorrelationID,
		Body:          []byte(record.Payload),
	})
	return Classify(err)
}

// Classify turns a transport send error into a PublishOutcome.
func Classify(err error) domain.PublishOutcome {
	switch {
	case err == nil:
		return domain.Success{}
	case errors.Is(err, messaging.ErrEntityDisabled):
		return domain.PermanentFailure{Reason: ReasonEntityDisabled, Err: err}
	case errors.Is(err, messaging.ErrEntityNotFound):
		return domain.PermanentFailure{Reason: ReasonEntityNotFound, Err: err}
	case errors.Is(err, messaging.ErrMessageTooLarge):
		return domain.PermanentFailure{Reason: ReasonMessageTooLarge, Err: err}
	case errors.Is(err, messaging.ErrQuotaExceeded):
		return domain.PermanentFailure{Reason: ReasonQuotaExceeded, Err: err}
	default:
		return domain.RetryableFailure{Err: err}
	}
}
