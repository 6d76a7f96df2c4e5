// Package usecase moves staged outbox records to the message transport. The Publisher
// classifies each send, the Processor drains the store in occurrence order and the
// BacklogJob reports how many records are waiting.
package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/allisson/orderflow/internal/outbox/domain"
)

// OutboxStore defines the store operations the processor needs.
type OutboxStore interface {
	FetchPendingBatch(ctx context.Context, limit int) ([]*domain.OutboxRecord, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Quarantine(ctx context.Context, id uuid.UUID, reason string) error
}

// PendingCounter reports the outbox backlog.
type PendingCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

// OutboxPublisher hands one record to the transport and reports the outcome.
type OutboxPublisher interface {
	Publish(ctx context.Context, record *domain.OutboxRecord) domain.PublishOutcome
}
