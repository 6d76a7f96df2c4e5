// Package usecase consumes OrderCreated messages and drives each order from Pending
// through Processing to Finalized. Phase A is a plain compare-and-swap; Phase B is
// guarded by the processed-message ledger so redeliveries never finalize twice.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/orderflow/internal/messaging"
	orderDomain "github.com/allisson/orderflow/internal/order/domain"
)

// OrderRepository defines the order operations the worker needs.
type OrderRepository interface {
	Exists(ctx context.Context, orderID uuid.UUID) (bool, error)
	MarkProcessingIfPending(ctx context.Context, orderID uuid.UUID) (bool, error)
	MarkFinalizedIfProcessing(ctx context.Context, orderID uuid.UUID, completedAt time.Time) (bool, error)
}

// StatusHistoryWriter appends status history rows.
type StatusHistoryWriter interface {
	Create(ctx context.Context, history *orderDomain.OrderStatusHistory) error
}

// ProcessedMessageLedger records which messages already drove a completion.
type ProcessedMessageLedger interface {
	TryMarkProcessed(ctx context.Context, messageID string) (bool, error)
	IsProcessed(ctx context.Context, messageID string) (bool, error)
}

// OrderProcessor handles one inbound message. A returned error wrapping
// orderDomain.ErrInvalidPayload must not be retried.
type OrderProcessor interface {
	Process(ctx context.Context, msg messaging.Message) error
}
