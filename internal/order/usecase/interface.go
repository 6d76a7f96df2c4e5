// Package usecase implements order placement and the order read model. Creation writes
// the order, its first history row and the OrderCreated outbox record in one transaction.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	orderDomain "github.com/allisson/orderflow/internal/order/domain"
	outboxDomain "github.com/allisson/orderflow/internal/outbox/domain"
)

// OrderRepository defines the interface for Order persistence operations.
type OrderRepository interface {
	Create(ctx context.Context, order *orderDomain.Order) error
	Get(ctx context.Context, orderID uuid.UUID) (*orderDomain.Order, error)
	List(ctx context.Context, offset, limit int) ([]*orderDomain.Order, error)
	Exists(ctx context.Context, orderID uuid.UUID) (bool, error)
	MarkProcessingIfPending(ctx context.Context, orderID uuid.UUID) (bool, error)
	MarkFinalizedIfProcessing(ctx context.Context, orderID uuid.UUID, completedAt time.Time) (bool, error)
}

// StatusHistoryRepository defines the interface for the append-only status timeline.
type StatusHistoryRepository interface {
	Create(ctx context.Context, history *orderDomain.OrderStatusHistory) error
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*orderDomain.OrderStatusHistory, error)
}

// OutboxAppender stages integration events in the caller's transaction.
type OutboxAppender interface {
	Append(ctx context.Context, record *outboxDomain.OutboxRecord) error
}

// OrderUseCase defines the interface for order business logic.
type OrderUseCase interface {
	// Create places a Pending order and stages its OrderCreated event atomically.
	Create(ctx context.Context, input *orderDomain.CreateOrderInput) (*orderDomain.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*orderDomain.Order, error)
	// List returns orders newest first.
	List(ctx context.Context, offset, limit int) ([]*orderDomain.Order, error)
	// GetDetails returns the order with its status history in chronological order.
	GetDetails(ctx context.Context, orderID uuid.UUID) (*orderDomain.OrderDetails, error)
}
