// Package domain defines the order aggregate, its status state machine, the
// status history records and the integration events emitted on creation.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the single source of truth for an order's current status.
type Order struct {
	ID           uuid.UUID
	CustomerName string
	Product      string
	Amount       decimal.Decimal
	Status       Status
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// CreateOrderInput contains the data needed to place an order.
type CreateOrderInput struct {
	CustomerName string
	Product      string
	Amount       decimal.Decimal
	// CorrelationID groups every record of this order's causal chain. Defaults to the order id.
	CorrelationID string
}

// OrderDetails is an order together with its status timeline.
type OrderDetails struct {
	Order   *Order
	History []*OrderStatusHistory
}

// NewOrder builds a Pending order with a time-ordered id.
func NewOrder(input *CreateOrderInput, now time.Time) *Order {
	return &Order{
		ID:           uuid.Must(uuid.NewV7()),
		CustomerName: input.CustomerName,
		Product:      input.Product,
		Amount:       input.Amount.Round(2),
		Status:       StatusPending,
		CreatedAt:    now.UTC(),
	}
}

// ResolveCorrelationID returns correlationID, or the order id when it is blank.
func ResolveCorrelationID(correlationID string, orderID uuid.UUID) string {
	if correlationID == "" {
		return orderID.String()
	}
	return correlationID
}
