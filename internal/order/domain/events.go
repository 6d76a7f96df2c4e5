package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/allisson/orderflow/internal/errors"
	outboxDomain "github.com/allisson/orderflow/internal/outbox/domain"
)

// OrderCreatedEventType is the type tag of OrderCreatedEvent on the outbox and the wire.
const OrderCreatedEventType = "OrderCreated"

// OrderCreatedEvent is published once per created order.
type OrderCreatedEvent struct {
	ID            uuid.UUID       `json:"id"`
	OccurredOnUTC time.Time       `json:"occurredOnUtc"`
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlationId"`
	CausationID   string          `json:"causationId,omitempty"`
	OrderID       uuid.UUID       `json:"orderId"`
	CustomerName  string          `json:"customerName"`
	Product       string          `json:"product"`
	Amount        decimal.Decimal `json:"amount"`
}

// NewOrderCreatedEvent builds the creation event for order.
func NewOrderCreatedEvent(order *Order, correlationID string, now time.Time) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		ID:            uuid.Must(uuid.NewV7()),
		OccurredOnUTC: now.UTC(),
		Type:          OrderCreatedEventType,
		CorrelationID: ResolveCorrelationID(correlationID, order.ID),
		OrderID:       order.ID,
		CustomerName:  order.CustomerName,
		Product:       order.Product,
		Amount:        order.Amount,
	}
}

func (e *OrderCreatedEvent) EventID() uuid.UUID    { return e.ID }
func (e *OrderCreatedEvent) EventType() string     { return OrderCreatedEventType }
func (e *OrderCreatedEvent) OccurredOn() time.Time { return e.OccurredOnUTC }
func (e *OrderCreatedEvent) Correlation() string   { return e.CorrelationID }

// DecodeOrderCreatedEvent parses an OrderCreated payload. Only the order id is
// mandatory; a missing or malformed one yields ErrInvalidPayload.
func DecodeOrderCreatedEvent(payload []byte) (outboxDomain.IntegrationEvent, error) {
	var event OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, apperrors.Wrap(ErrInvalidPayload, err.Error())
	}
	if event.OrderID == uuid.Nil {
		return nil, apperrors.Wrap(ErrInvalidPayload, "orderId is missing")
	}
	if event.Type == "" {
		event.Type = OrderCreatedEventType
	}
	return &event, nil
}

// RegisterEvents adds the order event decoders to registry.
func RegisterEvents(registry *outboxDomain.EventRegistry) error {
	return registry.Register(OrderCreatedEventType, DecodeOrderCreatedEvent)
}
