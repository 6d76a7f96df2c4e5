package dto

import (
	"time"

	orderDomain "github.com/allisson/orderflow/internal/order/domain"
)

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID           string     `json:"id"`
	CustomerName string     `json:"customer_name"`
	Product      string     `json:"product"`
	Amount       string     `json:"amount"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// MapOrderToResponse converts a domain order to an API response.
// Amounts are rendered with exactly two decimal places.
func MapOrderToResponse(order *orderDomain.Order) OrderResponse {
	return OrderResponse{
		ID:           order.ID.String(),
		CustomerName: order.CustomerName,
		Product:      order.Product,
		Amount:       order.Amount.StringFixed(2),
		Status:       order.Status.String(),
		CreatedAt:    order.CreatedAt,
		CompletedAt:  order.CompletedAt,
	}
}

// ListOrdersResponse represents a paginated list of orders in API responses.
type ListOrdersResponse struct {
	Data []OrderResponse `json:"data"`
}

// MapOrdersToListResponse converts a slice of domain orders to a list API response.
func MapOrdersToListResponse(orders []*orderDomain.Order) ListOrdersResponse {
	responses := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		responses = append(responses, MapOrderToResponse(order))
	}
	return ListOrdersResponse{Data: responses}
}

// StatusHistoryResponse represents one status transition in API responses.
type StatusHistoryResponse struct {
	ID            string    `json:"id"`
	FromStatus    *string   `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id"`
	Source        string    `json:"source"`
	EventID       string    `json:"event_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// OrderDetailsResponse is an order with its chronological status history.
type OrderDetailsResponse struct {
	OrderResponse
	History []StatusHistoryResponse `json:"history"`
}

// MapDetailsToResponse converts order details to an API response.
func MapDetailsToResponse(details *orderDomain.OrderDetails) OrderDetailsResponse {
	history := make([]StatusHistoryResponse, 0, len(details.History))
	for _, h := range details.History {
		var from *string
		if h.FromStatus != nil {
			s := h.FromStatus.String()
			from = &s
		}
		history = append(history, StatusHistoryResponse{
			ID:            h.ID.String(),
			FromStatus:    from,
			ToStatus:      h.ToStatus.String(),
			OccurredAt:    h.OccurredAt,
			CorrelationID: h.CorrelationID,
			Source:        string(h.Source),
			EventID:       h.EventID,
			Reason:        h.Reason,
		})
	}
	return OrderDetailsResponse{
		OrderResponse: MapOrderToResponse(details.Order),
		History:       history,
	}
}
