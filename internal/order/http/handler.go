// Package http provides HTTP handlers for placing and querying orders.
package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/orderflow/internal/httputil"
	orderDomain "github.com/allisson/orderflow/internal/order/domain"
	"github.com/allisson/orderflow/internal/order/http/dto"
	orderUseCase "github.com/allisson/orderflow/internal/order/usecase"
	customValidation "github.com/allisson/orderflow/internal/validation"
)

// CorrelationIDHeader carries the correlation id in requests and responses.
const CorrelationIDHeader = "X-Correlation-Id"

// OrderHandler handles HTTP requests for order operations.
type OrderHandler struct {
	orderUseCase orderUseCase.OrderUseCase
	logger       *slog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(orderUseCase orderUseCase.OrderUseCase, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orderUseCase: orderUseCase,
		logger:       logger,
	}
}

// CreateHandler places a new order.
// POST /v1/orders - Returns 201 Created with the order and its correlation id in X-Correlation-Id.
// A correlation id sent in X-Correlation-Id is propagated to the whole causal chain.
func (h *OrderHandler) CreateHandler(c *gin.Context) {
	var req dto.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	order, err := h.orderUseCase.Create(c.Request.Context(), req.ToInput(c.GetHeader(CorrelationIDHeader)))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Header(CorrelationIDHeader, orderDomain.ResolveCorrelationID(c.GetHeader(CorrelationIDHeader), order.ID))
	c.Header("Location", "/v1/orders/"+order.ID.String())
	c.JSON(http.StatusCreated, dto.MapOrderToResponse(order))
}

// GetHandler retrieves an order with its status history.
// GET /v1/orders/:id - Returns 200 OK, or 404 when the order does not exist.
func (h *OrderHandler) GetHandler(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c,
			fmt.Errorf("invalid order ID format: must be a valid UUID"),
			h.logger)
		return
	}

	details, err := h.orderUseCase.GetDetails(c.Request.Context(), orderID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.logger.Debug("order details retrieved",
		slog.String("order_id", orderID.String()),
		slog.Int("history_count", len(details.History)))

	c.Header(CorrelationIDHeader, orderID.String())
	c.JSON(http.StatusOK, dto.MapDetailsToResponse(details))
}

// ListHandler retrieves orders newest first.
// GET /v1/orders?offset=0&limit=50 - Returns 200 OK with the paginated list.
func (h *OrderHandler) ListHandler(c *gin.Context) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	orders, err := h.orderUseCase.List(c.Request.Context(), offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapOrdersToListResponse(orders))
}
