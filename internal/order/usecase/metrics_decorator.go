package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/orderflow/internal/metrics"
	orderDomain "github.com/allisson/orderflow/internal/order/domain"
)

// orderUseCaseWithMetrics decorates OrderUseCase with metrics instrumentation.
type orderUseCaseWithMetrics struct {
	next    OrderUseCase
	metrics metrics.BusinessMetrics
}

// NewOrderUseCaseWithMetrics wraps an OrderUseCase with metrics recording.
func NewOrderUseCaseWithMetrics(useCase OrderUseCase, m metrics.BusinessMetrics) OrderUseCase {
	return &orderUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Create records metrics for order creation.
func (o *orderUseCaseWithMetrics) Create(
	ctx context.Context,
	input *orderDomain.CreateOrderInput,
) (*orderDomain.Order, error) {
	start := time.Now()
	order, err := o.next.Create(ctx, input)
	o.record(ctx, "order_create", start, err)
	return order, err
}

// Get records metrics for order retrieval.
func (o *orderUseCaseWithMetrics) Get(ctx context.Context, orderID uuid.UUID) (*orderDomain.Order, error) {
	start := time.Now()
	order, err := o.next.Get(ctx, orderID)
	o.record(ctx, "order_get", start, err)
	return order, err
}

// List records metrics for order listing.
func (o *orderUseCaseWithMetrics) List(ctx context.Context, offset, limit int) ([]*orderDomain.Order, error) {
	start := time.Now()
	orders, err := o.next.List(ctx, offset, limit)
	o.record(ctx, "order_list", start, err)
	return orders, err
}

// GetDetails records metrics for order detail retrieval.
func (o *orderUseCaseWithMetrics) GetDetails(
	ctx context.Context,
	orderID uuid.UUID,
) (*orderDomain.OrderDetails, error) {
	start := time.Now()
	details, err := o.next.GetDetails(ctx, orderID)
	o.record(ctx, "order_get_details", start, err)
	return details, err
}

func (o *orderUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	metrics.Observe(ctx, o.metrics, metrics.DomainOrders, operation, start, metrics.StatusOf(err))
}
