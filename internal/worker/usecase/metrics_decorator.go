package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/allisson/orderflow/internal/messaging"
	"github.com/allisson/orderflow/internal/metrics"
	orderDomain "github.com/allisson/orderflow/internal/order/domain"
)

// orderProcessorWithMetrics decorates OrderProcessor with metrics instrumentation.
type orderProcessorWithMetrics struct {
	next    OrderProcessor
	metrics metrics.BusinessMetrics
}

// NewOrderProcessorWithMetrics wraps an OrderProcessor with metrics recording.
func NewOrderProcessorWithMetrics(processor OrderProcessor, m metrics.BusinessMetrics) OrderProcessor {
	return &orderProcessorWithMetrics{
		next:    processor,
		metrics: m,
	}
}

// Process records "success", "invalid_payload" or "error".
func (p *orderProcessorWithMetrics) Process(ctx context.Context, msg messaging.Message) error {
	start := time.Now()
	err := p.next.Process(ctx, msg)

	status := metrics.StatusOf(err)
	if errors.Is(err, orderDomain.ErrInvalidPayload) {
		status = "invalid_payload"
	}
	metrics.Observe(ctx, p.metrics, metrics.DomainWorker, "process", start, status)

	return err
}
