package usecase

import (
	"context"
	"time"

	"github.com/allisson/orderflow/internal/metrics"
	"github.com/allisson/orderflow/internal/outbox/domain"
)

// publisherWithMetrics decorates an OutboxPublisher with outcome metrics.
type publisherWithMetrics struct {
	next    OutboxPublisher
	metrics metrics.BusinessMetrics
}

// NewPublisherWithMetrics wraps a publisher with metrics instrumentation.
func NewPublisherWithMetrics(publisher OutboxPublisher, m metrics.BusinessMetrics) OutboxPublisher {
	return &publisherWithMetrics{
		next:    publisher,
		metrics: m,
	}
}

// Publish records the outcome as "success", "retryable" or "permanent".
func (p *publisherWithMetrics) Publish(ctx context.Context, record *domain.OutboxRecord) domain.PublishOutcome {
	start := time.Now()
	outcome := p.next.Publish(ctx, record)

	status := metrics.StatusSuccess
	switch outcome.(type) {
	case domain.RetryableFailure:
		status = "retryable"
	case domain.PermanentFailure:
		status = "permanent"
	}

	metrics.Observe(ctx, p.metrics, metrics.DomainOutbox, "publish", start, status)

	return outcome
}
