package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GaugeRecorder records point-in-time values such as queue backlogs.
type GaugeRecorder interface {
	RecordGauge(ctx context.Context, domain, name string, value int64)
}

type gaugeRecorder struct {
	gauge metric.Int64Gauge
}

// NewGaugeRecorder creates a GaugeRecorder exporting "<namespace>_backlog" with domain and name labels.
func NewGaugeRecorder(meterProvider metric.MeterProvider, namespace string) (GaugeRecorder, error) {
	meter := meterProvider.Meter(namespace)

	gauge, err := meter.Int64Gauge(
		fmt.Sprintf("%s_backlog", namespace),
		metric.WithDescription("Number of items waiting to be processed"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backlog gauge: %w", err)
	}

	return &gaugeRecorder{gauge: gauge}, nil
}

func (g *gaugeRecorder) RecordGauge(ctx context.Context, domain, name string, value int64) {
	g.gauge.Record(ctx, value,
		metric.WithAttributes(
			attribute.String("domain", domain),
			attribute.String("name", name),
		),
	)
}

// NoOpGaugeRecorder discards every value.
type NoOpGaugeRecorder struct{}

// RecordGauge does nothing.
func (NoOpGaugeRecorder) RecordGauge(ctx context.Context, domain, name string, value int64) {}
