package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// unmatchedRoute labels requests that hit no registered route.
const unmatchedRoute = "unknown"

type httpInstruments struct {
	requests  metric.Int64Counter
	durations metric.Float64Histogram
}

func newHTTPInstruments(meter metric.Meter, namespace string) (*httpInstruments, error) {
	requests, err := meter.Int64Counter(
		fmt.Sprintf("%s_http_requests_total", namespace),
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	durations, err := meter.Float64Histogram(
		fmt.Sprintf("%s_http_request_duration_seconds", namespace),
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &httpInstruments{requests: requests, durations: durations}, nil
}

// HTTPMetricsMiddleware counts requests and records their latency labelled by method,
// route pattern and status code. Routes in longLived (such as the notification stream)
// are counted but kept out of the latency histogram, since their duration is the
// client's connection time.
func HTTPMetricsMiddleware(meterProvider metric.MeterProvider, namespace string, longLived ...string) gin.HandlerFunc {
	instruments, err := newHTTPInstruments(meterProvider.Meter(namespace), namespace)
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	skipLatency := make(map[string]struct{}, len(longLived))
	for _, route := range longLived {
		skipLatency[route] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := sanitizePath(c.FullPath())
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("path", route),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)

		ctx := c.Request.Context()
		instruments.requests.Add(ctx, 1, attrs)
		if _, skip := skipLatency[route]; !skip {
			instruments.durations.Record(ctx, time.Since(start).Seconds(), attrs)
		}
	}
}

// sanitizePath returns the route pattern, keeping label cardinality bounded by the
// router instead of by order ids.
func sanitizePath(fullPath string) string {
	if fullPath == "" {
		return unmatchedRoute
	}
	return fullPath
}
