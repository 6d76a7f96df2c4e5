package app

import (
	"context"
	"fmt"

	"github.com/allisson/orderflow/internal/http"
)

// HTTPServer returns the API server with its router configured. ctx bounds background
// work owned by the router.
func (c *Container) HTTPServer(ctx context.Context) (*http.Server, error) {
	return lazy(c, &c.httpServerInit, "httpServer", &c.httpServer, func() (*http.Server, error) {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for http server: %w", err)
		}

		orderHandler, err := c.OrderHandler()
		if err != nil {
			return nil, fmt.Errorf("failed to get order handler for http server: %w", err)
		}

		metricsProvider, err := c.MetricsProvider()
		if err != nil {
			return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
		}

		server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, c.Logger())
		server.SetupRouter(
			ctx,
			c.config,
			orderHandler,
			c.NotificationHandler(),
			metricsProvider,
			c.config.MetricsNamespace,
		)
		return server, nil
	})
}

// MetricsServer returns the Prometheus metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	return lazy(c, &c.metricsServerInit, "metricsServer", &c.metricsServer, func() (*http.MetricsServer, error) {
		provider, err := c.MetricsProvider()
		if err != nil {
			return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
		}
		if provider == nil {
			return nil, nil
		}
		return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider), nil
	})
}
