package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/orderflow/internal/metrics"
)

// MetricsServer exposes Prometheus metrics on a port separate from the API.
type MetricsServer struct {
	runner
}

// NewMetricsServer creates a new MetricsServer. A nil provider yields a server
// that answers 404 on /metrics.
func NewMetricsServer(
	host string,
	port int,
	logger *slog.Logger,
	metricsProvider *metrics.Provider,
) *MetricsServer {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CustomLoggerMiddleware(logger))

	if metricsProvider != nil {
		router.GET("/metrics", gin.WrapH(metricsProvider.Handler()))
	}

	return &MetricsServer{
		runner: runner{
			name:   "metrics server",
			logger: logger,
			server: &http.Server{
				Addr:         fmt.Sprintf("%s:%d", host, port),
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			},
		},
	}
}

// GetHandler returns the http.Handler for testing purposes.
func (s *MetricsServer) GetHandler() http.Handler {
	return s.server.Handler
}

// Start serves /metrics until Shutdown is called.
func (s *MetricsServer) Start(ctx context.Context) error {
	return s.listen()
}

// runner owns the listen and shutdown lifecycle of an http.Server.
type runner struct {
	name   string
	server *http.Server
	logger *slog.Logger
}

func (r *runner) listen() error {
	r.logger.Info("starting "+r.name, slog.String("addr", r.server.Addr))

	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start %s: %w", r.name, err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (r *runner) Shutdown(ctx context.Context) error {
	r.logger.Info("shutting down " + r.name)
	return r.server.Shutdown(ctx)
}
