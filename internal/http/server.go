// Package http provides the API server: router setup, middleware and health endpoints.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/orderflow/internal/config"
	"github.com/allisson/orderflow/internal/metrics"
	notificationHTTP "github.com/allisson/orderflow/internal/notification/http"
	orderHTTP "github.com/allisson/orderflow/internal/order/http"
)

const readinessTimeout = 2 * time.Second

// notificationStreamRoute holds connections open, so it stays out of latency histograms.
const notificationStreamRoute = "/v1/notifications/stream"

// Server represents the HTTP server
type Server struct {
	runner
	db     *sql.DB
	router *gin.Engine
}

// NewServer creates a new HTTP server. The router is installed by SetupRouter.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db: db,
		runner: runner{
			name:   "http server",
			logger: logger,
			server: &http.Server{
				Addr:        fmt.Sprintf("%s:%d", host, port),
				ReadTimeout: 15 * time.Second,
				// WriteTimeout stays zero: it would cut the notification stream.
				IdleTimeout: 60 * time.Second,
			},
		},
	}
}

// SetupRouter builds the gin router with every API route. ctx bounds background
// work started by middleware, such as rate limiter eviction.
func (s *Server) SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	orderHandler *orderHTTP.OrderHandler,
	notificationHandler *notificationHTTP.NotificationHandler,
	metricsProvider *metrics.Provider,
	metricsNamespace string,
) {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(
			metricsProvider.MeterProvider(),
			metricsNamespace,
			notificationStreamRoute,
		))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	{
		orders := v1.Group("/orders")
		{
			createHandlers := []gin.HandlerFunc{orderHandler.CreateHandler}
			if cfg.RateLimitEnabled {
				createHandlers = append([]gin.HandlerFunc{
					orderHTTP.RateLimitMiddleware(ctx, cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, s.logger),
				}, createHandlers...)
			}
			orders.POST("", createHandlers...)
			orders.GET("", orderHandler.ListHandler)
			orders.GET("/:id", orderHandler.GetHandler)
		}

		if notificationHandler != nil {
			router.GET(notificationStreamRoute, notificationHandler.StreamHandler)
		}
	}

	if notificationHandler != nil {
		router.POST("/internal/notifications", notificationHandler.IngestHandler)
	}

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return fmt.Errorf("router not configured")
	}
	s.server.Handler = s.router
	return s.listen()
}

// healthHandler reports liveness without touching dependencies.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the database answers a ping.
func (s *Server) readinessHandler(c *gin.Context) {
	database := "ok"

	if s.db == nil {
		database = "error"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn("readiness check failed", slog.Any("error", err))
			database = "error"
		}
	}

	if database != "ok" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"database": database},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": gin.H{"database": database},
	})
}
