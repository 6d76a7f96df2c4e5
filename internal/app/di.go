// Package app provides the dependency injection container that assembles the API,
// the outbox relay and the order worker from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/allisson/orderflow/internal/config"
	"github.com/allisson/orderflow/internal/database"
	"github.com/allisson/orderflow/internal/http"
	"github.com/allisson/orderflow/internal/messaging"
	"github.com/allisson/orderflow/internal/metrics"
	"github.com/allisson/orderflow/internal/notification"
	notificationHTTP "github.com/allisson/orderflow/internal/notification/http"
	orderDomain "github.com/allisson/orderflow/internal/order/domain"
	orderHTTP "github.com/allisson/orderflow/internal/order/http"
	orderUseCase "github.com/allisson/orderflow/internal/order/usecase"
	outboxDomain "github.com/allisson/orderflow/internal/outbox/domain"
	outboxUseCase "github.com/allisson/orderflow/internal/outbox/usecase"
	workerUseCase "github.com/allisson/orderflow/internal/worker/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// Components are created on first access and cached, including their errors.
type Container struct {
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	txManager       database.TxManager
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	gaugeRecorder   metrics.GaugeRecorder
	eventRegistry   *outboxDomain.EventRegistry
	transport       messaging.Transport

	// Repositories
	orderRepository   orderUseCase.OrderRepository
	historyRepository orderUseCase.StatusHistoryRepository
	outboxRepository  outboxRepository
	ledger            workerUseCase.ProcessedMessageLedger

	// Use cases and workers
	orderUseCase    orderUseCase.OrderUseCase
	outboxPublisher outboxUseCase.OutboxPublisher
	outboxProcessor *outboxUseCase.Processor
	backlogJob      *outboxUseCase.BacklogJob
	orderProcessor  workerUseCase.OrderProcessor
	consumer        *workerUseCase.Consumer

	// Notifications
	notificationHub *notification.Hub
	workerNotifier  notification.Notifier

	// HTTP
	orderHandler        *orderHTTP.OrderHandler
	notificationHandler *notificationHTTP.NotificationHandler
	httpServer          *http.Server
	metricsServer       *http.MetricsServer

	loggerInit              sync.Once
	dbInit                  sync.Once
	txManagerInit           sync.Once
	metricsProviderInit     sync.Once
	businessMetricsInit     sync.Once
	gaugeRecorderInit       sync.Once
	eventRegistryInit       sync.Once
	transportInit           sync.Once
	orderRepositoryInit     sync.Once
	historyRepositoryInit   sync.Once
	outboxRepositoryInit    sync.Once
	ledgerInit              sync.Once
	orderUseCaseInit        sync.Once
	outboxPublisherInit     sync.Once
	outboxProcessorInit     sync.Once
	backlogJobInit          sync.Once
	orderProcessorInit      sync.Once
	consumerInit            sync.Once
	notificationHubInit     sync.Once
	workerNotifierInit      sync.Once
	orderHandlerInit        sync.Once
	notificationHandlerInit sync.Once
	httpServerInit          sync.Once
	metricsServerInit       sync.Once

	mu         sync.Mutex
	initErrors map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// lazy runs init once per key and replays its result, error included, on later calls.
func lazy[T any](c *Container, once *sync.Once, key string, target *T, init func() (T, error)) (T, error) {
	once.Do(func() {
		value, err := init()
		if err != nil {
			c.mu.Lock()
			c.initErrors[key] = err
			c.mu.Unlock()
			return
		}
		*target = value
	})

	c.mu.Lock()
	err := c.initErrors[key]
	c.mu.Unlock()
	if err != nil {
		var zero T
		return zero, err
	}
	return *target, nil
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the JSON logger configured from LOG_LEVEL.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection pool.
func (c *Container) DB() (*sql.DB, error) {
	return lazy(c, &c.dbInit, "db", &c.db, c.initDB)
}

// TxManager returns the transaction manager.
func (c *Container) TxManager() (database.TxManager, error) {
	return lazy(c, &c.txManagerInit, "txManager", &c.txManager, func() (database.TxManager, error) {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
		}
		return database.NewTxManager(db), nil
	})
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	return lazy(c, &c.metricsProviderInit, "metricsProvider", &c.metricsProvider, func() (*metrics.Provider, error) {
		if !c.config.MetricsEnabled {
			return nil, nil
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics provider: %w", err)
		}
		return provider, nil
	})
}

// BusinessMetrics returns the business metrics recorder. It is a no-op when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	return lazy(c, &c.businessMetricsInit, "businessMetrics", &c.businessMetrics, func() (metrics.BusinessMetrics, error) {
		provider, err := c.MetricsProvider()
		if err != nil {
			return nil, err
		}
		if provider == nil {
			return metrics.NewNoOpBusinessMetrics(), nil
		}
		return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	})
}

// GaugeRecorder returns the backlog gauge recorder. It is a no-op when metrics are disabled.
func (c *Container) GaugeRecorder() (metrics.GaugeRecorder, error) {
	return lazy(c, &c.gaugeRecorderInit, "gaugeRecorder", &c.gaugeRecorder, func() (metrics.GaugeRecorder, error) {
		provider, err := c.MetricsProvider()
		if err != nil {
			return nil, err
		}
		if provider == nil {
			return metrics.NoOpGaugeRecorder{}, nil
		}
		return metrics.NewGaugeRecorder(provider.MeterProvider(), c.config.MetricsNamespace)
	})
}

// EventRegistry returns the integration event registry with every order event registered.
func (c *Container) EventRegistry() (*outboxDomain.EventRegistry, error) {
	return lazy(c, &c.eventRegistryInit, "eventRegistry", &c.eventRegistry, func() (*outboxDomain.EventRegistry, error) {
		registry := outboxDomain.NewEventRegistry()
		if err := orderDomain.RegisterEvents(registry); err != nil {
			return nil, fmt.Errorf("failed to register order events: %w", err)
		}
		return registry, nil
	})
}

// Shutdown releases every initialized resource in reverse dependency order.
func (c *Container) Shutdown(ctx context.Context) error {
	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.notificationHub != nil {
		c.notificationHub.Close()
	}

	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("messaging transport close: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates a structured JSON logger at the configured level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
