package app

import (
	"fmt"

	"github.com/allisson/orderflow/internal/database"
	orderHTTP "github.com/allisson/orderflow/internal/order/http"
	orderRepository "github.com/allisson/orderflow/internal/order/repository"
	orderUseCase "github.com/allisson/orderflow/internal/order/usecase"
)

// OrderRepository returns the order repository for the configured driver.
func (c *Container) OrderRepository() (orderUseCase.OrderRepository, error) {
	return lazy(c, &c.orderRepositoryInit, "orderRepository", &c.orderRepository,
		func() (orderUseCase.OrderRepository, error) {
			db, err := c.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get database for order repository: %w", err)
			}

			switch c.config.DBDriver {
			case database.DriverMySQL:
				return orderRepository.NewMySQLOrderRepository(db), nil
			case database.DriverPostgres:
				return orderRepository.NewPostgreSQLOrderRepository(db), nil
			default:
				return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
			}
		})
}

// StatusHistoryRepository returns the status history repository for the configured driver.
func (c *Container) StatusHistoryRepository() (orderUseCase.StatusHistoryRepository, error) {
	return lazy(c, &c.historyRepositoryInit, "historyRepository", &c.historyRepository,
		func() (orderUseCase.StatusHistoryRepository, error) {
			db, err := c.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get database for status history repository: %w", err)
			}

			switch c.config.DBDriver {
			case database.DriverMySQL:
				return orderRepository.NewMySQLStatusHistoryRepository(db), nil
			case database.DriverPostgres:
				return orderRepository.NewPostgreSQLStatusHistoryRepository(db), nil
			default:
				return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
			}
		})
}

// OrderUseCase returns the order use case, wrapped with metrics when enabled.
func (c *Container) OrderUseCase() (orderUseCase.OrderUseCase, error) {
	return lazy(c, &c.orderUseCaseInit, "orderUseCase", &c.orderUseCase, c.initOrderUseCase)
}

// OrderHandler returns the HTTP handler for order operations.
func (c *Container) OrderHandler() (*orderHTTP.OrderHandler, error) {
	return lazy(c, &c.orderHandlerInit, "orderHandler", &c.orderHandler, func() (*orderHTTP.OrderHandler, error) {
		useCase, err := c.OrderUseCase()
		if err != nil {
			return nil, fmt.Errorf("failed to get order use case for order handler: %w", err)
		}
		return orderHTTP.NewOrderHandler(useCase, c.Logger()), nil
	})
}

func (c *Container) initOrderUseCase() (orderUseCase.OrderUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for order use case: %w", err)
	}

	orderRepo, err := c.OrderRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get order repository for order use case: %w", err)
	}

	historyRepo, err := c.StatusHistoryRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get status history repository for order use case: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for order use case: %w", err)
	}

	notifier, err := c.APINotifier()
	if err != nil {
		return nil, fmt.Errorf("failed to get notifier for order use case: %w", err)
	}

	baseUseCase := orderUseCase.NewOrderUseCase(txManager, orderRepo, historyRepo, outboxRepo, notifier, c.Logger())

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for order use case: %w", err)
		}
		return orderUseCase.NewOrderUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}
