package app

import (
	"fmt"

	"github.com/allisson/orderflow/internal/database"
	idempotencyRepository "github.com/allisson/orderflow/internal/idempotency/repository"
	workerUseCase "github.com/allisson/orderflow/internal/worker/usecase"
)

// ProcessedMessageLedger returns the idempotency ledger for the configured driver.
func (c *Container) ProcessedMessageLedger() (workerUseCase.ProcessedMessageLedger, error) {
	return lazy(c, &c.ledgerInit, "ledger", &c.ledger, func() (workerUseCase.ProcessedMessageLedger, error) {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for processed message ledger: %w", err)
		}

		switch c.config.DBDriver {
		case database.DriverMySQL:
			return idempotencyRepository.NewMySQLProcessedMessageRepository(db), nil
		case database.DriverPostgres:
			return idempotencyRepository.NewPostgreSQLProcessedMessageRepository(db), nil
		default:
			return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
}

// OrderProcessor returns the two-phase order processor, wrapped with metrics when enabled.
func (c *Container) OrderProcessor() (workerUseCase.OrderProcessor, error) {
	return lazy(c, &c.orderProcessorInit, "orderProcessor", &c.orderProcessor, c.initOrderProcessor)
}

// Consumer returns the message consumer feeding the order processor.
func (c *Container) Consumer() (*workerUseCase.Consumer, error) {
	return lazy(c, &c.consumerInit, "consumer", &c.consumer, func() (*workerUseCase.Consumer, error) {
		transport, err := c.Transport()
		if err != nil {
			return nil, fmt.Errorf("failed to get transport for consumer: %w", err)
		}

		processor, err := c.OrderProcessor()
		if err != nil {
			return nil, fmt.Errorf("failed to get order processor for consumer: %w", err)
		}

		consumerConfig := workerUseCase.ConsumerConfig{
			Concurrency:      c.config.WorkerConcurrency,
			MaxDeliveryCount: c.config.WorkerMaxDeliveryCount,
		}

		return workerUseCase.NewConsumer(transport, processor, consumerConfig, c.Logger()), nil
	})
}

func (c *Container) initOrderProcessor() (workerUseCase.OrderProcessor, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for order processor: %w", err)
	}

	orderRepo, err := c.OrderRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get order repository for order processor: %w", err)
	}

	historyRepo, err := c.StatusHistoryRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get status history repository for order processor: %w", err)
	}

	ledger, err := c.ProcessedMessageLedger()
	if err != nil {
		return nil, fmt.Errorf("failed to get processed message ledger for order processor: %w", err)
	}

	registry, err := c.EventRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to get event registry for order processor: %w", err)
	}

	notifier, err := c.WorkerNotifier()
	if err != nil {
		return nil, fmt.Errorf("failed to get notifier for order processor: %w", err)
	}

	delay := c.config.WorkerProcessingDelay
	if delay == 0 {
		// Zero means no simulated work here, not the processor default.
		delay = -1
	}

	baseProcessor := workerUseCase.NewOrderProcessor(
		txManager,
		orderRepo,
		historyRepo,
		ledger,
		registry,
		notifier,
		delay,
		c.Logger(),
	)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for order processor: %w", err)
		}
		return workerUseCase.NewOrderProcessorWithMetrics(baseProcessor, businessMetrics), nil
	}

	return baseProcessor, nil
}
