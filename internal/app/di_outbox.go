package app

import (
	"fmt"

	"github.com/allisson/orderflow/internal/database"
	orderUseCase "github.com/allisson/orderflow/internal/order/usecase"
	outboxRepo "github.com/allisson/orderflow/internal/outbox/repository"
	outboxUseCase "github.com/allisson/orderflow/internal/outbox/usecase"
)

// outboxRepository is the full outbox store: the producer appends, the processor drains.
type outboxRepository interface {
	orderUseCase.OutboxAppender
	outboxUseCase.OutboxStore
	outboxUseCase.PendingCounter
}

// OutboxRepository returns the outbox repository for the configured driver.
func (c *Container) OutboxRepository() (outboxRepository, error) {
	return lazy(c, &c.outboxRepositoryInit, "outboxRepository", &c.outboxRepository,
		func() (outboxRepository, error) {
			db, err := c.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get database for outbox repository: %w", err)
			}

			switch c.config.DBDriver {
			case database.DriverMySQL:
				return outboxRepo.NewMySQLOutboxRepository(db), nil
			case database.DriverPostgres:
				return outboxRepo.NewPostgreSQLOutboxRepository(db), nil
			default:
				return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
			}
		})
}

// OutboxPublisher returns the publisher sending outbox records to the transport.
func (c *Container) OutboxPublisher() (outboxUseCase.OutboxPublisher, error) {
	return lazy(c, &c.outboxPublisherInit, "outboxPublisher", &c.outboxPublisher,
		func() (outboxUseCase.OutboxPublisher, error) {
			transport, err := c.Transport()
			if err != nil {
				return nil, fmt.Errorf("failed to get transport for outbox publisher: %w", err)
			}

			var publisher outboxUseCase.OutboxPublisher = outboxUseCase.NewPublisher(transport)

			if c.config.MetricsEnabled {
				businessMetrics, err := c.BusinessMetrics()
				if err != nil {
					return nil, fmt.Errorf("failed to get business metrics for outbox publisher: %w", err)
				}
				publisher = outboxUseCase.NewPublisherWithMetrics(publisher, businessMetrics)
			}

			return publisher, nil
		})
}

// OutboxProcessor returns the polling outbox processor.
func (c *Container) OutboxProcessor() (*outboxUseCase.Processor, error) {
	return lazy(c, &c.outboxProcessorInit, "outboxProcessor", &c.outboxProcessor,
		func() (*outboxUseCase.Processor, error) {
			store, err := c.OutboxRepository()
			if err != nil {
				return nil, fmt.Errorf("failed to get outbox repository for outbox processor: %w", err)
			}

			publisher, err := c.OutboxPublisher()
			if err != nil {
				return nil, fmt.Errorf("failed to get outbox publisher for outbox processor: %w", err)
			}

			processorConfig := outboxUseCase.Config{
				BatchSize:           c.config.OutboxBatchSize,
				IdleDelay:           c.config.OutboxIdleDelay,
				ErrorDelay:          c.config.OutboxErrorDelay,
				QuarantinePermanent: c.config.OutboxQuarantinePermanent,
			}

			return outboxUseCase.NewProcessor(processorConfig, store, publisher, c.Logger()), nil
		})
}

// BacklogJob returns the cron job reporting the number of pending outbox records.
func (c *Container) BacklogJob() (*outboxUseCase.BacklogJob, error) {
	return lazy(c, &c.backlogJobInit, "backlogJob", &c.backlogJob, func() (*outboxUseCase.BacklogJob, error) {
		counter, err := c.OutboxRepository()
		if err != nil {
			return nil, fmt.Errorf("failed to get outbox repository for backlog job: %w", err)
		}

		gauge, err := c.GaugeRecorder()
		if err != nil {
			return nil, fmt.Errorf("failed to get gauge recorder for backlog job: %w", err)
		}

		job, err := outboxUseCase.NewBacklogJob(c.config.OutboxBacklogCron, counter, gauge, c.Logger())
		if err != nil {
			return nil, fmt.Errorf("failed to create backlog job: %w", err)
		}
		return job, nil
	})
}
