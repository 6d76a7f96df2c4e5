package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/allisson/orderflow/internal/outbox/domain"
)

// Processor defaults and floors.
const (
	DefaultBatchSize  = 50
	DefaultIdleDelay  = 1000 * time.Millisecond
	DefaultErrorDelay = 2000 * time.Millisecond

	MinIdleDelay  = 100 * time.Millisecond
	MinErrorDelay = 200 * time.Millisecond
)

// Config holds outbox processor configuration
type Config struct {
	BatchSize  int
	IdleDelay  time.Duration
	ErrorDelay time.Duration
	// QuarantinePermanent removes records with a PermanentFailure from future batches.
	QuarantinePermanent bool
}

// Normalize applies defaults to unset values and clamps delays to their floors.
func (c Config) Normalize() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.IdleDelay == 0 {
		c.IdleDelay = DefaultIdleDelay
	}
	if c.ErrorDelay == 0 {
		c.ErrorDelay = DefaultErrorDelay
	}
	c.IdleDelay = max(c.IdleDelay, MinIdleDelay)
	c.ErrorDelay = max(c.ErrorDelay, MinErrorDelay)
	return c
}

// Processor drains the outbox: Idle while the store is empty, Draining while records
// are pending. Records are published one at a time in fetch order and removed only
// after a confirmed Success.
type Processor struct {
	config    Config
	store     OutboxStore
	publisher OutboxPublisher
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewProcessor creates a new Processor. A nil logger discards output.
func NewProcessor(config Config, store OutboxStore, publisher OutboxPublisher, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Processor{
		config:    config.Normalize(),
		store:     store,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "outbox_processor")),
		sleep:     sleepContext,
	}
}

// Run polls until ctx is cancelled and then returns ctx.Err(). Errors and panics in
// a cycle are logged and followed by the error delay.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("starting outbox processor",
		slog.Int("batch_size", p.config.BatchSize),
		slog.Duration("idle_delay", p.config.IdleDelay),
		slog.Duration("error_delay", p.config.ErrorDelay),
	)

	for {
		if err := ctx.Err(); err != nil {
			p.logger.Info("stopping outbox processor")
			return err
		}

		if delay := p.cycle(ctx); delay > 0 {
			if err := p.sleep(ctx, delay); err != nil {
				p.logger.Info("stopping outbox processor")
				return err
			}
		}
	}
}

// cycle runs one batch and returns how long to wait before the next one.
func (p *Processor) cycle(ctx context.Context) (delay time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("outbox processor cycle panicked", slog.Any("panic", r))
			delay = p.config.ErrorDelay
		}
	}()

	processed, err := p.ProcessBatch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		p.logger.Error("outbox processor cycle failed", slog.Any("error", err))
		return p.config.ErrorDelay
	}

	if processed == 0 {
		return p.config.IdleDelay
	}
	return 0
}

// ProcessBatch fetches one batch and publishes it in order. It returns how many records
// were handled, whatever their outcome.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	batch, err := p.store.FetchPendingBatch(ctx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending outbox records: %w", err)
	}

	if len(batch) == 0 {
		return 0, nil
	}

	p.logger.Debug("processing outbox batch", slog.Int("count", len(batch)))

	for i, record := range batch {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := p.handle(ctx, record); err != nil {
			return i, err
		}
	}

	return len(batch), nil
}

func (p *Processor) handle(ctx context.Context, record *domain.OutboxRecord) error {
	outcome := p.publisher.Publish(ctx, record)

	switch o := outcome.(type) {
	case domain.Success:
		if err := p.store.MarkPublished(ctx, record.ID); err != nil {
			return fmt.Errorf("failed to mark outbox record %s as published: %w", record.ID, err)
		}
		p.logger.Debug("outbox record published",
			slog.String("outbox_id", record.ID.String()),
			slog.String("correlation_id", record.CorrelationID),
		)
		return nil

	case domain.RetryableFailure:
		p.logger.Warn("transient failure publishing outbox record, will retry",
			slog.String("outbox_id", record.ID.String()),
			slog.String("correlation_id", record.CorrelationID),
			slog.Any("error", o.Err),
		)
		if err := p.store.MarkFailed(ctx, record.ID, o.Error()); err != nil {
			return fmt.Errorf("failed to mark outbox record %s as failed: %w", record.ID, err)
		}
		return p.sleep(ctx, p.config.ErrorDelay)

	case domain.PermanentFailure:
		p.logger.Error("permanent failure publishing outbox record",
			slog.String("outbox_id", record.ID.String()),
			slog.String("correlation_id", record.CorrelationID),
			slog.String("reason", o.Reason),
			slog.Any("error", o.Err),
			slog.Bool("quarantine", p.config.QuarantinePermanent),
		)
		reason := permanentReason(o)
		if err := p.store.MarkFailed(ctx, record.ID, reason); err != nil {
			return fmt.Errorf("failed to mark outbox record %s as failed: %w", record.ID, err)
		}
		if p.config.QuarantinePermanent {
			if err := p.store.Quarantine(ctx, record.ID, reason); err != nil {
				return fmt.Errorf("failed to quarantine outbox record %s: %w", record.ID, err)
			}
		}
		return p.sleep(ctx, p.config.ErrorDelay)

	default:
		return fmt.Errorf("unexpected publish outcome %T", outcome)
	}
}

func permanentReason(f domain.PermanentFailure) string {
	if f.Err == nil {
		return f.Reason
	}
	return f.Reason + ": " + f.Err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
