package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/allisson/orderflow/internal/messaging"
	orderDomain "github.com/allisson/orderflow/internal/order/domain"
)

// Consumer defaults.
const (
	DefaultConcurrency      = 4
	DefaultMaxDeliveryCount = 5

	receiveErrorDelay = time.Second
)

// Dead-letter reasons set by the Consumer.
const (
	DeadLetterInvalidPayload   = "InvalidPayload"
	DeadLetterProcessingFailed = "ProcessingFailed"
)

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Concurrency      int
	MaxDeliveryCount int
}

// Consumer pulls deliveries from a Receiver and settles each one according to the
// processor's result.
type Consumer struct {
	receiver  messaging.Receiver
	processor OrderProcessor
	config    ConsumerConfig
	logger    *slog.Logger
}

// NewConsumer creates a new Consumer. Non-positive settings use the defaults.
func NewConsumer(
	receiver messaging.Receiver,
	processor OrderProcessor,
	config ConsumerConfig,
	logger *slog.Logger,
) *Consumer {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.MaxDeliveryCount <= 0 {
		config.MaxDeliveryCount = DefaultMaxDeliveryCount
	}
	return &Consumer{
		receiver:  receiver,
		processor: processor,
		config:    config,
		logger:    logger.With(slog.String("component", "order_consumer")),
	}
}

// Run receives until ctx is cancelled or the receiver closes, with at most
// Concurrency deliveries in flight. In-flight deliveries finish before Run returns
// and are not cancelled with ctx.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "starting order consumer",
		slog.Int("concurrency", c.config.Concurrency),
		slog.Int("max_delivery_count", c.config.MaxDeliveryCount),
	)

	sem := semaphore.NewWeighted(int64(c.config.Concurrency))
	handlerCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	err := c.receiveLoop(ctx, sem, &g, handlerCtx)

	_ = g.Wait()
	c.logger.Info("order consumer stopped")
	return err
}

func (c *Consumer) receiveLoop(
	ctx context.Context,
	sem *semaphore.Weighted,
	g *errgroup.Group,
	handlerCtx context.Context,
) error {
	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			return ctx.Err()
		}

		delivery, err := c.receiver.Receive(ctx)
		if err != nil {
			sem.Release(1)

			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, messaging.ErrClosed):
				return err
			}

			c.logger.ErrorContext(ctx, "failed to receive message", slog.Any("error", err))
			if err := sleepContext(ctx, receiveErrorDelay); err != nil {
				return err
			}
			continue
		}

		g.Go(func() error {
			defer sem.Release(1)
			c.Handle(handlerCtx, delivery)
			return nil
		})
	}
}

// Handle processes one delivery and settles it: Ack on success, dead-letter for
// invalid payloads or exhausted retries, Abandon otherwise.
func (c *Consumer) Handle(ctx context.Context, delivery messaging.Delivery) {
	msg := delivery.Message()
	logger := c.logger.With(
		slog.String("message_id", msg.ID),
		slog.String("correlation_id", msg.CorrelationID),
		slog.Int("delivery_count", delivery.DeliveryCount()),
	)

	logger.InfoContext(ctx, "message received")

	err := c.process(ctx, msg)

	var settleErr error
	switch {
	case err == nil:
		settleErr = delivery.Ack(ctx)
		logger.InfoContext(ctx, "message processed")

	case errors.Is(err, orderDomain.ErrInvalidPayload):
		logger.WarnContext(ctx, "invalid payload, dead-lettering message", slog.Any("error", err))
		settleErr = delivery.DeadLetter(ctx, DeadLetterInvalidPayload, "Body did not deserialize into an OrderId")

	case delivery.DeliveryCount() >= c.config.MaxDeliveryCount:
		logger.ErrorContext(ctx, "processing failed, retries exceeded", slog.Any("error", err))
		settleErr = delivery.DeadLetter(ctx, DeadLetterProcessingFailed, "Retries exceeded")

	default:
		logger.ErrorContext(ctx, "processing failed, abandoning message", slog.Any("error", err))
		settleErr = delivery.Abandon(ctx)
	}

	if settleErr != nil {
		logger.ErrorContext(ctx, "failed to settle message", slog.Any("error", settleErr))
	}
}

func (c *Consumer) process(ctx context.Context, msg messaging.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("order processor panic: %v", r)
		}
	}()
	return c.processor.Process(ctx, msg)
}
