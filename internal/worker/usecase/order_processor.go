package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/orderflow/internal/database"
	apperrors "github.com/allisson/orderflow/internal/errors"
	"github.com/allisson/orderflow/internal/messaging"
	"github.com/allisson/orderflow/internal/notification"
	orderDomain "github.com/allisson/orderflow/internal/order/domain"
	outboxDomain "github.com/allisson/orderflow/internal/outbox/domain"
)

// DefaultProcessingDelay stands in for the downstream work between the two phases.
const DefaultProcessingDelay = 5 * time.Second

const (
	reasonProcessing = "status changed to Processing"
	reasonFinalized  = "status changed to Finalized"
)

// orderProcessor implements OrderProcessor.
type orderProcessor struct {
	txManager   database.TxManager
	orderRepo   OrderRepository
	historyRepo StatusHistoryWriter
	ledger      ProcessedMessageLedger
	registry    *outboxDomain.EventRegistry
	notifier    notification.Notifier
	delay       time.Duration
	logger      *slog.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewOrderProcessor creates a new OrderProcessor. A negative delay disables the
// simulated work; zero uses DefaultProcessingDelay.
func NewOrderProcessor(
	txManager database.TxManager,
	orderRepo OrderRepository,
	historyRepo StatusHistoryWriter,
	ledger ProcessedMessageLedger,
	registry *outboxDomain.EventRegistry,
	notifier notification.Notifier,
	delay time.Duration,
	logger *slog.Logger,
) OrderProcessor {
	if notifier == nil {
		notifier = notification.NoopNotifier{}
	}
	if delay == 0 {
		delay = DefaultProcessingDelay
	}
	return &orderProcessor{
		txManager:   txManager,
		orderRepo:   orderRepo,
		historyRepo: historyRepo,
		ledger:      ledger,
		registry:    registry,
		notifier:    notifier,
		delay:       max(delay, 0),
		logger:      logger.With(slog.String("component", "order_processor")),
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// Process runs both phases for msg.
func (p *orderProcessor) Process(ctx context.Context, msg messaging.Message) error {
	orderID, err := p.decode(msg)
	if err != nil {
		return err
	}

	correlationID := orderDomain.ResolveCorrelationID(msg.CorrelationID, orderID)
	logger := p.logger.With(
		slog.String("order_id", orderID.String()),
		slog.String("message_id", msg.ID),
		slog.String("correlation_id", correlationID),
	)

	proceed, err := p.advanceToProcessing(ctx, orderID, msg.ID, correlationID, logger)
	if err != nil || !proceed {
		return err
	}

	if err := p.sleep(ctx, p.delay); err != nil {
		return err
	}

	return p.finalize(ctx, orderID, msg.ID, correlationID, logger)
}

// decode extracts the order id. Anything unusable is reported as ErrInvalidPayload.
func (p *orderProcessor) decode(msg messaging.Message) (uuid.UUID, error) {
	if msg.ID == "" {
		return uuid.Nil, apperrors.Wrap(orderDomain.ErrInvalidPayload, "message id is missing")
	}
	if len(msg.ID) > messaging.MaxMessageIDLength {
		return uuid.Nil, apperrors.Wrapf(
			orderDomain.ErrInvalidPayload,
			"message id exceeds %d bytes",
			messaging.MaxMessageIDLength,
		)
	}

	eventType := msg.Type
	if eventType == "" {
		eventType = orderDomain.OrderCreatedEventType
	}

	event, err := p.registry.Decode(eventType, msg.Body)
	if err != nil {
		if apperrors.Is(err, orderDomain.ErrInvalidPayload) {
			return uuid.Nil, err
		}
		return uuid.Nil, apperrors.Wrap(orderDomain.ErrInvalidPayload, err.Error())
	}

	created, ok := event.(*orderDomain.OrderCreatedEvent)
	if !ok {
		return uuid.Nil, apperrors.Wrapf(orderDomain.ErrInvalidPayload, "unexpected event type %q", eventType)
	}
	return created.OrderID, nil
}

// advanceToProcessing is Phase A. It reports false when the order does not exist or
// this message already completed Phase B.
func (p *orderProcessor) advanceToProcessing(
	ctx context.Context,
	orderID uuid.UUID,
	messageID, correlationID string,
	logger *slog.Logger,
) (bool, error) {
	var changed bool
	err := p.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		changed, err = p.orderRepo.MarkProcessingIfPending(txCtx, orderID)
		if err != nil || !changed {
			return err
		}

		return p.historyRepo.Create(txCtx, orderDomain.NewStatusHistory(
			orderID,
			orderDomain.StatusPending.Ptr(),
			orderDomain.StatusProcessing,
			correlationID,
			orderDomain.SourceWorker,
			messageID,
			reasonProcessing,
			p.now(),
		))
	})
	if err != nil {
		return false, err
	}

	if changed {
		logger.InfoContext(ctx, "order marked as processing")
		p.notifyStatus(ctx, orderID, orderDomain.StatusProcessing, correlationID)
		return true, nil
	}

	exists, err := p.orderRepo.Exists(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !exists {
		logger.WarnContext(ctx, "order not found, skipping message")
		return false, nil
	}

	// A redelivery after a completed Phase B needs neither the delay nor another attempt.
	done, err := p.ledger.IsProcessed(ctx, messageID)
	if err != nil {
		return false, err
	}
	if done {
		logger.InfoContext(ctx, "message already processed, skipping")
		return false, nil
	}

	logger.InfoContext(ctx, "order was no longer pending, no change")
	return true, nil
}

// finalize is Phase B.
func (p *orderProcessor) finalize(
	ctx context.Context,
	orderID uuid.UUID,
	messageID, correlationID string,
	logger *slog.Logger,
) error {
	var finalized bool
	err := p.txManager.WithTx(ctx, func(txCtx context.Context) error {
		firstTime, err := p.ledger.TryMarkProcessed(txCtx, messageID)
		if err != nil {
			return err
		}
		if !firstTime {
			logger.InfoContext(ctx, "message already processed")
			return nil
		}

		now := p.now()
		finalized, err = p.orderRepo.MarkFinalizedIfProcessing(txCtx, orderID, now)
		if err != nil {
			return err
		}
		if !finalized {
			logger.InfoContext(ctx, "order was not processing at finalization")
			return nil
		}

		return p.historyRepo.Create(txCtx, orderDomain.NewStatusHistory(
			orderID,
			orderDomain.StatusProcessing.Ptr(),
			orderDomain.StatusFinalized,
			correlationID,
			orderDomain.SourceWorker,
			messageID,
			reasonFinalized,
			now,
		))
	})
	if err != nil {
		return err
	}

	if finalized {
		logger.InfoContext(ctx, "order marked as finalized")
		p.notifyStatus(ctx, orderID, orderDomain.StatusFinalized, correlationID)
	}
	return nil
}

func (p *orderProcessor) notifyStatus(
	ctx context.Context,
	orderID uuid.UUID,
	status orderDomain.Status,
	correlationID string,
) {
	p.notifier.OrderStatusChanged(ctx, notification.Event{
		OrderID:       orderID,
		Status:        status.String(),
		CorrelationID: correlationID,
		OccurredAt:    p.now().UTC(),
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
