package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/orderflow/internal/database"
	apperrors "github.com/allisson/orderflow/internal/errors"
	"github.com/allisson/orderflow/internal/notification"
	orderDomain "github.com/allisson/orderflow/internal/order/domain"
	outboxDomain "github.com/allisson/orderflow/internal/outbox/domain"
	customValidation "github.com/allisson/orderflow/internal/validation"
)

const (
	maxNameLength          = 200
	maxCorrelationIDLength = 128

	reasonOrderCreated = "order created"
)

// orderUseCase implements the OrderUseCase interface.
type orderUseCase struct {
	txManager   database.TxManager
	orderRepo   OrderRepository
	historyRepo StatusHistoryRepository
	outbox      OutboxAppender
	notifier    notification.Notifier
	logger      *slog.Logger
	now         func() time.Time
}

// NewOrderUseCase creates a new OrderUseCase. A nil notifier disables notifications.
func NewOrderUseCase(
	txManager database.TxManager,
	orderRepo OrderRepository,
	historyRepo StatusHistoryRepository,
	outbox OutboxAppender,
	notifier notification.Notifier,
	logger *slog.Logger,
) OrderUseCase {
	if notifier == nil {
		notifier = notification.NoopNotifier{}
	}
	return &orderUseCase{
		txManager:   txManager,
		orderRepo:   orderRepo,
		historyRepo: historyRepo,
		outbox:      outbox,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// Create validates input and persists the order, its initial history row and the
// OrderCreated outbox record in one transaction. Subscribers are notified after commit.
func (u *orderUseCase) Create(
	ctx context.Context,
	input *orderDomain.CreateOrderInput,
) (*orderDomain.Order, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}
	if err := orderDomain.EnsureValid(nil, orderDomain.StatusPending); err != nil {
		return nil, err
	}

	now := u.now()
	order := orderDomain.NewOrder(input, now)
	correlationID := orderDomain.ResolveCorrelationID(input.CorrelationID, order.ID)

	event := orderDomain.NewOrderCreatedEvent(order, correlationID, now)
	record, err := outboxDomain.NewRecord(event)
	if err != nil {
		return nil, err
	}

	history := orderDomain.NewStatusHistory(
		order.ID,
		nil,
		orderDomain.StatusPending,
		correlationID,
		orderDomain.SourceAPI,
		event.ID.String(),
		reasonOrderCreated,
		now,
	)

	logger := u.logger.With(
		slog.String("order_id", order.ID.String()),
		slog.String("correlation_id", correlationID),
	)

	err = u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := u.orderRepo.Create(txCtx, order); err != nil {
			return err
		}
		if err := u.historyRepo.Create(txCtx, history); err != nil {
			return err
		}
		logger.DebugContext(ctx, "staging outbox record", slog.String("event_id", event.ID.String()))
		return u.outbox.Append(txCtx, record)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "order created")

	u.notifier.OrderCreated(ctx, notification.Event{
		OrderID:       order.ID,
		Status:        order.Status.String(),
		CorrelationID: correlationID,
		OccurredAt:    order.CreatedAt,
	})

	return order, nil
}

// Get retrieves an order by id.
func (u *orderUseCase) Get(ctx context.Context, orderID uuid.UUID) (*orderDomain.Order, error) {
	return u.orderRepo.Get(ctx, orderID)
}

// List retrieves orders newest first with pagination.
func (u *orderUseCase) List(ctx context.Context, offset, limit int) ([]*orderDomain.Order, error) {
	return u.orderRepo.List(ctx, offset, limit)
}

// GetDetails retrieves an order and its status history.
func (u *orderUseCase) GetDetails(ctx context.Context, orderID uuid.UUID) (*orderDomain.OrderDetails, error) {
	order, err := u.orderRepo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	history, err := u.historyRepo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &orderDomain.OrderDetails{
		Order:   order,
		History: history,
	}, nil
}

func validateCreateInput(input *orderDomain.CreateOrderInput) error {
	if input == nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "order input is required")
	}

	err := validation.ValidateStruct(input,
		validation.Field(&input.CustomerName,
			validation.Required,
			customValidation.NotBlank,
			validation.RuneLength(1, maxNameLength),
		),
		validation.Field(&input.Product,
			validation.Required,
			customValidation.NotBlank,
			validation.RuneLength(1, maxNameLength),
		),
		validation.Field(&input.Amount,
			customValidation.PositiveAmount,
			customValidation.MaxDecimalPlaces(2),
		),
		validation.Field(&input.CorrelationID,
			customValidation.NoWhitespace,
			customValidation.Printable,
			validation.RuneLength(0, maxCorrelationIDLength),
		),
	)
	return customValidation.WrapValidationError(err)
}
