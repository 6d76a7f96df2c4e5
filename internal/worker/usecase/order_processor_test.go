package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/orderflow/internal/messaging"
	"github.com/allisson/orderflow/internal/notification"
	orderDomain "github.com/allisson/orderflow/internal/order/domain"
	outboxDomain "github.com/allisson/orderflow/internal/outbox/domain"
)

type processorDeps struct {
	txManager   *MockTxManager
	orderRepo   *MockOrderRepository
	historyRepo *MockStatusHistoryWriter
	ledger      *MockLedger
	notifier    *MockNotifier
	sleeps      []time.Duration
}

func newTestProcessor(t *testing.T) (*orderProcessor, *processorDeps) {
	t.Helper()

	registry := outboxDomain.NewEventRegistry()
	require.NoError(t, orderDomain.RegisterEvents(registry))

	deps := &processorDeps{
		txManager:   &MockTxManager{},
		orderRepo:   &MockOrderRepository{},
		historyRepo: &MockStatusHistoryWriter{},
		ledger:      &MockLedger{},
		notifier:    &MockNotifier{},
	}
	p := NewOrderProcessor(
		deps.txManager,
		deps.orderRepo,
		deps.historyRepo,
		deps.ledger,
		registry,
		deps.notifier,
		time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	).(*orderProcessor)
	p.sleep = func(ctx context.Context, d time.Duration) error {
		deps.sleeps = append(deps.sleeps, d)
		return ctx.Err()
	}
	return p, deps
}

func orderCreatedMessage(orderID uuid.UUID) messaging.Message {
	return messaging.Message{
		ID:   uuid.NewString(),
		Type: orderDomain.OrderCreatedEventType,
		Body: []byte(`{"orderId":"` + orderID.String() + `","customerName":"Ana","product":"Pix","amount":"150.00"}`),
	}
}

func historyTo(status orderDomain.Status, msgID string, orderID uuid.UUID) interface{} {
	return mock.MatchedBy(func(h *orderDomain.OrderStatusHistory) bool {
		return h.ToStatus == status &&
			h.EventID == msgID &&
			h.Source == orderDomain.SourceWorker &&
			h.CorrelationID == orderID.String()
	})
}

func TestOrderProcessor_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("HappyPath", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		orderID := uuid.Must(uuid.NewV7())
		msg := orderCreatedMessage(orderID)

		deps.txManager.On("WithTx", ctx, mock.Anything).Return(nil).Twice()
		deps.orderRepo.On("MarkProcessingIfPending", ctx, orderID).Return(true, nil).Once()
		deps.historyRepo.On("Create", ctx, historyTo(orderDomain.StatusProcessing, msg.ID, orderID)).Return(nil).Once()
		deps.ledger.On("TryMarkProcessed", ctx, msg.ID).Return(true, nil).Once()
		deps.orderRepo.On("MarkFinalizedIfProcessing", ctx, orderID, mock.AnythingOfType("time.Time")).
			Return(true, nil).Once()
		deps.historyRepo.On("Create", ctx, historyTo(orderDomain.StatusFinalized, msg.ID, orderID)).Return(nil).Once()
		deps.notifier.On("OrderStatusChanged", ctx, mock.MatchedBy(func(e notification.Event) bool {
			return e.OrderID == orderID && e.Status == "Processing"
		})).Once()
		deps.notifier.On("OrderStatusChanged", ctx, mock.MatchedBy(func(e notification.Event) bool {
			return e.OrderID == orderID && e.Status == "Finalized"
		})).Once()

		require.NoError(t, p.Process(ctx, msg))

		assert.Equal(t, []time.Duration{time.Second}, deps.sleeps)
		deps.orderRepo.AssertExpectations(t)
		deps.historyRepo.AssertExpectations(t)
		deps.ledger.AssertExpectations(t)
		deps.notifier.AssertExpectations(t)
		deps.orderRepo.AssertNotCalled(t, "Exists", mock.Anything, mock.Anything)
	})

	t.Run("CorrelationIDFromMessage", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		orderID := uuid.Must(uuid.NewV7())
		msg := orderCreatedMessage(orderID)
		msg.CorrelationID = "req-7"

		deps.txManager.On("WithTx", ctx, mock.Anything).Return(nil)
		deps.orderRepo.On("MarkProcessingIfPending", ctx, orderID).Return(true, nil).Once()
		deps.historyRepo.On("Create", ctx, mock.MatchedBy(func(h *orderDomain.OrderStatusHistory) bool {
			return h.CorrelationID == "req-7"
		})).Return(nil).Twice()
		deps.ledger.On("TryMarkProcessed", ctx, msg.ID).Return(true, nil).Once()
		deps.orderRepo.On("MarkFinalizedIfProcessing", ctx, orderID, mock.Anything).Return(true, nil).Once()
		deps.notifier.On("OrderStatusChanged", ctx, mock.Anything).Twice()

		require.NoError(t, p.Process(ctx, msg))
		deps.historyRepo.AssertExpectations(t)
	})

	t.Run("RedeliveryAfterProcessingStillFinalizes", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		orderID := uuid.Must(uuid.NewV7())
		msg := orderCreatedMessage(orderID)

		deps.txManager.On("WithTx", ctx, mock.Anything).Return(nil).Twice()
		deps.orderRepo.On("MarkProcessingIfPending", ctx, orderID).Return(false, nil).Once()
		deps.orderRepo.On("Exists", ctx, orderID).Return(true, nil).Once()
		deps.ledger.On("IsProcessed", ctx, msg.ID).Return(false, nil).Once()
		deps.ledger.On("TryMarkProcessed", ctx, msg.ID).Return(true, nil).Once()
		deps.orderRepo.On("MarkFinalizedIfProcessing", ctx, orderID, mock.Anything).Return(true, nil).Once()
		deps.historyRepo.On("Create", ctx, historyTo(orderDomain.StatusFinalized, msg.ID, orderID)).Return(nil).Once()
		deps.notifier.On("OrderStatusChanged", ctx, mock.Anything).Once()

		require.NoError(t, p.Process(ctx, msg))
		deps.historyRepo.AssertNumberOfCalls(t, "Create", 1)
	})

	t.Run("CompletedMessageSkipsDelayAndPhaseB", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		orderID := uuid.Must(uuid.NewV7())
		msg := orderCreatedMessage(orderID)

		deps.txManager.On("WithTx", ctx, mock.Anything).Return(nil).Once()
		deps.orderRepo.On("MarkProcessingIfPending", ctx, orderID).Return(false, nil).Once()
		deps.orderRepo.On("Exists", ctx, orderID).Return(true, nil).Once()
		deps.ledger.On("IsProcessed", ctx, msg.ID).Return(true, nil).Once()

		require.NoError(t, p.Process(ctx, msg))

		assert.Empty(t, deps.sleeps)
		deps.txManager.AssertNumberOfCalls(t, "WithTx", 1)
		deps.ledger.AssertNotCalled(t, "TryMarkProcessed", mock.Anything, mock.Anything)
		deps.notifier.AssertNotCalled(t, "OrderStatusChanged", mock.Anything, mock.Anything)
	})

	t.Run("LedgerCheckErrorPropagates", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		orderID := uuid.Must(uuid.NewV7())
		msg := orderCreatedMessage(orderID)
		dbErr := errors.New("connection reset")

		deps.txManager.On("WithTx", ctx, mock.Anything).Return(nil).Once()
		deps.orderRepo.On("MarkProcessingIfPending", ctx, orderID).Return(false, nil).Once()
		deps.orderRepo.On("Exists", ctx, orderID).Return(true, nil).Once()
		deps.ledger.On("IsProcessed", ctx, msg.ID).Return(false, dbErr).Once()

		assert.ErrorIs(t, p.Process(ctx, msg), dbErr)
		assert.Empty(t, deps.sleeps)
	})

	t.Run("ConcurrentCompletionIsNoop", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		orderID := uuid.Must(uuid.NewV7())
		msg := orderCreatedMessage(orderID)

		deps.txManager.On("WithTx", ctx, mock.Anything).Return(nil).Twice()
		deps.orderRepo.On("MarkProcessingIfPending", ctx, orderID).Return(false, nil).Once()
		deps.orderRepo.On("Exists", ctx, orderID).Return(true, nil).Once()
		deps.ledger.On("IsProcessed", ctx, msg.ID).Return(false, nil).Once()
		deps.ledger.On("TryMarkProcessed", ctx, msg.ID).Return(false, nil).Once()

		require.NoError(t, p.Process(ctx, msg))

		deps.orderRepo.AssertNotCalled(t, "MarkFinalizedIfProcessing", mock.Anything, mock.Anything, mock.Anything)
		deps.historyRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		deps.notifier.AssertNotCalled(t, "OrderStatusChanged", mock.Anything, mock.Anything)
	})

	t.Run("FinalizeCASMissDoesNotWriteHistory", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		orderID := uuid.Must(uuid.NewV7())
		msg := orderCreatedMessage(orderID)

		deps.txManager.On("WithTx", ctx, mock.Anything).Return(nil).Twice()
		deps.orderRepo.On("MarkProcessingIfPending", ctx, orderID).Return(false, nil).Once()
		deps.orderRepo.On("Exists", ctx, orderID).Return(true, nil).Once()
		deps.ledger.On("IsProcessed", ctx, msg.ID).Return(false, nil).Once()
		deps.ledger.On("TryMarkProcessed", ctx, msg.ID).Return(true, nil).Once()
		deps.orderRepo.On("MarkFinalizedIfProcessing", ctx, orderID, mock.Anything).Return(false, nil).Once()

		require.NoError(t, p.Process(ctx, msg))
		deps.historyRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("MissingOrderStopsBeforePhaseB", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		orderID := uuid.Must(uuid.NewV7())
		msg := orderCreatedMessage(orderID)

		deps.txManager.On("WithTx", ctx, mock.Anything).Return(nil).Once()
		deps.orderRepo.On("MarkProcessingIfPending", ctx, orderID).Return(false, nil).Once()
		deps.orderRepo.On("Exists", ctx, orderID).Return(false, nil).Once()

		require.NoError(t, p.Process(ctx, msg))

		assert.Empty(t, deps.sleeps)
		deps.ledger.AssertNotCalled(t, "TryMarkProcessed", mock.Anything, mock.Anything)
		deps.historyRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("InvalidPayloads", func(t *testing.T) {
		tests := []struct {
			name string
			msg  messaging.Message
		}{
			{"not json", messaging.Message{ID: "m1", Type: "OrderCreated", Body: []byte("not json")}},
			{"missing order id", messaging.Message{ID: "m2", Type: "OrderCreated", Body: []byte(`{"product":"Pix"}`)}},
			{"malformed order id", messaging.Message{ID: "m3", Body: []byte(`{"orderId":"abc"}`)}},
			{"unknown type", messaging.Message{ID: "m4", Type: "Unknown", Body: []byte(`{}`)}},
			{"missing message id", messaging.Message{Body: []byte(`{"orderId":"` + uuid.NewString() + `"}`)}},
			{
				"message id too long",
				messaging.Message{
					ID:   strings.Repeat("x", messaging.MaxMessageIDLength+1),
					Body: []byte(`{"orderId":"` + uuid.NewString() + `"}`),
				},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p, deps := newTestProcessor(t)

				err := p.Process(ctx, tt.msg)

				assert.ErrorIs(t, err, orderDomain.ErrInvalidPayload)
				deps.txManager.AssertNotCalled(t, "WithTx", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("PhaseAErrorPropagates", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		orderID := uuid.Must(uuid.NewV7())
		dbErr := errors.New("connection reset")

		deps.txManager.On("WithTx", ctx, mock.Anything).Return(nil).Once()
		deps.orderRepo.On("MarkProcessingIfPending", ctx, orderID).Return(false, dbErr).Once()

		err := p.Process(ctx, orderCreatedMessage(orderID))

		assert.ErrorIs(t, err, dbErr)
		assert.NotErrorIs(t, err, orderDomain.ErrInvalidPayload)
	})

	t.Run("PhaseBErrorPropagates", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		orderID := uuid.Must(uuid.NewV7())
		msg := orderCreatedMessage(orderID)
		historyErr := errors.New("insert failed")

		deps.txManager.On("WithTx", ctx, mock.Anything).Return(nil).Twice()
		deps.orderRepo.On("MarkProcessingIfPending", ctx, orderID).Return(false, nil).Once()
		deps.orderRepo.On("Exists", ctx, orderID).Return(true, nil).Once()
		deps.ledger.On("IsProcessed", ctx, msg.ID).Return(false, nil).Once()
		deps.ledger.On("TryMarkProcessed", ctx, msg.ID).Return(true, nil).Once()
		deps.orderRepo.On("MarkFinalizedIfProcessing", ctx, orderID, mock.Anything).Return(true, nil).Once()
		deps.historyRepo.On("Create", ctx, mock.Anything).Return(historyErr).Once()

		err := p.Process(ctx, msg)

		assert.ErrorIs(t, err, historyErr)
		deps.notifier.AssertNotCalled(t, "OrderStatusChanged", mock.Anything, mock.Anything)
	})

	t.Run("CancelledDuringDelay", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		orderID := uuid.Must(uuid.NewV7())
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		deps.txManager.On("WithTx", cancelled, mock.Anything).Return(nil).Once()
		deps.orderRepo.On("MarkProcessingIfPending", cancelled, orderID).Return(false, nil).Once()
		deps.orderRepo.On("Exists", cancelled, orderID).Return(true, nil).Once()
		deps.ledger.On("IsProcessed", cancelled, mock.Anything).Return(false, nil).Once()

		err := p.Process(cancelled, orderCreatedMessage(orderID))

		assert.ErrorIs(t, err, context.Canceled)
		deps.ledger.AssertNotCalled(t, "TryMarkProcessed", mock.Anything, mock.Anything)
	})
}

func TestNewOrderProcessor_Delay(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := NewOrderProcessor(nil, nil, nil, nil, nil, nil, 0, logger).(*orderProcessor)
	assert.Equal(t, DefaultProcessingDelay, p.delay)
	assert.IsType(t, notification.NoopNotifier{}, p.notifier)

	p = NewOrderProcessor(nil, nil, nil, nil, nil, nil, -1, logger).(*orderProcessor)
	assert.Equal(t, time.Duration(0), p.delay)
}
