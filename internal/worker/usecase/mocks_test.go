package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/orderflow/internal/messaging"
	"github.com/allisson/orderflow/internal/notification"
	orderDomain "github.com/allisson/orderflow/internal/order/domain"
)

// MockTxManager is a mock implementation of database.TxManager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Exists(ctx context.Context, orderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) MarkProcessingIfPending(ctx context.Context, orderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) MarkFinalizedIfProcessing(
	ctx context.Context,
	orderID uuid.UUID,
	completedAt time.Time,
) (bool, error) {
	args := m.Called(ctx, orderID, completedAt)
	return args.Bool(0), args.Error(1)
}

type MockStatusHistoryWriter struct {
	mock.Mock
}

func (m *MockStatusHistoryWriter) Create(ctx context.Context, history *orderDomain.OrderStatusHistory) error {
	return m.Called(ctx, history).Error(0)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) TryMarkProcessed(ctx context.Context, messageID string) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) OrderCreated(ctx context.Context, event notification.Event) {
	m.Called(ctx, event)
}

func (m *MockNotifier) OrderStatusChanged(ctx context.Context, event notification.Event) {
	m.Called(ctx, event)
}

type MockOrderProcessor struct {
	mock.Mock
}

func (m *MockOrderProcessor) Process(ctx context.Context, msg messaging.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}
