package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/orderflow/internal/messaging"
	"github.com/allisson/orderflow/internal/outbox/domain"
)

type mockOutboxStore struct {
	mock.Mock
}

func (m *mockOutboxStore) FetchPendingBatch(ctx context.Context, limit int) ([]*domain.OutboxRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxRecord), args.Error(1)
}

func (m *mockOutboxStore) MarkPublished(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockOutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

func (m *mockOutboxStore) Quarantine(ctx context.Context, id uuid.UUID, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

func (m *mockOutboxStore) CountPending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, record *domain.OutboxRecord) domain.PublishOutcome {
	return m.Called(ctx, record).Get(0).(domain.PublishOutcome)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg messaging.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockSender) Close() error {
	return m.Called().Error(0)
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

type mockGaugeRecorder struct {
	mock.Mock
}

func (m *mockGaugeRecorder) RecordGauge(ctx context.Context, domain, name string, value int64) {
	m.Called(ctx, domain, name, value)
}

// sleepRecorder replaces the processor's sleep and remembers every requested delay.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}
