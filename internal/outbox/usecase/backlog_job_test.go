package usecase

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewBacklogJob(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("DefaultSchedule", func(t *testing.T) {
		job, err := NewBacklogJob("", &mockOutboxStore{}, nil, logger)
		require.NoError(t, err)
		assert.NotNil(t, job)
	})

	t.Run("InvalidSchedule", func(t *testing.T) {
		_, err := NewBacklogJob("not a schedule", &mockOutboxStore{}, nil, logger)
		assert.Error(t, err)
	})
}

func TestBacklogJob_Check(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	t.Run("RecordsGauge", func(t *testing.T) {
		store := &mockOutboxStore{}
		gauge := &mockGaugeRecorder{}
		store.On("CountPending", ctx).Return(int64(7), nil).Once()
		gauge.On("RecordGauge", ctx, "outbox", "pending", int64(7)).Once()

		job, err := NewBacklogJob("@every 1h", store, gauge, logger)
		require.NoError(t, err)

		pending, err := job.Check(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(7), pending)
		gauge.AssertExpectations(t)
	})

	t.Run("CountError", func(t *testing.T) {
		store := &mockOutboxStore{}
		gauge := &mockGaugeRecorder{}
		store.On("CountPending", ctx).Return(int64(0), errors.New("db down")).Once()

		job, err := NewBacklogJob("@every 1h", store, gauge, logger)
		require.NoError(t, err)

		_, err = job.Check(ctx)
		assert.Error(t, err)
		gauge.AssertNotCalled(t, "RecordGauge", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestBacklogJob_Run(t *testing.T) {
	store := &mockOutboxStore{}
	gauge := &mockGaugeRecorder{}
	checked := make(chan struct{}, 1)

	store.On("CountPending", mock.Anything).Return(int64(3), nil)
	gauge.On("RecordGauge", mock.Anything, "outbox", "pending", int64(3)).Run(func(mock.Arguments) {
		select {
		case checked <- struct{}{}:
		default:
		}
	})

	job, err := NewBacklogJob("* * * * * *", store, gauge, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()

	select {
	case <-checked:
	case <-time.After(3 * time.Second):
		t.Fatal("backlog check did not run")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
