package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/allisson/orderflow/internal/metrics"
)

// DefaultBacklogSchedule runs the backlog check every 30 seconds.
const DefaultBacklogSchedule = "*/30 * * * * *"

const backlogCheckTimeout = 10 * time.Second

// BacklogJob periodically records the number of pending outbox records.
type BacklogJob struct {
	counter PendingCounter
	gauge   metrics.GaugeRecorder
	cron    *cron.Cron
	logger  *slog.Logger
}

// NewBacklogJob schedules the backlog check. The schedule uses the six-field
// (with seconds) cron syntax or a descriptor such as "@every 1m".
func NewBacklogJob(
	schedule string,
	counter PendingCounter,
	gauge metrics.GaugeRecorder,
	logger *slog.Logger,
) (*BacklogJob, error) {
	if schedule == "" {
		schedule = DefaultBacklogSchedule
	}
	if gauge == nil {
		gauge = metrics.NoOpGaugeRecorder{}
	}

	j := &BacklogJob{
		counter: counter,
		gauge:   gauge,
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger.With(slog.String("component", "outbox_backlog_job")),
	}

	_, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), backlogCheckTimeout)
		defer cancel()

		if _, err := j.Check(ctx); err != nil {
			j.logger.ErrorContext(ctx, "outbox backlog check failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return nil, err
	}

	return j, nil
}

// Check reads the backlog once and records it.
func (j *BacklogJob) Check(ctx context.Context) (int64, error) {
	pending, err := j.counter.CountPending(ctx)
	if err != nil {
		return 0, err
	}

	j.gauge.RecordGauge(ctx, "outbox", "pending", pending)
	j.logger.DebugContext(ctx, "outbox backlog", slog.Int64("pending", pending))
	return pending, nil
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for a running
// check to finish and returns ctx.Err().
func (j *BacklogJob) Run(ctx context.Context) error {
	j.cron.Start()
	j.logger.InfoContext(ctx, "outbox backlog job started")

	<-ctx.Done()

	<-j.cron.Stop().Done()
	j.logger.Info("outbox backlog job stopped")
	return ctx.Err()
}
