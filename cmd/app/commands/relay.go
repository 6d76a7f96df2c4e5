package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/allisson/orderflow/internal/app"
)

// RunRelay runs the outbox processor and its backlog job as a standalone process.
func RunRelay(ctx context.Context, version string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting outbox relay",
		slog.String("version", version),
		slog.String("messaging_driver", cfg.MessagingDriver),
	)

	defer closeContainer(container, logger)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tasks, err := outboxTasks(container)
	if err != nil {
		return err
	}

	servers, err := metricsServers(container)
	if err != nil {
		return err
	}

	return serve(ctx, logger, cfg.DBConnMaxLifetime, servers, tasks)
}

// outboxTasks returns the outbox processor and the backlog reporting job.
func outboxTasks(container *app.Container) ([]backgroundTask, error) {
	processor, err := container.OutboxProcessor()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize outbox processor: %w", err)
	}

	backlogJob, err := container.BacklogJob()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize outbox backlog job: %w", err)
	}

	return []backgroundTask{
		{name: "outbox processor", run: processor.Run},
		{name: "outbox backlog job", run: backlogJob.Run},
	}, nil
}

// metricsServers returns the metrics server when metrics are enabled.
func metricsServers(container *app.Container) ([]server, error) {
	metricsServer, err := container.MetricsServer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics server: %w", err)
	}
	if metricsServer == nil {
		return nil, nil
	}
	return []server{metricsServer}, nil
}
