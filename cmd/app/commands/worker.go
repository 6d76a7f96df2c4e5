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

// RunWorker consumes OrderCreated events in a standalone process. Status notifications
// are posted to NOTIFICATION_URL since the API hub lives in another process.
func RunWorker(ctx context.Context, version string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	cfg.WorkerEmbedded = false

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting order worker",
		slog.String("version", version),
		slog.String("messaging_driver", cfg.MessagingDriver),
		slog.Int("concurrency", cfg.WorkerConcurrency),
	)
	if cfg.MessagingDriver == app.DriverMemory {
		logger.Warn("memory transport does not cross processes, the worker will only see its own messages")
	}

	defer closeContainer(container, logger)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	consumer, err := container.Consumer()
	if err != nil {
		return fmt.Errorf("failed to initialize order consumer: %w", err)
	}

	servers, err := metricsServers(container)
	if err != nil {
		return err
	}

	return serve(
		ctx,
		logger,
		cfg.DBConnMaxLifetime,
		servers,
		[]backgroundTask{{name: "order consumer", run: consumer.Run}},
	)
}
