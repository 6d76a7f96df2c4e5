package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/allisson/orderflow/internal/app"
	"github.com/allisson/orderflow/internal/config"
)

// RunServer starts the API with graceful shutdown support. The outbox processor and
// the order worker run in the same process when OUTBOX_EMBEDDED or WORKER_EMBEDDED
// is set. Blocks until SIGINT/SIGTERM or a fatal error.
func RunServer(ctx context.Context, version string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting server",
		slog.String("version", version),
		slog.String("messaging_driver", cfg.MessagingDriver),
		slog.Bool("outbox_embedded", cfg.OutboxEmbedded),
		slog.Bool("worker_embedded", cfg.WorkerEmbedded),
	)

	defer closeContainer(container, logger)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Built before the servers so that a broken transport fails fast.
	tasks, err := serverTasks(container, cfg)
	if err != nil {
		return err
	}

	apiServer, err := container.HTTPServer(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	servers := []server{apiServer}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}
	if metricsServer != nil {
		servers = append(servers, metricsServer)
	}

	return serve(ctx, logger, cfg.DBConnMaxLifetime, servers, tasks)
}

// serverTasks returns the loops embedded in the server process.
func serverTasks(container *app.Container, cfg *config.Config) ([]backgroundTask, error) {
	var tasks []backgroundTask

	if cfg.OutboxEmbedded {
		relayTasks, err := outboxTasks(container)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, relayTasks...)
	}

	if cfg.WorkerEmbedded {
		consumer, err := container.Consumer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize order consumer: %w", err)
		}
		tasks = append(tasks, backgroundTask{name: "order consumer", run: consumer.Run})
	}

	return tasks, nil
}
