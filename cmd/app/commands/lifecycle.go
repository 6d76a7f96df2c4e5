package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// server is an HTTP listener that blocks in Start until Shutdown is called.
type server interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// backgroundTask is a loop that runs until its context ends.
type backgroundTask struct {
	name string
	run  func(ctx context.Context) error
}

// runBackground runs every task until ctx ends or one of them fails. A task stopping
// because of cancellation is a clean exit. With no tasks it waits for ctx.
func runBackground(ctx context.Context, logger *slog.Logger, tasks ...backgroundTask) error {
	if len(tasks) == 0 {
		<-ctx.Done()
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error {
			logger.Info("starting background task", slog.String("task", task.name))

			err := task.run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", task.name, err)
			}

			logger.Info("background task stopped", slog.String("task", task.name))
			return nil
		})
	}
	return g.Wait()
}

// serve starts servers and tasks, then waits for ctx to end or for any of them to
// fail. Servers are shut down within shutdownTimeout and tasks are awaited for the
// same period.
func serve(
	ctx context.Context,
	logger *slog.Logger,
	shutdownTimeout time.Duration,
	servers []server,
	tasks []backgroundTask,
) error {
	taskCtx, cancelTasks := context.WithCancel(ctx)
	defer cancelTasks()

	serverErr := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			if err := srv.Start(ctx); err != nil {
				serverErr <- err
			}
		}()
	}

	tasksDone := make(chan error, 1)
	go func() {
		tasksDone <- runBackground(taskCtx, logger, tasks...)
	}()

	var (
		errs          []error
		tasksFinished bool
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error, initiating shutdown", slog.Any("error", err))
		errs = append(errs, err)
	case err := <-tasksDone:
		tasksFinished = true
		if err != nil {
			logger.Error("background task error, initiating shutdown", slog.Any("error", err))
			errs = append(errs, err)
		}
	}

	cancelTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if !tasksFinished {
		select {
		case err := <-tasksDone:
			if err != nil {
				errs = append(errs, err)
			}
		case <-shutdownCtx.Done():
			errs = append(errs, fmt.Errorf("background tasks did not stop: %w", shutdownCtx.Err()))
		}
	}

	return errors.Join(errs...)
}
