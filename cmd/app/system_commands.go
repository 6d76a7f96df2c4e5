package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/orderflow/cmd/app/commands"
	"github.com/allisson/orderflow/internal/app"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the HTTP API, with the outbox processor and worker when embedded",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "worker",
			Usage: "Consume OrderCreated events and advance orders to Finalized",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunWorker(ctx, version)
			},
		},
		{
			Name:  "relay",
			Usage: "Publish pending outbox records to the message transport",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunRelay(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg, err := commands.LoadConfig()
				if err != nil {
					return err
				}
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
			},
		},
	}
}
