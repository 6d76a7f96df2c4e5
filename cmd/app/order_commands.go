package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/orderflow/cmd/app/commands"
	"github.com/allisson/orderflow/internal/app"
)

func getOrderCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-order",
			Usage: "Place an order and stage its OrderCreated event",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "customer-name",
					Aliases:  []string{"c"},
					Required: true,
					Usage:    "Customer name",
				},
				&cli.StringFlag{
					Name:     "product",
					Aliases:  []string{"p"},
					Required: true,
					Usage:    "Product name",
				},
				&cli.StringFlag{
					Name:     "amount",
					Aliases:  []string{"a"},
					Required: true,
					Usage:    "Positive amount with at most two decimal places (e.g., 150.00)",
				},
				&cli.StringFlag{
					Name:  "correlation-id",
					Usage: "Correlation id propagated to every record of the order (defaults to the order id)",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg, err := commands.LoadConfig()
				if err != nil {
					return err
				}
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				orderUseCase, err := container.OrderUseCase()
				if err != nil {
					return err
				}

				return commands.RunCreateOrder(
					ctx,
					orderUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					commands.CreateOrderParams{
						CustomerName:  cmd.String("customer-name"),
						Product:       cmd.String("product"),
						Amount:        cmd.String("amount"),
						CorrelationID: cmd.String("correlation-id"),
						Format:        cmd.String("format"),
					},
				)
			},
		},
	}
}
