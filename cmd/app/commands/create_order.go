package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/allisson/orderflow/internal/order/http/dto"
	orderUseCase "github.com/allisson/orderflow/internal/order/usecase"
	customValidation "github.com/allisson/orderflow/internal/validation"
)

// CreateOrderParams holds the flags of the create-order command.
type CreateOrderParams struct {
	CustomerName  string
	Product       string
	Amount        string
	CorrelationID string
	Format        string
}

// RunCreateOrder places an order through the same use case as the API, so the
// OrderCreated event is staged in the outbox like any other order.
//
// Requirements: Database must be migrated and accessible.
func RunCreateOrder(
	ctx context.Context,
	useCase orderUseCase.OrderUseCase,
	logger *slog.Logger,
	writer io.Writer,
	params CreateOrderParams,
) error {
	if err := validateFormat(params.Format); err != nil {
		return err
	}

	amount, err := decimal.NewFromString(params.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", params.Amount, err)
	}

	req := dto.CreateOrderRequest{
		CustomerName: params.CustomerName,
		Product:      params.Product,
		Amount:       amount,
	}
	if err := req.Validate(); err != nil {
		return customValidation.WrapValidationError(err)
	}

	logger.Info("creating order",
		slog.String("customer_name", req.CustomerName),
		slog.String("product", req.Product),
	)

	order, err := useCase.Create(ctx, req.ToInput(params.CorrelationID))
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	response := dto.MapOrderToResponse(order)
	if params.Format == "json" {
		if err := writeJSON(writer, response); err != nil {
			return err
		}
	} else {
		outputOrderText(response, writer)
	}

	logger.Info("order created successfully",
		slog.String("order_id", response.ID),
		slog.String("status", response.Status),
	)

	return nil
}

// outputOrderText prints a human-readable summary of the created order.
func outputOrderText(order dto.OrderResponse, writer io.Writer) {
	_, _ = fmt.Fprintln(writer, "\nOrder created successfully!")
	_, _ = fmt.Fprintf(writer, "Order ID: %s\n", order.ID)
	_, _ = fmt.Fprintf(writer, "Customer: %s\n", order.CustomerName)
	_, _ = fmt.Fprintf(writer, "Product: %s\n", order.Product)
	_, _ = fmt.Fprintf(writer, "Amount: %s\n", order.Amount)
	_, _ = fmt.Fprintf(writer, "Status: %s\n", order.Status)
}
