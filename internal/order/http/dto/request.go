// Package dto provides data transfer objects for order HTTP requests and responses.
package dto

import (
	validation "github.com/jellydator/validation"
	"github.com/shopspring/decimal"

	orderDomain "github.com/allisson/orderflow/internal/order/domain"
	customValidation "github.com/allisson/orderflow/internal/validation"
)

// CreateOrderRequest contains the parameters for placing an order.
type CreateOrderRequest struct {
	CustomerName string          `json:"customer_name"`
	Product      string          `json:"product"`
	Amount       decimal.Decimal `json:"amount"`
}

// Validate checks if the create order request is valid.
func (r *CreateOrderRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.CustomerName,
			validation.Required,
			customValidation.NotBlank,
			validation.RuneLength(1, 200),
		),
		validation.Field(&r.Product,
			validation.Required,
			customValidation.NotBlank,
			validation.RuneLength(1, 200),
		),
		validation.Field(&r.Amount,
			customValidation.PositiveAmount,
			customValidation.MaxDecimalPlaces(2),
		),
	)
}

// ToInput converts the request into the use case input.
func (r *CreateOrderRequest) ToInput(correlationID string) *orderDomain.CreateOrderInput {
	return &orderDomain.CreateOrderInput{
		CustomerName:  r.CustomerName,
		Product:       r.Product,
		Amount:        r.Amount,
		CorrelationID: correlationID,
	}
}
