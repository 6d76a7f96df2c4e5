package domain

import (
	"github.com/allisson/orderflow/internal/errors"
)

// Order errors.
var (
	// ErrOrderNotFound indicates an order with the specified ID was not found.
	ErrOrderNotFound = errors.Wrap(errors.ErrNotFound, "order not found")

	// ErrInvalidTransition indicates a status change that the state machine does not allow.
	ErrInvalidTransition = errors.Wrap(errors.ErrInvalidInput, "invalid status transition")

	// ErrInvalidPayload indicates an inbound event body without a usable order id.
	ErrInvalidPayload = errors.Wrap(errors.ErrInvalidInput, "invalid payload")
)
