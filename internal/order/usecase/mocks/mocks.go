// Package mocks provides testify mocks for the order use case interfaces.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	orderDomain "github.com/allisson/orderflow/internal/order/domain"
)

// MockOrderUseCase is a mock implementation of usecase.OrderUseCase.
type MockOrderUseCase struct {
	mock.Mock
}

// NewMockOrderUseCase creates a MockOrderUseCase whose expectations are asserted on test cleanup.
func NewMockOrderUseCase(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockOrderUseCase {
	m := &MockOrderUseCase{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockOrderUseCase) Create(
	ctx context.Context,
	input *orderDomain.CreateOrderInput,
) (*orderDomain.Order, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orderDomain.Order), args.Error(1)
}

func (m *MockOrderUseCase) Get(ctx context.Context, orderID uuid.UUID) (*orderDomain.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orderDomain.Order), args.Error(1)
}

func (m *MockOrderUseCase) List(ctx context.Context, offset, limit int) ([]*orderDomain.Order, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*orderDomain.Order), args.Error(1)
}

func (m *MockOrderUseCase) GetDetails(
	ctx context.Context,
	orderID uuid.UUID,
) (*orderDomain.OrderDetails, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orderDomain.OrderDetails), args.Error(1)
}
