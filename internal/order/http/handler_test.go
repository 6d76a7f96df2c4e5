package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	orderDomain "github.com/allisson/orderflow/internal/order/domain"
	"github.com/allisson/orderflow/internal/order/http/dto"
	"github.com/allisson/orderflow/internal/order/usecase/mocks"
)

func setupTestHandler(t *testing.T) (*OrderHandler, *mocks.MockOrderUseCase) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	mockUseCase := mocks.NewMockOrderUseCase(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewOrderHandler(mockUseCase, logger), mockUseCase
}

func createTestContext(method, url string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewBuffer(raw)
	}

	c.Request = httptest.NewRequest(method, url, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func newTestOrder(status orderDomain.Status) *orderDomain.Order {
	return &orderDomain.Order{
		ID:           uuid.Must(uuid.NewV7()),
		CustomerName: "Ana",
		Product:      "Pix",
		Amount:       decimal.RequireFromString("150.00"),
		Status:       status,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestOrderHandler_CreateHandler(t *testing.T) {
	t.Run("Success_DefaultsCorrelationToOrderID", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		order := newTestOrder(orderDomain.StatusPending)

		mockUseCase.On("Create", mock.Anything, mock.MatchedBy(func(in *orderDomain.CreateOrderInput) bool {
			return in.CustomerName == "Ana" && in.Product == "Pix" &&
				in.Amount.Equal(decimal.RequireFromString("150")) && in.CorrelationID == ""
		})).Return(order, nil).Once()

		c, w := createTestContext(http.MethodPost, "/v1/orders",
			`{"customer_name":"Ana","product":"Pix","amount":150.00}`)

		handler.CreateHandler(c)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, order.ID.String(), w.Header().Get(CorrelationIDHeader))
		assert.Equal(t, "/v1/orders/"+order.ID.String(), w.Header().Get("Location"))

		var response dto.OrderResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, order.ID.String(), response.ID)
		assert.Equal(t, "Pending", response.Status)
		assert.Equal(t, "150.00", response.Amount)
	})

	t.Run("Success_PropagatesCorrelationHeader", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		order := newTestOrder(orderDomain.StatusPending)

		mockUseCase.On("Create", mock.Anything, mock.MatchedBy(func(in *orderDomain.CreateOrderInput) bool {
			return in.CorrelationID == "req-42"
		})).Return(order, nil).Once()

		c, w := createTestContext(http.MethodPost, "/v1/orders",
			`{"customer_name":"Ana","product":"Pix","amount":"150.00"}`)
		c.Request.Header.Set(CorrelationIDHeader, "req-42")

		handler.CreateHandler(c)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "req-42", w.Header().Get(CorrelationIDHeader))
	})

	t.Run("Error_MalformedJSON", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodPost, "/v1/orders", `{"customer_name":`)

		handler.CreateHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Error_ValidationFailed", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodPost, "/v1/orders",
			`{"customer_name":"","product":"Pix","amount":0}`)

		handler.CreateHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Error_UseCaseFailure", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		mockUseCase.On("Create", mock.Anything, mock.Anything).
			Return(nil, errors.New("database down")).Once()

		c, w := createTestContext(http.MethodPost, "/v1/orders",
			`{"customer_name":"Ana","product":"Pix","amount":10}`)

		handler.CreateHandler(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Empty(t, w.Header().Get(CorrelationIDHeader))
	})
}

func TestOrderHandler_GetHandler(t *testing.T) {
	t.Run("Success_WithHistory", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		order := newTestOrder(orderDomain.StatusFinalized)
		now := time.Now().UTC()
		order.CompletedAt = &now

		details := &orderDomain.OrderDetails{
			Order: order,
			History: []*orderDomain.OrderStatusHistory{
				orderDomain.NewStatusHistory(order.ID, nil, orderDomain.StatusPending, "",
					orderDomain.SourceAPI, "evt", "order created", now),
				orderDomain.NewStatusHistory(order.ID, orderDomain.StatusPending.Ptr(),
					orderDomain.StatusProcessing, "", orderDomain.SourceWorker, "msg", "", now),
				orderDomain.NewStatusHistory(order.ID, orderDomain.StatusProcessing.Ptr(),
					orderDomain.StatusFinalized, "", orderDomain.SourceWorker, "msg", "", now),
			},
		}

		mockUseCase.On("GetDetails", mock.Anything, order.ID).Return(details, nil).Once()

		c, w := createTestContext(http.MethodGet, "/v1/orders/"+order.ID.String(), nil)
		c.Params = gin.Params{{Key: "id", Value: order.ID.String()}}

		handler.GetHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, order.ID.String(), w.Header().Get(CorrelationIDHeader))

		var response dto.OrderDetailsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Finalized", response.Status)
		require.NotNil(t, response.CompletedAt)
		require.Len(t, response.History, 3)
		assert.Equal(t, "Finalized", response.History[2].ToStatus)
	})

	t.Run("Error_InvalidUUID", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodGet, "/v1/orders/not-a-uuid", nil)
		c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

		handler.GetHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		orderID := uuid.Must(uuid.NewV7())

		mockUseCase.On("GetDetails", mock.Anything, orderID).
			Return(nil, orderDomain.ErrOrderNotFound).Once()

		c, w := createTestContext(http.MethodGet, "/v1/orders/"+orderID.String(), nil)
		c.Params = gin.Params{{Key: "id", Value: orderID.String()}}

		handler.GetHandler(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestOrderHandler_ListHandler(t *testing.T) {
	t.Run("Success_DefaultPagination", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		orders := []*orderDomain.Order{
			newTestOrder(orderDomain.StatusPending),
			newTestOrder(orderDomain.StatusFinalized),
		}

		mockUseCase.On("List", mock.Anything, 0, 50).Return(orders, nil).Once()

		c, w := createTestContext(http.MethodGet, "/v1/orders", nil)

		handler.ListHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var response dto.ListOrdersResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Len(t, response.Data, 2)
	})

	t.Run("Success_CustomPagination", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		mockUseCase.On("List", mock.Anything, 10, 5).Return([]*orderDomain.Order{}, nil).Once()

		c, w := createTestContext(http.MethodGet, "/v1/orders?offset=10&limit=5", nil)

		handler.ListHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":[]}`, w.Body.String())
	})

	t.Run("Error_InvalidLimit", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodGet, "/v1/orders?limit=500", nil)

		handler.ListHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}
