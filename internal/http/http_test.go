package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/orderflow/internal/config"
	"github.com/allisson/orderflow/internal/metrics"
	"github.com/allisson/orderflow/internal/notification"
	notificationHTTP "github.com/allisson/orderflow/internal/notification/http"
	orderDomain "github.com/allisson/orderflow/internal/order/domain"
	orderHTTP "github.com/allisson/orderflow/internal/order/http"
	"github.com/allisson/orderflow/internal/order/usecase/mocks"
)

// TestMain sets Gin to test mode for all tests in this package.
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createTestServer() *Server {
	return NewServer(nil, "localhost", 0, discardLogger())
}

// createRoutedServer wires the full router over a mocked order use case.
func createRoutedServer(t *testing.T, cfg *config.Config) (*Server, *mocks.MockOrderUseCase, *notification.Hub) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := discardLogger()
	useCase := mocks.NewMockOrderUseCase(t)
	hub := notification.NewHub(logger)
	t.Cleanup(hub.Close)

	server := createTestServer()
	server.SetupRouter(
		ctx,
		cfg,
		orderHTTP.NewOrderHandler(useCase, logger),
		notificationHTTP.NewNotificationHandler(hub, logger),
		nil,
		"test",
	)
	return server, useCase, hub
}

func TestHealthHandler(t *testing.T) {
	server := createTestServer()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	server.healthHandler(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}

func TestReadinessHandler(t *testing.T) {
	t.Run("NotReady_NilDB", func(t *testing.T) {
		server := createTestServer()

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

		server.readinessHandler(c)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var response map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "not_ready", response["status"])

		components, ok := response["components"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "error", components["database"])
	})

	t.Run("Ready_PingSucceeds", func(t *testing.T) {
		db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		dbMock.ExpectPing()

		server := NewServer(db, "localhost", 0, discardLogger())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

		server.readinessHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"ready"`)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("NotReady_PingFails", func(t *testing.T) {
		db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		dbMock.ExpectPing().WillReturnError(errors.New("connection refused"))

		server := NewServer(db, "localhost", 0, discardLogger())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

		server.readinessHandler(c)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestCustomLoggerMiddleware(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	router := gin.New()
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(logger))
	router.GET("/test", func(c *gin.Context) {
		c.Header("X-Correlation-Id", "corr-1")
		c.JSON(http.StatusOK, gin.H{"message": "test"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test?x=1", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &line))
	assert.Equal(t, "http request", line["msg"])
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "/test", line["path"])
	assert.Equal(t, "x=1", line["query"])
	assert.Equal(t, "corr-1", line["correlation_id"])
	assert.Equal(t, w.Header().Get("X-Request-Id"), line["request_id"])
}

func TestCustomLoggerMiddleware_ServerErrorLogsAtErrorLevel(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	router := gin.New()
	router.Use(CustomLoggerMiddleware(logger))
	router.GET("/boom", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

func TestRecoveryMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CustomLoggerMiddleware(discardLogger()))
	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRouter_Routes(t *testing.T) {
	cfg := &config.Config{RateLimitEnabled: false}

	t.Run("Health", func(t *testing.T) {
		server, _, _ := createRoutedServer(t, cfg)

		w := httptest.NewRecorder()
		server.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	})

	t.Run("CreateOrder", func(t *testing.T) {
		server, useCase, _ := createRoutedServer(t, cfg)
		order := &orderDomain.Order{
			ID:           uuid.Must(uuid.NewV7()),
			CustomerName: "Ana",
			Product:      "Pix",
			Amount:       decimal.RequireFromString("150.00"),
			Status:       orderDomain.StatusPending,
			CreatedAt:    time.Now().UTC(),
		}
		useCase.On("Create", mock.Anything, mock.Anything).Return(order, nil).Once()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/orders",
			strings.NewReader(`{"customer_name":"Ana","product":"Pix","amount":150.00}`))
		req.Header.Set("Content-Type", "application/json")
		server.GetHandler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, order.ID.String(), w.Header().Get("X-Correlation-Id"))
	})

	t.Run("GetOrderNotFound", func(t *testing.T) {
		server, useCase, _ := createRoutedServer(t, cfg)
		orderID := uuid.Must(uuid.NewV7())
		useCase.On("GetDetails", mock.Anything, orderID).Return(nil, orderDomain.ErrOrderNotFound).Once()

		w := httptest.NewRecorder()
		server.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/orders/"+orderID.String(), nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("IngestNotification", func(t *testing.T) {
		server, _, hub := createRoutedServer(t, cfg)
		events, unsubscribe := hub.Subscribe(1)
		defer unsubscribe()

		orderID := uuid.Must(uuid.NewV7())
		body := `{"kind":"OrderStatusChanged","orderId":"` + orderID.String() + `","status":"Processing"}`

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/internal/notifications", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		server.GetHandler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusAccepted, w.Code)
		select {
		case event := <-events:
			assert.Equal(t, orderID, event.OrderID)
		case <-time.After(time.Second):
			t.Fatal("notification not broadcast")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		server, _, _ := createRoutedServer(t, cfg)

		w := httptest.NewRecorder()
		server.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nonexistent", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("NoMetricsEndpoint", func(t *testing.T) {
		server, _, _ := createRoutedServer(t, cfg)

		w := httptest.NewRecorder()
		server.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRouter_RateLimitedCreate(t *testing.T) {
	cfg := &config.Config{
		RateLimitEnabled:        true,
		RateLimitRequestsPerSec: 0.1,
		RateLimitBurst:          1,
	}
	server, useCase, _ := createRoutedServer(t, cfg)
	useCase.On("Create", mock.Anything, mock.Anything).Return(&orderDomain.Order{
		ID:     uuid.Must(uuid.NewV7()),
		Amount: decimal.RequireFromString("1.00"),
		Status: orderDomain.StatusPending,
	}, nil).Once()

	send := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/orders",
			strings.NewReader(`{"customer_name":"Ana","product":"Pix","amount":1}`))
		req.Header.Set("Content-Type", "application/json")
		server.GetHandler().ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestServer_StartWithoutRouter(t *testing.T) {
	server := createTestServer()
	assert.Error(t, server.Start(context.Background()))
}

func TestServer_ShutdownGracefully(t *testing.T) {
	server, _, _ := createRoutedServer(t, &config.Config{})

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(context.Background())
	}()

	time.Sleep(100 * time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, server.Shutdown(shutdownCtx))
	assert.NoError(t, <-errChan)
}

func TestMetricsServer_Endpoints(t *testing.T) {
	provider, err := metrics.NewProvider("test_app")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	metricsServer := NewMetricsServer("localhost", 0, discardLogger(), provider)
	require.NotNil(t, metricsServer)

	w := httptest.NewRecorder()
	metricsServer.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
}

func TestMetricsServer_NilProvider(t *testing.T) {
	metricsServer := NewMetricsServer("localhost", 0, discardLogger(), nil)

	w := httptest.NewRecorder()
	metricsServer.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
