package notification

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPNotifier(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("PostsEvent", func(t *testing.T) {
		received := make(chan Event, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var event Event
			require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
			received <- event
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		orderID := uuid.New()
		n := NewHTTPNotifier(server.URL, time.Second, logger)
		n.OrderStatusChanged(context.Background(), Event{OrderID: orderID, Status: "Finalized"})

		event := <-received
		assert.Equal(t, KindOrderStatusChanged, event.Kind)
		assert.Equal(t, orderID, event.OrderID)
		assert.Equal(t, "Finalized", event.Status)
	})

	t.Run("FailuresAreSwallowed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		n := NewHTTPNotifier(server.URL, time.Second, logger)
		assert.Error(t, n.post(context.Background(), Event{Kind: KindOrderCreated}))

		n.OrderCreated(context.Background(), Event{})
	})

	t.Run("UnreachableEndpoint", func(t *testing.T) {
		n := NewHTTPNotifier("http://127.0.0.1:1/internal/notifications", 100*time.Millisecond, logger)
		assert.Error(t, n.post(context.Background(), Event{}))
	})

	t.Run("DefaultTimeout", func(t *testing.T) {
		n := NewHTTPNotifier("http://localhost", 0, logger)
		assert.Equal(t, DefaultHTTPTimeout, n.client.Timeout)
	})
}
