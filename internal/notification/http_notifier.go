package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultHTTPTimeout bounds one notification request.
const DefaultHTTPTimeout = 2 * time.Second

// HTTPNotifier posts events as JSON to the API's notification ingest endpoint.
type HTTPNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPNotifier creates a notifier that posts to url. A zero timeout uses DefaultHTTPTimeout.
func NewHTTPNotifier(url string, timeout time.Duration, logger *slog.Logger) *HTTPNotifier {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// OrderCreated posts a creation event.
func (n *HTTPNotifier) OrderCreated(ctx context.Context, event Event) {
	event.Kind = KindOrderCreated
	n.notify(ctx, event)
}

// OrderStatusChanged posts a status change event.
func (n *HTTPNotifier) OrderStatusChanged(ctx context.Context, event Event) {
	event.Kind = KindOrderStatusChanged
	n.notify(ctx, event)
}

func (n *HTTPNotifier) notify(ctx context.Context, event Event) {
	if err := n.post(ctx, event); err != nil {
		n.logger.WarnContext(ctx, "failed to send order notification",
			slog.String("kind", event.Kind),
			slog.String("order_id", event.OrderID.String()),
			slog.Any("error", err),
		)
	}
}

func (n *HTTPNotifier) post(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// Detached from caller cancellation; the client timeout still bounds the request.
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	return nil
}
