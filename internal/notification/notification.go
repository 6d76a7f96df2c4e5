// Package notification fans order lifecycle changes out to interested clients. The API
// process owns a Hub that streams events to browsers; the worker process reaches that Hub
// through an HTTPNotifier. Notifications are best effort and never fail the caller.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event kinds.
const (
	KindOrderCreated       = "OrderCreated"
	KindOrderStatusChanged = "OrderStatusChanged"
)

// Event describes one order change.
type Event struct {
	Kind          string    `json:"kind"`
	OrderID       uuid.UUID `json:"orderId"`
	Status        string    `json:"status"`
	CorrelationID string    `json:"correlationId,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Notifier delivers order events. Implementations must not block for long and must
// swallow their own failures.
type Notifier interface {
	OrderCreated(ctx context.Context, event Event)
	OrderStatusChanged(ctx context.Context, event Event)
}

// NoopNotifier discards every event.
type NoopNotifier struct{}

func (NoopNotifier) OrderCreated(context.Context, Event)       {}
func (NoopNotifier) OrderStatusChanged(context.Context, Event) {}
