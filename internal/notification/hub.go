package notification

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultSubscriberBuffer is the per-subscriber channel size used when Subscribe gets 0.
const DefaultSubscriberBuffer = 64

// Hub broadcasts events to every current subscriber. A subscriber whose buffer is full
// misses the event; publishers never wait.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
	logger      *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[chan Event]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a new subscriber. The returned function unsubscribes and closes
// the channel; it is safe to call more than once.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
		})
	}
}

// Publish sends event to all subscribers without blocking.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.logger.Warn("dropping notification for slow subscriber",
				slog.String("kind", event.Kind),
				slog.String("order_id", event.OrderID.String()),
			)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber. Later subscriptions receive a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}

// OrderCreated publishes a creation event.
func (h *Hub) OrderCreated(_ context.Context, event Event) {
	event.Kind = KindOrderCreated
	h.Publish(event)
}

// OrderStatusChanged publishes a status change event.
func (h *Hub) OrderStatusChanged(_ context.Context, event Event) {
	event.Kind = KindOrderStatusChanged
	h.Publish(event)
}
