package domain

import (
	"sort"
	"sync"

	apperrors "github.com/allisson/orderflow/internal/errors"
)

// ErrUnknownEventType is returned when no decoder is registered for a type tag.
var ErrUnknownEventType = apperrors.Wrap(apperrors.ErrInvalidInput, "unknown event type")

// DecodeFunc turns a serialized payload back into its concrete event.
type DecodeFunc func(payload []byte) (IntegrationEvent, error)

// EventRegistry maps type tags to decode functions. It is filled by explicit Register
// calls during startup and only read afterwards.
type EventRegistry struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

// NewEventRegistry creates an empty registry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{decoders: make(map[string]DecodeFunc)}
}

// Register binds eventType to decode. Registering a tag twice is an error.
func (r *EventRegistry) Register(eventType string, decode DecodeFunc) error {
	if eventType == "" || decode == nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "event type and decoder are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.decoders[eventType]; exists {
		return apperrors.Wrapf(apperrors.ErrConflict, "event type %q already registered", eventType)
	}
	r.decoders[eventType] = decode
	return nil
}

// Decode parses payload with the decoder registered for eventType.
func (r *EventRegistry) Decode(eventType string, payload []byte) (IntegrationEvent, error) {
	r.mu.RLock()
	decode, ok := r.decoders[eventType]
	r.mu.RUnlock()

	if !ok {
		return nil, apperrors.Wrapf(ErrUnknownEventType, "type %q", eventType)
	}
	return decode(payload)
}

// Types returns the registered type tags in sorted order.
func (r *EventRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.decoders))
	for eventType := range r.decoders {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}
