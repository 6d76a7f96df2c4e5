// Package messaging defines the transport boundary between the outbox processor, the
// order worker and a message broker. Concrete brokers live in the subpackages.
package messaging

import (
	"context"
	"strconv"

	apperrors "github.com/allisson/orderflow/internal/errors"
)

// ContentTypeJSON is the content type of every message body.
const ContentTypeJSON = "application/json"

// MaxMessageIDLength is the longest message id, in bytes, the processed-message ledger
// and the status history can store.
const MaxMessageIDLength = 200

// Attribute keys carried next to the body by every transport.
const (
	AttrMessageID     = "message-id"
	AttrType          = "type"
	AttrCorrelationID = "correlation-id"
	AttrContentType   = "content-type"
	AttrAttempt       = "x-attempt"
	AttrDeadReason    = "x-dead-letter-reason"
	AttrDeadDesc      = "x-dead-letter-description"
)

// Broker conditions that retrying will not fix. Transports wrap their native errors
// with these so callers can classify failures with errors.Is.
var (
	ErrEntityDisabled  = apperrors.New("messaging entity disabled")
	ErrEntityNotFound  = apperrors.New("messaging entity not found")
	ErrMessageTooLarge = apperrors.New("message too large")
	ErrQuotaExceeded   = apperrors.New("messaging quota exceeded")
)

// ErrClosed is returned by Receive after Close or when the transport shut down.
var ErrClosed = apperrors.New("messaging transport closed")

// Message is one broker message.
type Message struct {
	ID            string
	Type          string
	CorrelationID string
	Body          []byte
	Attributes    map[string]string
}

// Sender hands messages to the broker. Send returns once the broker accepted the message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Receiver pulls deliveries from the broker. Receive blocks until a delivery is
// available or ctx is done.
type Receiver interface {
	Receive(ctx context.Context) (Delivery, error)
	Close() error
}

// Transport is a broker connection that both sends and receives.
type Transport interface {
	Sender
	Receiver
}

// Delivery is a received message that must be settled exactly once with Ack,
// Abandon or DeadLetter.
type Delivery interface {
	Message() Message
	// DeliveryCount starts at 1 for the first delivery.
	DeliveryCount() int
	Ack(ctx context.Context) error
	Abandon(ctx context.Context) error
	DeadLetter(ctx context.Context, reason, description string) error
}

// IsPermanent reports whether err is one of the non-retryable broker conditions.
func IsPermanent(err error) bool {
	return apperrors.Is(err, ErrEntityDisabled) ||
		apperrors.Is(err, ErrEntityNotFound) ||
		apperrors.Is(err, ErrMessageTooLarge) ||
		apperrors.Is(err, ErrQuotaExceeded)
}

// Headers returns the attributes of msg merged with its id, type, correlation id and
// content type. Transports without first-class fields for those carry them here.
func Headers(msg Message) map[string]string {
	headers := make(map[string]string, len(msg.Attributes)+4)
	for k, v := range msg.Attributes {
		headers[k] = v
	}
	headers[AttrMessageID] = msg.ID
	headers[AttrContentType] = ContentTypeJSON
	if msg.Type != "" {
		headers[AttrType] = msg.Type
	}
	if msg.CorrelationID != "" {
		headers[AttrCorrelationID] = msg.CorrelationID
	}
	return headers
}

// FromHeaders rebuilds a Message from a body and headers produced by Headers.
func FromHeaders(body []byte, headers map[string]string) Message {
	attrs := make(map[string]string, len(headers))
	for k, v := range headers {
		attrs[k] = v
	}
	return Message{
		ID:            headers[AttrMessageID],
		Type:          headers[AttrType],
		CorrelationID: headers[AttrCorrelationID],
		Body:          body,
		Attributes:    attrs,
	}
}

// Attempt parses the x-attempt header. Missing or malformed headers count as the first attempt.
func Attempt(headers map[string]string) int {
	attempt, err := strconv.Atoi(headers[AttrAttempt])
	if err != nil || attempt < 1 {
		return 1
	}
	return attempt
}
