// Package gcppubsub implements the messaging transport on Google Cloud Pub/Sub. Retries
// are republished with an x-attempt attribute so delivery counts do not depend on a
// subscription dead-letter policy.
package gcppubsub

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/allisson/orderflow/internal/messaging"
)

const defaultMaxOutstanding = 16

// Config configures a Transport.
type Config struct {
	ProjectID      string
	Topic          string
	Subscription   string
	MaxOutstanding int
}

// Transport publishes to one topic and receives from one subscription.
type Transport struct {
	cfg        Config
	client     *pubsub.Client
	topic      *pubsub.Topic
	deadLetter *pubsub.Topic
	sub        *pubsub.Subscription

	startOnce  sync.Once
	deliveries chan *pubsub.Message
	cancel     context.CancelFunc
	done       chan struct{}

	mu      sync.Mutex
	recvErr error
}

// Dial creates a Pub/Sub client for cfg.ProjectID and wraps it in a Transport.
func Dial(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Transport, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return NewFromClient(client, cfg), nil
}

// NewFromClient wraps an existing client. The Transport owns the client and closes it.
func NewFromClient(client *pubsub.Client, cfg Config) *Transport {
	if cfg.MaxOutstanding <= 0 {
		cfg.MaxOutstanding = defaultMaxOutstanding
	}

	t := &Transport{
		cfg:        cfg,
		client:     client,
		topic:      client.Topic(cfg.Topic),
		deadLetter: client.Topic(DeadLetterTopic(cfg.Topic)),
		deliveries: make(chan *pubsub.Message),
		done:       make(chan struct{}),
	}
	if cfg.Subscription != "" {
		t.sub = client.Subscription(cfg.Subscription)
		t.sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	}
	return t
}

// DeadLetterTopic returns the dead-letter topic id for topic.
func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}

// Send publishes msg and waits for the server-assigned id.
func (t *Transport) Send(ctx context.Context, msg messaging.Message) error {
	return t.publish(ctx, t.topic, msg, nil)
}

// Receive returns the next delivery. Streaming pull starts on the first call.
func (t *Transport) Receive(ctx context.Context) (messaging.Delivery, error) {
	if t.sub == nil {
		return nil, fmt.Errorf("pubsub: no subscription configured: %w", messaging.ErrEntityNotFound)
	}
	t.startOnce.Do(t.startReceiving)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m := <-t.deliveries:
		return newDelivery(t, m), nil
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return nil, t.recvErr
	}
}

// Close stops receiving, flushes the publishers and closes the client.
func (t *Transport) Close() error {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-t.done
	}
	t.topic.Stop()
	t.deadLetter.Stop()
	return t.client.Close()
}

func (t *Transport) startReceiving() {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	go func() {
		defer close(t.done)

		err := t.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
			select {
			case t.deliveries <- m:
			case <-ctx.Done():
				m.Nack()
			}
		})

		t.mu.Lock()
		defer t.mu.Unlock()
		if err != nil {
			t.recvErr = classify(fmt.Errorf("pubsub receive %s: %w", t.cfg.Subscription, err))
			return
		}
		t.recvErr = messaging.ErrClosed
	}()
}

func (t *Transport) publish(
	ctx context.Context,
	topic *pubsub.Topic,
	msg messaging.Message,
	extra map[string]string,
) error {
	attrs := messaging.Headers(msg)
	for k, v := range extra {
		attrs[k] = v
	}

	result := topic.Publish(ctx, &pubsub.Message{
		Data:       msg.Body,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return classify(fmt.Errorf("pubsub publish %s: %w", topic.ID(), err))
	}
	return nil
}

type delivery struct {
	transport *Transport
	raw       *pubsub.Message
	msg       messaging.Message
	count     int
}

func newDelivery(t *Transport, raw *pubsub.Message) *delivery {
	count := messaging.Attempt(raw.Attributes)
	if raw.DeliveryAttempt != nil && *raw.DeliveryAttempt > count {
		count = *raw.DeliveryAttempt
	}

	msg := messaging.FromHeaders(raw.Data, raw.Attributes)
	if msg.ID == "" {
		msg.ID = raw.ID
	}

	return &delivery{transport: t, raw: raw, msg: msg, count: count}
}

func (d *delivery) Message() messaging.Message { return d.msg }

func (d *delivery) DeliveryCount() int { return d.count }

func (d *delivery) Ack(ctx context.Context) error {
	d.raw.Ack()
	return nil
}

// Abandon republishes the message with the next attempt number, then acks the original.
func (d *delivery) Abandon(ctx context.Context) error {
	extra := map[string]string{messaging.AttrAttempt: strconv.Itoa(d.count + 1)}
	if err := d.transport.publish(ctx, d.transport.topic, d.msg, extra); err != nil {
		d.raw.Nack()
		return err
	}
	d.raw.Ack()
	return nil
}

func (d *delivery) DeadLetter(ctx context.Context, reason, description string) error {
	extra := map[string]string{
		messaging.AttrAttempt:    strconv.Itoa(d.count),
		messaging.AttrDeadReason: reason,
		messaging.AttrDeadDesc:   description,
	}
	if err := d.transport.publish(ctx, d.transport.deadLetter, d.msg, extra); err != nil {
		d.raw.Nack()
		return err
	}
	d.raw.Ack()
	return nil
}

// classify maps gRPC status codes and client-side size limits onto the messaging sentinels.
func classify(err error) error {
	if errors.Is(err, pubsub.ErrOversizedMessage) {
		return fmt.Errorf("%w: %w", messaging.ErrMessageTooLarge, err)
	}

	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %w", messaging.ErrEntityNotFound, err)
	case codes.PermissionDenied, codes.FailedPrecondition:
		return fmt.Errorf("%w: %w", messaging.ErrEntityDisabled, err)
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %w", messaging.ErrQuotaExceeded, err)
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %w", messaging.ErrMessageTooLarge, err)
	}
	return err
}
