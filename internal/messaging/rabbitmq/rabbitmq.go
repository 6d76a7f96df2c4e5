// Package rabbitmq implements the messaging transport on a durable RabbitMQ queue.
// Publishes wait for broker confirms. Retries are republished with an x-attempt header
// and rejected messages are routed to "<queue>.dlq".
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/allisson/orderflow/internal/messaging"
)

const defaultPrefetch = 16

// Config configures a Transport.
type Config struct {
	URL         string
	Queue       string
	Prefetch    int
	ConsumerTag string
}

// Transport publishes to and consumes from one queue.
type Transport struct {
	cfg  Config
	conn *amqp.Connection

	pubMu sync.Mutex
	pubCh *amqp.Channel

	consumeMu  sync.Mutex
	consumeCh  *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// Dial connects, opens a confirm-mode publishing channel and declares the queue and
// its dead-letter queue.
func Dial(cfg Config) (*Transport, error) {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaultPrefetch
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	for _, name := range []string{cfg.Queue, deadLetterQueue(cfg.Queue)} {
		if _, err := ch.QueueDeclare(
			name,  // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			_ = conn.Close()
			return nil, classify(fmt.Errorf("failed to declare queue %s: %w", name, err))
		}
	}

	return &Transport{cfg: cfg, conn: conn, pubCh: ch}, nil
}

// Send publishes msg as a persistent message and waits for the broker confirm.
func (t *Transport) Send(ctx context.Context, msg messaging.Message) error {
	return t.publish(ctx, t.cfg.Queue, toPublishing(msg, nil))
}

// Receive returns the next delivery. Consuming starts on the first call.
func (t *Transport) Receive(ctx context.Context) (messaging.Delivery, error) {
	deliveries, err := t.ensureConsumer()
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			return nil, messaging.ErrClosed
		}
		return newDelivery(t, d), nil
	}
}

// Close closes the channels and the connection.
func (t *Transport) Close() error {
	var errs []error

	t.consumeMu.Lock()
	if t.consumeCh != nil {
		errs = append(errs, t.consumeCh.Close())
	}
	t.consumeMu.Unlock()

	t.pubMu.Lock()
	errs = append(errs, t.pubCh.Close())
	t.pubMu.Unlock()

	errs = append(errs, t.conn.Close())
	return errors.Join(ignoreClosed(errs)...)
}

func (t *Transport) ensureConsumer() (<-chan amqp.Delivery, error) {
	t.consumeMu.Lock()
	defer t.consumeMu.Unlock()

	if t.deliveries != nil {
		return t.deliveries, nil
	}

	ch, err := t.conn.Channel()
	if err != nil {
		return nil, classify(fmt.Errorf("failed to open consume channel: %w", err))
	}

	if err := ch.Qos(t.cfg.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, classify(fmt.Errorf("failed to set qos: %w", err))
	}

	deliveries, err := ch.Consume(
		t.cfg.Queue,       // queue
		t.cfg.ConsumerTag, // consumer
		false,             // auto-ack
		false,             // exclusive
		false,             // no-local
		false,             // no-wait
		nil,               // args
	)
	if err != nil {
		_ = ch.Close()
		return nil, classify(fmt.Errorf("failed to consume queue %s: %w", t.cfg.Queue, err))
	}

	t.consumeCh = ch
	t.deliveries = deliveries
	return deliveries, nil
}

func (t *Transport) publish(ctx context.Context, queue string, publishing amqp.Publishing) error {
	t.pubMu.Lock()
	confirmation, err := t.pubCh.PublishWithDeferredConfirmWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		publishing,
	)
	t.pubMu.Unlock()
	if err != nil {
		return classify(fmt.Errorf("failed to publish message: %w", err))
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for publish confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker nacked message %s", publishing.MessageId)
	}
	return nil
}

type delivery struct {
	transport *Transport
	raw       amqp.Delivery
	msg       messaging.Message
	count     int
}

func newDelivery(t *Transport, raw amqp.Delivery) *delivery {
	headers := fromTable(raw.Headers)
	count := messaging.Attempt(headers)
	if raw.Redelivered {
		// The broker requeued it after a consumer died without settling.
		count++
	}

	msg := messaging.FromHeaders(raw.Body, headers)
	if raw.MessageId != "" {
		msg.ID = raw.MessageId
	}
	if raw.CorrelationId != "" {
		msg.CorrelationID = raw.CorrelationId
	}
	if raw.Type != "" {
		msg.Type = raw.Type
	}

	return &delivery{transport: t, raw: raw, msg: msg, count: count}
}

func (d *delivery) Message() messaging.Message { return d.msg }

func (d *delivery) DeliveryCount() int { return d.count }

func (d *delivery) Ack(ctx context.Context) error {
	return d.raw.Ack(false)
}

// Abandon republishes the message with the next attempt number, then acks the original.
func (d *delivery) Abandon(ctx context.Context) error {
	extra := map[string]string{messaging.AttrAttempt: strconv.Itoa(d.count + 1)}
	if err := d.transport.publish(ctx, d.transport.cfg.Queue, toPublishing(d.msg, extra)); err != nil {
		return err
	}
	return d.raw.Ack(false)
}

func (d *delivery) DeadLetter(ctx context.Context, reason, description string) error {
	extra := map[string]string{
		messaging.AttrAttempt:    strconv.Itoa(d.count),
		messaging.AttrDeadReason: reason,
		messaging.AttrDeadDesc:   description,
	}
	queue := deadLetterQueue(d.transport.cfg.Queue)
	if err := d.transport.publish(ctx, queue, toPublishing(d.msg, extra)); err != nil {
		return err
	}
	return d.raw.Ack(false)
}

func deadLetterQueue(queue string) string {
	return queue + ".dlq"
}

func toPublishing(msg messaging.Message, extra map[string]string) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range msg.Attributes {
		headers[k] = v
	}
	for k, v := range extra {
		headers[k] = v
	}

	return amqp.Publishing{
		Headers:       headers,
		ContentType:   messaging.ContentTypeJSON,
		DeliveryMode:  amqp.Persistent,
		MessageId:     msg.ID,
		CorrelationId: msg.CorrelationID,
		Type:          msg.Type,
		Body:          msg.Body,
	}
}

func fromTable(table amqp.Table) map[string]string {
	headers := make(map[string]string, len(table))
	for k, v := range table {
		switch x := v.(type) {
		case string:
			headers[k] = x
		case []byte:
			headers[k] = string(x)
		default:
			headers[k] = fmt.Sprint(x)
		}
	}
	return headers
}

// classify maps AMQP reply codes onto the messaging sentinels.
func classify(err error) error {
	var amqpErr *amqp.Error
	if !errors.As(err, &amqpErr) {
		return err
	}

	switch amqpErr.Code {
	case amqp.AccessRefused:
		return fmt.Errorf("%w: %w", messaging.ErrEntityDisabled, err)
	case amqp.NotFound:
		return fmt.Errorf("%w: %w", messaging.ErrEntityNotFound, err)
	case amqp.ContentTooLarge:
		return fmt.Errorf("%w: %w", messaging.ErrMessageTooLarge, err)
	case amqp.ResourceError:
		return fmt.Errorf("%w: %w", messaging.ErrQuotaExceeded, err)
	}
	return err
}

func ignoreClosed(errs []error) []error {
	out := errs[:0]
	for _, err := range errs {
		if err != nil && !errors.Is(err, amqp.ErrClosed) {
			out = append(out, err)
		}
	}
	return out
}
