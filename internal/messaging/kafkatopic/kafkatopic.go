// Package kafkatopic implements the messaging transport on a Kafka topic consumed by a
// consumer group. Offsets are committed in order per partition, so a message is only
// committed once every earlier message of its partition was settled.
package kafkatopic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/allisson/orderflow/internal/messaging"
)

// Config configures a Transport.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Transport writes to and reads from one topic.
type Transport struct {
	cfg    Config
	writer *kafka.Writer

	readerOnce sync.Once
	reader     *kafka.Reader

	tracker *offsetTracker
}

// New creates a Transport. The reader joins the consumer group on the first Receive.
func New(cfg Config) *Transport {
	return &Transport{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			MaxAttempts:            5,
			WriteTimeout:           5 * time.Second,
			ReadTimeout:            5 * time.Second,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

// DeadLetterTopic returns the name of the dead-letter topic.
func (t *Transport) DeadLetterTopic() string {
	return t.cfg.Topic + ".dlq"
}

// Send writes msg keyed by its correlation id so one order's messages share a partition.
func (t *Transport) Send(ctx context.Context, msg messaging.Message) error {
	return t.write(ctx, t.cfg.Topic, msg, nil)
}

// Receive fetches the next message without committing it.
func (t *Transport) Receive(ctx context.Context) (messaging.Delivery, error) {
	t.readerOnce.Do(func() {
		t.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  t.cfg.Brokers,
			Topic:    t.cfg.Topic,
			GroupID:  t.cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
		t.tracker = newOffsetTracker(t.reader)
	})

	raw, err := t.reader.FetchMessage(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, io.EOF) {
			return nil, messaging.ErrClosed
		}
		return nil, classify(fmt.Errorf("kafka fetch %s: %w", t.cfg.Topic, err))
	}

	t.tracker.track(raw)
	return newDelivery(t, raw), nil
}

// Close closes the writer and the reader.
func (t *Transport) Close() error {
	errs := []error{t.writer.Close()}
	if t.reader != nil {
		errs = append(errs, t.reader.Close())
	}
	return errors.Join(errs...)
}

func (t *Transport) write(ctx context.Context, topic string, msg messaging.Message, extra map[string]string) error {
	headers := messaging.Headers(msg)
	for k, v := range extra {
		headers[k] = v
	}

	key := msg.CorrelationID
	if key == "" {
		key = msg.ID
	}

	err := t.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   msg.Body,
		Headers: toHeaders(headers),
	})
	if err != nil {
		return classify(fmt.Errorf("kafka write %s: %w", topic, err))
	}
	return nil
}

type delivery struct {
	transport *Transport
	raw       kafka.Message
	msg       messaging.Message
	count     int
}

func newDelivery(t *Transport, raw kafka.Message) *delivery {
	headers := fromHeaders(raw.Headers)
	return &delivery{
		transport: t,
		raw:       raw,
		msg:       messaging.FromHeaders(raw.Value, headers),
		count:     messaging.Attempt(headers),
	}
}

func (d *delivery) Message() messaging.Message { return d.msg }

func (d *delivery) DeliveryCount() int { return d.count }

func (d *delivery) Ack(ctx context.Context) error {
	return d.transport.tracker.settle(ctx, d.raw)
}

// Abandon writes the message back to the topic with the next attempt number and
// settles the original offset.
func (d *delivery) Abandon(ctx context.Context) error {
	extra := map[string]string{messaging.AttrAttempt: strconv.Itoa(d.count + 1)}
	if err := d.transport.write(ctx, d.transport.cfg.Topic, d.msg, extra); err != nil {
		return err
	}
	return d.transport.tracker.settle(ctx, d.raw)
}

func (d *delivery) DeadLetter(ctx context.Context, reason, description string) error {
	extra := map[string]string{
		messaging.AttrAttempt:    strconv.Itoa(d.count),
		messaging.AttrDeadReason: reason,
		messaging.AttrDeadDesc:   description,
	}
	if err := d.transport.write(ctx, d.transport.DeadLetterTopic(), d.msg, extra); err != nil {
		return err
	}
	return d.transport.tracker.settle(ctx, d.raw)
}

// offsetTracker commits the highest contiguous settled offset of each partition.
type offsetTracker struct {
	committer committer

	mu         sync.Mutex
	partitions map[int]*partitionState
}

type partitionState struct {
	inFlight []int64
	settled  map[int64]kafka.Message
}

func newOffsetTracker(c committer) *offsetTracker {
	return &offsetTracker{committer: c, partitions: make(map[int]*partitionState)}
}

func (o *offsetTracker) track(msg kafka.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.partitions[msg.Partition]
	if !ok {
		state = &partitionState{settled: make(map[int64]kafka.Message)}
		o.partitions[msg.Partition] = state
	}
	state.inFlight = append(state.inFlight, msg.Offset)
}

func (o *offsetTracker) settle(ctx context.Context, msg kafka.Message) error {
	o.mu.Lock()
	state, ok := o.partitions[msg.Partition]
	if !ok {
		o.mu.Unlock()
		return o.committer.CommitMessages(ctx, msg)
	}

	state.settled[msg.Offset] = msg

	var (
		commit    kafka.Message
		hasCommit bool
	)
	for len(state.inFlight) > 0 {
		head := state.inFlight[0]
		settledMsg, done := state.settled[head]
		if !done {
			break
		}
		commit, hasCommit = settledMsg, true
		delete(state.settled, head)
		state.inFlight = state.inFlight[1:]
	}
	o.mu.Unlock()

	if !hasCommit {
		return nil
	}
	if err := o.committer.CommitMessages(ctx, commit); err != nil {
		return classify(fmt.Errorf("kafka commit partition %d offset %d: %w", commit.Partition, commit.Offset, err))
	}
	return nil
}

func toHeaders(headers map[string]string) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

func fromHeaders(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

// classify maps Kafka error codes onto the messaging sentinels. Batch write errors
// are classified by their first failure.
func classify(err error) error {
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil {
				return wrapCode(err, e)
			}
		}
		return err
	}
	return wrapCode(err, err)
}

func wrapCode(outer, inner error) error {
	var code kafka.Error
	if !errors.As(inner, &code) {
		return outer
	}

	switch code {
	case kafka.TopicAuthorizationFailed, kafka.ClusterAuthorizationFailed, kafka.InvalidTopic:
		return fmt.Errorf("%w: %w", messaging.ErrEntityDisabled, outer)
	case kafka.UnknownTopicOrPartition:
		return fmt.Errorf("%w: %w", messaging.ErrEntityNotFound, outer)
	case kafka.MessageSizeTooLarge, kafka.RecordListTooLarge:
		return fmt.Errorf("%w: %w", messaging.ErrMessageTooLarge, outer)
	case kafka.PolicyViolation, kafka.ThrottlingQuotaExceeded:
		return fmt.Errorf("%w: %w", messaging.ErrQuotaExceeded, outer)
	}
	return outer
}
