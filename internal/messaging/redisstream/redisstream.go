// Package redisstream implements the messaging transport on Redis Streams with a
// consumer group. Entries left unacknowledged by a crashed consumer are reclaimed
// with XAUTOCLAIM once they have been idle for ClaimMinIdle.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/allisson/orderflow/internal/messaging"
)

const (
	fieldBody = "body"

	defaultBlock        = 2 * time.Second
	defaultClaimMinIdle = 30 * time.Second
	defaultMaxBodyBytes = 1 << 20
)

// Config configures a Transport.
type Config struct {
	Stream       string
	Group        string
	Consumer     string
	Block        time.Duration
	ClaimMinIdle time.Duration
	// MaxLen caps the stream length with approximate trimming. Zero disables trimming.
	MaxLen       int64
	MaxBodyBytes int
}

// Transport sends to and receives from one stream.
type Transport struct {
	client *redis.Client
	cfg    Config

	mu          sync.Mutex
	groupReady  bool
	lastClaimAt time.Time
}

// New creates a Transport. The consumer group is created lazily on first Receive.
func New(client *redis.Client, cfg Config) *Transport {
	if cfg.Block <= 0 {
		cfg.Block = defaultBlock
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = defaultClaimMinIdle
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Transport{client: client, cfg: cfg}
}

// DeadLetterStream returns the name of the dead-letter stream.
func (t *Transport) DeadLetterStream() string {
	return t.cfg.Stream + ".dlq"
}

// Send appends msg to the stream.
func (t *Transport) Send(ctx context.Context, msg messaging.Message) error {
	if len(msg.Body) > t.cfg.MaxBodyBytes {
		return fmt.Errorf("redis stream %s: %d bytes: %w", t.cfg.Stream, len(msg.Body), messaging.ErrMessageTooLarge)
	}
	return t.add(ctx, t.cfg.Stream, msg.Body, messaging.Headers(msg))
}

// Receive returns the next delivery, preferring entries abandoned by dead consumers.
func (t *Transport) Receive(ctx context.Context) (messaging.Delivery, error) {
	if err := t.ensureGroup(ctx); err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if t.claimDue() {
			d, err := t.claim(ctx)
			if err != nil {
				return nil, err
			}
			if d != nil {
				return d, nil
			}
		}

		d, err := t.read(ctx)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
	}
}

// Close releases the client.
func (t *Transport) Close() error {
	return t.client.Close()
}

func (t *Transport) ensureGroup(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.groupReady {
		return nil
	}

	err := t.client.XGroupCreateMkStream(ctx, t.cfg.Stream, t.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return classify(fmt.Errorf("redis stream %s: create group: %w", t.cfg.Stream, err))
	}
	t.groupReady = true
	return nil
}

func (t *Transport) claimDue() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.lastClaimAt) < t.cfg.ClaimMinIdle/2 {
		return false
	}
	t.lastClaimAt = time.Now()
	return true
}

func (t *Transport) claim(ctx context.Context) (messaging.Delivery, error) {
	messages, _, err := t.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   t.cfg.Stream,
		Group:    t.cfg.Group,
		Consumer: t.cfg.Consumer,
		MinIdle:  t.cfg.ClaimMinIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("redis stream %s: autoclaim: %w", t.cfg.Stream, err))
	}
	if len(messages) == 0 {
		return nil, nil
	}

	entry := messages[0]
	retries := int64(1)
	pending, err := t.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: t.cfg.Stream,
		Group:  t.cfg.Group,
		Start:  entry.ID,
		End:    entry.ID,
		Count:  1,
	}).Result()
	if err == nil && len(pending) == 1 {
		retries = pending[0].RetryCount
	}

	return t.newDelivery(entry, int(retries)), nil
}

func (t *Transport) read(ctx context.Context) (messaging.Delivery, error) {
	streams, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    t.cfg.Group,
		Consumer: t.cfg.Consumer,
		Streams:  []string{t.cfg.Stream, ">"},
		Count:    1,
		Block:    t.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, classify(fmt.Errorf("redis stream %s: read group: %w", t.cfg.Stream, err))
	}

	for _, stream := range streams {
		if len(stream.Messages) > 0 {
			return t.newDelivery(stream.Messages[0], 1), nil
		}
	}
	return nil, nil
}

func (t *Transport) newDelivery(entry redis.XMessage, redeliveries int) *delivery {
	body, headers := fromValues(entry.Values)
	// Abandoned entries are re-added with x-attempt set, so the stream-level retry
	// count only covers deliveries of this entry.
	count := messaging.Attempt(headers) + redeliveries - 1
	return &delivery{
		transport: t,
		entryID:   entry.ID,
		msg:       messaging.FromHeaders(body, headers),
		count:     count,
	}
}

func (t *Transport) add(ctx context.Context, stream string, body []byte, headers map[string]string) error {
	args := &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: toValues(body, headers),
	}
	if t.cfg.MaxLen > 0 && stream == t.cfg.Stream {
		args.MaxLen = t.cfg.MaxLen
		args.Approx = true
	}

	if err := t.client.XAdd(ctx, args).Err(); err != nil {
		return classify(fmt.Errorf("redis stream %s: xadd: %w", stream, err))
	}
	return nil
}

func (t *Transport) ackAndDelete(ctx context.Context, entryID string) error {
	pipe := t.client.TxPipeline()
	pipe.XAck(ctx, t.cfg.Stream, t.cfg.Group, entryID)
	pipe.XDel(ctx, t.cfg.Stream, entryID)
	if _, err := pipe.Exec(ctx); err != nil {
		return classify(fmt.Errorf("redis stream %s: ack %s: %w", t.cfg.Stream, entryID, err))
	}
	return nil
}

type delivery struct {
	transport *Transport
	entryID   string
	msg       messaging.Message
	count     int
}

func (d *delivery) Message() messaging.Message { return d.msg }

func (d *delivery) DeliveryCount() int { return d.count }

func (d *delivery) Ack(ctx context.Context) error {
	return d.transport.ackAndDelete(ctx, d.entryID)
}

// Abandon re-adds the entry with the next attempt number and drops the original.
func (d *delivery) Abandon(ctx context.Context) error {
	headers := messaging.Headers(d.msg)
	headers[messaging.AttrAttempt] = strconv.Itoa(d.count + 1)
	if err := d.transport.add(ctx, d.transport.cfg.Stream, d.msg.Body, headers); err != nil {
		return err
	}
	return d.transport.ackAndDelete(ctx, d.entryID)
}

func (d *delivery) DeadLetter(ctx context.Context, reason, description string) error {
	headers := messaging.Headers(d.msg)
	headers[messaging.AttrAttempt] = strconv.Itoa(d.count)
	headers[messaging.AttrDeadReason] = reason
	headers[messaging.AttrDeadDesc] = description
	if err := d.transport.add(ctx, d.transport.DeadLetterStream(), d.msg.Body, headers); err != nil {
		return err
	}
	return d.transport.ackAndDelete(ctx, d.entryID)
}

func toValues(body []byte, headers map[string]string) map[string]any {
	values := make(map[string]any, len(headers)+1)
	for k, v := range headers {
		values[k] = v
	}
	values[fieldBody] = string(body)
	return values
}

func fromValues(values map[string]any) ([]byte, map[string]string) {
	headers := make(map[string]string, len(values))
	var body []byte
	for k, v := range values {
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case []byte:
			s = string(x)
		default:
			s = fmt.Sprint(x)
		}
		if k == fieldBody {
			body = []byte(s)
			continue
		}
		headers[k] = s
	}
	return body, headers
}

// classify maps Redis server replies onto the messaging sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NOGROUP"):
		return fmt.Errorf("%w: %w", messaging.ErrEntityNotFound, err)
	case strings.Contains(msg, "OOM command not allowed"):
		return fmt.Errorf("%w: %w", messaging.ErrQuotaExceeded, err)
	case strings.Contains(msg, "NOPERM"), strings.Contains(msg, "READONLY"):
		return fmt.Errorf("%w: %w", messaging.ErrEntityDisabled, err)
	}
	return err
}
