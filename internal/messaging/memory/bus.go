// Package memory provides an in-process message bus. It keeps redelivery counts and
// collects dead-lettered messages so single-binary deployments and tests can run
// without a broker.
package memory

import (
	"context"
	"sync"

	apperrors "github.com/allisson/orderflow/internal/errors"
	"github.com/allisson/orderflow/internal/messaging"
)

// DefaultCapacity is the queue size used when NewBus gets a non-positive capacity.
const DefaultCapacity = 1024

// ErrAlreadySettled is returned when a delivery is settled a second time.
var ErrAlreadySettled = apperrors.New("delivery already settled")

// DeadLetter is a message moved out of the main queue.
type DeadLetter struct {
	Message       messaging.Message
	DeliveryCount int
	Reason        string
	Description   string
}

type envelope struct {
	msg   messaging.Message
	count int
}

// Bus is a buffered in-process queue implementing both messaging.Sender and messaging.Receiver.
// Capacity bounds new sends only. Abandoned deliveries go to an unbounded redelivery list that
// Receive drains first, so settling never waits on a full queue.
type Bus struct {
	queue       chan envelope
	redelivered chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once

	mu           sync.Mutex
	redeliveries []envelope
	deadLetters  []DeadLetter
}

// NewBus creates a Bus holding up to capacity undelivered messages.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		queue:       make(chan envelope, capacity),
		redelivered: make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}
}

// Send enqueues msg. It blocks while the queue is full.
func (b *Bus) Send(ctx context.Context, msg messaging.Message) error {
	return b.enqueue(ctx, envelope{msg: cloneMessage(msg), count: 1})
}

// Receive returns the next delivery, preferring redeliveries over new messages.
func (b *Bus) Receive(ctx context.Context) (messaging.Delivery, error) {
	for {
		if env, ok := b.popRedelivery(); ok {
			return &delivery{bus: b, env: env}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.closed:
			return nil, messaging.ErrClosed
		case env := <-b.queue:
			return &delivery{bus: b, env: env}, nil
		case <-b.redelivered:
		}
	}
}

// Close stops the bus. Pending messages are dropped.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

// Len returns the number of queued messages, redeliveries included.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) + len(b.redeliveries)
}

// DeadLetters returns a copy of the dead-lettered messages.
func (b *Bus) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]DeadLetter, len(b.deadLetters))
	copy(out, b.deadLetters)
	return out
}

func (b *Bus) enqueue(ctx context.Context, env envelope) error {
	select {
	case <-b.closed:
		return messaging.ErrClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.closed:
		return messaging.ErrClosed
	case b.queue <- env:
		return nil
	}
}

func (b *Bus) requeue(env envelope) error {
	select {
	case <-b.closed:
		return messaging.ErrClosed
	default:
	}

	b.mu.Lock()
	b.redeliveries = append(b.redeliveries, env)
	b.mu.Unlock()

	b.wakeReceiver()
	return nil
}

func (b *Bus) popRedelivery() (envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.redeliveries) == 0 {
		return envelope{}, false
	}
	env := b.redeliveries[0]
	b.redeliveries[0] = envelope{}
	b.redeliveries = b.redeliveries[1:]
	if len(b.redeliveries) > 0 {
		b.wakeReceiver()
	}
	return env, true
}

func (b *Bus) wakeReceiver() {
	select {
	case b.redelivered <- struct{}{}:
	default:
	}
}

func (b *Bus) deadLetter(dl DeadLetter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadLetters = append(b.deadLetters, dl)
}

type delivery struct {
	bus     *Bus
	env     envelope
	mu      sync.Mutex
	settled bool
}

func (d *delivery) Message() messaging.Message { return d.env.msg }

func (d *delivery) DeliveryCount() int { return d.env.count }

func (d *delivery) Ack(ctx context.Context) error {
	return d.settle()
}

// Abandon schedules the message for redelivery with its count incremented. It does not block.
func (d *delivery) Abandon(ctx context.Context) error {
	if err := d.settle(); err != nil {
		return err
	}
	return d.bus.requeue(envelope{msg: d.env.msg, count: d.env.count + 1})
}

func (d *delivery) DeadLetter(ctx context.Context, reason, description string) error {
	if err := d.settle(); err != nil {
		return err
	}
	d.bus.deadLetter(DeadLetter{
		Message:       d.env.msg,
		DeliveryCount: d.env.count,
		Reason:        reason,
		Description:   description,
	})
	return nil
}

func (d *delivery) settle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return ErrAlreadySettled
	}
	d.settled = true
	return nil
}

func cloneMessage(msg messaging.Message) messaging.Message {
	out := msg
	if msg.Body != nil {
		out.Body = append([]byte(nil), msg.Body...)
	}
	if msg.Attributes != nil {
		out.Attributes = make(map[string]string, len(msg.Attributes))
		for k, v := range msg.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}
