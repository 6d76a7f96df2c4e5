package app

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/allisson/orderflow/internal/messaging"
	"github.com/allisson/orderflow/internal/messaging/gcppubsub"
	"github.com/allisson/orderflow/internal/messaging/kafkatopic"
	"github.com/allisson/orderflow/internal/messaging/memory"
	"github.com/allisson/orderflow/internal/messaging/rabbitmq"
	"github.com/allisson/orderflow/internal/messaging/redisstream"
)

// Messaging drivers accepted by MESSAGING_DRIVER.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverRabbitMQ = "rabbitmq"
	DriverKafka    = "kafka"
	DriverPubSub   = "pubsub"
)

// Transport returns the broker connection used by both the outbox publisher and the worker.
// The memory driver only connects components running in the same process.
func (c *Container) Transport() (messaging.Transport, error) {
	return lazy(c, &c.transportInit, "transport", &c.transport, c.initTransport)
}

func (c *Container) initTransport() (messaging.Transport, error) {
	topic := c.config.MessagingTopic

	switch c.config.MessagingDriver {
	case DriverMemory:
		return memory.NewBus(memory.DefaultCapacity), nil

	case DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.config.RedisAddr,
			Password: c.config.RedisPassword,
			DB:       c.config.RedisDB,
		})
		return redisstream.New(client, redisstream.Config{
			Stream:   topic,
			Group:    c.config.RedisGroup,
			Consumer: consumerName(),
		}), nil

	case DriverRabbitMQ:
		transport, err := rabbitmq.Dial(rabbitmq.Config{
			URL:         c.config.RabbitMQURL,
			Queue:       topic,
			Prefetch:    c.config.WorkerConcurrency,
			ConsumerTag: consumerName(),
		})
		if err != nil {
			return nil, err
		}
		return transport, nil

	case DriverKafka:
		return kafkatopic.New(kafkatopic.Config{
			Brokers: c.config.KafkaBrokerList(),
			Topic:   topic,
			GroupID: c.config.KafkaGroupID,
		}), nil

	case DriverPubSub:
		if c.config.PubSubProjectID == "" {
			return nil, fmt.Errorf("PUBSUB_PROJECT_ID is required for the pubsub driver")
		}
		transport, err := gcppubsub.Dial(context.Background(), gcppubsub.Config{
			ProjectID:      c.config.PubSubProjectID,
			Topic:          topic,
			Subscription:   c.config.PubSubSubscription,
			MaxOutstanding: c.config.WorkerConcurrency,
		})
		if err != nil {
			return nil, err
		}
		return transport, nil

	default:
		return nil, fmt.Errorf("unsupported messaging driver: %s", c.config.MessagingDriver)
	}
}

// consumerName identifies this process within a consumer group.
func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "orderflow"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
