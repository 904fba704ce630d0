package bus

import (
	"context"
	"fmt"
	"log/slog"

	"push-gateway/internal/models"

	"github.com/redis/go-redis/v9"
)

// deliveryBuffer bounds in-flight decoded events per connection; the pump
// drops the connection rather than block the shared reader forever.
const deliveryBuffer = 64

// RedisBus implements Bus on redis pub/sub. One PubSub per connection keeps
// topic bookkeeping server-side and delivery isolated per flow.
type RedisBus struct {
	client *redis.Client
}

var _ Bus = (*RedisBus)(nil)

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, event models.Event) error {
	data, err := models.EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", topic, err)
	}
	if err := b.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBus) Open(ctx context.Context, connectionID string) (Connection, error) {
	pubsub := b.client.Subscribe(ctx)
	conn := &redisConnection{
		id:         connectionID,
		pubsub:     pubsub,
		deliveries: make(chan Delivery, deliveryBuffer),
	}
	go conn.pump()
	return conn, nil
}

type redisConnection struct {
	id         string
	pubsub     *redis.PubSub
	deliveries chan Delivery
}

func (c *redisConnection) Subscribe(ctx context.Context, topic string) error {
	if err := c.pubsub.Subscribe(ctx, topic); err != nil {
		return fmt.Errorf("subscribe %s to %s: %w", c.id, topic, err)
	}
	return nil
}

func (c *redisConnection) Unsubscribe(ctx context.Context, topic string) error {
	if err := c.pubsub.Unsubscribe(ctx, topic); err != nil {
		return fmt.Errorf("unsubscribe %s from %s: %w", c.id, topic, err)
	}
	return nil
}

func (c *redisConnection) Deliveries() <-chan Delivery {
	return c.deliveries
}

func (c *redisConnection) Close() error {
	return c.pubsub.Close()
}

// pump decodes raw pub/sub messages into deliveries until the PubSub closes.
func (c *redisConnection) pump() {
	defer close(c.deliveries)
	for msg := range c.pubsub.Channel() {
		event, err := models.DecodeEvent([]byte(msg.Payload))
		if err != nil {
			slog.Warn("Dropping undecodable bus message",
				"connectionID", c.id, "topic", msg.Channel, "error", err)
			continue
		}
		c.deliveries <- Delivery{Topic: msg.Channel, Event: event}
	}
}
