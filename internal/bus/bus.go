// Package bus is the topic-addressed subscription bus connecting gateway
// connections to the rest of the platform.
package bus

import (
	"context"

	"push-gateway/internal/models"
)

// Delivery pairs a decoded event with the topic it arrived on.
type Delivery struct {
	Topic string
	Event models.Event
}

// Publisher fans an event out to every connection subscribed to a topic.
// Safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, event models.Event) error
}

// Connection is one gateway connection's subscription handle. Subscribe and
// Unsubscribe are driven by the single flow owning the connection.
type Connection interface {
	Subscribe(ctx context.Context, topic string) error
	Unsubscribe(ctx context.Context, topic string) error

	// Deliveries yields events for subscribed topics in arrival order.
	// The channel closes when the connection closes.
	Deliveries() <-chan Delivery

	Close() error
}

// Bus opens per-connection handles and publishes platform-wide.
type Bus interface {
	Publisher
	Open(ctx context.Context, connectionID string) (Connection, error)
}
