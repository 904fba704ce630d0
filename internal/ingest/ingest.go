// Package ingest bridges the platform's Kafka event firehose onto the
// topic-addressed subscription bus. Each record's key names the bus topic;
// the value is a framed event.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"push-gateway/internal/bus"
	"push-gateway/internal/config"
	"push-gateway/internal/models"
)

// Consumer pumps one Kafka consumer group into the bus.
type Consumer struct {
	group sarama.ConsumerGroup
	topic string
	pub   bus.Publisher
	log   *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, pub bus.Publisher, log *slog.Logger) (*Consumer, error) {
	sc := sarama.NewConfig()
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true
	sc.Version = sarama.V2_0_0_0
	sc.ClientID = "push-gateway"

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{group: group, topic: cfg.Topic, pub: pub, log: log}, nil
}

// Run consumes until the context is cancelled. Rebalances restart the
// session loop; decode failures skip the record.
func (c *Consumer) Run(ctx context.Context) error {
	handler := &groupHandler{pub: c.pub, log: c.log}

	go func() {
		for err := range c.group.Errors() {
			c.log.Error("Kafka consumer error", "error", err)
		}
	}()

	for {
		if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("consume: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	pub bus.Publisher
	log *slog.Logger
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (*groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for record := range claim.Messages() {
		topic := string(record.Key)
		if topic == "" {
			h.log.Warn("Dropping record without routing key",
				"partition", record.Partition, "offset", record.Offset)
			session.MarkMessage(record, "")
			continue
		}

		event, err := models.DecodeEvent(record.Value)
		if err != nil {
			h.log.Warn("Dropping undecodable record",
				"partition", record.Partition, "offset", record.Offset, "error", err)
			session.MarkMessage(record, "")
			continue
		}

		if err := h.pub.Publish(session.Context(), topic, event); err != nil {
			h.log.Error("Publish to bus failed", "topic", topic, "error", err)
		}
		session.MarkMessage(record, "")
	}
	return nil
}
