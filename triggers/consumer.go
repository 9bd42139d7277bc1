// Package triggers starts pipeline runs from Kafka messages.
package triggers

import (
	"context"
	"errors"
	"log"

	"github.com/IBM/sarama"
)

// Consumer feeds trigger messages from one topic to a Handler
type Consumer struct {
	group   sarama.ConsumerGroup
	handler *Handler
	topic   string
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Handler *Handler
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}
	return &Consumer{group: group, handler: cfg.Handler, topic: cfg.Topic}, nil
}

// Start consumes in the background until ctx is cancelled or the consumer is closed
func (c *Consumer) Start(ctx context.Context) {
	go func() {
		for {
			err := c.group.Consume(ctx, []string{c.topic}, c)
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
				log.Println("Kafka consumer stopped")
				return
			}
			if err != nil {
				log.Printf("Error from Kafka consumer: %v", err)
			}
		}
	}()
	log.Printf("Kafka consumer listening on topic %s", c.topic)
}

// Close gracefully shuts down the consumer
func (c *Consumer) Close() error {
	return c.group.Close()
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim runs each trigger in turn. Failed runs stay unmarked so they are redelivered.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		mark, err := c.handler.HandleMessage(session.Context(), message.Value)
		if err != nil {
			log.Printf("Failed to handle trigger at offset %d: %v", message.Offset, err)
		}
		if mark {
			session.MarkMessage(message, "")
		}
	}
	return nil
}
