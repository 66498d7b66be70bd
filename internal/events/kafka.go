package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"connector-sync/internal/config"
	"connector-sync/pkg/log"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger zerolog.Logger
}

func NewKafkaPublisher(cfg config.Kafka) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}, cfg.Topic)
}

func newKafkaPublisher(writer messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: log.Logger.With().
			Str("component", "kafka_publisher").
			Str("topic", topic).
			Logger(),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event SyncEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.Key()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(event.ID)},
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "source", Value: []byte(event.Source)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		p.logger.Error().
			Err(err).
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("Failed to publish event")
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	p.logger.Debug().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Msg("Event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
