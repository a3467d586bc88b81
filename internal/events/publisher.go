package events

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(ctx context.Context, rec Record) error
	Close() error
}

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, rec Record) error {
	msg := kafka.Message{
		Key:   []byte(rec.Key),
		Value: rec.Payload,
		Time:  rec.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(rec.EventType)},
			{Key: "event_id", Value: []byte(rec.EventID.String())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: failed to publish event %s: %w", rec.EventID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher writes events to the application log. Used when no brokers
// are configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, rec Record) error {
	log.Info().
		Str("event_type", rec.EventType).
		Stringer("event_id", rec.EventID).
		Str("key", rec.Key).
		RawJSON("payload", rec.Payload).
		Msg("Event published")
	return nil
}

func (LogPublisher) Close() error { return nil }
