package repository

import (
	"context"

	"SignalDNA/internal/domain/models"
	drepo "SignalDNA/internal/domain/repository"
)

// MessagePublisher is the producer surface the relay needs; *pkg/kafka.Producer satisfies it.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaSignalPublisher relays signal updates to a Kafka topic keyed by instrument.
type KafkaSignalPublisher struct {
	producer MessagePublisher
	topic    string
}

// NewKafkaSignalPublisher creates Kafka publisher.
func NewKafkaSignalPublisher(producer MessagePublisher, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) Name() string { return "kafka" }

// Publish writes the same envelope subscribers receive.
func (p *KafkaSignalPublisher) Publish(ctx context.Context, u models.SignalUpdate) error {
	return p.producer.Publish(ctx, p.topic, []byte(u.Instrument), models.Envelope{
		Type: models.EventSignalUpdate,
		Data: u.Payload(),
	})
}

// Close is a no-op; the producer is shared and closed by its owner.
func (p *KafkaSignalPublisher) Close() error { return nil }

var _ drepo.SignalPublisher = (*KafkaSignalPublisher)(nil)
