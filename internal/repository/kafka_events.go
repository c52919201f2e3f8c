package repository

import (
	"context"

	"FinExec/internal/domain/models"
	domrepo "FinExec/internal/domain/repository"
	pkgkafka "FinExec/pkg/kafka"
)

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

// KafkaEventPublisher writes pipeline events to one topic keyed by symbol,
// so events for a symbol stay ordered within a partition.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, e models.Event) error {
	key := e.Symbol
	if key == "" {
		key = string(e.Type)
	}
	return p.producer.Publish(ctx, p.topic, []byte(key), e)
}

func (p *KafkaEventPublisher) Close() error {
	return nil // producer is shared with the log collector and closed by the app
}

// NopEventPublisher drops events when Kafka is disabled.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishEvent(context.Context, models.Event) error { return nil }
func (NopEventPublisher) Close() error                                     { return nil }
