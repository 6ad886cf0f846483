// Package messaging defines the journal fan-out publisher: a
// single-method interface over the one event the core ever emits, with a
// Kafka-backed implementation and a no-op one selected by KAFKA_ENABLED.
package messaging

import (
	"fmt"

	"ledger-core/internal/infrastructure/messaging/kafka"
)

// JournalPublisher publishes the fan-out notification for a committed
// JournalEvent. It is never in the commit's critical path: workers call it
// after the transaction that inserted the JournalEvent has committed, and
// nothing about the publish is recorded in that transaction. A failed
// publish is not retried; the workers discard its error.
type JournalPublisher interface {
	PublishJournalEvent(event kafka.JournalEventNotification) error
	Close() error
	IsHealthy() bool
}

// KafkaJournalPublisher implements JournalPublisher using Kafka.
type KafkaJournalPublisher struct {
	producer *kafka.Producer
}

func NewKafkaJournalPublisher(cfg *kafka.Config) (*KafkaJournalPublisher, error) {
	producer, err := kafka.NewProducer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return &KafkaJournalPublisher{producer: producer}, nil
}

func (p *KafkaJournalPublisher) PublishJournalEvent(event kafka.JournalEventNotification) error {
	return p.producer.PublishJournalEvent(event)
}

func (p *KafkaJournalPublisher) Close() error    { return p.producer.Close() }
func (p *KafkaJournalPublisher) IsHealthy() bool { return p.producer.IsHealthy() }

// NoOpJournalPublisher is selected when KAFKA_ENABLED=false, for local
// development and for tests that don't need to assert on fan-out.
type NoOpJournalPublisher struct{}

func NewNoOpJournalPublisher() *NoOpJournalPublisher { return &NoOpJournalPublisher{} }

func (p *NoOpJournalPublisher) PublishJournalEvent(kafka.JournalEventNotification) error { return nil }
func (p *NoOpJournalPublisher) Close() error                                             { return nil }
func (p *NoOpJournalPublisher) IsHealthy() bool                                          { return true }
