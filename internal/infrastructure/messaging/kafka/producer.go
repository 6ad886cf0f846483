package kafka

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"ledger-core/internal/pkg/logging"
)

// JournalEventNotification is the fan-out payload published once per
// committed JournalEvent: enough for a downstream consumer to decide
// whether to pull the full row, without carrying the row itself.
type JournalEventNotification struct {
	JournalEventID uuid.UUID `json:"journal_event_id"`
	InstanceID     uuid.UUID `json:"instance_id"`
	Action         string    `json:"action"`
	CreatedAt      time.Time `json:"created_at"`
}

// Producer wraps a Sarama sync producer for journal fan-out publishing.
type Producer struct {
	producer sarama.SyncProducer
	mu       sync.RWMutex
	closed   bool
}

// NewProducer creates a new Kafka producer from a Sarama config built by
// Config.ToSaramaConfig.
func NewProducer(config *Config) (*Producer, error) {
	saramaConfig, err := config.ToSaramaConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama config: %w", err)
	}

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logging.Info("kafka producer initialized", map[string]interface{}{"brokers": config.Brokers, "client_id": config.ClientID})

	return &Producer{producer: producer}, nil
}

// PublishJournalEvent publishes a fan-out notification for a committed
// JournalEvent, keyed by instance id so a single consumer group shards by
// tenant. This is never in the commit's critical path; callers fire it
// after the database transaction that inserted the JournalEvent commits.
func (p *Producer) PublishJournalEvent(n JournalEventNotification) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal journal event notification: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: TopicJournalEvents,
		Key:   sarama.StringEncoder(n.InstanceID.String()),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logging.Error("failed to publish journal event", err, map[string]interface{}{
			"journal_event_id": n.JournalEventID.String(),
		})
		return fmt.Errorf("failed to send message to kafka: %w", err)
	}

	logging.Debug("journal event published", map[string]interface{}{
		"journal_event_id": n.JournalEventID.String(),
		"partition":        fmt.Sprintf("%d", partition),
		"offset":           fmt.Sprintf("%d", offset),
	})
	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}

func (p *Producer) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}
