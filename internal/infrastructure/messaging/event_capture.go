package messaging

import (
	"sync"

	"ledger-core/internal/infrastructure/messaging/kafka"
)

// EventCapture is an in-memory JournalPublisher for tests, capturing every
// notification instead of delivering it to a broker.
type EventCapture struct {
	events []kafka.JournalEventNotification
	mu     sync.RWMutex
}

func NewEventCapture() *EventCapture {
	return &EventCapture{events: make([]kafka.JournalEventNotification, 0)}
}

func (e *EventCapture) PublishJournalEvent(event kafka.JournalEventNotification) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *EventCapture) Close() error    { return nil }
func (e *EventCapture) IsHealthy() bool { return true }

// Events returns a copy of every captured notification, in publish order.
func (e *EventCapture) Events() []kafka.JournalEventNotification {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]kafka.JournalEventNotification, len(e.events))
	copy(out, e.events)
	return out
}

func (e *EventCapture) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = e.events[:0]
}
