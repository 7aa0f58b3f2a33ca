package events

import (
	"context"
	"log/slog"
	"sync"
)

// Publisher delivers monitoring events to a topic. Delivery is best effort and at most once.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *MonitorEvent) error
	Close() error
}

// Handler receives every event seen by a subscriber together with its topic
type Handler func(topic string, event *MonitorEvent)

// Broker is a Publisher that can also feed subscribers. Subscribe blocks until ctx is done.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, handler Handler) error
}

// MemoryBroker dispatches events synchronously inside the process.
// Only brokers built with NewRecordingBroker keep published events.
type MemoryBroker struct {
	mu       sync.RWMutex
	record   bool
	events   []PublishedEvent
	handlers map[int]Handler
	nextID   int
	logger   *slog.Logger
}

// PublishedEvent is one recorded publication
type PublishedEvent struct {
	Topic string
	Event MonitorEvent
}

func NewMemoryBroker(logger *slog.Logger) *MemoryBroker {
	return &MemoryBroker{
		handlers: make(map[int]Handler),
		logger:   logger,
	}
}

// NewRecordingBroker returns a MemoryBroker that keeps every published event for inspection.
func NewRecordingBroker(logger *slog.Logger) *MemoryBroker {
	broker := NewMemoryBroker(logger)
	broker.record = true
	return broker
}

func (m *MemoryBroker) Publish(ctx context.Context, topic string, event *MonitorEvent) error {
	m.mu.Lock()
	if m.record {
		m.events = append(m.events, PublishedEvent{Topic: topic, Event: *event})
	}
	handlers := make([]Handler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(topic, event)
	}

	m.logger.Debug("Published monitor event",
		"event_id", event.ID,
		"event_type", event.Type,
		"topic", topic)
	return nil
}

func (m *MemoryBroker) Subscribe(ctx context.Context, handler Handler) error {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = handler
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	delete(m.handlers, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBroker) Close() error {
	return nil
}

// GetPublishedEvents returns all recorded events
func (m *MemoryBroker) GetPublishedEvents() []PublishedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PublishedEvent, len(m.events))
	copy(out, m.events)
	return out
}

// EventsForTopic returns the recorded events of topic
func (m *MemoryBroker) EventsForTopic(topic string) []MonitorEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []MonitorEvent
	for _, e := range m.events {
		if e.Topic == topic {
			out = append(out, e.Event)
		}
	}
	return out
}

// ClearEvents drops the recorded events
func (m *MemoryBroker) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
