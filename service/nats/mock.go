package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*NotificationEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*NotificationEvent, 0),
	}
}

// PublishNotification records the event and returns any configured error.
func (m *MockPublisher) PublishNotification(ctx context.Context, event *NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*NotificationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*NotificationEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventsForSession returns events published for one session.
func (m *MockPublisher) GetPublishedEventsForSession(sessionID string) []*NotificationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*NotificationEvent, 0)
	for _, event := range m.publishedEvents {
		if event.SessionID == sessionID {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on PublishNotification.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
