package nats

import (
	"fmt"
	"time"

	"github.com/brojonat/aascan/service/browser"
)

// NotificationEvent is a user-visible notification published to NATS.
// It is published to the subject "notify.{session_id}" in JetStream.
type NotificationEvent struct {
	// ID identifies the notification within its session
	ID string `json:"id"`

	// Session the notification belongs to
	SessionID string `json:"session_id"`

	// Notification content
	Level   string `json:"level"`
	Kind    string `json:"kind"`
	Network string `json:"network,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromNotification converts a browser notification to an event for publishing.
func FromNotification(sessionID string, n browser.Notification) *NotificationEvent {
	return &NotificationEvent{
		ID:          n.ID,
		SessionID:   sessionID,
		Level:       string(n.Level),
		Kind:        string(n.Kind),
		Network:     n.Network,
		Subject:     n.Subject,
		Message:     n.Message,
		PublishedAt: time.Now().UTC(),
	}
}

// SubjectFor returns the subject notifications for sessionID are published
// on. An empty sessionID matches every session.
func SubjectFor(sessionID string) string {
	if sessionID == "" {
		return StreamSubjects
	}
	return fmt.Sprintf("notify.%s", sessionID)
}
