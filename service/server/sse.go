package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/aascan/service/metrics"
	natspkg "github.com/brojonat/aascan/service/nats"
	"github.com/brojonat/aascan/service/session"
)

const sseKeepaliveInterval = 10 * time.Second

// handleStreamNotifications streams the session's notifications as SSE.
// Notifications raised before the stream opened are sent first. A live
// event removes only its own notification from the session's pending list.
// GET /api/v1/stream/notifications
func handleStreamNotifications(sessions *session.Store, subscriber NotificationSubscriber, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sessions.FromRequest(w, r)
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flush := func() {
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
		flush()

		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}
		logger.DebugContext(ctx, "SSE client connected", "session_id", sess.ID, "remote_addr", r.RemoteAddr)

		events := make(chan *natspkg.NotificationEvent, 10)
		subErr := make(chan error, 1)
		go func() {
			subErr <- subscriber.Subscribe(ctx, sess.ID, func(ev *natspkg.NotificationEvent) {
				select {
				case events <- ev:
				case <-ctx.Done():
				}
			})
		}()

		send := func(event string, data any) bool {
			payload, err := json.Marshal(data)
			if err != nil {
				logger.WarnContext(ctx, "failed to marshal event", "error", err)
				return true
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
				return false
			}
			flush()
			if m != nil {
				m.RecordSSEEventSent(event)
			}
			return true
		}

		backlog := sess.DrainNotifications()
		if !send("connected", map[string]string{"session_id": sess.ID}) {
			return
		}
		for _, n := range backlog {
			if !send("notification", natspkg.FromNotification(sess.ID, n)) {
				return
			}
		}

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush()

			case ev := <-events:
				// Delivered live, so it need not wait for the next poll.
				sess.Ack(ev.ID)
				if !send("notification", ev) {
					return
				}

			case err := <-subErr:
				if err != nil {
					logger.ErrorContext(ctx, "notification subscription failed", "session_id", sess.ID, "error", err)
					send("error", map[string]string{"error": "failed to subscribe"})
				}
				return

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected", "session_id", sess.ID, "remote_addr", r.RemoteAddr)
				return
			}
		}
	})
}
