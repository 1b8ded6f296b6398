package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subscriber reads notification events back out of JetStream.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSubscriber connects to NATS for consuming notifications.
func NewSubscriber(natsURL string, logger *slog.Logger) (*Subscriber, error) {
	nc, js, err := connect(natsURL, "aascan-subscriber")
	if err != nil {
		return nil, err
	}
	logger.Info("NATS subscriber initialized", "url", natsURL)
	return &Subscriber{nc: nc, js: js, logger: logger}, nil
}

// Subscribe delivers new notifications for sessionID (every session when
// empty) to handle until ctx is done. Each call uses its own ephemeral
// consumer that only sees messages published after it was created.
func (s *Subscriber) Subscribe(ctx context.Context, sessionID string, handle func(*NotificationEvent)) error {
	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: SubjectFor(sessionID),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var event NotificationEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			s.logger.WarnContext(ctx, "failed to unmarshal notification", "error", err)
			_ = msg.Ack()
			return
		}
		handle(&event)
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}
	defer cc.Stop()

	<-ctx.Done()
	return nil
}

// Close closes the NATS connection.
func (s *Subscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("NATS subscriber closed")
	}
	return nil
}
