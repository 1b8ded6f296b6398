package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/aascan/service/nats"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams notifications raised for browser sessions.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Stream notifications for a session",
		ArgsUsage: "[session_id]",
		Description: `Subscribe to notifications published to NATS JetStream.

Notifications are published to the subject notify.{session_id}. Omit the
session id to see notifications for every session.

Example:
  aascan notifications subscribe 3f1c2a9e-6d0b-4f3e-9a57-0b6f1e0c2d11 --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output raw JSON events",
			},
		},
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")
			if natsURL == "" {
				return fmt.Errorf("nats-url is required (set NATS_URL env var or use --nats-url)")
			}

			sub, err := natspkg.NewSubscriber(natsURL, cliLogger())
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer sub.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sessionID := c.Args().Get(0)
			jsonOutput := c.Bool("json")
			if !jsonOutput {
				target := sessionID
				if target == "" {
					target = "all sessions"
				}
				fmt.Fprintf(os.Stderr, "✓ Subscribed to %s\n\n", target)
			}

			count := 0
			err = sub.Subscribe(ctx, sessionID, func(ev *natspkg.NotificationEvent) {
				count++
				printEvent(c.App.Writer, ev, jsonOutput)
			})
			if err != nil {
				return err
			}
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "\nReceived %d notifications\n", count)
			}
			return nil
		},
	}
}

func printEvent(w io.Writer, ev *natspkg.NotificationEvent, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.Marshal(ev)
		fmt.Fprintln(w, string(data))
		return
	}
	fmt.Fprintf(w, "[%s] %s %s", ev.PublishedAt.Format(time.RFC3339), ev.Level, ev.Kind)
	if ev.Network != "" {
		fmt.Fprintf(w, " on %s", ev.Network)
	}
	if ev.Subject != "" {
		fmt.Fprintf(w, " for %s", ev.Subject)
	}
	fmt.Fprintf(w, "\n  session: %s\n  %s\n", ev.SessionID, ev.Message)
}
