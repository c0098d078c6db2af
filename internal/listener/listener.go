// Package listener provides a Postgres LISTEN/NOTIFY consumer for real-time
// domain event processing. It holds a dedicated pgx connection (not from
// the pool) listening on the `homequest_events` channel.
//
// When the wider app records a domain event (quest completed, streak change,
// goal progress, penalty), its trigger fires pg_notify and this consumer
// ingests the event into pending notifications. The periodic dispatch
// worker then delivers whatever the ingestion produced.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/homequest/homequest-notify/internal/notify"
)

const (
	channel          = "homequest_events"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// envelope is the JSON payload from pg_notify('homequest_events', ...).
type envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Start opens a dedicated connection and listens on the homequest_events
// channel. It reconnects automatically on connection loss. Blocks until ctx
// is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, svc *notify.Service, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, svc, logger)
		if ctx.Err() != nil {
			logger.Info("Event listener stopped (context cancelled)")
			return
		}

		logger.Error("Event listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, svc *notify.Service, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+channel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	logger.Info("Event listener connected", "channel", channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		var env envelope
		if err := json.Unmarshal([]byte(notification.Payload), &env); err != nil {
			logger.Warn("Failed to parse event envelope",
				"payload", notification.Payload, "error", err)
			continue
		}

		event, err := notify.DecodeEvent(env.Kind, env.Payload)
		if err != nil {
			logger.Warn("Failed to decode event", "kind", env.Kind, "error", err)
			continue
		}

		logger.Info("Domain event received", "kind", env.Kind)

		// Process asynchronously to avoid blocking the listener.
		go handleEvent(ctx, svc, env.Kind, event, logger)
	}
}

// handleEvent ingests one event into pending notifications.
func handleEvent(ctx context.Context, svc *notify.Service, kind string, event notify.Event, logger *slog.Logger) {
	created, err := svc.ProcessEvents(ctx, event)
	if err != nil {
		var verr *notify.ValidationError
		if errors.As(err, &verr) {
			logger.Warn("Malformed domain event",
				"kind", kind, "problems", verr.Problems)
			return
		}
		logger.Warn("Event processing failed", "kind", kind, "error", err)
		return
	}
	if created > 0 {
		logger.Info("Notifications created from event", "kind", kind, "count", created)
	}
}
