// Package worker runs the periodic background passes as Go tickers: the
// dispatch loop that delivers due notifications, the quest-deadline
// reminder pass, the digest pass, and expired-notification cleanup.
// All scheduled work is driven from Go since the service is already a
// persistent, long-running process (required for LISTEN/NOTIFY).
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/homequest/homequest-notify/internal/notify"
)

// DeadlineSource supplies upcoming quest deadlines eligible for reminders.
// Quest storage lives in the wider app; this service only reads it.
type DeadlineSource interface {
	UpcomingDeadlines(ctx context.Context, within time.Duration) ([]notify.QuestDeadlineEvent, error)
}

// Config controls worker intervals. Zero duration disables a pass.
type Config struct {
	DispatchInterval  time.Duration
	DispatchBatchSize int
	DispatchWorkers   int

	ReminderInterval time.Duration
	ReminderWindow   time.Duration // how far ahead to look for deadlines

	DigestInterval  time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		DispatchInterval:  30 * time.Second,
		DispatchBatchSize: 100,
		DispatchWorkers:   4,
		ReminderInterval:  15 * time.Minute,
		ReminderWindow:    24 * time.Hour,
		DigestInterval:    1 * time.Hour,
		CleanupInterval:   30 * time.Minute,
	}
}

// StartDispatch runs the dispatch loop that sends due notifications.
// Blocks until ctx is cancelled. Intended to be called with `go`.
func StartDispatch(ctx context.Context, svc *notify.Service, cfg Config, logger *slog.Logger) {
	logger.Info("Dispatch worker started", "interval", cfg.DispatchInterval)
	ticker := time.NewTicker(cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sent, failed, err := svc.DispatchDue(ctx, cfg.DispatchBatchSize, cfg.DispatchWorkers)
			if err != nil {
				logger.Error("dispatch error", "error", err)
			} else if sent+failed > 0 {
				logger.Info("dispatch batch", "sent", sent, "failed", failed)
			}
		case <-ctx.Done():
			logger.Info("Dispatch worker stopped")
			return
		}
	}
}

// Start launches the scheduled passes (reminders, digests, cleanup).
// Blocks until ctx is cancelled. Intended to be called with `go`.
// A nil deadlines source disables the reminder pass.
func Start(ctx context.Context, svc *notify.Service, deadlines DeadlineSource, cfg Config, logger *slog.Logger) {
	logger.Info("Scheduled passes started",
		"reminders", cfg.ReminderInterval,
		"digest", cfg.DigestInterval,
		"cleanup", cfg.CleanupInterval)

	tickers := make([]*time.Ticker, 0, 3)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.ReminderInterval > 0 && deadlines != nil {
		t := time.NewTicker(cfg.ReminderInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { reminderPass(ctx, svc, deadlines, cfg.ReminderWindow, logger) })
	}

	if cfg.DigestInterval > 0 {
		t := time.NewTicker(cfg.DigestInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { digestPass(ctx, svc, logger) })
	}

	if cfg.CleanupInterval > 0 {
		t := time.NewTicker(cfg.CleanupInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { cleanupPass(ctx, svc, logger) })
	}

	<-ctx.Done()
	logger.Info("Scheduled passes stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Pass implementations
// --------------------------------------------------------------------------

// reminderPass creates advance reminders for upcoming quest deadlines.
// Safe under concurrent or repeated invocation: the service dedupes on a
// durable idempotency key per (quest, date).
func reminderPass(ctx context.Context, svc *notify.Service, src DeadlineSource, window time.Duration, logger *slog.Logger) {
	deadlines, err := src.UpcomingDeadlines(ctx, window)
	if err != nil {
		logger.Warn("Reminder pass: deadline lookup failed", "error", err)
		return
	}
	if len(deadlines) == 0 {
		return
	}
	created, err := svc.RunReminderPass(ctx, deadlines)
	if err != nil {
		logger.Warn("Reminder pass: failed", "error", err)
		return
	}
	if created > 0 {
		logger.Info("Reminder pass: reminders created", "count", created)
	}
}

// digestPass creates summary notifications for owners whose fixed digest
// schedule matches the current hour.
func digestPass(ctx context.Context, svc *notify.Service, logger *slog.Logger) {
	for _, t := range []notify.NotificationType{notify.TypeDailySummary, notify.TypeWeeklySummary} {
		created, err := svc.RunDigestPass(ctx, t)
		if err != nil {
			logger.Warn("Digest pass: failed", "type", t, "error", err)
			continue
		}
		if created > 0 {
			logger.Info("Digest pass: digests created", "type", t, "count", created)
		}
	}
}

// cleanupPass cancels expired pending notifications. Records are retained
// for stats and history, never purged.
func cleanupPass(ctx context.Context, svc *notify.Service, logger *slog.Logger) {
	n, err := svc.CancelExpiredNotifications(ctx)
	if err != nil {
		logger.Warn("Cleanup: failed to cancel expired notifications", "error", err)
		return
	}
	if n > 0 {
		logger.Info("Cleanup: cancelled expired notifications", "count", n)
	}
}
