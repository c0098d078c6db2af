// Command notifyctl is the HomeQuest notification operations CLI.
//
// Usage:
//
//	notifyctl send --target family --id fam-1 --title "Movie night" --body "Pick a film by 6pm"
//	notifyctl dispatch --batch 100 --workers 4
//	notifyctl reminders --window 24h
//	notifyctl cleanup
//	notifyctl provision --owner user-1 --family fam-1
//	notifyctl stats --from 2026-08-01T00:00:00Z
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/homequest/homequest-notify/internal/config"
	"github.com/homequest/homequest-notify/internal/db"
	"github.com/homequest/homequest-notify/internal/notify"
	"github.com/homequest/homequest-notify/internal/push"
	"github.com/homequest/homequest-notify/internal/store/postgres"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "notifyctl",
		Short: "HomeQuest notification operations CLI",
	}

	root.AddCommand(sendCmd())
	root.AddCommand(dispatchCmd())
	root.AddCommand(remindersCmd())
	root.AddCommand(cleanupCmd())
	root.AddCommand(provisionCmd())
	root.AddCommand(statsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// send command
// --------------------------------------------------------------------------

func sendCmd() *cobra.Command {
	var (
		target string
		id     string
		title  string
		body   string
		typ    string
		caller string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a custom notification to a user, child, or family",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, svc *notify.Service, st *postgres.Store) error {
				cs := notify.CustomSend{
					TargetType: target,
					TargetID:   id,
					Title:      title,
					Body:       body,
					Type:       notify.NotificationType(typ),
				}
				created, err := svc.SendCustom(ctx, caller, cs)
				if err != nil {
					return err
				}
				logger.Info("Custom send queued", "created", created, "target", target, "id", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", "user", "Target type (user, child, family)")
	cmd.Flags().StringVar(&id, "id", "", "Target user or family ID")
	cmd.Flags().StringVar(&title, "title", "", "Notification title")
	cmd.Flags().StringVar(&body, "body", "", "Notification body")
	cmd.Flags().StringVar(&typ, "type", "", "Notification type (default custom)")
	cmd.Flags().StringVar(&caller, "caller", "notifyctl", "Caller identity recorded on the notification")
	return cmd
}

// --------------------------------------------------------------------------
// dispatch command
// --------------------------------------------------------------------------

func dispatchCmd() *cobra.Command {
	var batch, workers int
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run one dispatch batch over due pending notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, svc *notify.Service, st *postgres.Store) error {
				start := time.Now()
				sent, failed, err := svc.DispatchDue(ctx, batch, workers)
				if err != nil {
					return err
				}
				logger.Info("Dispatch finished",
					"sent", sent, "failed", failed,
					"duration", time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 100, "Maximum notifications to claim")
	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent worker count")
	return cmd
}

// --------------------------------------------------------------------------
// reminders command
// --------------------------------------------------------------------------

func remindersCmd() *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Run one quest-deadline reminder pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, svc *notify.Service, st *postgres.Store) error {
				deadlines, err := st.UpcomingDeadlines(ctx, window)
				if err != nil {
					return fmt.Errorf("look up deadlines: %w", err)
				}
				created, err := svc.RunReminderPass(ctx, deadlines)
				if err != nil {
					return err
				}
				logger.Info("Reminder pass finished",
					"deadlines", len(deadlines), "created", created, "window", window)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "How far ahead to look for deadlines")
	return cmd
}

// --------------------------------------------------------------------------
// cleanup command
// --------------------------------------------------------------------------

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Cancel expired pending notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, svc *notify.Service, st *postgres.Store) error {
				n, err := svc.CancelExpiredNotifications(ctx)
				if err != nil {
					return err
				}
				logger.Info("Cleanup finished", "cancelled", n)
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// provision command
// --------------------------------------------------------------------------

func provisionCmd() *cobra.Command {
	var owner, family string
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create missing default preference rows for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return fmt.Errorf("--owner is required")
			}
			return run(func(ctx context.Context, cfg *config.Config, svc *notify.Service, st *postgres.Store) error {
				if err := st.EnsureDefaults(ctx, owner, family, notify.DefaultTable(), time.Now().UTC()); err != nil {
					return err
				}
				logger.Info("Defaults provisioned", "owner", owner, "family", family)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner (user) ID")
	cmd.Flags().StringVar(&family, "family", "", "Family ID recorded on the rows")
	return cmd
}

// --------------------------------------------------------------------------
// stats command
// --------------------------------------------------------------------------

func statsCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print delivery statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, svc *notify.Service, st *postgres.Store) error {
				fromT, err := parseBound(from)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				toT, err := parseBound(to)
				if err != nil {
					return fmt.Errorf("--to: %w", err)
				}
				stats, err := svc.StatsBetween(ctx, fromT, toT)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Range start (RFC3339); empty = open")
	cmd.Flags().StringVar(&to, "to", "", "Range end (RFC3339); empty = open")
	return cmd
}

func parseBound(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// run handles config loading, DB connection, and context cancellation.
func run(fn func(ctx context.Context, cfg *config.Config, svc *notify.Service, st *postgres.Store) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	st := postgres.New(pool.Pool)
	var sender push.Sender
	if fcm := push.NewFCMSender(cfg.FCMCredentialsFile, logger); fcm != nil {
		sender = fcm
	}
	svc := notify.NewService(st, st, st, st, sender, logger)
	return fn(ctx, cfg, svc, st)
}
