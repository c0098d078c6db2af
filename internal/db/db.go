// Package db provides a pgxpool-based connection pool with prepared
// statement registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homequest/homequest-notify/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers the statements the hot paths use.
// Prepared statements eliminate parse overhead on every dispatch pass.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Preferences
		"get_preference": `SELECT owner_id, family_id, type, enabled, channels, frequency, priority,
			quiet_hours, quiet_hours_start, quiet_hours_end, advance_hours,
			scheduled_hour, scheduled_day, last_sent, created_at, updated_at
			FROM notification_preferences WHERE owner_id = $1 AND type = $2`,

		"list_preferences": `SELECT owner_id, family_id, type, enabled, channels, frequency, priority,
			quiet_hours, quiet_hours_start, quiet_hours_end, advance_hours,
			scheduled_hour, scheduled_day, last_sent, created_at, updated_at
			FROM notification_preferences WHERE owner_id = $1 ORDER BY type`,

		"list_family_preferences": `SELECT owner_id, family_id, type, enabled, channels, frequency, priority,
			quiet_hours, quiet_hours_start, quiet_hours_end, advance_hours,
			scheduled_hour, scheduled_day, last_sent, created_at, updated_at
			FROM notification_preferences WHERE family_id = $1 AND type = $2 ORDER BY owner_id`,

		"list_scheduled_preferences": `SELECT owner_id, family_id, type, enabled, channels, frequency, priority,
			quiet_hours, quiet_hours_start, quiet_hours_end, advance_hours,
			scheduled_hour, scheduled_day, last_sent, created_at, updated_at
			FROM notification_preferences
			WHERE type = $1 AND enabled = true AND scheduled_hour IS NOT NULL
			ORDER BY owner_id`,

		// Device tokens
		"user_device_tokens": `SELECT token FROM device_tokens
			WHERE user_id = $1 AND active = true ORDER BY token`,
		"family_device_tokens": `SELECT token FROM device_tokens
			WHERE family_id = $1 AND active = true AND ($2 = '' OR user_role = $2)
			ORDER BY token`,

		// Notifications
		"get_notification": `SELECT id, user_id, family_id, target_role, type, title, message, data,
			channels, priority, status, scheduled_for, expires_at, created_at,
			sent_at, delivered_at, read_at, failed_at, failure_reason, actionable, action_ref
			FROM notifications WHERE id = $1`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
