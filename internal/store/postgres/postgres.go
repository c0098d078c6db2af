// Package postgres implements the notify store interfaces on pgx.
// Statement names refer to the prepared statements registered by
// internal/db on every pooled connection.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homequest/homequest-notify/internal/notify"
)

// claimWindow is how long a claimed notification stays invisible to other
// dispatch passes before it is considered abandoned and reclaimable.
const claimWindow = 2 * time.Minute

// Store implements every notify store interface against one pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps a pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --------------------------------------------------------------------------
// PreferenceStore
// --------------------------------------------------------------------------

func (s *Store) GetPreference(ctx context.Context, ownerID string, t notify.NotificationType) (*notify.Preference, error) {
	row := s.pool.QueryRow(ctx, "get_preference", ownerID, string(t))
	p, err := scanPreference(row)
	if err == pgx.ErrNoRows {
		return nil, notify.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preference: %w", err)
	}
	return p, nil
}

func (s *Store) ListPreferences(ctx context.Context, ownerID string) ([]notify.Preference, error) {
	return s.queryPreferences(ctx, "list_preferences", ownerID)
}

func (s *Store) ListFamilyPreferences(ctx context.Context, familyID string, t notify.NotificationType) ([]notify.Preference, error) {
	return s.queryPreferences(ctx, "list_family_preferences", familyID, string(t))
}

func (s *Store) ListScheduled(ctx context.Context, t notify.NotificationType) ([]notify.Preference, error) {
	return s.queryPreferences(ctx, "list_scheduled_preferences", string(t))
}

func (s *Store) queryPreferences(ctx context.Context, stmt string, args ...any) ([]notify.Preference, error) {
	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stmt, err)
	}
	defer rows.Close()

	var out []notify.Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) PutPreference(ctx context.Context, p notify.Preference) error {
	if err := notify.NewValidationError(p.Validate()); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_preferences (
			owner_id, family_id, type, enabled, channels, frequency, priority,
			quiet_hours, quiet_hours_start, quiet_hours_end, advance_hours,
			scheduled_hour, scheduled_day, last_sent, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (owner_id, type) DO UPDATE SET
			family_id = EXCLUDED.family_id,
			enabled = EXCLUDED.enabled,
			channels = EXCLUDED.channels,
			frequency = EXCLUDED.frequency,
			priority = EXCLUDED.priority,
			quiet_hours = EXCLUDED.quiet_hours,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			advance_hours = EXCLUDED.advance_hours,
			scheduled_hour = EXCLUDED.scheduled_hour,
			scheduled_day = EXCLUDED.scheduled_day,
			updated_at = EXCLUDED.updated_at`,
		p.OwnerID, nullString(p.FamilyID), string(p.Type), p.Enabled,
		channelStrings(p.Channels), string(p.Frequency), string(p.Priority),
		p.QuietHours, nullString(p.QuietHoursStart), nullString(p.QuietHoursEnd),
		p.AdvanceHours, p.ScheduledHour, weekdayInt(p.ScheduledDay),
		p.LastSent, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put preference: %w", err)
	}
	return nil
}

// CompareAndSetLastSent relies on IS NOT DISTINCT FROM so a nil expectation
// matches only a never-sent row. Zero rows affected means another writer
// won the race.
func (s *Store) CompareAndSetLastSent(ctx context.Context, ownerID string, t notify.NotificationType, expect *time.Time, sentAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_preferences
		SET last_sent = $4, updated_at = $4
		WHERE owner_id = $1 AND type = $2 AND last_sent IS NOT DISTINCT FROM $3`,
		ownerID, string(t), expect, sentAt)
	if err != nil {
		return false, fmt.Errorf("cas last_sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// EnsureDefaults inserts missing (owner, type) rows from an injected default
// table. Existing rows are never overwritten.
func (s *Store) EnsureDefaults(ctx context.Context, ownerID, familyID string, defaults []notify.DefaultSpec, now time.Time) error {
	batch := &pgx.Batch{}
	for _, d := range defaults {
		p := d.Materialize(ownerID, familyID, now)
		batch.Queue(`
			INSERT INTO notification_preferences (
				owner_id, family_id, type, enabled, channels, frequency, priority,
				quiet_hours, quiet_hours_start, quiet_hours_end, advance_hours,
				scheduled_hour, scheduled_day, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (owner_id, type) DO NOTHING`,
			p.OwnerID, nullString(p.FamilyID), string(p.Type), p.Enabled,
			channelStrings(p.Channels), string(p.Frequency), string(p.Priority),
			p.QuietHours, nullString(p.QuietHoursStart), nullString(p.QuietHoursEnd),
			p.AdvanceHours, p.ScheduledHour, weekdayInt(p.ScheduledDay), now, now)
	}
	if batch.Len() == 0 {
		return nil
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

// --------------------------------------------------------------------------
// NotificationStore
// --------------------------------------------------------------------------

func (s *Store) InsertNotification(ctx context.Context, n *notify.Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO notifications (
			id, user_id, family_id, target_role, type, title, message, data,
			channels, priority, status, scheduled_for, expires_at, created_at,
			actionable, action_ref
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		n.ID, nullString(n.UserID), nullString(n.FamilyID), nullString(n.TargetRole),
		string(n.Type), n.Title, n.Message, data,
		channelStrings(n.Channels), string(n.Priority), string(n.Status),
		n.ScheduledFor, n.ExpiresAt, n.CreatedAt, n.Actionable, nullString(n.ActionRef),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (*notify.Notification, error) {
	n, err := scanNotification(s.pool.QueryRow(ctx, "get_notification", id))
	if err == pgx.ErrNoRows {
		return nil, notify.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// UpdateNotification persists the mutable lifecycle fields and releases the
// dispatch claim.
func (s *Store) UpdateNotification(ctx context.Context, n *notify.Notification) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $2, sent_at = $3, delivered_at = $4, read_at = $5,
		    failed_at = $6, failure_reason = $7, claimed_until = NULL
		WHERE id = $1`,
		n.ID, string(n.Status), n.SentAt, n.DeliveredAt, n.ReadAt,
		n.FailedAt, nullString(n.FailureReason))
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notify.ErrNotFound
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]*notify.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, family_id, target_role, type, title, message, data,
		       channels, priority, status, scheduled_for, expires_at, created_at,
		       sent_at, delivered_at, read_at, failed_at, failure_reason, actionable, action_ref
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	return collectNotifications(rows)
}

// ClaimDue atomically claims a batch of due pending notifications, ordered
// by priority rank descending then age. FOR UPDATE SKIP LOCKED plus the
// claim window keep concurrent dispatch passes from overlapping.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*notify.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE notifications
		SET claimed_until = $1::timestamptz + $3::interval
		WHERE id IN (
			SELECT id FROM notifications
			WHERE status = 'pending'
			  AND (scheduled_for IS NULL OR scheduled_for <= $1)
			  AND (expires_at IS NULL OR expires_at > $1)
			  AND (claimed_until IS NULL OR claimed_until < $1)
			ORDER BY
				CASE priority
					WHEN 'urgent' THEN 4
					WHEN 'high' THEN 3
					WHEN 'medium' THEN 2
					ELSE 1
				END DESC,
				created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_id, family_id, target_role, type, title, message, data,
		          channels, priority, status, scheduled_for, expires_at, created_at,
		          sent_at, delivered_at, read_at, failed_at, failure_reason, actionable, action_ref`,
		now, limit, claimWindow)
	if err != nil {
		return nil, fmt.Errorf("claim due notifications: %w", err)
	}
	defer rows.Close()

	claimed, err := collectNotifications(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery order.
	notify.SortPending(claimed)
	return claimed, nil
}

func (s *Store) ListCreatedBetween(ctx context.Context, from, to *time.Time) ([]*notify.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, family_id, target_role, type, title, message, data,
		       channels, priority, status, scheduled_for, expires_at, created_at,
		       sent_at, delivered_at, read_at, failed_at, failure_reason, actionable, action_ref
		FROM notifications
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list notifications by date: %w", err)
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func (s *Store) CancelExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET status = 'cancelled'
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at < $1
		  AND (claimed_until IS NULL OR claimed_until < $1)`, now)
	if err != nil {
		return 0, fmt.Errorf("cancel expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --------------------------------------------------------------------------
// DeviceTokenStore
// --------------------------------------------------------------------------

func (s *Store) ActiveTokensForUser(ctx context.Context, userID string) ([]string, error) {
	return s.queryTokens(ctx, "user_device_tokens", userID)
}

func (s *Store) ActiveTokensForFamily(ctx context.Context, familyID, role string) ([]string, error) {
	return s.queryTokens(ctx, "family_device_tokens", familyID, role)
}

func (s *Store) queryTokens(ctx context.Context, stmt string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stmt, err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// DeactivateTokens flips the batch inactive in one atomic statement.
// Tokens are never physically removed.
func (s *Store) DeactivateTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE device_tokens SET active = false, deactivated_at = NOW()
		WHERE token = ANY($1)`, tokens)
	if err != nil {
		return fmt.Errorf("deactivate tokens: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// ReminderLog
// --------------------------------------------------------------------------

// ClaimReminder writes the idempotency key; a conflict means another pass
// already processed this reminder.
func (s *Store) ClaimReminder(ctx context.Context, key string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO reminder_log (key, claimed_at) VALUES ($1, NOW())
		ON CONFLICT (key) DO NOTHING`, key)
	if err != nil {
		return false, fmt.Errorf("claim reminder: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// --------------------------------------------------------------------------
// Deadline source
// --------------------------------------------------------------------------

// UpcomingDeadlines reads incomplete quests due within the window. The
// quests table belongs to the wider app; this service only reads it.
func (s *Store) UpcomingDeadlines(ctx context.Context, within time.Duration) ([]notify.QuestDeadlineEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT assigned_to, id, title, due_at FROM quests
		WHERE completed_at IS NULL
		  AND due_at > NOW() AND due_at <= NOW() + $1::interval
		ORDER BY due_at`, within)
	if err != nil {
		return nil, fmt.Errorf("upcoming deadlines: %w", err)
	}
	defer rows.Close()

	var out []notify.QuestDeadlineEvent
	for rows.Next() {
		var d notify.QuestDeadlineEvent
		if err := rows.Scan(&d.UserID, &d.QuestID, &d.QuestTitle, &d.Deadline); err != nil {
			return nil, fmt.Errorf("scan deadline: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --------------------------------------------------------------------------
// Row helpers
// --------------------------------------------------------------------------

func scanPreference(row pgx.Row) (*notify.Preference, error) {
	var p notify.Preference
	var familyID, quietStart, quietEnd *string
	var typ, freq, prio string
	var channels []string
	var schedDay *int
	err := row.Scan(
		&p.OwnerID, &familyID, &typ, &p.Enabled, &channels, &freq, &prio,
		&p.QuietHours, &quietStart, &quietEnd, &p.AdvanceHours,
		&p.ScheduledHour, &schedDay, &p.LastSent, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.FamilyID = deref(familyID)
	p.Type = notify.NotificationType(typ)
	p.Frequency = notify.Frequency(freq)
	p.Priority = notify.Priority(prio)
	p.QuietHoursStart = deref(quietStart)
	p.QuietHoursEnd = deref(quietEnd)
	p.Channels = toChannels(channels)
	if schedDay != nil {
		d := time.Weekday(*schedDay)
		p.ScheduledDay = &d
	}
	return &p, nil
}

func scanNotification(row pgx.Row) (*notify.Notification, error) {
	var n notify.Notification
	var userID, familyID, targetRole, reason, actionRef *string
	var typ, prio, status string
	var channels []string
	var data []byte
	err := row.Scan(
		&n.ID, &userID, &familyID, &targetRole, &typ, &n.Title, &n.Message, &data,
		&channels, &prio, &status, &n.ScheduledFor, &n.ExpiresAt, &n.CreatedAt,
		&n.SentAt, &n.DeliveredAt, &n.ReadAt, &n.FailedAt, &reason, &n.Actionable, &actionRef,
	)
	if err != nil {
		return nil, err
	}
	n.UserID = deref(userID)
	n.FamilyID = deref(familyID)
	n.TargetRole = deref(targetRole)
	n.Type = notify.NotificationType(typ)
	n.Priority = notify.Priority(prio)
	n.Status = notify.Status(status)
	n.FailureReason = deref(reason)
	n.ActionRef = deref(actionRef)
	n.Channels = toChannels(channels)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return &n, nil
}

func collectNotifications(rows pgx.Rows) ([]*notify.Notification, error) {
	var out []*notify.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func toChannels(raw []string) []notify.Channel {
	out := make([]notify.Channel, 0, len(raw))
	for _, c := range raw {
		out = append(out, notify.Channel(c))
	}
	return out
}

func channelStrings(channels []notify.Channel) []string {
	out := make([]string, 0, len(channels))
	for _, c := range channels {
		out = append(out, string(c))
	}
	return out
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func weekdayInt(d *time.Weekday) *int {
	if d == nil {
		return nil
	}
	n := int(*d)
	return &n
}
