package notify

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// PreferenceStore is the durable per-(owner, type) settings record store.
type PreferenceStore interface {
	// GetPreference returns the preference for (ownerID, t), or ErrNotFound.
	GetPreference(ctx context.Context, ownerID string, t NotificationType) (*Preference, error)
	// ListPreferences returns every preference row for an owner.
	ListPreferences(ctx context.Context, ownerID string) ([]Preference, error)
	// ListFamilyPreferences returns the preferences of every member of a
	// family for one type.
	ListFamilyPreferences(ctx context.Context, familyID string, t NotificationType) ([]Preference, error)
	// ListScheduled returns every enabled preference of a type that has a
	// fixed digest schedule configured.
	ListScheduled(ctx context.Context, t NotificationType) ([]Preference, error)
	// PutPreference inserts or replaces a preference row.
	PutPreference(ctx context.Context, p Preference) error
	// CompareAndSetLastSent updates lastSent only if the stored value still
	// equals expect (nil meaning never sent). Returns false when another
	// writer got there first.
	CompareAndSetLastSent(ctx context.Context, ownerID string, t NotificationType, expect *time.Time, sentAt time.Time) (bool, error)
}

// NotificationStore persists notification records. Records are retained
// indefinitely for stats and history.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, id string) (*Notification, error)
	// UpdateNotification replaces the mutable fields of an existing record.
	UpdateNotification(ctx context.Context, n *Notification) error
	// ListNotifications returns an owner's notifications, newest first.
	ListNotifications(ctx context.Context, userID string, limit int) ([]*Notification, error)
	// ClaimDue atomically claims up to limit due pending notifications,
	// ordered by priority rank descending then creation time ascending.
	// Claimed records are invisible to concurrent claimers.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Notification, error)
	// ListCreatedBetween returns notifications created in [from, to); nil
	// bounds are open.
	ListCreatedBetween(ctx context.Context, from, to *time.Time) ([]*Notification, error)
	// CancelExpired moves expired pending notifications to cancelled and
	// returns how many were affected.
	CancelExpired(ctx context.Context, now time.Time) (int64, error)
}

// DeviceTokenStore tracks push token health. Tokens are registered
// externally; this service only reads them and deactivates dead ones.
type DeviceTokenStore interface {
	// ActiveTokensForUser returns the active token strings for a user.
	ActiveTokensForUser(ctx context.Context, userID string) ([]string, error)
	// ActiveTokensForFamily returns the active tokens of family members,
	// optionally filtered to one role ("" means all roles).
	ActiveTokensForFamily(ctx context.Context, familyID, role string) ([]string, error)
	// DeactivateTokens marks tokens inactive in one atomic batch. A nil or
	// empty batch performs no write.
	DeactivateTokens(ctx context.Context, tokens []string) error
}

// ReminderLog is the durable idempotency log for scheduled reminder passes.
type ReminderLog interface {
	// ClaimReminder records a reminder key and reports whether this call
	// was the first to write it. A duplicate claim returns false, nil.
	ClaimReminder(ctx context.Context, key string) (bool, error)
}
