// Package memory is an in-memory implementation of the notify store
// interfaces. It backs tests and the CLI dry-run mode; the production
// store lives in internal/store/postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/homequest/homequest-notify/internal/notify"
)

// Token is a registered push device.
type Token struct {
	Token    string
	UserID   string
	FamilyID string
	Role     string
	Active   bool
}

type prefKey struct {
	owner string
	typ   notify.NotificationType
}

// Store holds every collection behind one RWMutex. Claimed notifications
// are tracked so concurrent dispatch passes never pick the same record.
type Store struct {
	mu            sync.RWMutex
	prefs         map[prefKey]notify.Preference
	notifications map[string]*notify.Notification
	claimed       map[string]bool
	tokens        map[string]Token
	reminders     map[string]bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		prefs:         make(map[prefKey]notify.Preference),
		notifications: make(map[string]*notify.Notification),
		claimed:       make(map[string]bool),
		tokens:        make(map[string]Token),
		reminders:     make(map[string]bool),
	}
}

// --------------------------------------------------------------------------
// PreferenceStore
// --------------------------------------------------------------------------

func (s *Store) GetPreference(ctx context.Context, ownerID string, t notify.NotificationType) (*notify.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[prefKey{ownerID, t}]
	if !ok {
		return nil, notify.ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (s *Store) ListPreferences(ctx context.Context, ownerID string) ([]notify.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []notify.Preference
	for k, p := range s.prefs {
		if k.owner == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (s *Store) ListFamilyPreferences(ctx context.Context, familyID string, t notify.NotificationType) ([]notify.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []notify.Preference
	for k, p := range s.prefs {
		if k.typ == t && p.FamilyID == familyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out, nil
}

func (s *Store) ListScheduled(ctx context.Context, t notify.NotificationType) ([]notify.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []notify.Preference
	for k, p := range s.prefs {
		if k.typ == t && p.Enabled && p.ScheduledHour != nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out, nil
}

func (s *Store) PutPreference(ctx context.Context, p notify.Preference) error {
	if err := notify.NewValidationError(p.Validate()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[prefKey{p.OwnerID, p.Type}] = p
	return nil
}

func (s *Store) CompareAndSetLastSent(ctx context.Context, ownerID string, t notify.NotificationType, expect *time.Time, sentAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := prefKey{ownerID, t}
	p, ok := s.prefs[key]
	if !ok {
		return false, notify.ErrNotFound
	}
	if !sameInstant(p.LastSent, expect) {
		return false, nil
	}
	ts := sentAt
	p.LastSent = &ts
	p.UpdatedAt = sentAt
	s.prefs[key] = p
	return true, nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// EnsureDefaults creates any missing (owner, type) rows from an injected
// default table. Existing rows are left untouched.
func (s *Store) EnsureDefaults(ctx context.Context, ownerID, familyID string, defaults []notify.DefaultSpec, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range defaults {
		key := prefKey{ownerID, d.Type}
		if _, exists := s.prefs[key]; exists {
			continue
		}
		s.prefs[key] = d.Materialize(ownerID, familyID, now)
	}
	return nil
}

// --------------------------------------------------------------------------
// NotificationStore
// --------------------------------------------------------------------------

func (s *Store) InsertNotification(ctx context.Context, n *notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (*notify.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, notify.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *Store) UpdateNotification(ctx context.Context, n *notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[n.ID]; !ok {
		return notify.ErrNotFound
	}
	cp := *n
	s.notifications[n.ID] = &cp
	delete(s.claimed, n.ID)
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]*notify.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*notify.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*notify.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []*notify.Notification
	for _, n := range s.notifications {
		if s.claimed[n.ID] {
			continue
		}
		candidates = append(candidates, n)
	}
	due := notify.Due(candidates, now)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]*notify.Notification, 0, len(due))
	for _, n := range due {
		s.claimed[n.ID] = true
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) ListCreatedBetween(ctx context.Context, from, to *time.Time) ([]*notify.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*notify.Notification
	for _, n := range s.notifications {
		if from != nil && n.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && !n.CreatedAt.Before(*to) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CancelExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, n := range s.notifications {
		if n.Status == notify.StatusPending && n.Expired(now) && !s.claimed[n.ID] {
			n.Status = notify.StatusCancelled
			count++
		}
	}
	return count, nil
}

// --------------------------------------------------------------------------
// DeviceTokenStore
// --------------------------------------------------------------------------

// PutToken registers or replaces a device token. Registration is external
// in production; this exists for tests and seeding.
func (s *Store) PutToken(t Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.Token] = t
}

// TokenActive reports whether a token exists and is active.
func (s *Store) TokenActive(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[token]
	return ok && t.Active
}

func (s *Store) ActiveTokensForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, t := range s.tokens {
		if t.Active && t.UserID == userID {
			out = append(out, t.Token)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ActiveTokensForFamily(ctx context.Context, familyID, role string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, t := range s.tokens {
		if t.Active && t.FamilyID == familyID && (role == "" || t.Role == role) {
			out = append(out, t.Token)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DeactivateTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range tokens {
		if t, ok := s.tokens[tok]; ok {
			t.Active = false
			s.tokens[tok] = t
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// ReminderLog
// --------------------------------------------------------------------------

func (s *Store) ClaimReminder(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reminders[key] {
		return false, nil
	}
	s.reminders[key] = true
	return true, nil
}

// ReminderCount returns how many reminder keys have been claimed.
func (s *Store) ReminderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reminders)
}
