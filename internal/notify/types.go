// Package notify decides whether, when, and how a domain event from the
// HomeQuest app becomes delivered notifications.
//
// Pipeline: ingest event → resolve preferences → build notifications →
// schedule → dispatch to device tokens → record delivery status.
// A background dispatch worker sends due notifications via the push sender.
package notify

import (
	"errors"
	"time"
)

// --------------------------------------------------------------------------
// Notification types
// --------------------------------------------------------------------------

// NotificationType identifies the kind of domain event a notification
// originates from. One preference row exists per (owner, type).
type NotificationType string

const (
	TypeQuestCompleted   NotificationType = "quest_completed"
	TypeQuestReminder    NotificationType = "quest_reminder"
	TypeXPMilestone      NotificationType = "xp_milestone"
	TypeStreakMilestone  NotificationType = "streak_milestone"
	TypeStreakBroken     NotificationType = "streak_broken"
	TypeGoalMilestone    NotificationType = "goal_milestone"
	TypePenaltyApplied   NotificationType = "penalty_applied"
	TypeFirstAchievement NotificationType = "first_achievement"
	TypeDailySummary     NotificationType = "daily_summary"
	TypeWeeklySummary    NotificationType = "weekly_summary"
	TypeCustom           NotificationType = "custom"
)

// KnownTypes lists every valid notification type.
var KnownTypes = []NotificationType{
	TypeQuestCompleted, TypeQuestReminder, TypeXPMilestone,
	TypeStreakMilestone, TypeStreakBroken, TypeGoalMilestone,
	TypePenaltyApplied, TypeFirstAchievement, TypeDailySummary,
	TypeWeeklySummary, TypeCustom,
}

// ValidType reports whether t is a known notification type.
func ValidType(t NotificationType) bool {
	for _, k := range KnownTypes {
		if t == k {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Channels
// --------------------------------------------------------------------------

// Channel is a delivery channel tag.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in_app"
	ChannelSMS   Channel = "sms"
)

var knownChannels = map[Channel]bool{
	ChannelPush: true, ChannelEmail: true, ChannelInApp: true, ChannelSMS: true,
}

// ValidChannel reports whether c is a known channel tag.
func ValidChannel(c Channel) bool { return knownChannels[c] }

// --------------------------------------------------------------------------
// Priority
// --------------------------------------------------------------------------

// Priority orders notifications in the pending queue. Higher rank first.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityRanks = map[Priority]int{
	PriorityLow:    1,
	PriorityMedium: 2,
	PriorityHigh:   3,
	PriorityUrgent: 4,
}

// Rank returns the numeric rank of a priority, 0 for unknown values.
func (p Priority) Rank() int { return priorityRanks[p] }

// ValidPriority reports whether p is a known priority.
func ValidPriority(p Priority) bool { return priorityRanks[p] > 0 }

// --------------------------------------------------------------------------
// Frequency
// --------------------------------------------------------------------------

// Frequency throttles how often notifications of a type may be sent to
// an owner. FrequencyNever disables the type regardless of other fields.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyHourly    Frequency = "hourly"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyNever     Frequency = "never"
)

var frequencyIntervals = map[Frequency]time.Duration{
	FrequencyImmediate: 0,
	FrequencyHourly:    time.Hour,
	FrequencyDaily:     24 * time.Hour,
	FrequencyWeekly:    7 * 24 * time.Hour,
}

// ValidFrequency reports whether f is a known frequency.
func ValidFrequency(f Frequency) bool {
	if f == FrequencyNever {
		return true
	}
	_, ok := frequencyIntervals[f]
	return ok
}

// --------------------------------------------------------------------------
// Status lifecycle
// --------------------------------------------------------------------------

// Status is the notification lifecycle state. Transitions are monotonic:
// pending → sent → delivered → read, pending|sent → failed,
// pending → cancelled. No transition ever moves backward.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {StatusSent: true, StatusFailed: true, StatusCancelled: true},
	StatusSent:    {StatusDelivered: true, StatusFailed: true},
	StatusDelivered: {
		StatusRead: true,
	},
}

// Sentinel errors for lifecycle violations.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrExpired           = errors.New("notification expired")
)

// --------------------------------------------------------------------------
// Notification
// --------------------------------------------------------------------------

// Notification is one deliverable message for one recipient (a user, or a
// family-wide audience resolved at dispatch time).
type Notification struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id,omitempty"`
	FamilyID string `json:"family_id,omitempty"`
	// TargetRole restricts family-wide delivery to tokens of one role
	// (e.g. "parent"). Empty means all family members.
	TargetRole string            `json:"target_role,omitempty"`
	Type       NotificationType  `json:"type"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Data       map[string]string `json:"data,omitempty"`
	Channels   []Channel         `json:"channels"`
	Priority   Priority          `json:"priority"`
	Status     Status            `json:"status"`

	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`

	Actionable bool   `json:"actionable,omitempty"`
	ActionRef  string `json:"action_ref,omitempty"`
}

// Expired reports whether the notification is past its expiry instant.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// Terminal reports whether the status admits no further transitions.
func (n *Notification) Terminal() bool {
	return n.Status == StatusRead || n.Status == StatusFailed || n.Status == StatusCancelled
}

// Transition moves the notification to a new status, stamping the matching
// timestamp. An expired notification may not leave pending or failed.
func (n *Notification) Transition(to Status, now time.Time) error {
	if !allowedTransitions[n.Status][to] {
		return ErrInvalidTransition
	}
	if n.Expired(now) && (n.Status == StatusPending || n.Status == StatusFailed) && to != StatusCancelled {
		return ErrExpired
	}
	n.Status = to
	ts := now
	switch to {
	case StatusSent:
		n.SentAt = &ts
	case StatusDelivered:
		n.DeliveredAt = &ts
	case StatusRead:
		n.ReadAt = &ts
	case StatusFailed:
		n.FailedAt = &ts
	}
	return nil
}

// Fail marks the notification failed with a reason.
func (n *Notification) Fail(reason string, now time.Time) error {
	if err := n.Transition(StatusFailed, now); err != nil {
		return err
	}
	n.FailureReason = reason
	return nil
}

// Cancel moves a pending notification to cancelled. Cancellation is
// advisory: once dispatch has started (status != pending) it is refused.
func (n *Notification) Cancel() error {
	if n.Status != StatusPending {
		return ErrInvalidTransition
	}
	n.Status = StatusCancelled
	return nil
}
