package notify

import (
	"fmt"
	"time"
)

// Preference is the per-(owner, type) delivery settings record. At most one
// active preference exists per (owner, type). Rows are soft state: they are
// created with defaults at provisioning and mutated in place, never removed.
type Preference struct {
	OwnerID  string           `json:"owner_id"`
	FamilyID string           `json:"family_id,omitempty"`
	Type     NotificationType `json:"type"`

	Enabled   bool      `json:"enabled"`
	Channels  []Channel `json:"channels"`
	Frequency Frequency `json:"frequency"`
	Priority  Priority  `json:"priority"`

	// Quiet hours window in the owner's local clock, "HH:MM". The window
	// may wrap past midnight (start > end).
	QuietHours      bool   `json:"quiet_hours"`
	QuietHoursStart string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   string `json:"quiet_hours_end,omitempty"`

	// AdvanceHours is the lead time before a deadline-carrying event
	// (quest reminders). Zero means notify at event time.
	AdvanceHours int `json:"advance_hours"`

	// Fixed-time digest schedule. ScheduledDay uses time.Weekday numbering.
	ScheduledHour *int          `json:"scheduled_hour,omitempty"`
	ScheduledDay  *time.Weekday `json:"scheduled_day,omitempty"`

	LastSent  *time.Time `json:"last_sent,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Validate checks the preference at configuration time and returns every
// problem found. Invalid preferences are rejected, never silently defaulted.
func (p *Preference) Validate() []string {
	var errs []string
	if p.OwnerID == "" {
		errs = append(errs, "owner_id is required")
	}
	if !ValidType(p.Type) {
		errs = append(errs, fmt.Sprintf("unknown notification type %q", p.Type))
	}
	if !ValidFrequency(p.Frequency) {
		errs = append(errs, fmt.Sprintf("unknown frequency %q", p.Frequency))
	}
	if !ValidPriority(p.Priority) {
		errs = append(errs, fmt.Sprintf("unknown priority %q", p.Priority))
	}
	if len(p.Channels) == 0 {
		errs = append(errs, "channels must be a non-empty list")
	}
	for _, c := range p.Channels {
		if !ValidChannel(c) {
			errs = append(errs, fmt.Sprintf("unknown channel %q", c))
		}
	}
	if p.QuietHours {
		if _, err := parseClock(p.QuietHoursStart); err != nil {
			errs = append(errs, fmt.Sprintf("quiet_hours_start: %v", err))
		}
		if _, err := parseClock(p.QuietHoursEnd); err != nil {
			errs = append(errs, fmt.Sprintf("quiet_hours_end: %v", err))
		}
	}
	if p.AdvanceHours < 0 {
		errs = append(errs, "advance_hours must be >= 0")
	}
	if p.ScheduledHour != nil && (*p.ScheduledHour < 0 || *p.ScheduledHour > 23) {
		errs = append(errs, "scheduled_hour must be in 0..23")
	}
	if p.ScheduledDay != nil && (*p.ScheduledDay < time.Sunday || *p.ScheduledDay > time.Saturday) {
		errs = append(errs, "scheduled_day must be in 0..6")
	}
	return errs
}

// --------------------------------------------------------------------------
// Default preference table
// --------------------------------------------------------------------------

// DefaultSpec is one row of the injected default-preference table applied
// when an owner is provisioned.
type DefaultSpec struct {
	Type      NotificationType
	Enabled   bool
	Channels  []Channel
	Frequency Frequency
	Priority  Priority

	QuietHours      bool
	QuietHoursStart string
	QuietHoursEnd   string
	AdvanceHours    int
	ScheduledHour   *int
	ScheduledDay    *time.Weekday
}

// Materialize builds a concrete preference for an owner from a default row.
func (d DefaultSpec) Materialize(ownerID, familyID string, now time.Time) Preference {
	return Preference{
		OwnerID:         ownerID,
		FamilyID:        familyID,
		Type:            d.Type,
		Enabled:         d.Enabled,
		Channels:        append([]Channel(nil), d.Channels...),
		Frequency:       d.Frequency,
		Priority:        d.Priority,
		QuietHours:      d.QuietHours,
		QuietHoursStart: d.QuietHoursStart,
		QuietHoursEnd:   d.QuietHoursEnd,
		AdvanceHours:    d.AdvanceHours,
		ScheduledHour:   d.ScheduledHour,
		ScheduledDay:    d.ScheduledDay,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// DefaultTable returns the stock default-preference table. It is built fresh
// on every call so callers can adjust their copy before injecting it.
func DefaultTable() []DefaultSpec {
	nineAM := 9
	sunday := time.Sunday
	return []DefaultSpec{
		{Type: TypeQuestCompleted, Enabled: true, Channels: []Channel{ChannelPush, ChannelInApp}, Frequency: FrequencyImmediate, Priority: PriorityMedium},
		{Type: TypeQuestReminder, Enabled: true, Channels: []Channel{ChannelPush}, Frequency: FrequencyImmediate, Priority: PriorityHigh, AdvanceHours: 2},
		{Type: TypeXPMilestone, Enabled: true, Channels: []Channel{ChannelPush, ChannelInApp}, Frequency: FrequencyImmediate, Priority: PriorityMedium},
		{Type: TypeStreakMilestone, Enabled: true, Channels: []Channel{ChannelPush, ChannelInApp}, Frequency: FrequencyImmediate, Priority: PriorityMedium},
		{Type: TypeStreakBroken, Enabled: true, Channels: []Channel{ChannelPush}, Frequency: FrequencyDaily, Priority: PriorityLow},
		{Type: TypeGoalMilestone, Enabled: true, Channels: []Channel{ChannelPush, ChannelInApp}, Frequency: FrequencyImmediate, Priority: PriorityHigh},
		{Type: TypePenaltyApplied, Enabled: true, Channels: []Channel{ChannelPush, ChannelInApp}, Frequency: FrequencyImmediate, Priority: PriorityHigh},
		{Type: TypeFirstAchievement, Enabled: true, Channels: []Channel{ChannelPush, ChannelInApp}, Frequency: FrequencyImmediate, Priority: PriorityHigh},
		{Type: TypeDailySummary, Enabled: false, Channels: []Channel{ChannelPush}, Frequency: FrequencyDaily, Priority: PriorityLow, ScheduledHour: &nineAM},
		{Type: TypeWeeklySummary, Enabled: false, Channels: []Channel{ChannelEmail}, Frequency: FrequencyWeekly, Priority: PriorityLow, ScheduledHour: &nineAM, ScheduledDay: &sunday},
		{Type: TypeCustom, Enabled: true, Channels: []Channel{ChannelPush}, Frequency: FrequencyImmediate, Priority: PriorityMedium},
	}
}
