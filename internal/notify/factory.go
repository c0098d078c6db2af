package notify

import (
	"time"

	"github.com/google/uuid"
)

// Build materializes a notification from a request and the matching
// preference. Returns nil when the preference suppresses the request
// (disabled, quiet hours, throttled). Channels and priority come verbatim
// from the preference, never from the caller.
func Build(req Request, p *Preference, now time.Time) *Notification {
	if p == nil || !ShouldDispatch(p, now, p.LastSent) {
		return nil
	}

	n := &Notification{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		FamilyID:   req.FamilyID,
		TargetRole: req.TargetRole,
		Type:       req.Type,
		Title:      req.Title,
		Message:    req.Message,
		Data:       req.Data,
		Channels:   append([]Channel(nil), p.Channels...),
		Priority:   p.Priority,
		Status:     StatusPending,
		ExpiresAt:  req.ExpiresAt,
		CreatedAt:  now,
		Actionable: req.Actionable,
		ActionRef:  req.ActionRef,
	}

	// A deadline-carrying request is scheduled advanceHours ahead of the
	// deadline; without a positive advance it is immediately eligible.
	if p.AdvanceHours > 0 && req.ScheduledTime != nil {
		at := req.ScheduledTime.Add(-time.Duration(p.AdvanceHours) * time.Hour)
		n.ScheduledFor = &at
	}
	return n
}

// BuildFamily repeats single-recipient creation for every member preference
// of the target family, skipping excluded users. Each produced notification
// is an independent record addressed to one member.
func BuildFamily(req Request, prefs []Preference, now time.Time) []*Notification {
	var out []*Notification
	for i := range prefs {
		p := &prefs[i]
		if req.Excludes(p.OwnerID) {
			continue
		}
		member := req
		member.UserID = p.OwnerID
		member.FamilyID = ""
		member.TargetRole = ""
		if n := Build(member, p, now); n != nil {
			out = append(out, n)
		}
	}
	return out
}
