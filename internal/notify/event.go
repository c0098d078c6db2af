package notify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event is a typed domain event that can be ingested into zero or more
// notification requests. Ingest returns validation problems for a
// malformed event instead of requests.
type Event interface {
	Ingest() ([]Request, []string)
}

// Request is a normalized notification request: one domain event reduced to
// the fields the factory needs. A request targets either a single user or a
// whole family (minus ExcludeUsers).
type Request struct {
	Type          NotificationType  `json:"type"`
	UserID        string            `json:"user_id,omitempty"`
	FamilyID      string            `json:"family_id,omitempty"`
	TargetRole    string            `json:"target_role,omitempty"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	Data          map[string]string `json:"data,omitempty"`
	ScheduledTime *time.Time        `json:"scheduled_time,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	ExcludeUsers  []string          `json:"exclude_users,omitempty"`
	Actionable    bool              `json:"actionable,omitempty"`
	ActionRef     string            `json:"action_ref,omitempty"`
}

// Validate checks the request at the ingestion boundary.
func (r *Request) Validate() []string {
	var errs []string
	if !ValidType(r.Type) {
		errs = append(errs, fmt.Sprintf("unknown notification type %q", r.Type))
	}
	if r.UserID == "" && r.FamilyID == "" {
		errs = append(errs, "user_id or family_id is required")
	}
	if r.Title == "" {
		errs = append(errs, "title is required")
	}
	if r.Message == "" {
		errs = append(errs, "message is required")
	}
	return errs
}

// Excludes reports whether a user is excluded from a family-wide request.
func (r *Request) Excludes(userID string) bool {
	for _, u := range r.ExcludeUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Typed domain events
//
// Each event variant carries the required fields for its type and is
// validated before any request is produced. Cumulative-metric events run
// threshold-crossing detection here, so a raw activity delta becomes at
// most one request per checkpoint crossed.
// --------------------------------------------------------------------------

// DecodeEvent maps a wire event kind onto its typed variant and decodes
// the JSON payload into it. Unknown kinds are rejected at the boundary,
// never defaulted.
func DecodeEvent(kind string, payload []byte) (Event, error) {
	var e Event
	switch kind {
	case "quest_completed":
		e = &QuestCompletedEvent{}
	case "streak":
		e = &StreakEvent{}
	case "goal_progress":
		e = &GoalProgressEvent{}
	case "penalty":
		e = &PenaltyEvent{}
	case "quest_deadline":
		e = &QuestDeadlineEvent{}
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return e, nil
}

// QuestCompletedEvent fires when a child finishes a quest.
type QuestCompletedEvent struct {
	UserID           string `json:"user_id"`
	FamilyID         string `json:"family_id"`
	QuestID          string `json:"quest_id"`
	QuestTitle       string `json:"quest_title"`
	ChildName        string `json:"child_name"`
	XPEarned         int    `json:"xp_earned"`
	PrevXPTotal      int    `json:"prev_xp_total"`
	PriorCompletions int    `json:"prior_completions"`
}

// Ingest turns a quest completion into requests: a family announcement
// (excluding the child who completed it), one request per XP milestone the
// earned XP crossed, and a first-achievement request when this was the
// child's first completion ever.
func (e QuestCompletedEvent) Ingest() ([]Request, []string) {
	var errs []string
	if e.UserID == "" {
		errs = append(errs, "user_id is required")
	}
	if e.FamilyID == "" {
		errs = append(errs, "family_id is required")
	}
	if e.QuestID == "" {
		errs = append(errs, "quest_id is required")
	}
	if e.XPEarned < 0 {
		errs = append(errs, "xp_earned must be >= 0")
	}
	if len(errs) > 0 {
		return nil, errs
	}

	name := e.ChildName
	if name == "" {
		name = "Someone"
	}
	reqs := []Request{{
		Type:         TypeQuestCompleted,
		FamilyID:     e.FamilyID,
		Title:        "Quest completed!",
		Message:      fmt.Sprintf("%s completed %q and earned %d XP", name, e.QuestTitle, e.XPEarned),
		Data:         map[string]string{"quest_id": e.QuestID, "user_id": e.UserID},
		ExcludeUsers: []string{e.UserID},
	}}

	for _, m := range CrossedXPMilestones(e.PrevXPTotal, e.XPEarned) {
		reqs = append(reqs, Request{
			Type:    TypeXPMilestone,
			UserID:  e.UserID,
			Title:   "Milestone reached!",
			Message: fmt.Sprintf("You passed %d XP — keep it up!", m),
			Data:    map[string]string{"milestone": strconv.Itoa(m), "total_xp": strconv.Itoa(e.PrevXPTotal + e.XPEarned)},
		})
	}

	if FirstCompletion(e.PriorCompletions) {
		reqs = append(reqs, Request{
			Type:    TypeFirstAchievement,
			UserID:  e.UserID,
			Title:   "First quest done!",
			Message: fmt.Sprintf("You completed your very first quest: %q", e.QuestTitle),
			Data:    map[string]string{"quest_id": e.QuestID},
		})
	}
	return reqs, nil
}

// StreakEvent fires when a user's daily streak changes length or breaks.
type StreakEvent struct {
	UserID    string `json:"user_id"`
	FamilyID  string `json:"family_id"`
	Length    int    `json:"length"`
	Broken    bool   `json:"broken"`
	WasActive bool   `json:"was_active"`
}

// Ingest produces a streak-milestone request on an exact checkpoint hit, or
// a single streak-broken request when an active streak transitions to
// broken. A streak that was already broken produces nothing.
func (e StreakEvent) Ingest() ([]Request, []string) {
	var errs []string
	if e.UserID == "" {
		errs = append(errs, "user_id is required")
	}
	if e.Length < 0 {
		errs = append(errs, "length must be >= 0")
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if e.Broken {
		if !e.WasActive {
			return nil, nil
		}
		return []Request{{
			Type:    TypeStreakBroken,
			UserID:  e.UserID,
			Title:   "Streak broken",
			Message: "Your streak ended — start a new one today!",
			Data:    map[string]string{"last_length": strconv.Itoa(e.Length)},
		}}, nil
	}

	m, ok := StreakMilestone(e.Length)
	if !ok {
		return nil, nil
	}
	return []Request{{
		Type:    TypeStreakMilestone,
		UserID:  e.UserID,
		Title:   fmt.Sprintf("%d-day streak!", m),
		Message: fmt.Sprintf("You've kept your streak going for %d days", m),
		Data:    map[string]string{"streak": strconv.Itoa(m)},
	}}, nil
}

// GoalProgressEvent fires when a family goal's completion percentage moves.
type GoalProgressEvent struct {
	FamilyID  string  `json:"family_id"`
	GoalID    string  `json:"goal_id"`
	GoalTitle string  `json:"goal_title"`
	OldPct    float64 `json:"old_pct"`
	NewPct    float64 `json:"new_pct"`
}

// Ingest produces at most one family-wide request, for the first milestone
// crossed by this update.
func (e GoalProgressEvent) Ingest() ([]Request, []string) {
	var errs []string
	if e.FamilyID == "" {
		errs = append(errs, "family_id is required")
	}
	if e.GoalID == "" {
		errs = append(errs, "goal_id is required")
	}
	if len(errs) > 0 {
		return nil, errs
	}

	m, ok := GoalMilestone(e.OldPct, e.NewPct)
	if !ok {
		return nil, nil
	}
	return []Request{{
		Type:     TypeGoalMilestone,
		FamilyID: e.FamilyID,
		Title:    "Family goal progress!",
		Message:  fmt.Sprintf("%q is %d%% complete", e.GoalTitle, int(m)),
		Data:     map[string]string{"goal_id": e.GoalID, "milestone": strconv.FormatFloat(m, 'f', -1, 64)},
	}}, nil
}

// PenaltyEvent fires when a parent applies a penalty to a child.
type PenaltyEvent struct {
	UserID   string `json:"user_id"`
	FamilyID string `json:"family_id"`
	Reason   string `json:"reason"`
	Points   int    `json:"points"`
}

// Ingest produces a single request for the penalized user.
func (e PenaltyEvent) Ingest() ([]Request, []string) {
	var errs []string
	if e.UserID == "" {
		errs = append(errs, "user_id is required")
	}
	if e.Reason == "" {
		errs = append(errs, "reason is required")
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return []Request{{
		Type:    TypePenaltyApplied,
		UserID:  e.UserID,
		Title:   "Penalty applied",
		Message: fmt.Sprintf("You lost %d points: %s", e.Points, e.Reason),
		Data:    map[string]string{"points": strconv.Itoa(e.Points)},
	}}, nil
}

// QuestDeadlineEvent describes an upcoming quest deadline eligible for an
// advance reminder. ScheduledTime carries the deadline so the factory can
// apply the preference's advance-hours offset.
type QuestDeadlineEvent struct {
	UserID     string    `json:"user_id"`
	QuestID    string    `json:"quest_id"`
	QuestTitle string    `json:"quest_title"`
	Deadline   time.Time `json:"deadline"`
}

// Ingest produces a reminder request scheduled around the deadline.
func (e QuestDeadlineEvent) Ingest() ([]Request, []string) {
	var errs []string
	if e.UserID == "" {
		errs = append(errs, "user_id is required")
	}
	if e.QuestID == "" {
		errs = append(errs, "quest_id is required")
	}
	if e.Deadline.IsZero() {
		errs = append(errs, "deadline is required")
	}
	if len(errs) > 0 {
		return nil, errs
	}
	deadline := e.Deadline
	expires := e.Deadline
	return []Request{{
		Type:          TypeQuestReminder,
		UserID:        e.UserID,
		Title:         "Quest due soon",
		Message:       fmt.Sprintf("%q is due at %s", e.QuestTitle, e.Deadline.Format("15:04")),
		Data:          map[string]string{"quest_id": e.QuestID},
		ScheduledTime: &deadline,
		ExpiresAt:     &expires,
		Actionable:    true,
		ActionRef:     "quest/" + e.QuestID,
	}}, nil
}
