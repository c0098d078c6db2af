package notify

import (
	"testing"
	"time"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		payload string
		wantErr bool
	}{
		{name: "quest completed", kind: "quest_completed", payload: `{"user_id":"u1","family_id":"f1","quest_id":"q1"}`},
		{name: "streak", kind: "streak", payload: `{"user_id":"u1","length":7}`},
		{name: "goal progress", kind: "goal_progress", payload: `{"family_id":"f1","goal_id":"g1"}`},
		{name: "penalty", kind: "penalty", payload: `{"user_id":"u1","reason":"late"}`},
		{name: "quest deadline", kind: "quest_deadline", payload: `{"user_id":"u1","quest_id":"q1","deadline":"2026-03-14T18:00:00Z"}`},
		{name: "unknown kind", kind: "birthday", payload: `{}`, wantErr: true},
		{name: "malformed payload", kind: "streak", payload: `{"length":"seven"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := DecodeEvent(tt.kind, []byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeEvent error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && e == nil {
				t.Fatal("DecodeEvent returned nil event without error")
			}
		})
	}
}

func TestQuestCompletedIngest(t *testing.T) {
	t.Run("validation problems", func(t *testing.T) {
		e := QuestCompletedEvent{}
		reqs, problems := e.Ingest()
		if reqs != nil {
			t.Error("invalid event produced requests")
		}
		if len(problems) == 0 {
			t.Error("missing fields produced no problems")
		}
	})

	t.Run("announcement excludes the actor", func(t *testing.T) {
		e := QuestCompletedEvent{
			UserID: "alex", FamilyID: "fam-1", QuestID: "q1",
			QuestTitle: "Dishes", ChildName: "Alex",
			XPEarned: 10, PrevXPTotal: 10, PriorCompletions: 3,
		}
		reqs, problems := e.Ingest()
		if len(problems) > 0 {
			t.Fatalf("unexpected problems: %v", problems)
		}
		if len(reqs) != 1 {
			t.Fatalf("got %d requests, want 1", len(reqs))
		}
		r := reqs[0]
		if r.Type != TypeQuestCompleted || r.FamilyID != "fam-1" {
			t.Errorf("announcement = %+v", r)
		}
		if !r.Excludes("alex") {
			t.Error("announcement does not exclude the actor")
		}
		if r.Excludes("mom") {
			t.Error("announcement excludes a bystander")
		}
	})

	t.Run("milestones and first achievement fan out", func(t *testing.T) {
		e := QuestCompletedEvent{
			UserID: "alex", FamilyID: "fam-1", QuestID: "q1",
			QuestTitle: "Dishes", XPEarned: 100, PrevXPTotal: 450,
			PriorCompletions: 0,
		}
		reqs, problems := e.Ingest()
		if len(problems) > 0 {
			t.Fatalf("unexpected problems: %v", problems)
		}
		byType := map[NotificationType]int{}
		for _, r := range reqs {
			byType[r.Type]++
		}
		if byType[TypeQuestCompleted] != 1 {
			t.Errorf("quest_completed requests = %d, want 1", byType[TypeQuestCompleted])
		}
		if byType[TypeXPMilestone] != 1 {
			t.Errorf("xp_milestone requests = %d, want 1 (450+100 crosses 500)", byType[TypeXPMilestone])
		}
		if byType[TypeFirstAchievement] != 1 {
			t.Errorf("first_achievement requests = %d, want 1", byType[TypeFirstAchievement])
		}
		for _, r := range reqs {
			if r.Type != TypeQuestCompleted && r.UserID != "alex" {
				t.Errorf("%s targeted %q, want the actor", r.Type, r.UserID)
			}
		}
	})
}

func TestStreakIngest(t *testing.T) {
	tests := []struct {
		name     string
		event    StreakEvent
		wantType NotificationType
		wantNone bool
	}{
		{
			name:     "checkpoint hit",
			event:    StreakEvent{UserID: "u1", Length: 7},
			wantType: TypeStreakMilestone,
		},
		{
			name:     "non-checkpoint length",
			event:    StreakEvent{UserID: "u1", Length: 8},
			wantNone: true,
		},
		{
			name:     "active streak breaks",
			event:    StreakEvent{UserID: "u1", Length: 12, Broken: true, WasActive: true},
			wantType: TypeStreakBroken,
		},
		{
			name:     "already-broken streak stays silent",
			event:    StreakEvent{UserID: "u1", Length: 0, Broken: true, WasActive: false},
			wantNone: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs, problems := tt.event.Ingest()
			if len(problems) > 0 {
				t.Fatalf("unexpected problems: %v", problems)
			}
			if tt.wantNone {
				if len(reqs) != 0 {
					t.Fatalf("got %d requests, want none", len(reqs))
				}
				return
			}
			if len(reqs) != 1 || reqs[0].Type != tt.wantType {
				t.Fatalf("got %+v, want one %s request", reqs, tt.wantType)
			}
		})
	}
}

func TestGoalProgressIngest(t *testing.T) {
	e := GoalProgressEvent{FamilyID: "fam-1", GoalID: "g1", GoalTitle: "Park trip", OldPct: 20, NewPct: 80}
	reqs, problems := e.Ingest()
	if len(problems) > 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1 (first checkpoint only)", len(reqs))
	}
	if reqs[0].Type != TypeGoalMilestone || reqs[0].FamilyID != "fam-1" {
		t.Errorf("request = %+v", reqs[0])
	}
	if reqs[0].Data["milestone"] != "25" {
		t.Errorf("milestone = %q, want 25", reqs[0].Data["milestone"])
	}
}

func TestQuestDeadlineIngest(t *testing.T) {
	deadline := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	e := QuestDeadlineEvent{UserID: "u1", QuestID: "q1", QuestTitle: "Homework", Deadline: deadline}
	reqs, problems := e.Ingest()
	if len(problems) > 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	r := reqs[0]
	if r.Type != TypeQuestReminder {
		t.Errorf("type = %s", r.Type)
	}
	if r.ScheduledTime == nil || !r.ScheduledTime.Equal(deadline) {
		t.Errorf("ScheduledTime = %v, want the deadline", r.ScheduledTime)
	}
	if r.ExpiresAt == nil || !r.ExpiresAt.Equal(deadline) {
		t.Errorf("ExpiresAt = %v, want the deadline", r.ExpiresAt)
	}
	if !r.Actionable || r.ActionRef != "quest/q1" {
		t.Errorf("action = (%v, %q)", r.Actionable, r.ActionRef)
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		problems int
	}{
		{
			name: "valid single target",
			req:  Request{Type: TypeCustom, UserID: "u1", Title: "Hi", Message: "There"},
		},
		{
			name: "valid family target",
			req:  Request{Type: TypeCustom, FamilyID: "f1", Title: "Hi", Message: "There"},
		},
		{
			name:     "no target",
			req:      Request{Type: TypeCustom, Title: "Hi", Message: "There"},
			problems: 1,
		},
		{
			name:     "everything missing",
			req:      Request{Type: "bogus"},
			problems: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Validate(); len(got) != tt.problems {
				t.Errorf("Validate = %v, want %d problems", got, tt.problems)
			}
		})
	}
}
