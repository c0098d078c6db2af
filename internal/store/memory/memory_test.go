package memory

import (
	"context"
	"testing"
	"time"

	"github.com/homequest/homequest-notify/internal/notify"
)

var clock = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, st *Store, owner string) {
	t.Helper()
	err := st.PutPreference(context.Background(), notify.Preference{
		OwnerID:   owner,
		FamilyID:  "fam-1",
		Type:      notify.TypeQuestCompleted,
		Enabled:   true,
		Channels:  []notify.Channel{notify.ChannelPush},
		Frequency: notify.FrequencyImmediate,
		Priority:  notify.PriorityMedium,
		CreatedAt: clock,
		UpdatedAt: clock,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestCompareAndSetLastSent(t *testing.T) {
	st := New()
	ctx := context.Background()
	seed(t, st, "u1")

	// First writer: expects nil, wins.
	ok, err := st.CompareAndSetLastSent(ctx, "u1", notify.TypeQuestCompleted, nil, clock)
	if err != nil || !ok {
		t.Fatalf("first CAS = (%v, %v), want win", ok, err)
	}

	// Stale writer: still expects nil, loses.
	ok, err = st.CompareAndSetLastSent(ctx, "u1", notify.TypeQuestCompleted, nil, clock.Add(time.Second))
	if err != nil {
		t.Fatalf("stale CAS error: %v", err)
	}
	if ok {
		t.Fatal("stale CAS won against a newer value")
	}

	// Fresh writer: expects the current value, wins.
	cur := clock
	ok, err = st.CompareAndSetLastSent(ctx, "u1", notify.TypeQuestCompleted, &cur, clock.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("fresh CAS = (%v, %v), want win", ok, err)
	}

	// Unknown row.
	if _, err := st.CompareAndSetLastSent(ctx, "ghost", notify.TypeQuestCompleted, nil, clock); err != notify.ErrNotFound {
		t.Errorf("unknown row error = %v, want ErrNotFound", err)
	}
}

func TestPutPreferenceValidates(t *testing.T) {
	st := New()
	err := st.PutPreference(context.Background(), notify.Preference{OwnerID: "u1"})
	if _, ok := err.(*notify.ValidationError); !ok {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestClaimDueClaimsOnce(t *testing.T) {
	st := New()
	ctx := context.Background()

	n := &notify.Notification{
		ID: "n1", UserID: "u1", Type: notify.TypeCustom, Title: "t", Message: "m",
		Channels: []notify.Channel{notify.ChannelPush}, Priority: notify.PriorityMedium,
		Status: notify.StatusPending, CreatedAt: clock,
	}
	if err := st.InsertNotification(ctx, n); err != nil {
		t.Fatal(err)
	}

	first, err := st.ClaimDue(ctx, clock, 10)
	if err != nil || len(first) != 1 {
		t.Fatalf("first claim = (%d, %v), want 1 record", len(first), err)
	}
	second, err := st.ClaimDue(ctx, clock, 10)
	if err != nil || len(second) != 0 {
		t.Fatalf("second claim = (%d, %v), want 0 while the record is claimed", len(second), err)
	}

	// A status write releases the claim.
	first[0].Status = notify.StatusFailed
	if err := st.UpdateNotification(ctx, first[0]); err != nil {
		t.Fatal(err)
	}
	third, err := st.ClaimDue(ctx, clock, 10)
	if err != nil || len(third) != 0 {
		t.Fatalf("third claim = (%d, %v), failed record must not be due", len(third), err)
	}
}

func TestEnsureDefaultsIdempotent(t *testing.T) {
	st := New()
	ctx := context.Background()
	defaults := notify.DefaultTable()

	if err := st.EnsureDefaults(ctx, "u1", "fam-1", defaults, clock); err != nil {
		t.Fatal(err)
	}
	prefs, err := st.ListPreferences(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(prefs) != len(defaults) {
		t.Fatalf("provisioned %d rows, want %d", len(prefs), len(defaults))
	}

	// Mutate one row, re-provision, and verify the edit survives.
	edited := prefs[0]
	edited.Enabled = false
	if err := st.PutPreference(ctx, edited); err != nil {
		t.Fatal(err)
	}
	if err := st.EnsureDefaults(ctx, "u1", "fam-1", defaults, clock.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, err := st.GetPreference(ctx, edited.OwnerID, edited.Type)
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled {
		t.Error("re-provisioning overwrote an existing row")
	}
}

func TestFamilyTokenLookup(t *testing.T) {
	st := New()
	ctx := context.Background()
	st.PutToken(Token{Token: "mom-phone", UserID: "mom", FamilyID: "fam-1", Role: "parent", Active: true})
	st.PutToken(Token{Token: "dad-phone", UserID: "dad", FamilyID: "fam-1", Role: "parent", Active: true})
	st.PutToken(Token{Token: "alex-tablet", UserID: "alex", FamilyID: "fam-1", Role: "child", Active: true})
	st.PutToken(Token{Token: "old-phone", UserID: "mom", FamilyID: "fam-1", Role: "parent", Active: false})
	st.PutToken(Token{Token: "stranger", UserID: "x", FamilyID: "fam-2", Role: "parent", Active: true})

	all, err := st.ActiveTokensForFamily(ctx, "fam-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("family tokens = %v, want 3", all)
	}

	parents, err := st.ActiveTokensForFamily(ctx, "fam-1", "parent")
	if err != nil {
		t.Fatal(err)
	}
	if len(parents) != 2 {
		t.Errorf("parent tokens = %v, want 2", parents)
	}

	if err := st.DeactivateTokens(ctx, []string{"dad-phone"}); err != nil {
		t.Fatal(err)
	}
	if st.TokenActive("dad-phone") {
		t.Error("dad-phone still active after deactivation")
	}
	if !st.TokenActive("mom-phone") {
		t.Error("mom-phone deactivated by mistake")
	}
}

func TestListCreatedBetween(t *testing.T) {
	st := New()
	ctx := context.Background()
	for i, created := range []time.Time{
		clock.Add(-2 * time.Hour),
		clock.Add(-time.Hour),
		clock,
	} {
		n := &notify.Notification{
			ID: string(rune('a' + i)), UserID: "u1", Type: notify.TypeCustom,
			Title: "t", Message: "m", Channels: []notify.Channel{notify.ChannelPush},
			Priority: notify.PriorityLow, Status: notify.StatusPending, CreatedAt: created,
		}
		if err := st.InsertNotification(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	from := clock.Add(-90 * time.Minute)
	to := clock // exclusive
	got, err := st.ListCreatedBetween(ctx, &from, &to)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("ListCreatedBetween = %+v, want only the middle record", got)
	}

	open, err := st.ListCreatedBetween(ctx, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 3 {
		t.Errorf("open range = %d records, want 3", len(open))
	}
}
