package notify

import (
	"errors"
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr error
	}{
		{name: "pending to sent", from: StatusPending, to: StatusSent},
		{name: "pending to failed", from: StatusPending, to: StatusFailed},
		{name: "pending to cancelled", from: StatusPending, to: StatusCancelled},
		{name: "sent to delivered", from: StatusSent, to: StatusDelivered},
		{name: "sent to failed", from: StatusSent, to: StatusFailed},
		{name: "delivered to read", from: StatusDelivered, to: StatusRead},
		{name: "pending to delivered skips sent", from: StatusPending, to: StatusDelivered, wantErr: ErrInvalidTransition},
		{name: "pending to read skips sent", from: StatusPending, to: StatusRead, wantErr: ErrInvalidTransition},
		{name: "sent to pending moves backward", from: StatusSent, to: StatusPending, wantErr: ErrInvalidTransition},
		{name: "sent to cancelled after dispatch", from: StatusSent, to: StatusCancelled, wantErr: ErrInvalidTransition},
		{name: "delivered to failed", from: StatusDelivered, to: StatusFailed, wantErr: ErrInvalidTransition},
		{name: "read is terminal", from: StatusRead, to: StatusDelivered, wantErr: ErrInvalidTransition},
		{name: "failed is terminal", from: StatusFailed, to: StatusSent, wantErr: ErrInvalidTransition},
		{name: "cancelled is terminal", from: StatusCancelled, to: StatusSent, wantErr: ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Notification{ID: "n1", Status: tt.from}
			err := n.Transition(tt.to, now)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Transition(%s -> %s) = %v, want %v", tt.from, tt.to, err, tt.wantErr)
			}
			if tt.wantErr == nil && n.Status != tt.to {
				t.Errorf("status = %s, want %s", n.Status, tt.to)
			}
			if tt.wantErr != nil && n.Status != tt.from {
				t.Errorf("status changed to %s on rejected transition", n.Status)
			}
		})
	}
}

func TestTransitionTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	n := &Notification{ID: "n1", Status: StatusPending}

	if err := n.Transition(StatusSent, now); err != nil {
		t.Fatalf("to sent: %v", err)
	}
	if n.SentAt == nil || !n.SentAt.Equal(now) {
		t.Errorf("SentAt = %v, want %v", n.SentAt, now)
	}

	later := now.Add(2 * time.Second)
	if err := n.Transition(StatusDelivered, later); err != nil {
		t.Fatalf("to delivered: %v", err)
	}
	if n.DeliveredAt == nil || !n.DeliveredAt.Equal(later) {
		t.Errorf("DeliveredAt = %v, want %v", n.DeliveredAt, later)
	}
}

func TestExpiredNotificationFrozen(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	n := &Notification{ID: "n1", Status: StatusPending, ExpiresAt: &past}
	if !n.Expired(now) {
		t.Fatal("Expired = false, want true")
	}
	if err := n.Transition(StatusSent, now); !errors.Is(err, ErrExpired) {
		t.Errorf("expired pending to sent = %v, want ErrExpired", err)
	}
	if err := n.Transition(StatusFailed, now); !errors.Is(err, ErrExpired) {
		t.Errorf("expired pending to failed = %v, want ErrExpired", err)
	}
	// Cancellation remains possible so cleanup can retire the record.
	if err := n.Transition(StatusCancelled, now); err != nil {
		t.Errorf("expired pending to cancelled = %v, want nil", err)
	}
}

func TestExpiryDoesNotFreezeInFlight(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	// A notification sent before its expiry may still collect receipts.
	n := &Notification{ID: "n1", Status: StatusSent, ExpiresAt: &past}
	if err := n.Transition(StatusDelivered, now); err != nil {
		t.Errorf("expired sent to delivered = %v, want nil", err)
	}
	if err := n.Transition(StatusRead, now); err != nil {
		t.Errorf("expired delivered to read = %v, want nil", err)
	}
}

func TestCancel(t *testing.T) {
	tests := []struct {
		from    Status
		wantErr bool
	}{
		{StatusPending, false},
		{StatusSent, true},
		{StatusDelivered, true},
		{StatusRead, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			n := &Notification{ID: "n1", Status: tt.from}
			err := n.Cancel()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Cancel from %s = %v, wantErr %v", tt.from, err, tt.wantErr)
			}
			if !tt.wantErr && n.Status != StatusCancelled {
				t.Errorf("status = %s, want cancelled", n.Status)
			}
		})
	}
}

func TestFail(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	n := &Notification{ID: "n1", Status: StatusSent}
	if err := n.Fail("all tokens failed", now); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if n.Status != StatusFailed {
		t.Errorf("status = %s, want failed", n.Status)
	}
	if n.FailureReason != "all tokens failed" {
		t.Errorf("FailureReason = %q", n.FailureReason)
	}
	if n.FailedAt == nil {
		t.Error("FailedAt not stamped")
	}
}

func TestTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusPending:   false,
		StatusSent:      false,
		StatusDelivered: false,
		StatusRead:      true,
		StatusFailed:    true,
		StatusCancelled: true,
	}
	for s, want := range terminal {
		n := &Notification{Status: s}
		if got := n.Terminal(); got != want {
			t.Errorf("Terminal(%s) = %v, want %v", s, got, want)
		}
	}
}

func TestPriorityRank(t *testing.T) {
	order := []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("Rank(%s) = %d not below Rank(%s) = %d",
				order[i-1], order[i-1].Rank(), order[i], order[i].Rank())
		}
	}
	if Priority("bogus").Rank() != 0 {
		t.Error("unknown priority should rank 0")
	}
}
