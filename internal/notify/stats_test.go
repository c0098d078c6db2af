package notify

import (
	"testing"
	"time"
)

func withStatus(s Status, t NotificationType, p Priority) *Notification {
	return &Notification{Status: s, Type: t, Priority: p, Channels: []Channel{ChannelPush}}
}

func TestComputeStats(t *testing.T) {
	var batch []*Notification
	for i := 0; i < 4; i++ {
		batch = append(batch, withStatus(StatusSent, TypeQuestCompleted, PriorityMedium))
	}
	for i := 0; i < 3; i++ {
		batch = append(batch, withStatus(StatusDelivered, TypeXPMilestone, PriorityMedium))
	}
	for i := 0; i < 3; i++ {
		batch = append(batch, withStatus(StatusRead, TypeQuestReminder, PriorityHigh))
	}
	batch = append(batch, withStatus(StatusPending, TypeCustom, PriorityLow))
	batch = append(batch, withStatus(StatusFailed, TypeCustom, PriorityLow))
	batch = append(batch, withStatus(StatusCancelled, TypeCustom, PriorityLow))

	st := ComputeStats(batch)

	if st.Total != 13 {
		t.Errorf("Total = %d, want 13", st.Total)
	}
	// (3 delivered + 3 read) / (4 sent + 3 delivered + 3 read) = 60%
	if st.DeliveryRate != 60 {
		t.Errorf("DeliveryRate = %v, want 60", st.DeliveryRate)
	}
	// 3 read / (3 delivered + 3 read) = 50%
	if st.ReadRate != 50 {
		t.Errorf("ReadRate = %v, want 50", st.ReadRate)
	}
	if st.ByStatus[StatusSent] != 4 || st.ByStatus[StatusPending] != 1 {
		t.Errorf("ByStatus = %v", st.ByStatus)
	}
	if st.ByType[TypeCustom] != 3 {
		t.Errorf("ByType[custom] = %d, want 3", st.ByType[TypeCustom])
	}
	if st.ByPriority[PriorityMedium] != 7 {
		t.Errorf("ByPriority[medium] = %d, want 7", st.ByPriority[PriorityMedium])
	}
	if st.ByChannel[ChannelPush] != 13 {
		t.Errorf("ByChannel[push] = %d, want 13", st.ByChannel[ChannelPush])
	}
}

func TestComputeStatsZeroDenominators(t *testing.T) {
	st := ComputeStats([]*Notification{
		withStatus(StatusPending, TypeCustom, PriorityLow),
		withStatus(StatusCancelled, TypeCustom, PriorityLow),
	})
	if st.DeliveryRate != 0 {
		t.Errorf("DeliveryRate = %v, want 0 on zero denominator", st.DeliveryRate)
	}
	if st.ReadRate != 0 {
		t.Errorf("ReadRate = %v, want 0 on zero denominator", st.ReadRate)
	}
	if st.AverageDeliveryTime != 0 {
		t.Errorf("AverageDeliveryTime = %v, want 0", st.AverageDeliveryTime)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	st := ComputeStats(nil)
	if st.Total != 0 || st.DeliveryRate != 0 || st.ReadRate != 0 {
		t.Errorf("empty stats = %+v", st)
	}
}

func TestAverageDeliveryTime(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	d2 := t0.Add(2 * time.Second)
	d4 := t0.Add(4 * time.Second)

	a := withStatus(StatusDelivered, TypeCustom, PriorityLow)
	a.SentAt, a.DeliveredAt = &t0, &d2
	b := withStatus(StatusDelivered, TypeCustom, PriorityLow)
	b.SentAt, b.DeliveredAt = &t0, &d4
	// Missing timestamps are excluded from the mean, not counted as zero.
	c := withStatus(StatusSent, TypeCustom, PriorityLow)
	c.SentAt = &t0

	st := ComputeStats([]*Notification{a, b, c})
	if st.AverageDeliveryTime != 3*time.Second {
		t.Errorf("AverageDeliveryTime = %v, want 3s", st.AverageDeliveryTime)
	}
}
