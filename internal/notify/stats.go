package notify

import (
	"context"
	"fmt"
	"time"
)

// Stats summarizes delivery outcomes over a set of notifications.
type Stats struct {
	Total      int                      `json:"total"`
	ByStatus   map[Status]int           `json:"by_status"`
	ByType     map[NotificationType]int `json:"by_type"`
	ByPriority map[Priority]int         `json:"by_priority"`
	ByChannel  map[Channel]int          `json:"by_channel"`

	// DeliveryRate is (delivered+read) / (sent+delivered+read) * 100.
	DeliveryRate float64 `json:"delivery_rate"`
	// ReadRate is read / (delivered+read) * 100.
	ReadRate float64 `json:"read_rate"`
	// AverageDeliveryTime is the mean deliveredAt-sentAt gap over
	// notifications carrying both timestamps. Zero when none do.
	AverageDeliveryTime time.Duration `json:"average_delivery_time_ns"`
}

// ComputeStats tallies counts and rates over a notification set. Both rates
// are 0 when their denominator is 0.
func ComputeStats(notifications []*Notification) Stats {
	st := Stats{
		ByStatus:   make(map[Status]int),
		ByType:     make(map[NotificationType]int),
		ByPriority: make(map[Priority]int),
		ByChannel:  make(map[Channel]int),
	}

	var latencySum time.Duration
	latencyCount := 0

	for _, n := range notifications {
		st.Total++
		st.ByStatus[n.Status]++
		st.ByType[n.Type]++
		st.ByPriority[n.Priority]++
		for _, c := range n.Channels {
			st.ByChannel[c]++
		}
		if n.SentAt != nil && n.DeliveredAt != nil {
			latencySum += n.DeliveredAt.Sub(*n.SentAt)
			latencyCount++
		}
	}

	sent := st.ByStatus[StatusSent]
	delivered := st.ByStatus[StatusDelivered]
	read := st.ByStatus[StatusRead]

	if denom := sent + delivered + read; denom > 0 {
		st.DeliveryRate = float64(delivered+read) / float64(denom) * 100
	}
	if denom := delivered + read; denom > 0 {
		st.ReadRate = float64(read) / float64(denom) * 100
	}
	if latencyCount > 0 {
		st.AverageDeliveryTime = latencySum / time.Duration(latencyCount)
	}
	return st
}

// StatsBetween loads notifications created in [from, to) and computes
// their stats. Nil bounds are open.
func (s *Service) StatsBetween(ctx context.Context, from, to *time.Time) (Stats, error) {
	notifications, err := s.notifs.ListCreatedBetween(ctx, from, to)
	if err != nil {
		return Stats{}, fmt.Errorf("list notifications: %w", err)
	}
	return ComputeStats(notifications), nil
}
