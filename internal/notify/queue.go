package notify

import (
	"sort"
	"time"
)

// Due filters notifications down to the dispatchable subset: pending, not
// expired, and either unscheduled or scheduled at-or-before now.
func Due(notifications []*Notification, now time.Time) []*Notification {
	var due []*Notification
	for _, n := range notifications {
		if n.Status != StatusPending {
			continue
		}
		if n.Expired(now) {
			continue
		}
		if n.ScheduledFor != nil && n.ScheduledFor.After(now) {
			continue
		}
		due = append(due, n)
	}
	SortPending(due)
	return due
}

// SortPending orders a batch for dispatch: priority rank descending, then
// creation time ascending (FIFO within a priority tier).
func SortPending(batch []*Notification) {
	sort.SliceStable(batch, func(i, j int) bool {
		ri, rj := batch[i].Priority.Rank(), batch[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return batch[i].CreatedAt.Before(batch[j].CreatedAt)
	})
}
