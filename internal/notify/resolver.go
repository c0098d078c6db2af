package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ShouldDispatch decides whether a notification of this preference's type
// may be sent at now, given the instant one was last sent. Order matters:
// disabled and quiet-hours suppression win before any throttle math.
func ShouldDispatch(p *Preference, now time.Time, lastSent *time.Time) bool {
	if !p.Enabled {
		return false
	}
	if p.Frequency == FrequencyNever {
		return false
	}
	if p.QuietHours && InQuietHours(now, p) {
		return false
	}
	if lastSent == nil {
		return true
	}
	interval := frequencyIntervals[p.Frequency]
	if interval == 0 {
		return true
	}
	return now.Sub(*lastSent) >= interval
}

// InQuietHours reports whether now falls inside the preference's quiet-hours
// window. Times compare as HH*100+MM integers; a window with start > end
// wraps past midnight.
func InQuietHours(now time.Time, p *Preference) bool {
	start, err := parseClock(p.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := parseClock(p.QuietHoursEnd)
	if err != nil {
		return false
	}
	current := now.Hour()*100 + now.Minute()
	if start > end {
		return current >= start || current <= end
	}
	return current >= start && current <= end
}

// ShouldSendScheduled gates fixed-time digests: the preference must be
// enabled and now must match the configured hour (and weekday, if set)
// before the normal dispatch rules apply.
func ShouldSendScheduled(p *Preference, now time.Time) bool {
	if !p.Enabled {
		return false
	}
	if p.ScheduledHour != nil && now.Hour() != *p.ScheduledHour {
		return false
	}
	if p.ScheduledDay != nil && now.Weekday() != *p.ScheduledDay {
		return false
	}
	return ShouldDispatch(p, now, p.LastSent)
}

// parseClock converts "HH:MM" into an HH*100+MM integer.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("malformed hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("malformed minute in %q", s)
	}
	return h*100 + m, nil
}
