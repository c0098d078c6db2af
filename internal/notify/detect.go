package notify

// Fixed milestone checkpoints for cumulative metrics.
var (
	xpMilestones     = []int{100, 500, 1000, 2500, 5000, 10000}
	streakMilestones = []int{3, 7, 14, 30}
	goalMilestones   = []float64{25, 50, 75}
)

// CrossedXPMilestones returns every XP milestone crossed by a single gain,
// in ascending order. A milestone m is crossed iff the new total reached it
// and the total before this gain had not: each checkpoint fires at most
// once per crossing, so a later update never refires it.
func CrossedXPMilestones(prevTotal, gain int) []int {
	newTotal := prevTotal + gain
	var crossed []int
	for _, m := range xpMilestones {
		if newTotal >= m && prevTotal < m {
			crossed = append(crossed, m)
		}
	}
	return crossed
}

// StreakMilestone reports whether a streak length lands exactly on a
// checkpoint. Unlike XP, streaks grow one day at a time, so only an exact
// match fires — a restored streak jumping past a checkpoint does not.
func StreakMilestone(length int) (int, bool) {
	for _, m := range streakMilestones {
		if length == m {
			return m, true
		}
	}
	return 0, false
}

// GoalMilestone returns the first family-goal percentage checkpoint crossed
// by a progress update, evaluated in ascending order. At most one milestone
// fires per update even when a single jump crosses several checkpoints.
func GoalMilestone(oldPct, newPct float64) (float64, bool) {
	for _, m := range goalMilestones {
		if oldPct < m && m <= newPct {
			return m, true
		}
	}
	return 0, false
}

// FirstCompletion reports whether this event is the owner's first-ever
// completion, given the count of completions recorded before it.
func FirstCompletion(priorCount int) bool { return priorCount == 0 }
