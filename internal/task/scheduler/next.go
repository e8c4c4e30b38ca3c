package scheduler

import (
	"time"

	"notirelay/internal/config"
)

// NextWait returns how long to sleep from now until the earliest upcoming
// send time, and that time. Times are wall-clock in now's location.
//
// An occurrence equal to now counts as passed, so the result is in
// (0, 24h]. Invalid times are skipped; with none left it returns (0, zero).
func NextWait(now time.Time, times []config.SendTime) (time.Duration, time.Time) {
	var best time.Time
	for _, t := range times {
		sched, err := dailySchedule(t)
		if err != nil {
			continue
		}
		next := sched.Next(now)
		if next.IsZero() {
			continue
		}
		if best.IsZero() || next.Before(best) {
			best = next
		}
	}
	if best.IsZero() {
		return 0, time.Time{}
	}
	return best.Sub(now), best
}
