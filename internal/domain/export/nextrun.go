package export

import (
	"fmt"
	"time"

	"github.com/fallguard/fallguard/pkg/dateutil"
)

// NextRunTime computes the instant a schedule should fire next, strictly
// after now. Daily schedules fire today at hh:mm when that is still in the
// future, otherwise tomorrow; weekly schedules fire at the next occurrence
// of day_of_week, skipping to next week when today's slot already passed.
func NextRunTime(s *Schedule, now time.Time) time.Time {
	candidate := dateutil.At(now, s.Hour, s.Minute)

	if s.Frequency == FrequencyWeekly && s.DayOfWeek != nil {
		target := time.Weekday(*s.DayOfWeek)
		for candidate.Weekday() != target || !candidate.After(now) {
			candidate = dateutil.AddDays(candidate, 1)
		}
		return candidate
	}

	if !candidate.After(now) {
		candidate = dateutil.AddDays(candidate, 1)
	}
	return candidate
}

// TaskKey names the queued run for a schedule at a given instant so the
// same run is never enqueued twice.
func TaskKey(s *Schedule, runAt time.Time) string {
	return fmt.Sprintf("export:%s:%d", s.ID, runAt.Unix())
}
