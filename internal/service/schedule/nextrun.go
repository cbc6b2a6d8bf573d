package schedule

import (
	"time"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
)

// NextRun computes the next fire instant strictly after now, or nil when
// the schedule has no further occurrence before its end date. The instant
// passed as now is the reference the result must exceed; the evaluator
// passes the fire instant just consumed, not wall-clock time, so repeated
// evaluation does not drift.
func NextRun(schedule *domain.SimulationSchedule, now time.Time) *time.Time {
	ref := now
	if schedule.StartDateTime.After(ref) {
		// The first occurrence may fall exactly on StartDateTime.
		ref = schedule.StartDateTime.Add(-time.Nanosecond)
	}

	tod := schedule.TimeOfDay
	candidate := time.Date(ref.Year(), ref.Month(), ref.Day(),
		tod.Hour(), tod.Minute(), tod.Second(), 0, ref.Location())

	switch schedule.Cycle {
	case domain.CycleDaily:
		if !candidate.After(ref) {
			candidate = candidate.AddDate(0, 0, 1)
		}
	case domain.CycleWeekly:
		if schedule.DayOfWeek == nil {
			return nil
		}
		offset := (int(*schedule.DayOfWeek) - int(candidate.Weekday()) + 7) % 7
		candidate = candidate.AddDate(0, 0, offset)
		if !candidate.After(ref) {
			candidate = candidate.AddDate(0, 0, 7)
		}
	default:
		return nil
	}

	if schedule.EndDateTime != nil && candidate.After(*schedule.EndDateTime) {
		return nil
	}
	return &candidate
}
