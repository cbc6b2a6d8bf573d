package domain

import "time"

// Cycle is the recurrence of a schedule.
type Cycle string

const (
	CycleDaily  Cycle = "DAILY"
	CycleWeekly Cycle = "WEEKLY"
)

// SimulationSchedule automatically enqueues runs for a simulation.
//
// NextRun is derived: it is either nil (no more occurrences before
// EndDateTime, the schedule is about to be deleted) or strictly in the
// future relative to the evaluation instant that computed it.
type SimulationSchedule struct {
	ID            string
	SimulationID  string
	Cycle         Cycle
	StartDateTime time.Time
	EndDateTime   *time.Time
	// TimeOfDay carries only its clock components; date parts are ignored.
	TimeOfDay time.Time
	// DayOfWeek is required iff Cycle is WEEKLY.
	DayOfWeek *time.Weekday
	NextRun   *time.Time
	CreatedAt time.Time
}

// ScheduleSubscriber receives result mails for a schedule's runs.
type ScheduleSubscriber struct {
	ID         string
	ScheduleID string
	Email      string
	// Key is the signed unsubscribe token handed out in mails.
	Key       string
	CreatedAt time.Time
}
