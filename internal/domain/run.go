package domain

import "time"

// RunStatus is the lifecycle state of a simulation run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "QUEUED"
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStatusFinished || s == RunStatusFailed
}

// SimulationRun is one execution attempt of a simulation.
type SimulationRun struct {
	ID           string
	SimulationID string
	Status       RunStatus
	StartTime    time.Time
	EndTime      *time.Time

	// ScheduleID is set when the run was triggered by a schedule.
	ScheduleID *string

	// AdminAccount optionally carries one-off admin credentials supplied at
	// submit time. It is never persisted and never serialized.
	AdminAccount *Credentials `json:"-"`
}

// LogMessage is one info or error line attached to a run.
type LogMessage struct {
	ID        string
	RunID     string
	Message   string
	IsError   bool
	Timestamp time.Time
}
