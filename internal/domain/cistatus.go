package domain

import "time"

// CiStatus tracks the drain of the target's build backlog after a run's
// submission phase. One live record exists per run during the polling phase.
type CiStatus struct {
	RunID          string
	TotalJobs      int
	QueuedJobs     int
	ElapsedMinutes int
	// AvgJobsPerMinute is (TotalJobs-QueuedJobs)/ElapsedMinutes, clamped at
	// zero and reported as zero while ElapsedMinutes is zero.
	AvgJobsPerMinute float64
	Finished         bool
	UpdatedAt        time.Time
}
