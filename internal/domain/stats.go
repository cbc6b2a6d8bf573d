package domain

import "time"

// RequestType classifies one timed operation against the target platform.
type RequestType string

const (
	RequestTypeTotal             RequestType = "TOTAL"
	RequestTypeLogin             RequestType = "LOGIN"
	RequestTypeClone             RequestType = "CLONE"
	RequestTypePush              RequestType = "PUSH"
	RequestTypeSubmitExercise    RequestType = "SUBMIT_EXERCISE"
	RequestTypeGetStudentExam    RequestType = "GET_STUDENT_EXAM"
	RequestTypeStartStudentExam  RequestType = "START_STUDENT_EXAM"
	RequestTypeSubmitStudentExam RequestType = "SUBMIT_STUDENT_EXAM"
	RequestTypeMisc              RequestType = "MISC"
)

// RequestStat captures the outcome of one timed operation. It is immutable
// and consumed exactly once by the stats aggregator.
type RequestStat struct {
	Timestamp time.Time
	Duration  time.Duration
	Type      RequestType
}

// StatsBucket is one wall-clock-minute aggregation window of a run.
type StatsBucket struct {
	RunID         string
	MinuteStart   time.Time
	RequestCount  int64
	AvgDurationNS float64
}

// RunStats is the aggregate for one request type over a whole run. A row
// with RequestTypeTotal covers all requests.
type RunStats struct {
	ID            string
	RunID         string
	RequestType   RequestType
	RequestCount  int64
	AvgDurationNS int64
}
