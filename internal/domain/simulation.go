package domain

import "time"

// Mode controls how much setup work the executor performs on the target
// Artemis instance before students participate.
type Mode string

const (
	// ModeCreateCourseAndExam creates a fresh course and exam, registers the
	// simulated students and prepares the exam.
	ModeCreateCourseAndExam Mode = "CREATE_COURSE_AND_EXAM"
	// ModeExistingCourseCreateExam creates and prepares an exam in an
	// existing course.
	ModeExistingCourseCreateExam Mode = "EXISTING_COURSE_CREATE_EXAM"
	// ModeExistingCourseUnpreparedExam prepares an existing exam for
	// conduction.
	ModeExistingCourseUnpreparedExam Mode = "EXISTING_COURSE_UNPREPARED_EXAM"
	// ModeExistingCoursePreparedExam assumes the exam is ready; no admin
	// session is needed.
	ModeExistingCoursePreparedExam Mode = "EXISTING_COURSE_PREPARED_EXAM"
)

// Valid reports whether m is a known simulation mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeCreateCourseAndExam, ModeExistingCourseCreateExam,
		ModeExistingCourseUnpreparedExam, ModeExistingCoursePreparedExam:
		return true
	}
	return false
}

// RequiresAdmin reports whether the mode needs an admin/instructor session
// for cross-cutting exam setup.
func (m Mode) RequiresAdmin() bool {
	return m != ModeExistingCoursePreparedExam
}

// Simulation is the configuration template for benchmark runs against one
// Artemis deployment.
type Simulation struct {
	ID                 string
	Name               string
	Server             string
	Mode               Mode
	NumberOfUsers      int
	CustomizeUserRange bool
	UserRange          string
	CourseID           int64
	ExamID             int64
	CommitsFrom        int
	CommitsTo          int
	InstructorUsername string
	// InstructorPassword is AES-GCM encrypted at rest and only decrypted
	// when a run needs the instructor session.
	InstructorPassword []byte `json:"-"`
	CreatedAt          time.Time
}

// InstructorCredentialsProvided reports whether the simulation carries its
// own instructor account.
func (s Simulation) InstructorCredentialsProvided() bool {
	return s.InstructorUsername != "" && len(s.InstructorPassword) > 0
}
