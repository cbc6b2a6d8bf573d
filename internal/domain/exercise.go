package domain

// ExerciseKind tags the exercise variants a student exam can contain.
// Workflow dispatch switches exhaustively over this tag; adding a kind is a
// compile-visible change in every switch.
type ExerciseKind string

const (
	ExerciseModeling    ExerciseKind = "modeling"
	ExerciseText        ExerciseKind = "text"
	ExerciseQuiz        ExerciseKind = "quiz"
	ExerciseProgramming ExerciseKind = "programming"
)

// Exercise is one exam exercise with the student's participation data.
// RepositoryURI is only set for programming exercises; Submission is the
// pre-existing submission payload and may be nil.
type Exercise struct {
	Kind            ExerciseKind
	ID              int64
	Title           string
	ParticipationID int64
	RepositoryURI   string
	Submission      *ExerciseSubmission
}

// ExerciseSubmission is the mutable submission body of a non-programming
// exercise. Payload is the platform's own representation; the workflow
// mutates a few fields and PUTs it back.
type ExerciseSubmission struct {
	ID      int64
	Payload map[string]any
}

// StudentExam is the per-student view of an exam.
type StudentExam struct {
	ID        int64
	Exercises []Exercise
}
