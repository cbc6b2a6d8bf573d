package artemis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
)

// VCSClient performs repository operations for programming exercises.
type VCSClient interface {
	Clone(ctx context.Context, repoURL, dir string, creds domain.Credentials) error
	CommitAndPush(ctx context.Context, dir, message string, creds domain.Credentials) error
}

// StatRecorder receives one RequestStat per successful workflow step.
type StatRecorder func(domain.RequestStat)

// Student replays one simulated participant's exam session. All steps are
// strictly sequential; a Student is never used from more than one goroutine.
type Student struct {
	client *Client
	vcs    VCSClient
	creds  domain.Credentials
	log    *slog.Logger

	courseID        int64
	examID          int64
	commitsFrom     int
	commitsTo       int
	workDir         string
	record          StatRecorder
	onParticipation func(participationID int64)

	studentExamID int64
	exam          *domain.StudentExam
}

// StudentConfig carries the per-user parameters of a workflow execution.
type StudentConfig struct {
	Credentials domain.Credentials
	CourseID    int64
	ExamID      int64
	CommitsFrom int
	CommitsTo   int
	WorkDir     string

	// OnProgrammingParticipation reports each programming exercise
	// participation this user works on; the run orchestrator feeds these
	// to the CI drain query.
	OnProgrammingParticipation func(participationID int64)
}

// NewStudent builds a workflow executor for one virtual user.
func NewStudent(client *Client, vcs VCSClient, cfg StudentConfig, record StatRecorder, logger *slog.Logger) *Student {
	if record == nil {
		record = func(domain.RequestStat) {}
	}
	return &Student{
		client:          client,
		vcs:             vcs,
		creds:           cfg.Credentials,
		courseID:        cfg.CourseID,
		examID:          cfg.ExamID,
		commitsFrom:     cfg.CommitsFrom,
		commitsTo:       cfg.CommitsTo,
		workDir:         cfg.WorkDir,
		record:          record,
		onParticipation: cfg.OnProgrammingParticipation,
		log:             logger.With("user", cfg.Credentials.Username),
	}
}

// Run executes the full exam script. A returned error means this user's
// workflow aborted; it never reflects on other users or the run itself.
func (s *Student) Run(ctx context.Context) error {
	if err := s.login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	s.performInitialCalls(ctx)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.navigateIntoExam(ctx); err != nil {
		return fmt.Errorf("fetch student exam: %w", err)
	}
	if err := s.startExam(ctx); err != nil {
		return fmt.Errorf("start exam: %w", err)
	}
	s.handleExercises(ctx)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.submitExam(ctx); err != nil {
		return fmt.Errorf("submit exam: %w", err)
	}
	s.loadExamSummary(ctx)
	return nil
}

// timed runs fn, measuring its duration on the monotonic clock, and emits
// a RequestStat only when fn succeeds.
func (s *Student) timed(kind domain.RequestType, fn func() error) error {
	start := time.Now()
	if err := fn(); err != nil {
		return err
	}
	s.record(domain.RequestStat{Timestamp: start, Duration: time.Since(start), Type: kind})
	return nil
}

func (s *Student) login(ctx context.Context) error {
	return s.timed(domain.RequestTypeLogin, func() error {
		return s.client.Login(ctx, s.creds)
	})
}

// performInitialCalls issues the read-only warm-up traffic a real client
// produces after login. Failures are logged, never fatal.
func (s *Student) performInitialCalls(ctx context.Context) {
	warmup := []string{
		"/api/core/public/account",
		"/api/core/public/system-notifications/active",
		"/api/core/courses/for-dashboard",
	}
	for _, path := range warmup {
		if ctx.Err() != nil {
			return
		}
		err := s.timed(domain.RequestTypeMisc, func() error {
			return s.client.Get(ctx, path, nil)
		})
		if err != nil {
			s.log.Warn("warm-up call failed", "path", path, "error", err)
		}
	}
}

func (s *Student) navigateIntoExam(ctx context.Context) error {
	path := fmt.Sprintf("/api/exam/courses/%d/exams/%d/own-student-exam", s.courseID, s.examID)
	return s.timed(domain.RequestTypeGetStudentExam, func() error {
		var payload struct {
			ID int64 `json:"id"`
		}
		if err := s.client.Get(ctx, path, &payload); err != nil {
			return err
		}
		if payload.ID == 0 {
			return fmt.Errorf("no student exam assigned")
		}
		s.studentExamID = payload.ID
		return nil
	})
}

func (s *Student) startExam(ctx context.Context) error {
	path := fmt.Sprintf("/api/exam/courses/%d/exams/%d/student-exams/%d/conduction",
		s.courseID, s.examID, s.studentExamID)
	return s.timed(domain.RequestTypeStartStudentExam, func() error {
		var raw json.RawMessage
		if err := s.client.Get(ctx, path, &raw); err != nil {
			return err
		}
		exam, err := decodeStudentExam(raw)
		if err != nil {
			return err
		}
		s.exam = exam
		return nil
	})
}

// handleExercises works through every exercise of the started exam.
// A failing exercise aborts only its own sub-workflow.
func (s *Student) handleExercises(ctx context.Context) {
	for _, exercise := range s.exam.Exercises {
		if ctx.Err() != nil {
			return
		}
		var err error
		switch exercise.Kind {
		case domain.ExerciseModeling:
			err = s.submitModelingExercise(ctx, exercise)
		case domain.ExerciseText:
			err = s.submitTextExercise(ctx, exercise)
		case domain.ExerciseQuiz:
			err = s.submitQuizExercise(ctx, exercise)
		case domain.ExerciseProgramming:
			err = s.solveProgrammingExercise(ctx, exercise)
		}
		if err != nil {
			s.log.Warn("exercise failed", "exercise", exercise.Title, "kind", exercise.Kind, "error", err)
		}
	}
}

func (s *Student) submitModelingExercise(ctx context.Context, exercise domain.Exercise) error {
	if exercise.Submission == nil {
		return nil
	}
	body := map[string]any{
		"id":              exercise.Submission.ID,
		"model":           sampleClassDiagram(),
		"explanationText": "The model describes the main entities of the domain.",
		"submitted":       true,
	}
	path := fmt.Sprintf("/api/modeling/exercises/%d/modeling-submissions", exercise.ID)
	return s.timed(domain.RequestTypeSubmitExercise, func() error {
		return s.client.Put(ctx, path, body, nil)
	})
}

func (s *Student) submitTextExercise(ctx context.Context, exercise domain.Exercise) error {
	if exercise.Submission == nil {
		return nil
	}
	body := map[string]any{
		"id":        exercise.Submission.ID,
		"text":      sampleEssay(),
		"submitted": true,
	}
	path := fmt.Sprintf("/api/text/exercises/%d/text-submissions", exercise.ID)
	return s.timed(domain.RequestTypeSubmitExercise, func() error {
		return s.client.Put(ctx, path, body, nil)
	})
}

func (s *Student) submitQuizExercise(ctx context.Context, exercise domain.Exercise) error {
	if exercise.Submission == nil {
		return nil
	}
	body := map[string]any{
		"id":               exercise.Submission.ID,
		"submittedAnswers": []any{},
		"submitted":        true,
	}
	path := fmt.Sprintf("/api/quiz/exercises/%d/submissions/exam", exercise.ID)
	return s.timed(domain.RequestTypeSubmitExercise, func() error {
		return s.client.Put(ctx, path, body, nil)
	})
}

// solveProgrammingExercise clones the assigned repository and performs a
// random number of commit-and-push iterations within the configured range.
func (s *Student) solveProgrammingExercise(ctx context.Context, exercise domain.Exercise) error {
	if exercise.RepositoryURI == "" {
		return fmt.Errorf("no repository assigned")
	}
	if s.onParticipation != nil && exercise.ParticipationID != 0 {
		s.onParticipation(exercise.ParticipationID)
	}
	dir := filepath.Join(s.workDir, fmt.Sprintf("exercise-%d", exercise.ID))

	err := s.timed(domain.RequestTypeClone, func() error {
		return s.vcs.Clone(ctx, exercise.RepositoryURI, dir, s.creds)
	})
	if err != nil {
		return fmt.Errorf("clone: %w", err)
	}

	commits := s.commitsFrom
	if s.commitsTo > s.commitsFrom {
		commits += rand.Intn(s.commitsTo - s.commitsFrom + 1)
	}
	for i := 0; i < commits; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		time.Sleep(100 * time.Millisecond)
		err := s.timed(domain.RequestTypePush, func() error {
			return s.vcs.CommitAndPush(ctx, dir, fmt.Sprintf("Solution attempt %d", i+1), s.creds)
		})
		if err != nil {
			return fmt.Errorf("push %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *Student) submitExam(ctx context.Context) error {
	path := fmt.Sprintf("/api/exam/courses/%d/exams/%d/student-exams/submit", s.courseID, s.examID)
	body := map[string]any{"id": s.studentExamID, "submitted": true}
	return s.timed(domain.RequestTypeSubmitStudentExam, func() error {
		return s.client.Post(ctx, path, body, nil)
	})
}

func (s *Student) loadExamSummary(ctx context.Context) {
	path := fmt.Sprintf("/api/exam/courses/%d/exams/%d/student-exams/%d/summary",
		s.courseID, s.examID, s.studentExamID)
	err := s.timed(domain.RequestTypeMisc, func() error {
		return s.client.Get(ctx, path, nil)
	})
	if err != nil {
		s.log.Warn("exam summary failed", "error", err)
	}
}

func sampleClassDiagram() string {
	return `{"version":"3.0.0","type":"ClassDiagram","elements":{},"relationships":{}}`
}

func sampleEssay() string {
	return "Lorem ipsum dolor sit amet, consetetur sadipscing elitr, " +
		"sed diam nonumy eirmod tempor invidunt ut labore et dolore magna aliquyam erat."
}
