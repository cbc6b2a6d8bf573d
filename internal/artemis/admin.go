package artemis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
)

// Admin drives the instructor and administrator operations a simulation
// needs around the actual load: course and exam setup, student
// registration, exam preparation and cleanup, and the submission queries
// the CI poller consumes.
type Admin struct {
	client *Client
	log    *slog.Logger
}

// NewAdmin builds an admin session wrapper around an authenticated client.
func NewAdmin(client *Client, logger *slog.Logger) *Admin {
	return &Admin{client: client, log: logger}
}

// Login authenticates the admin session.
func (a *Admin) Login(ctx context.Context, creds domain.Credentials) error {
	return a.client.Login(ctx, creds)
}

// CreateCourse creates a temporary test course for the simulation.
func (a *Admin) CreateCourse(ctx context.Context, name string) (*Course, error) {
	shortName := fmt.Sprintf("bench%d", time.Now().Unix())
	body := Course{Title: name, ShortName: shortName, TestCourse: true}
	var created Course
	if err := a.client.Post(ctx, "/api/core/admin/courses", body, &created); err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}
	return &created, nil
}

// GetCourse fetches an existing course.
func (a *Admin) GetCourse(ctx context.Context, courseID int64) (*Course, error) {
	var course Course
	path := fmt.Sprintf("/api/core/courses/%d", courseID)
	if err := a.client.Get(ctx, path, &course); err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	return &course, nil
}

// DeleteCourse removes a course and everything it contains.
func (a *Admin) DeleteCourse(ctx context.Context, courseID int64) error {
	return a.client.Delete(ctx, fmt.Sprintf("/api/core/admin/courses/%d", courseID))
}

// CreateExam creates an exam inside a course. The exam window opens
// immediately and stays open long enough for a full simulation.
func (a *Admin) CreateExam(ctx context.Context, course *Course, title string, numberOfUsers int) (*Exam, error) {
	now := time.Now().UTC()
	body := Exam{
		Title:       title,
		VisibleDate: now.Format(time.RFC3339),
		StartDate:   now.Add(time.Minute).Format(time.RFC3339),
		EndDate:     now.Add(6 * time.Hour).Format(time.RFC3339),
		WorkingTime: int((5 * time.Hour).Seconds()),
		Course:      course,
	}
	var created Exam
	path := fmt.Sprintf("/api/exam/courses/%d/exams", course.ID)
	if err := a.client.Post(ctx, path, body, &created); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	return &created, nil
}

// DeleteExam removes an exam from a course.
func (a *Admin) DeleteExam(ctx context.Context, courseID, examID int64) error {
	return a.client.Delete(ctx, fmt.Sprintf("/api/exam/courses/%d/exams/%d", courseID, examID))
}

// CreateExamExercises adds one exercise of each supported kind to the exam
// via its exercise groups.
func (a *Admin) CreateExamExercises(ctx context.Context, courseID int64, exam *Exam) error {
	kinds := []struct {
		group string
		path  string
		body  map[string]any
	}{
		{"Text", "/api/text/text-exercises", map[string]any{"title": "Essay", "maxPoints": 10}},
		{"Modeling", "/api/modeling/modeling-exercises", map[string]any{"title": "Class Diagram", "maxPoints": 10}},
		{"Quiz", "/api/quiz/quiz-exercises", map[string]any{"title": "Quiz", "maxPoints": 10}},
		{"Programming", "/api/programming/programming-exercises/setup", map[string]any{
			"title":               "Sorting",
			"shortName":           fmt.Sprintf("sort%d", exam.ID),
			"maxPoints":           10,
			"programmingLanguage": "JAVA",
		}},
	}

	for _, kind := range kinds {
		groupPath := fmt.Sprintf("/api/exam/courses/%d/exams/%d/exercise-groups", courseID, exam.ID)
		var group struct {
			ID int64 `json:"id"`
		}
		groupBody := map[string]any{"title": kind.group, "isMandatory": true, "exam": map[string]any{"id": exam.ID}}
		if err := a.client.Post(ctx, groupPath, groupBody, &group); err != nil {
			return fmt.Errorf("create exercise group %s: %w", kind.group, err)
		}

		kind.body["exerciseGroup"] = map[string]any{"id": group.ID}
		if err := a.client.Post(ctx, kind.path, kind.body, nil); err != nil {
			return fmt.Errorf("create %s exercise: %w", kind.group, err)
		}
	}
	return nil
}

// RegisterStudents adds the given usernames to the course.
func (a *Admin) RegisterStudents(ctx context.Context, courseID int64, usernames []string) error {
	for _, username := range usernames {
		path := fmt.Sprintf("/api/core/courses/%d/students/%s", courseID, username)
		if err := a.client.Post(ctx, path, nil, nil); err != nil {
			a.log.Warn("student registration failed", "username", username, "error", err)
		}
	}
	return nil
}

// RegisterStudentsForExam registers all course students for the exam.
func (a *Admin) RegisterStudentsForExam(ctx context.Context, courseID, examID int64) error {
	path := fmt.Sprintf("/api/exam/courses/%d/exams/%d/register-course-students", courseID, examID)
	return a.client.Post(ctx, path, nil, nil)
}

// PrepareExam generates student exams and starts their exercises so that
// every registered student has a prepared working copy before the run.
func (a *Admin) PrepareExam(ctx context.Context, courseID, examID int64) error {
	generate := fmt.Sprintf("/api/exam/courses/%d/exams/%d/generate-student-exams", courseID, examID)
	if err := a.client.Post(ctx, generate, nil, nil); err != nil {
		return fmt.Errorf("generate student exams: %w", err)
	}

	start := fmt.Sprintf("/api/exam/courses/%d/exams/%d/student-exams/start-exercises", courseID, examID)
	if err := a.client.Post(ctx, start, nil, nil); err != nil {
		return fmt.Errorf("start exercises: %w", err)
	}
	return nil
}

// GetExamWithExercises fetches the exam including its exercise groups.
func (a *Admin) GetExamWithExercises(ctx context.Context, examID int64) (*Exam, error) {
	var exam Exam
	if err := a.client.Get(ctx, fmt.Sprintf("/api/exam/exams/%d", examID), &exam); err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return &exam, nil
}

// GetParticipations lists the participations of one exercise.
func (a *Admin) GetParticipations(ctx context.Context, exerciseID int64) ([]Participation, error) {
	var participations []Participation
	path := fmt.Sprintf("/api/exercise/exercises/%d/participations", exerciseID)
	if err := a.client.Get(ctx, path, &participations); err != nil {
		return nil, fmt.Errorf("get participations: %w", err)
	}
	return participations, nil
}

// GetSubmissions lists the submissions of one participation. The CI poller
// counts graded submissions through this call.
func (a *Admin) GetSubmissions(ctx context.Context, participationID int64) ([]Submission, error) {
	var submissions []Submission
	path := fmt.Sprintf("/api/exercise/participations/%d/submissions", participationID)
	if err := a.client.Get(ctx, path, &submissions); err != nil {
		return nil, fmt.Errorf("get submissions: %w", err)
	}
	return submissions, nil
}
