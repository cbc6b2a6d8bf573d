package artemis

import (
	"encoding/json"
	"fmt"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
)

// Course is the subset of the platform's course payload the simulation needs.
type Course struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	ShortName  string `json:"shortName"`
	TestCourse bool   `json:"testCourse,omitempty"`
}

// Exam is the subset of the exam payload the simulation needs.
type Exam struct {
	ID                int64   `json:"id"`
	Title             string  `json:"title"`
	StartDate         string  `json:"startDate,omitempty"`
	EndDate           string  `json:"endDate,omitempty"`
	VisibleDate       string  `json:"visibleDate,omitempty"`
	NumberOfExercises int     `json:"numberOfExercisesInExam,omitempty"`
	ExamMaxPoints     int     `json:"examMaxPoints,omitempty"`
	WorkingTime       int     `json:"workingTime,omitempty"`
	Course            *Course `json:"course,omitempty"`
}

// Participation identifies one student's participation in an exercise.
type Participation struct {
	ID            int64  `json:"id"`
	RepositoryURI string `json:"repositoryUri,omitempty"`
}

// Submission is one submission as reported by the platform; Result is nil
// while the grading job is still queued.
type Submission struct {
	ID      int64             `json:"id"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Results []json.RawMessage `json:"results,omitempty"`
}

// Graded reports whether the submission has produced at least one result.
func (s Submission) Graded() bool {
	return len(s.Result) > 0 || len(s.Results) > 0
}

// wireStudentExam decodes the exam conduction payload. Exercises arrive as
// a heterogeneous list discriminated by a "type" field.
type wireStudentExam struct {
	ID        int64             `json:"id"`
	Exercises []json.RawMessage `json:"exercises"`
}

type wireExercise struct {
	Type                  string `json:"type"`
	ID                    int64  `json:"id"`
	Title                 string `json:"title"`
	StudentParticipations []struct {
		ID            int64  `json:"id"`
		RepositoryURI string `json:"repositoryUri"`
		Submissions   []struct {
			ID int64 `json:"id"`
		} `json:"submissions"`
	} `json:"studentParticipations"`
}

func decodeStudentExam(data []byte) (*domain.StudentExam, error) {
	var wire wireStudentExam
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode student exam: %w", err)
	}

	exam := &domain.StudentExam{ID: wire.ID}
	for _, raw := range wire.Exercises {
		var we wireExercise
		if err := json.Unmarshal(raw, &we); err != nil {
			return nil, fmt.Errorf("decode exercise: %w", err)
		}

		kind, ok := exerciseKind(we.Type)
		if !ok {
			// Unknown exercise types are skipped, not fatal.
			continue
		}

		ex := domain.Exercise{Kind: kind, ID: we.ID, Title: we.Title}
		if len(we.StudentParticipations) > 0 {
			p := we.StudentParticipations[0]
			ex.ParticipationID = p.ID
			ex.RepositoryURI = p.RepositoryURI
			if len(p.Submissions) > 0 {
				ex.Submission = &domain.ExerciseSubmission{ID: p.Submissions[0].ID}
			}
		}
		exam.Exercises = append(exam.Exercises, ex)
	}
	return exam, nil
}

func exerciseKind(wireType string) (domain.ExerciseKind, bool) {
	switch wireType {
	case "modeling":
		return domain.ExerciseModeling, true
	case "text":
		return domain.ExerciseText, true
	case "quiz":
		return domain.ExerciseQuiz, true
	case "programming":
		return domain.ExerciseProgramming, true
	default:
		return "", false
	}
}
