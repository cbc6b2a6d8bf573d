package mail

import (
	"strings"
	"testing"
	"time"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
)

func TestRenderRunFailedQuotesErrorLog(t *testing.T) {
	start := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	n := Notification{
		Kind:       KindRunFailed,
		Simulation: &domain.Simulation{Name: "Exam load test"},
		Run:        &domain.SimulationRun{ID: "run-1", StartTime: start},
		FailureLog: &domain.LogMessage{
			RunID:   "run-1",
			Message: "Admin preparation failed",
			IsError: true,
		},
		UnsubscribeURL: "http://localhost:8080/api/schedules/unsubscribe?token=x",
	}

	subject, body := render(n)
	if !strings.Contains(subject, "failed") {
		t.Fatalf("subject %q does not mention failure", subject)
	}
	if !strings.Contains(body, "Admin preparation failed") {
		t.Fatalf("body does not quote the error log:\n%s", body)
	}
	if !strings.Contains(body, n.UnsubscribeURL) {
		t.Fatalf("body is missing the unsubscribe link:\n%s", body)
	}
}

func TestRenderRunFailedWithoutLogFallsBack(t *testing.T) {
	n := Notification{
		Kind:       KindRunFailed,
		Simulation: &domain.Simulation{Name: "Exam load test"},
		Run:        &domain.SimulationRun{ID: "run-1"},
	}
	_, body := render(n)
	if !strings.Contains(body, "Check the run log for details.") {
		t.Fatalf("body is missing the fallback hint:\n%s", body)
	}
}

func TestRenderRunFinishedIncludesStats(t *testing.T) {
	n := Notification{
		Kind:       KindRunFinished,
		Simulation: &domain.Simulation{Name: "Exam load test"},
		Run:        &domain.SimulationRun{ID: "run-1"},
		Stats: []domain.RunStats{
			{RequestType: domain.RequestTypeTotal, RequestCount: 42, AvgDurationNS: int64(150 * time.Millisecond)},
		},
	}
	_, body := render(n)
	if !strings.Contains(body, "42 requests") {
		t.Fatalf("body is missing the request count:\n%s", body)
	}
}
