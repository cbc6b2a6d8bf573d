package simulation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/ws"
)

type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[string]domain.SimulationRun
	logs map[string][]domain.LogMessage
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{
		runs: make(map[string]domain.SimulationRun),
		logs: make(map[string][]domain.LogMessage),
	}
}

func (f *fakeRunRepo) CreateRun(_ context.Context, run *domain.SimulationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = *run
	return nil
}

func (f *fakeRunRepo) GetRunByID(_ context.Context, id string) (*domain.SimulationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &run, nil
}

func (f *fakeRunRepo) ListRunsBySimulation(_ context.Context, simulationID string) ([]domain.SimulationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SimulationRun
	for _, run := range f.runs {
		if run.SimulationID == simulationID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (f *fakeRunRepo) ListRunsByStatus(_ context.Context, status domain.RunStatus) ([]domain.SimulationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SimulationRun
	for _, run := range f.runs {
		if run.Status == status {
			out = append(out, run)
		}
	}
	return out, nil
}

func (f *fakeRunRepo) UpdateRunStatus(_ context.Context, run *domain.SimulationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.runs[run.ID]; !ok {
		return repository.ErrNotFound
	}
	f.runs[run.ID] = *run
	return nil
}

func (f *fakeRunRepo) DeleteRun(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.runs, id)
	return nil
}

func (f *fakeRunRepo) AppendLogMessage(_ context.Context, msg *domain.LogMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[msg.RunID] = append(f.logs[msg.RunID], *msg)
	return nil
}

func (f *fakeRunRepo) ListLogMessages(_ context.Context, runID string) ([]domain.LogMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.LogMessage(nil), f.logs[runID]...), nil
}

func (f *fakeRunRepo) status(id string) domain.RunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id].Status
}

// recordingRunner tracks execution order and observed concurrency.
type recordingRunner struct {
	mu        sync.Mutex
	order     []string
	inFlight  int
	maxFlight int
	holdEach  time.Duration
	onExecute func(ctx context.Context, run *domain.SimulationRun)
}

func (r *recordingRunner) Execute(ctx context.Context, run *domain.SimulationRun) {
	r.mu.Lock()
	r.order = append(r.order, run.ID)
	r.inFlight++
	if r.inFlight > r.maxFlight {
		r.maxFlight = r.inFlight
	}
	r.mu.Unlock()

	if r.onExecute != nil {
		r.onExecute(ctx, run)
	} else if r.holdEach > 0 {
		time.Sleep(r.holdEach)
	}

	r.mu.Lock()
	r.inFlight--
	r.mu.Unlock()
}

func (r *recordingRunner) executed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func queuedRun(repo *fakeRunRepo, id string) *domain.SimulationRun {
	run := &domain.SimulationRun{ID: id, SimulationID: "sim-1", Status: domain.RunStatusQueued, StartTime: time.Now()}
	_ = repo.CreateRun(context.Background(), run)
	return run
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestQueueSingleFlightAndFIFO(t *testing.T) {
	repo := newFakeRunRepo()
	runner := &recordingRunner{holdEach: 5 * time.Millisecond}
	queue := NewQueue(runner, repo, ws.NewHub(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Run(ctx)

	ids := []string{"run-1", "run-2", "run-3", "run-4"}
	for _, id := range ids {
		queue.Enqueue(queuedRun(repo, id))
	}

	waitFor(t, time.Second, func() bool { return len(runner.executed()) == len(ids) })

	if runner.maxFlight != 1 {
		t.Fatalf("observed %d concurrent runs, want 1", runner.maxFlight)
	}
	executed := runner.executed()
	for i, id := range ids {
		if executed[i] != id {
			t.Fatalf("execution order %v, want %v", executed, ids)
		}
	}
}

func TestQueueCancelQueuedRun(t *testing.T) {
	repo := newFakeRunRepo()
	blocked := make(chan struct{})
	runner := &recordingRunner{onExecute: func(ctx context.Context, _ *domain.SimulationRun) {
		<-blocked
	}}
	queue := NewQueue(runner, repo, ws.NewHub(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Run(ctx)

	first := queuedRun(repo, "run-1")
	second := queuedRun(repo, "run-2")
	queue.Enqueue(first)
	waitFor(t, time.Second, func() bool { return len(runner.executed()) == 1 })
	queue.Enqueue(second)

	if !queue.Cancel(context.Background(), second.ID) {
		t.Fatal("cancel of queued run not handled")
	}
	if got := repo.status(second.ID); got != domain.RunStatusFailed {
		t.Fatalf("cancelled queued run status = %s, want FAILED", got)
	}
	logs, _ := repo.ListLogMessages(context.Background(), second.ID)
	if len(logs) == 0 || !logs[0].IsError {
		t.Fatal("cancelled run has no error log entry")
	}

	close(blocked)
	// The cancelled run must never execute.
	waitFor(t, time.Second, func() bool {
		q := queue
		q.mu.Lock()
		idle := q.activeID == "" && len(q.pending) == 0
		q.mu.Unlock()
		return idle
	})
	for _, id := range runner.executed() {
		if id == second.ID {
			t.Fatal("cancelled run was executed")
		}
	}
}

func TestQueueCancelActiveRunSignalsContext(t *testing.T) {
	repo := newFakeRunRepo()
	started := make(chan struct{})
	observedCancel := make(chan struct{})
	runner := &recordingRunner{onExecute: func(ctx context.Context, _ *domain.SimulationRun) {
		close(started)
		<-ctx.Done()
		close(observedCancel)
	}}
	queue := NewQueue(runner, repo, ws.NewHub(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Run(ctx)

	run := queuedRun(repo, "run-1")
	queue.Enqueue(run)
	<-started

	if !queue.Cancel(context.Background(), run.ID) {
		t.Fatal("cancel of active run not handled")
	}
	select {
	case <-observedCancel:
	case <-time.After(time.Second):
		t.Fatal("active run did not observe cancellation")
	}
}

func TestQueueCancelUnknownRun(t *testing.T) {
	repo := newFakeRunRepo()
	queue := NewQueue(&recordingRunner{}, repo, ws.NewHub(), testLogger())
	if queue.Cancel(context.Background(), "missing") {
		t.Fatal("cancel of unknown run reported as handled")
	}
}

func TestQueueRecover(t *testing.T) {
	repo := newFakeRunRepo()
	orphan := &domain.SimulationRun{ID: "orphan", SimulationID: "sim-1", Status: domain.RunStatusRunning, StartTime: time.Now()}
	_ = repo.CreateRun(context.Background(), orphan)
	leftover := queuedRun(repo, "leftover")

	runner := &recordingRunner{}
	queue := NewQueue(runner, repo, ws.NewHub(), testLogger())
	if err := queue.Recover(context.Background()); err != nil {
		t.Fatalf("recover failed: %v", err)
	}

	if got := repo.status(orphan.ID); got != domain.RunStatusFailed {
		t.Fatalf("orphaned run status = %s, want FAILED", got)
	}
	logs, _ := repo.ListLogMessages(context.Background(), orphan.ID)
	if len(logs) != 1 {
		t.Fatalf("orphaned run has %d log entries, want 1", len(logs))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Run(ctx)
	waitFor(t, time.Second, func() bool {
		for _, id := range runner.executed() {
			if id == leftover.ID {
				return true
			}
		}
		return false
	})
}

func TestQueueWorkerSurvivesPanic(t *testing.T) {
	repo := newFakeRunRepo()
	calls := 0
	var mu sync.Mutex
	runner := &recordingRunner{onExecute: func(_ context.Context, run *domain.SimulationRun) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			panic("boom")
		}
	}}
	queue := NewQueue(runner, repo, ws.NewHub(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Run(ctx)

	bad := queuedRun(repo, "bad")
	good := queuedRun(repo, "good")
	queue.Enqueue(bad)
	queue.Enqueue(good)

	waitFor(t, time.Second, func() bool { return len(runner.executed()) == 2 })
	if got := repo.status(bad.ID); got != domain.RunStatusFailed {
		t.Fatalf("panicked run status = %s, want FAILED", got)
	}
}
