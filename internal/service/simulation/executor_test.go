package simulation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/account"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/ci"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/stats"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/ws"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/config"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/crypto"
)

const testSecret = "executor-test-secret"

type fakeSimulationRepo struct {
	mu          sync.Mutex
	simulations map[string]domain.Simulation
}

func (f *fakeSimulationRepo) CreateSimulation(_ context.Context, s *domain.Simulation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulations[s.ID] = *s
	return nil
}

func (f *fakeSimulationRepo) GetSimulationByID(_ context.Context, id string) (*domain.Simulation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.simulations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSimulationRepo) ListSimulations(context.Context) ([]domain.Simulation, error) {
	return nil, nil
}

func (f *fakeSimulationRepo) UpdateSimulationInstructor(context.Context, string, string, []byte) error {
	return nil
}

func (f *fakeSimulationRepo) DeleteSimulation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.simulations, id)
	return nil
}

type fakeAccountRepo struct {
	accounts []domain.ArtemisAccount
}

func (f *fakeAccountRepo) CreateAccount(_ context.Context, a *domain.ArtemisAccount) error {
	f.accounts = append(f.accounts, *a)
	return nil
}

func (f *fakeAccountRepo) ListAccountsByIndexes(_ context.Context, server string, indexes []int) ([]domain.ArtemisAccount, error) {
	wanted := make(map[int]struct{}, len(indexes))
	for _, i := range indexes {
		wanted[i] = struct{}{}
	}
	var out []domain.ArtemisAccount
	for _, a := range f.accounts {
		if a.Server != server || a.IsAdmin {
			continue
		}
		if _, ok := wanted[a.AccountIndex]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) GetAdminAccount(_ context.Context, server string) (*domain.ArtemisAccount, error) {
	for _, a := range f.accounts {
		if a.Server == server && a.IsAdmin {
			account := a
			return &account, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccountRepo) DeleteAccount(context.Context, string) error { return nil }

type fakeStatsRepo struct {
	mu      sync.Mutex
	buckets map[string][]domain.StatsBucket
	totals  map[string][]domain.RunStats
}

func newFakeStatsRepo() *fakeStatsRepo {
	return &fakeStatsRepo{
		buckets: make(map[string][]domain.StatsBucket),
		totals:  make(map[string][]domain.RunStats),
	}
}

func (f *fakeStatsRepo) UpsertStatsBuckets(_ context.Context, buckets []domain.StatsBucket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range buckets {
		f.buckets[b.RunID] = append(f.buckets[b.RunID], b)
	}
	return nil
}

func (f *fakeStatsRepo) ListStatsBuckets(_ context.Context, runID string) ([]domain.StatsBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buckets[runID], nil
}

func (f *fakeStatsRepo) SaveRunStats(_ context.Context, statsRows []domain.RunStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range statsRows {
		f.totals[s.RunID] = append(f.totals[s.RunID], s)
	}
	return nil
}

func (f *fakeStatsRepo) ListRunStats(_ context.Context, runID string) ([]domain.RunStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totals[runID], nil
}

type fakeCiStatusRepo struct{}

func (fakeCiStatusRepo) UpsertCiStatus(context.Context, *domain.CiStatus) error { return nil }

func (fakeCiStatusRepo) GetCiStatusByRun(context.Context, string) (*domain.CiStatus, error) {
	return nil, repository.ErrNotFound
}

func (fakeCiStatusRepo) DeleteUnfinishedCiStatus(context.Context) error { return nil }

type executorFixture struct {
	executor *Executor
	simRepo  *fakeSimulationRepo
	runRepo  *fakeRunRepo
	sim      *domain.Simulation
}

func newExecutorFixture(t *testing.T, numberOfUsers int) *executorFixture {
	t.Helper()

	cfg := config.APIConfig{
		Servers:            []config.ArtemisServer{{Name: "test", URL: "http://artemis.test"}},
		EncryptionSecret:   testSecret,
		ReposDir:           t.TempDir(),
		MaxConcurrentUsers: 4,
	}

	accountRepo := &fakeAccountRepo{}
	for i := 1; i <= numberOfUsers; i++ {
		encrypted, err := crypto.EncryptString(testSecret, "password")
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		accountRepo.accounts = append(accountRepo.accounts, domain.ArtemisAccount{
			ID:           uuid.NewString(),
			Server:       "test",
			AccountIndex: i,
			Username:     usernameFor(i),
			Password:     encrypted,
		})
	}

	logger := testLogger()
	hub := ws.NewHub()
	simRepo := &fakeSimulationRepo{simulations: make(map[string]domain.Simulation)}
	runRepo := newFakeRunRepo()

	executor := NewExecutor(
		cfg,
		simRepo,
		runRepo,
		account.New(accountRepo, testSecret, logger),
		stats.New(newFakeStatsRepo(), hub, time.Second, logger),
		ci.New(fakeCiStatusRepo{}, hub, time.Millisecond, logger),
		nil,
		hub,
		logger,
	)

	sim := &domain.Simulation{
		ID:            uuid.NewString(),
		Name:          "exam load",
		Server:        "test",
		Mode:          domain.ModeExistingCoursePreparedExam,
		NumberOfUsers: numberOfUsers,
		CourseID:      7,
		ExamID:        11,
		CommitsFrom:   1,
		CommitsTo:     2,
	}
	_ = simRepo.CreateSimulation(context.Background(), sim)

	return &executorFixture{executor: executor, simRepo: simRepo, runRepo: runRepo, sim: sim}
}

func usernameFor(i int) string {
	return "student_" + string(rune('0'+i))
}

func (f *executorFixture) newRun(t *testing.T) *domain.SimulationRun {
	t.Helper()
	run := &domain.SimulationRun{
		ID:           uuid.NewString(),
		SimulationID: f.sim.ID,
		Status:       domain.RunStatusQueued,
		StartTime:    time.Now().UTC(),
	}
	if err := f.runRepo.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return run
}

func (f *executorFixture) hasLogContaining(t *testing.T, runID, fragment string) bool {
	t.Helper()
	logs, err := f.runRepo.ListLogMessages(context.Background(), runID)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	for _, msg := range logs {
		if strings.Contains(msg.Message, fragment) {
			return true
		}
	}
	return false
}

func TestExecuteUserFailureIsIsolated(t *testing.T) {
	f := newExecutorFixture(t, 3)
	f.executor.runUser = func(_ context.Context, p userParams) error {
		if p.creds.Username == usernameFor(2) {
			return errors.New("login rejected")
		}
		return nil
	}

	run := f.newRun(t)
	f.executor.Execute(context.Background(), run)

	if got := f.runRepo.status(run.ID); got != domain.RunStatusFinished {
		t.Fatalf("run status = %s, want FINISHED", got)
	}
	if !f.hasLogContaining(t, run.ID, usernameFor(2)) {
		t.Fatal("failed user not recorded in run log")
	}
}

func TestExecuteAllUsersFailedMarksRunFailed(t *testing.T) {
	f := newExecutorFixture(t, 2)
	f.executor.runUser = func(context.Context, userParams) error {
		return errors.New("login rejected")
	}

	run := f.newRun(t)
	f.executor.Execute(context.Background(), run)

	if got := f.runRepo.status(run.ID); got != domain.RunStatusFailed {
		t.Fatalf("run status = %s, want FAILED", got)
	}
}

func TestExecuteCancellationMarksRunFailed(t *testing.T) {
	f := newExecutorFixture(t, 3)
	started := make(chan struct{}, 3)
	f.executor.runUser = func(ctx context.Context, _ userParams) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := f.newRun(t)

	done := make(chan struct{})
	go func() {
		f.executor.Execute(ctx, run)
		close(done)
	}()

	<-started
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("execute did not return after cancellation")
	}

	if got := f.runRepo.status(run.ID); got != domain.RunStatusFailed {
		t.Fatalf("run status = %s, want FAILED", got)
	}
	if !f.hasLogContaining(t, run.ID, "cancelled by operator") {
		t.Fatal("no cancellation log entry")
	}
}

func TestExecuteSetupFailureSpawnsNoWorkers(t *testing.T) {
	f := newExecutorFixture(t, 0) // no stored accounts
	var workers atomic.Int64
	f.executor.runUser = func(context.Context, userParams) error {
		workers.Add(1)
		return nil
	}

	run := f.newRun(t)
	f.executor.Execute(context.Background(), run)

	if got := f.runRepo.status(run.ID); got != domain.RunStatusFailed {
		t.Fatalf("run status = %s, want FAILED", got)
	}
	if workers.Load() != 0 {
		t.Fatalf("%d workers spawned despite setup failure", workers.Load())
	}
}

func TestExecuteInvokesCompletionHook(t *testing.T) {
	f := newExecutorFixture(t, 1)
	f.executor.runUser = func(_ context.Context, p userParams) error {
		p.record(domain.RequestStat{Timestamp: time.Now(), Duration: time.Millisecond, Type: domain.RequestTypeLogin})
		return nil
	}

	var hookRun *domain.SimulationRun
	var hookStats []domain.RunStats
	f.executor.SetCompletionHook(func(_ context.Context, run *domain.SimulationRun, stats []domain.RunStats) {
		hookRun = run
		hookStats = stats
	})

	run := f.newRun(t)
	f.executor.Execute(context.Background(), run)

	if hookRun == nil || hookRun.ID != run.ID {
		t.Fatal("completion hook not invoked with the run")
	}
	if len(hookStats) == 0 {
		t.Fatal("completion hook received no stats")
	}
	if !hookRun.Status.Terminal() {
		t.Fatalf("hook observed non-terminal status %s", hookRun.Status)
	}
}
