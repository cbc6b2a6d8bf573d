package httpx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/account"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/ci"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/mail"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/schedule"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/simulation"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/stats"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/ws"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/config"
)

const testAdminToken = "router-test-token"

type memSimRepo struct {
	mu          sync.Mutex
	simulations map[string]domain.Simulation
}

func newMemSimRepo() *memSimRepo {
	return &memSimRepo{simulations: make(map[string]domain.Simulation)}
}

func (m *memSimRepo) CreateSimulation(_ context.Context, s *domain.Simulation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulations[s.ID] = *s
	return nil
}

func (m *memSimRepo) GetSimulationByID(_ context.Context, id string) (*domain.Simulation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.simulations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (m *memSimRepo) ListSimulations(context.Context) ([]domain.Simulation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Simulation, 0, len(m.simulations))
	for _, s := range m.simulations {
		out = append(out, s)
	}
	return out, nil
}

func (m *memSimRepo) UpdateSimulationInstructor(context.Context, string, string, []byte) error {
	return nil
}

func (m *memSimRepo) DeleteSimulation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.simulations, id)
	return nil
}

type memRunRepo struct {
	mu   sync.Mutex
	runs map[string]domain.SimulationRun
	logs map[string][]domain.LogMessage
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[string]domain.SimulationRun), logs: make(map[string][]domain.LogMessage)}
}

func (m *memRunRepo) CreateRun(_ context.Context, run *domain.SimulationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *memRunRepo) GetRunByID(_ context.Context, id string) (*domain.SimulationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &run, nil
}

func (m *memRunRepo) ListRunsBySimulation(_ context.Context, simulationID string) ([]domain.SimulationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SimulationRun
	for _, run := range m.runs {
		if run.SimulationID == simulationID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (m *memRunRepo) ListRunsByStatus(_ context.Context, status domain.RunStatus) ([]domain.SimulationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SimulationRun
	for _, run := range m.runs {
		if run.Status == status {
			out = append(out, run)
		}
	}
	return out, nil
}

func (m *memRunRepo) UpdateRunStatus(_ context.Context, run *domain.SimulationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return repository.ErrNotFound
	}
	m.runs[run.ID] = *run
	return nil
}

func (m *memRunRepo) DeleteRun(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
	return nil
}

func (m *memRunRepo) AppendLogMessage(_ context.Context, msg *domain.LogMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[msg.RunID] = append(m.logs[msg.RunID], *msg)
	return nil
}

func (m *memRunRepo) ListLogMessages(_ context.Context, runID string) ([]domain.LogMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LogMessage(nil), m.logs[runID]...), nil
}

type memScheduleRepo struct{}

func (memScheduleRepo) CreateSchedule(context.Context, *domain.SimulationSchedule) error { return nil }
func (memScheduleRepo) UpdateSchedule(context.Context, *domain.SimulationSchedule) error { return nil }
func (memScheduleRepo) GetScheduleByID(context.Context, string) (*domain.SimulationSchedule, error) {
	return nil, repository.ErrNotFound
}
func (memScheduleRepo) ListSchedules(context.Context) ([]domain.SimulationSchedule, error) {
	return nil, nil
}
func (memScheduleRepo) ListSchedulesBySimulation(context.Context, string) ([]domain.SimulationSchedule, error) {
	return nil, nil
}
func (memScheduleRepo) DeleteSchedule(context.Context, string) error { return nil }
func (memScheduleRepo) AddSubscriber(context.Context, *domain.ScheduleSubscriber) error {
	return nil
}
func (memScheduleRepo) ListSubscribers(context.Context, string) ([]domain.ScheduleSubscriber, error) {
	return nil, nil
}
func (memScheduleRepo) DeleteSubscriber(context.Context, string) error { return nil }
func (memScheduleRepo) GetSubscriberByID(context.Context, string) (*domain.ScheduleSubscriber, error) {
	return nil, repository.ErrNotFound
}

type memStatsRepo struct{}

func (memStatsRepo) UpsertStatsBuckets(context.Context, []domain.StatsBucket) error { return nil }
func (memStatsRepo) ListStatsBuckets(context.Context, string) ([]domain.StatsBucket, error) {
	return nil, nil
}
func (memStatsRepo) SaveRunStats(context.Context, []domain.RunStats) error { return nil }
func (memStatsRepo) ListRunStats(context.Context, string) ([]domain.RunStats, error) {
	return nil, nil
}

type memCiRepo struct{}

func (memCiRepo) UpsertCiStatus(context.Context, *domain.CiStatus) error { return nil }
func (memCiRepo) GetCiStatusByRun(context.Context, string) (*domain.CiStatus, error) {
	return nil, repository.ErrNotFound
}
func (memCiRepo) DeleteUnfinishedCiStatus(context.Context) error { return nil }

type memAccountRepo struct{}

func (memAccountRepo) CreateAccount(context.Context, *domain.ArtemisAccount) error { return nil }
func (memAccountRepo) ListAccountsByIndexes(context.Context, string, []int) ([]domain.ArtemisAccount, error) {
	return nil, nil
}
func (memAccountRepo) GetAdminAccount(context.Context, string) (*domain.ArtemisAccount, error) {
	return nil, repository.ErrNotFound
}
func (memAccountRepo) DeleteAccount(context.Context, string) error { return nil }

type noopRunner struct{}

func (noopRunner) Execute(context.Context, *domain.SimulationRun) {}

type routerFixture struct {
	router  *Router
	simRepo *memSimRepo
	runRepo *memRunRepo
}

func newTestRouter(t *testing.T) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := ws.NewHub()

	cfg := config.APIConfig{
		Servers:          []config.ArtemisServer{{Name: "test", URL: "http://artemis.test"}},
		EncryptionSecret: "router-test-secret",
		JWTSecret:        "router-test-secret",
		PublicBaseURL:    "http://localhost:8080",
	}

	simRepo := newMemSimRepo()
	runRepo := newMemRunRepo()
	queue := simulation.NewQueue(noopRunner{}, runRepo, hub, logger)
	simulationSvc := simulation.NewService(cfg, simRepo, runRepo, queue, hub, logger)
	mailSvc := mail.New(mail.Config{}, logger)
	scheduleSvc := schedule.New(memScheduleRepo{}, simRepo, runRepo, simulationSvc, mailSvc, cfg.JWTSecret, cfg.PublicBaseURL, time.Minute, logger)
	statsSvc := stats.New(memStatsRepo{}, hub, time.Second, logger)
	ciPoller := ci.New(memCiRepo{}, hub, time.Minute, logger)
	accountSvc := account.New(memAccountRepo{}, cfg.EncryptionSecret, logger)

	router := NewRouter(logger, simulationSvc, scheduleSvc, statsSvc, ciPoller, accountSvc, hub, cfg.Servers, nil, testAdminToken, nil)
	t.Cleanup(router.Close)
	return &routerFixture{router: router, simRepo: simRepo, runRepo: runRepo}
}

func doRequest(f *routerFixture, method, path, body string, authed bool) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRouterRequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/simulations", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated request got %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/simulations", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec = httptest.NewRecorder()
	router.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token got %d, want 401", rec.Code)
	}
}

func TestHealthzIsOpen(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(router, http.MethodGet, "/healthz", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz got %d, want 200", rec.Code)
	}
}

func TestCreateAndFetchSimulation(t *testing.T) {
	router := newTestRouter(t)

	body := `{
		"name": "exam load",
		"server": "test",
		"mode": "EXISTING_COURSE_PREPARED_EXAM",
		"numberOfUsers": 10,
		"courseId": 7,
		"examId": 11,
		"commitsFrom": 1,
		"commitsTo": 3
	}`
	rec := doRequest(router, http.MethodPost, "/api/simulations", body, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create simulation got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"ID"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created simulation has no id")
	}

	rec = doRequest(router, http.MethodGet, "/api/simulations/"+created.ID, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("get simulation got %d", rec.Code)
	}

	rec = doRequest(router, http.MethodGet, "/api/simulations/unknown-id", "", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown simulation got %d, want 404", rec.Code)
	}
}

func TestCreateSimulationValidation(t *testing.T) {
	router := newTestRouter(t)

	body := `{"name": "x", "server": "test", "mode": "NO_SUCH_MODE", "numberOfUsers": 5, "commitsFrom": 1, "commitsTo": 2}`
	rec := doRequest(router, http.MethodPost, "/api/simulations", body, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid mode got %d, want 400", rec.Code)
	}
}

func TestSubmitAndCancelRun(t *testing.T) {
	router := newTestRouter(t)

	body := `{
		"name": "exam load",
		"server": "test",
		"mode": "EXISTING_COURSE_PREPARED_EXAM",
		"numberOfUsers": 5,
		"courseId": 7,
		"examId": 11,
		"commitsFrom": 1,
		"commitsTo": 2
	}`
	rec := doRequest(router, http.MethodPost, "/api/simulations", body, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create simulation got %d", rec.Code)
	}
	var sim struct {
		ID string `json:"ID"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sim); err != nil {
		t.Fatalf("decode simulation: %v", err)
	}

	rec = doRequest(router, http.MethodPost, "/api/simulations/"+sim.ID+"/runs", "{}", true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit run got %d: %s", rec.Code, rec.Body.String())
	}
	var run struct {
		ID     string `json:"ID"`
		Status string `json:"Status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Status != string(domain.RunStatusQueued) {
		t.Fatalf("submitted run status = %s, want QUEUED", run.Status)
	}

	// The queue worker is not running, so the run is still pending.
	rec = doRequest(router, http.MethodPost, "/api/runs/"+run.ID+"/cancel", "", true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("cancel run got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(router, http.MethodGet, "/api/runs/"+run.ID, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("get run got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Status != string(domain.RunStatusFailed) {
		t.Fatalf("cancelled run status = %s, want FAILED", run.Status)
	}
}

func TestCancelTerminalRunConflicts(t *testing.T) {
	router := newTestRouter(t)

	// Seed a finished run directly; the queue has never seen it.
	finished := &domain.SimulationRun{
		ID:           "finished-run",
		SimulationID: "sim-1",
		Status:       domain.RunStatusFinished,
		StartTime:    time.Now(),
	}
	if err := router.runRepo.CreateRun(context.Background(), finished); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	rec := doRequest(router, http.MethodPost, "/api/runs/finished-run/cancel", "", true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("cancel of finished run got %d, want 409", rec.Code)
	}
}

func TestUnsubscribeRejectsBadToken(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/schedules/unsubscribe?token=not-a-jwt", "", false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad token got %d, want 400", rec.Code)
	}

	rec = doRequest(router, http.MethodGet, "/api/schedules/unsubscribe", "", false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing token got %d, want 400", rec.Code)
	}
}

func TestListServers(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/servers", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("list servers got %d", rec.Code)
	}
	var servers []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &servers); err != nil {
		t.Fatalf("decode servers: %v", err)
	}
	if len(servers) != 1 || servers[0].Name != "test" {
		t.Fatalf("servers = %+v, want the configured test server", servers)
	}
}

func TestMemoryRateLimiterWindow(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	defer limiter.Close()

	for i := 0; i < 3; i++ {
		decision := limiter.Allow("ip:10.0.0.1", 3, time.Minute)
		if !decision.allowed {
			t.Fatalf("request %d denied below the limit", i+1)
		}
	}
	if decision := limiter.Allow("ip:10.0.0.1", 3, time.Minute); decision.allowed {
		t.Fatal("request above the limit allowed")
	}
	// Other keys are tracked independently.
	if decision := limiter.Allow("ip:10.0.0.2", 3, time.Minute); !decision.allowed {
		t.Fatal("unrelated key denied")
	}
}
