package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/artemis"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/account"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/ci"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/stats"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/ws"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/config"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/crypto"
)

// maxLogMessageLen caps persisted run log lines.
const maxLogMessageLen = 255

// userParams bundles everything one virtual user execution needs.
type userParams struct {
	server          config.ArtemisServer
	simulation      *domain.Simulation
	creds           domain.Credentials
	courseID        int64
	examID          int64
	workDir         string
	record          artemis.StatRecorder
	onParticipation func(int64)
}

// setupResult is the outcome of the mode-dependent admin setup phase.
type setupResult struct {
	courseID      int64
	examID        int64
	createdCourse bool
	createdExam   bool
	admin         *artemis.Admin
}

// Executor drives one run end to end: admin setup, the bounded fan-out of
// virtual users, CI draining, and the final status transition.
type Executor struct {
	cfg      config.APIConfig
	simRepo  repository.SimulationRepository
	runRepo  repository.RunRepository
	accounts *account.Service
	stats    *stats.Service
	ci       *ci.Poller
	vcs      artemis.VCSClient
	hub      *ws.Hub
	log      *slog.Logger

	// notifyCompleted is invoked after a scheduled run reaches a terminal
	// state; wired to the schedule evaluator's subscriber mails.
	notifyCompleted func(context.Context, *domain.SimulationRun, []domain.RunStats)

	// Overridable seams for tests.
	runUser    func(ctx context.Context, p userParams) error
	setupAdmin func(ctx context.Context, server config.ArtemisServer, sim *domain.Simulation, creds domain.Credentials) (*setupResult, error)
	now        func() time.Time
}

// NewExecutor creates the run orchestrator.
func NewExecutor(
	cfg config.APIConfig,
	simRepo repository.SimulationRepository,
	runRepo repository.RunRepository,
	accounts *account.Service,
	statsSvc *stats.Service,
	ciPoller *ci.Poller,
	vcsClient artemis.VCSClient,
	hub *ws.Hub,
	logger *slog.Logger,
) *Executor {
	e := &Executor{
		cfg:      cfg,
		simRepo:  simRepo,
		runRepo:  runRepo,
		accounts: accounts,
		stats:    statsSvc,
		ci:       ciPoller,
		vcs:      vcsClient,
		hub:      hub,
		log:      logger,
		now:      time.Now,
	}
	e.runUser = e.executeUser
	e.setupAdmin = e.performSetup
	return e
}

// SetCompletionHook registers the terminal-state callback.
func (e *Executor) SetCompletionHook(hook func(context.Context, *domain.SimulationRun, []domain.RunStats)) {
	e.notifyCompleted = hook
}

// Execute runs one simulation run to a terminal state. All failures end
// inside the run's log and status; Execute never returns an error to the
// queue worker.
func (e *Executor) Execute(ctx context.Context, run *domain.SimulationRun) {
	simulation, err := e.simRepo.GetSimulationByID(ctx, run.SimulationID)
	if err != nil {
		e.failRun(ctx, run, fmt.Sprintf("Simulation lookup failed: %v", err))
		return
	}

	run.Status = domain.RunStatusRunning
	if err := e.runRepo.UpdateRunStatus(ctx, run); err != nil {
		e.failRun(ctx, run, fmt.Sprintf("Starting run failed: %v", err))
		return
	}
	e.hub.Publish(run.ID, ws.EventRunStatus, run)
	e.logAndSend(ctx, run.ID, fmt.Sprintf("Starting simulation %q with %d users against %s",
		simulation.Name, simulation.NumberOfUsers, simulation.Server), false)

	server, ok := e.cfg.Server(simulation.Server)
	if !ok {
		e.failRun(ctx, run, fmt.Sprintf("Unknown Artemis server %q", simulation.Server))
		return
	}

	users, err := e.accounts.ResolveUsers(ctx, simulation)
	if err != nil {
		e.failRun(ctx, run, fmt.Sprintf("Resolving user accounts failed: %v", err))
		return
	}

	var setup *setupResult
	if simulation.Mode.RequiresAdmin() {
		adminCreds, err := e.adminCredentials(ctx, simulation, run)
		if err != nil {
			e.failRun(ctx, run, fmt.Sprintf("No admin credentials available: %v", err))
			return
		}
		setup, err = e.setupAdmin(ctx, server, simulation, *adminCreds)
		if err != nil {
			e.failRun(ctx, run, fmt.Sprintf("Exam setup failed: %v", err))
			return
		}
		e.logAndSend(ctx, run.ID, fmt.Sprintf("Exam setup complete, course %d exam %d",
			setup.courseID, setup.examID), false)
	} else {
		setup = &setupResult{courseID: simulation.CourseID, examID: simulation.ExamID}
	}

	record := e.stats.StartRun(run.ID)
	var pushCount atomic.Int64
	countingRecord := func(stat domain.RequestStat) {
		if stat.Type == domain.RequestTypePush {
			pushCount.Add(1)
		}
		record(stat)
	}
	participations := newParticipationSet()

	succeeded := e.fanOut(ctx, run, server, simulation, users, setup, countingRecord, participations.add)

	cancelled := ctx.Err() != nil
	if !cancelled && setup.admin != nil && pushCount.Load() > 0 {
		e.logAndSend(ctx, run.ID, fmt.Sprintf("Waiting for %d build jobs to drain", pushCount.Load()), false)
		query := buildResultQuery(setup.admin, participations.ids())
		if _, err := e.ci.Drain(ctx, run.ID, int(pushCount.Load()), query); err != nil {
			cancelled = ctx.Err() != nil
			if !cancelled {
				e.logAndSend(ctx, run.ID, fmt.Sprintf("CI drain aborted: %v", err), true)
			}
		}
	}

	if err := e.stats.Finalize(context.WithoutCancel(ctx), run.ID); err != nil {
		e.log.Warn("finalizing stats failed", "run", run.ID, "error", err)
	}

	e.cleanup(context.WithoutCancel(ctx), server, simulation, setup)

	bg := context.WithoutCancel(ctx)
	switch {
	case cancelled:
		e.failRun(bg, run, "Run cancelled by operator")
	case succeeded == 0:
		e.failRun(bg, run, "All virtual users failed, no load was generated")
	default:
		e.finishRun(bg, run, fmt.Sprintf("Run finished, %d of %d users completed the exam workflow",
			succeeded, len(users)))
	}

	if e.notifyCompleted != nil {
		finalStats, err := e.stats.RunStats(bg, run.ID)
		if err != nil {
			e.log.Warn("loading final stats failed", "run", run.ID, "error", err)
		}
		e.notifyCompleted(bg, run, finalStats)
	}
}

// fanOut launches one virtual user per account, bounded by the worker
// limit, and reports how many completed their workflow.
func (e *Executor) fanOut(
	ctx context.Context,
	run *domain.SimulationRun,
	server config.ArtemisServer,
	simulation *domain.Simulation,
	users []domain.Credentials,
	setup *setupResult,
	record artemis.StatRecorder,
	onParticipation func(int64),
) int64 {
	limit := e.cfg.MaxConcurrentUsers
	if limit <= 0 {
		limit = 10 * runtime.GOMAXPROCS(0)
	}
	if limit > len(users) {
		limit = len(users)
	}

	var (
		wg        sync.WaitGroup
		sem       = make(chan struct{}, limit)
		succeeded atomic.Int64
	)
	for _, creds := range users {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(creds domain.Credentials) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			if ctx.Err() != nil {
				return
			}

			err := e.runUser(ctx, userParams{
				server:          server,
				simulation:      simulation,
				creds:           creds,
				courseID:        setup.courseID,
				examID:          setup.examID,
				workDir:         filepath.Join(e.cfg.ReposDir, run.ID, creds.Username),
				record:          record,
				onParticipation: onParticipation,
			})
			if err != nil {
				if ctx.Err() == nil {
					e.logAndSend(ctx, run.ID, fmt.Sprintf("User %s failed: %v", creds.Username, err), true)
				}
				return
			}
			succeeded.Add(1)
		}(creds)
	}
	wg.Wait()
	return succeeded.Load()
}

// executeUser is the production virtual-user workflow.
func (e *Executor) executeUser(ctx context.Context, p userParams) error {
	client := artemis.NewClient(p.server.URL, e.log)
	student := artemis.NewStudent(client, e.vcs, artemis.StudentConfig{
		Credentials:                p.creds,
		CourseID:                   p.courseID,
		ExamID:                     p.examID,
		CommitsFrom:                p.simulation.CommitsFrom,
		CommitsTo:                  p.simulation.CommitsTo,
		WorkDir:                    p.workDir,
		OnProgrammingParticipation: p.onParticipation,
	}, p.record, e.log)
	return student.Run(ctx)
}

// performSetup is the production mode-dependent admin setup.
func (e *Executor) performSetup(ctx context.Context, server config.ArtemisServer, simulation *domain.Simulation, creds domain.Credentials) (*setupResult, error) {
	client := artemis.NewClient(server.URL, e.log)
	admin := artemis.NewAdmin(client, e.log)
	if err := admin.Login(ctx, creds); err != nil {
		return nil, fmt.Errorf("admin login: %w", err)
	}

	result := &setupResult{courseID: simulation.CourseID, examID: simulation.ExamID, admin: admin}

	switch simulation.Mode {
	case domain.ModeCreateCourseAndExam:
		course, err := admin.CreateCourse(ctx, "Benchmark "+simulation.Name)
		if err != nil {
			return nil, err
		}
		result.courseID = course.ID
		result.createdCourse = true

		usernames, err := e.usernamesFor(ctx, simulation)
		if err != nil {
			return nil, err
		}
		if err := admin.RegisterStudents(ctx, course.ID, usernames); err != nil {
			return nil, err
		}
		if err := e.createAndPrepareExam(ctx, admin, course, simulation, result); err != nil {
			return nil, err
		}

	case domain.ModeExistingCourseCreateExam:
		course, err := admin.GetCourse(ctx, simulation.CourseID)
		if err != nil {
			return nil, err
		}
		if err := e.createAndPrepareExam(ctx, admin, course, simulation, result); err != nil {
			return nil, err
		}

	case domain.ModeExistingCourseUnpreparedExam:
		if err := admin.RegisterStudentsForExam(ctx, simulation.CourseID, simulation.ExamID); err != nil {
			return nil, err
		}
		if err := admin.PrepareExam(ctx, simulation.CourseID, simulation.ExamID); err != nil {
			return nil, err
		}

	case domain.ModeExistingCoursePreparedExam:
		// No setup; callers skip performSetup for this mode.
	}
	return result, nil
}

func (e *Executor) createAndPrepareExam(ctx context.Context, admin *artemis.Admin, course *artemis.Course, simulation *domain.Simulation, result *setupResult) error {
	exam, err := admin.CreateExam(ctx, course, "Benchmark Exam "+simulation.Name, simulation.NumberOfUsers)
	if err != nil {
		return err
	}
	result.examID = exam.ID
	result.createdExam = true

	if err := admin.CreateExamExercises(ctx, course.ID, exam); err != nil {
		return err
	}
	if err := admin.RegisterStudentsForExam(ctx, course.ID, exam.ID); err != nil {
		return err
	}
	return admin.PrepareExam(ctx, course.ID, exam.ID)
}

func (e *Executor) usernamesFor(ctx context.Context, simulation *domain.Simulation) ([]string, error) {
	users, err := e.accounts.ResolveUsers(ctx, simulation)
	if err != nil {
		return nil, err
	}
	usernames := make([]string, len(users))
	for i, u := range users {
		usernames[i] = u.Username
	}
	return usernames, nil
}

// adminCredentials picks, in order, the one-off credentials supplied at
// submit time, the simulation's own instructor account, and finally the
// stored admin account of the server.
func (e *Executor) adminCredentials(ctx context.Context, simulation *domain.Simulation, run *domain.SimulationRun) (*domain.Credentials, error) {
	if run.AdminAccount != nil {
		return run.AdminAccount, nil
	}
	if simulation.InstructorCredentialsProvided() {
		password, err := crypto.DecryptToString(e.cfg.EncryptionSecret, simulation.InstructorPassword)
		if err != nil {
			return nil, fmt.Errorf("decrypt instructor password: %w", err)
		}
		return &domain.Credentials{Username: simulation.InstructorUsername, Password: password}, nil
	}
	return e.accounts.AdminCredentials(ctx, simulation.Server)
}

// cleanup removes the course or exam this run created, when the target
// server is flagged for cleanup.
func (e *Executor) cleanup(ctx context.Context, server config.ArtemisServer, simulation *domain.Simulation, setup *setupResult) {
	if !server.Cleanup || setup == nil || setup.admin == nil {
		return
	}
	switch {
	case setup.createdCourse:
		if err := setup.admin.DeleteCourse(ctx, setup.courseID); err != nil {
			e.log.Warn("course cleanup failed", "course", setup.courseID, "error", err)
		}
	case setup.createdExam:
		if err := setup.admin.DeleteExam(ctx, setup.courseID, setup.examID); err != nil {
			e.log.Warn("exam cleanup failed", "exam", setup.examID, "error", err)
		}
	}
}

func (e *Executor) failRun(ctx context.Context, run *domain.SimulationRun, message string) {
	e.logAndSend(ctx, run.ID, message, true)
	e.transition(ctx, run, domain.RunStatusFailed)
}

func (e *Executor) finishRun(ctx context.Context, run *domain.SimulationRun, message string) {
	e.logAndSend(ctx, run.ID, message, false)
	e.transition(ctx, run, domain.RunStatusFinished)
}

func (e *Executor) transition(ctx context.Context, run *domain.SimulationRun, status domain.RunStatus) {
	now := e.now().UTC()
	run.Status = status
	run.EndTime = &now
	if err := e.runRepo.UpdateRunStatus(ctx, run); err != nil {
		e.log.Error("updating run status failed", "run", run.ID, "status", status, "error", err)
	}
	e.hub.Publish(run.ID, ws.EventRunStatus, run)
}

// logAndSend persists one run log line, capped at 255 characters, and
// pushes it to live subscribers.
func (e *Executor) logAndSend(ctx context.Context, runID, message string, isError bool) {
	if len(message) > maxLogMessageLen {
		message = message[:maxLogMessageLen]
	}
	msg := &domain.LogMessage{
		ID:        uuid.NewString(),
		RunID:     runID,
		Message:   message,
		IsError:   isError,
		Timestamp: e.now().UTC(),
	}
	if err := e.runRepo.AppendLogMessage(ctx, msg); err != nil {
		e.log.Warn("appending run log failed", "run", runID, "error", err)
	}
	e.hub.Publish(runID, ws.EventRunLog, msg)
}

// participationSet collects programming participation IDs concurrently.
type participationSet struct {
	mu  sync.Mutex
	set map[int64]struct{}
}

func newParticipationSet() *participationSet {
	return &participationSet{set: make(map[int64]struct{})}
}

func (p *participationSet) add(id int64) {
	p.mu.Lock()
	p.set[id] = struct{}{}
	p.mu.Unlock()
}

func (p *participationSet) ids() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int64, 0, len(p.set))
	for id := range p.set {
		out = append(out, id)
	}
	return out
}

// buildResultQuery counts graded submissions across the run's programming
// participations.
func buildResultQuery(admin *artemis.Admin, participationIDs []int64) ci.ResultQuery {
	return func(ctx context.Context) (int, error) {
		results := 0
		for _, id := range participationIDs {
			submissions, err := admin.GetSubmissions(ctx, id)
			if err != nil {
				return 0, err
			}
			for _, submission := range submissions {
				if submission.Graded() {
					results++
				}
			}
		}
		return results, nil
	}
}
