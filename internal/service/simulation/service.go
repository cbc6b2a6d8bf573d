package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/ws"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/config"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/crypto"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/numrange"
)

var (
	// ErrValidation marks rejected simulation parameters.
	ErrValidation = errors.New("simulation: validation failed")
	// ErrRunTerminal is returned when cancelling an already finished run.
	ErrRunTerminal = errors.New("simulation: run already terminal")
)

// Service is the external API surface of the simulation engine: CRUD for
// simulation configurations, run submission and cancellation.
type Service struct {
	cfg     config.APIConfig
	simRepo repository.SimulationRepository
	runRepo repository.RunRepository
	queue   *Queue
	hub     *ws.Hub
	log     *slog.Logger
	now     func() time.Time
}

// NewService creates the simulation service.
func NewService(
	cfg config.APIConfig,
	simRepo repository.SimulationRepository,
	runRepo repository.RunRepository,
	queue *Queue,
	hub *ws.Hub,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfg:     cfg,
		simRepo: simRepo,
		runRepo: runRepo,
		queue:   queue,
		hub:     hub,
		log:     logger,
		now:     time.Now,
	}
}

// CreateParams are the caller-supplied simulation parameters.
type CreateParams struct {
	Name               string
	Server             string
	Mode               domain.Mode
	NumberOfUsers      int
	CustomizeUserRange bool
	UserRange          string
	CourseID           int64
	ExamID             int64
	CommitsFrom        int
	CommitsTo          int
	InstructorUsername string
	InstructorPassword string
}

func (s *Service) validate(p CreateParams) error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if _, ok := s.cfg.Server(p.Server); !ok {
		return fmt.Errorf("%w: unknown server %q", ErrValidation, p.Server)
	}
	if !p.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrValidation, p.Mode)
	}
	if p.CustomizeUserRange {
		if _, err := numrange.Parse(p.UserRange); err != nil {
			return fmt.Errorf("%w: malformed user range %q", ErrValidation, p.UserRange)
		}
	} else if p.NumberOfUsers <= 0 {
		return fmt.Errorf("%w: number of users must be positive", ErrValidation)
	}
	if p.CommitsFrom <= 0 || p.CommitsTo < p.CommitsFrom {
		return fmt.Errorf("%w: invalid commit range %d-%d", ErrValidation, p.CommitsFrom, p.CommitsTo)
	}
	switch p.Mode {
	case domain.ModeExistingCourseCreateExam:
		if p.CourseID <= 0 {
			return fmt.Errorf("%w: mode %s requires a course id", ErrValidation, p.Mode)
		}
	case domain.ModeExistingCourseUnpreparedExam, domain.ModeExistingCoursePreparedExam:
		if p.CourseID <= 0 || p.ExamID <= 0 {
			return fmt.Errorf("%w: mode %s requires course and exam ids", ErrValidation, p.Mode)
		}
	}
	return nil
}

// CreateSimulation validates and stores a simulation configuration. The
// instructor password, when given, is encrypted before it is persisted.
func (s *Service) CreateSimulation(ctx context.Context, p CreateParams) (*domain.Simulation, error) {
	if err := s.validate(p); err != nil {
		return nil, err
	}

	numberOfUsers := p.NumberOfUsers
	if p.CustomizeUserRange {
		indexes, err := numrange.Parse(p.UserRange)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed user range %q", ErrValidation, p.UserRange)
		}
		numberOfUsers = len(indexes)
	}

	simulation := &domain.Simulation{
		ID:                 uuid.NewString(),
		Name:               p.Name,
		Server:             p.Server,
		Mode:               p.Mode,
		NumberOfUsers:      numberOfUsers,
		CustomizeUserRange: p.CustomizeUserRange,
		UserRange:          p.UserRange,
		CourseID:           p.CourseID,
		ExamID:             p.ExamID,
		CommitsFrom:        p.CommitsFrom,
		CommitsTo:          p.CommitsTo,
		InstructorUsername: p.InstructorUsername,
		CreatedAt:          s.now().UTC(),
	}
	if p.InstructorPassword != "" {
		encrypted, err := crypto.EncryptString(s.cfg.EncryptionSecret, p.InstructorPassword)
		if err != nil {
			return nil, fmt.Errorf("encrypt instructor password: %w", err)
		}
		simulation.InstructorPassword = encrypted
	}

	if err := s.simRepo.CreateSimulation(ctx, simulation); err != nil {
		return nil, err
	}
	return simulation, nil
}

// GetSimulation fetches one simulation.
func (s *Service) GetSimulation(ctx context.Context, id string) (*domain.Simulation, error) {
	return s.simRepo.GetSimulationByID(ctx, id)
}

// ListSimulations returns every stored simulation.
func (s *Service) ListSimulations(ctx context.Context) ([]domain.Simulation, error) {
	return s.simRepo.ListSimulations(ctx)
}

// DeleteSimulation removes a simulation; runs, schedules and stats
// cascade in the database.
func (s *Service) DeleteSimulation(ctx context.Context, id string) error {
	return s.simRepo.DeleteSimulation(ctx, id)
}

// SubmitRun creates a QUEUED run and returns immediately; the queue
// worker picks it up when the active slot is free. adminAccount
// optionally carries one-off admin credentials that are never persisted.
func (s *Service) SubmitRun(ctx context.Context, simulationID string, adminAccount *domain.Credentials) (*domain.SimulationRun, error) {
	return s.submit(ctx, simulationID, nil, adminAccount)
}

// SubmitScheduledRun creates a run on behalf of a due schedule.
func (s *Service) SubmitScheduledRun(ctx context.Context, simulationID, scheduleID string) (*domain.SimulationRun, error) {
	return s.submit(ctx, simulationID, &scheduleID, nil)
}

func (s *Service) submit(ctx context.Context, simulationID string, scheduleID *string, adminAccount *domain.Credentials) (*domain.SimulationRun, error) {
	if _, err := s.simRepo.GetSimulationByID(ctx, simulationID); err != nil {
		return nil, err
	}

	run := &domain.SimulationRun{
		ID:           uuid.NewString(),
		SimulationID: simulationID,
		Status:       domain.RunStatusQueued,
		StartTime:    s.now().UTC(),
		ScheduleID:   scheduleID,
		AdminAccount: adminAccount,
	}
	if err := s.runRepo.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	s.queue.Enqueue(run)
	s.hub.Publish(run.ID, ws.EventRunStatus, run)
	s.log.Info("run queued", "run", run.ID, "simulation", simulationID)
	return run, nil
}

// CancelRun aborts a queued or running run. A terminal run yields
// ErrRunTerminal; an unknown id yields repository.ErrNotFound.
func (s *Service) CancelRun(ctx context.Context, runID string) error {
	if s.queue.Cancel(ctx, runID) {
		s.log.Info("run cancelled", "run", runID)
		return nil
	}

	run, err := s.runRepo.GetRunByID(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return ErrRunTerminal
	}
	// Known to the store but not to the queue: a leftover from a crash.
	// Recover marks these at startup; report it as terminal here.
	return ErrRunTerminal
}

// GetRun fetches one run.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.SimulationRun, error) {
	return s.runRepo.GetRunByID(ctx, runID)
}

// ListRuns returns a simulation's runs.
func (s *Service) ListRuns(ctx context.Context, simulationID string) ([]domain.SimulationRun, error) {
	return s.runRepo.ListRunsBySimulation(ctx, simulationID)
}

// ListLogMessages returns a run's log.
func (s *Service) ListLogMessages(ctx context.Context, runID string) ([]domain.LogMessage, error) {
	return s.runRepo.ListLogMessages(ctx, runID)
}
