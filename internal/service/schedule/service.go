package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
	mailsvc "github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/mail"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/jwt"
)

// ErrValidation marks schedule parameters rejected before any state change.
var ErrValidation = errors.New("schedule: validation failed")

// RunSubmitter enqueues a run on behalf of a due schedule.
type RunSubmitter interface {
	SubmitScheduledRun(ctx context.Context, simulationID, scheduleID string) (*domain.SimulationRun, error)
}

// Notifier receives notification tasks for asynchronous delivery.
type Notifier interface {
	Enqueue(mailsvc.Notification)
}

// RunLogSource exposes a run's persisted log messages. Failure mails quote
// the most recent error entry.
type RunLogSource interface {
	ListLogMessages(ctx context.Context, runID string) ([]domain.LogMessage, error)
}

// Service evaluates recurring schedules, triggers due runs, and manages
// subscribers. One evaluator tick runs per interval; notification mails
// are handed to the mail queue, never sent inline.
type Service struct {
	repo      repository.ScheduleRepository
	simRepo   repository.SimulationRepository
	runLogs   RunLogSource
	submitter RunSubmitter
	mailer    Notifier
	log       *slog.Logger

	jwtSecret     string
	publicBaseURL string
	tickInterval  time.Duration
	now           func() time.Time
}

// New creates the schedule evaluator.
func New(
	repo repository.ScheduleRepository,
	simRepo repository.SimulationRepository,
	runLogs RunLogSource,
	submitter RunSubmitter,
	mailer Notifier,
	jwtSecret, publicBaseURL string,
	tickInterval time.Duration,
	logger *slog.Logger,
) *Service {
	if tickInterval <= 0 {
		tickInterval = time.Minute
	}
	return &Service{
		repo:          repo,
		simRepo:       simRepo,
		runLogs:       runLogs,
		submitter:     submitter,
		mailer:        mailer,
		log:           logger,
		jwtSecret:     jwtSecret,
		publicBaseURL: publicBaseURL,
		tickInterval:  tickInterval,
		now:           time.Now,
	}
}

// CreateParams are the caller-supplied schedule parameters.
type CreateParams struct {
	Cycle         domain.Cycle
	StartDateTime time.Time
	EndDateTime   *time.Time
	TimeOfDay     time.Time
	DayOfWeek     *time.Weekday
}

func validate(p CreateParams) error {
	if p.StartDateTime.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrValidation)
	}
	if p.TimeOfDay.IsZero() {
		return fmt.Errorf("%w: time of day is required", ErrValidation)
	}
	switch p.Cycle {
	case domain.CycleDaily:
		if p.DayOfWeek != nil {
			return fmt.Errorf("%w: day of week is only valid for weekly schedules", ErrValidation)
		}
	case domain.CycleWeekly:
		if p.DayOfWeek == nil {
			return fmt.Errorf("%w: weekly schedules require a day of week", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown cycle %q", ErrValidation, p.Cycle)
	}
	if p.EndDateTime != nil && p.EndDateTime.Before(p.StartDateTime) {
		return fmt.Errorf("%w: end date before start date", ErrValidation)
	}
	return nil
}

// CreateSchedule validates and stores a schedule. A schedule that is
// already over at creation time is rejected, never stored.
func (s *Service) CreateSchedule(ctx context.Context, simulationID string, p CreateParams) (*domain.SimulationSchedule, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	if _, err := s.simRepo.GetSimulationByID(ctx, simulationID); err != nil {
		return nil, err
	}

	now := s.now()
	schedule := &domain.SimulationSchedule{
		ID:            uuid.NewString(),
		SimulationID:  simulationID,
		Cycle:         p.Cycle,
		StartDateTime: p.StartDateTime,
		EndDateTime:   p.EndDateTime,
		TimeOfDay:     p.TimeOfDay,
		DayOfWeek:     p.DayOfWeek,
		CreatedAt:     now.UTC(),
	}
	schedule.NextRun = NextRun(schedule, now)
	if schedule.NextRun == nil {
		return nil, fmt.Errorf("%w: schedule has no future occurrence", ErrValidation)
	}

	if err := s.repo.CreateSchedule(ctx, schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

// UpdateSchedule applies new parameters and recomputes the next fire time.
func (s *Service) UpdateSchedule(ctx context.Context, id string, p CreateParams) (*domain.SimulationSchedule, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	schedule, err := s.repo.GetScheduleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	schedule.Cycle = p.Cycle
	schedule.StartDateTime = p.StartDateTime
	schedule.EndDateTime = p.EndDateTime
	schedule.TimeOfDay = p.TimeOfDay
	schedule.DayOfWeek = p.DayOfWeek
	schedule.NextRun = NextRun(schedule, s.now())
	if schedule.NextRun == nil {
		return nil, fmt.Errorf("%w: schedule has no future occurrence", ErrValidation)
	}

	if err := s.repo.UpdateSchedule(ctx, schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

// GetSchedule fetches one schedule.
func (s *Service) GetSchedule(ctx context.Context, id string) (*domain.SimulationSchedule, error) {
	return s.repo.GetScheduleByID(ctx, id)
}

// ListSchedules returns a simulation's schedules.
func (s *Service) ListSchedules(ctx context.Context, simulationID string) ([]domain.SimulationSchedule, error) {
	return s.repo.ListSchedulesBySimulation(ctx, simulationID)
}

// DeleteSchedule removes a schedule and its subscribers.
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	return s.repo.DeleteSchedule(ctx, id)
}

// Subscribe registers an email address for a schedule's result mails and
// enqueues a confirmation mail carrying the unsubscribe link.
func (s *Service) Subscribe(ctx context.Context, scheduleID, email string) (*domain.ScheduleSubscriber, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	schedule, err := s.repo.GetScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	subscriber := &domain.ScheduleSubscriber{
		ID:         uuid.NewString(),
		ScheduleID: scheduleID,
		Email:      email,
		CreatedAt:  s.now().UTC(),
	}
	token, err := jwt.GenerateUnsubscribeToken(subscriber.ID, scheduleID, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("issue unsubscribe token: %w", err)
	}
	subscriber.Key = token

	if err := s.repo.AddSubscriber(ctx, subscriber); err != nil {
		return nil, err
	}

	simulation, err := s.simRepo.GetSimulationByID(ctx, schedule.SimulationID)
	if err != nil {
		s.log.Warn("simulation lookup for subscription mail failed", "schedule", scheduleID, "error", err)
		return subscriber, nil
	}
	s.mailer.Enqueue(mailsvc.Notification{
		Kind:           mailsvc.KindSubscribed,
		Email:          email,
		Simulation:     simulation,
		Schedule:       schedule,
		UnsubscribeURL: s.unsubscribeURL(token),
	})
	return subscriber, nil
}

// Unsubscribe removes the subscriber identified by a signed token.
func (s *Service) Unsubscribe(ctx context.Context, token string) error {
	claims, err := jwt.ParseUnsubscribeToken(token, s.jwtSecret)
	if err != nil {
		return fmt.Errorf("%w: invalid unsubscribe token", ErrValidation)
	}
	if err := s.repo.DeleteSubscriber(ctx, claims.SubscriberID); err != nil {
		return err
	}
	return nil
}

// Run evaluates due schedules on a fixed interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick fires every schedule whose next run is due. Exported for tests and
// for an on-demand evaluation trigger.
func (s *Service) Tick(ctx context.Context) {
	schedules, err := s.repo.ListSchedules(ctx)
	if err != nil {
		s.log.Warn("listing schedules failed", "error", err)
		return
	}

	now := s.now()
	for i := range schedules {
		schedule := &schedules[i]
		if schedule.NextRun == nil || schedule.NextRun.After(now) {
			continue
		}
		s.fire(ctx, schedule)
	}
}

// fire enqueues a run for a due schedule and advances its next fire time.
// The recomputation starts from the fire instant just consumed so a slow
// tick cannot skip or duplicate occurrences.
func (s *Service) fire(ctx context.Context, schedule *domain.SimulationSchedule) {
	firedAt := *schedule.NextRun

	if _, err := s.submitter.SubmitScheduledRun(ctx, schedule.SimulationID, schedule.ID); err != nil {
		s.log.Error("scheduled run submission failed", "schedule", schedule.ID, "error", err)
		// Fall through: the next fire time still advances, otherwise a
		// permanently failing simulation would fire on every tick.
	}

	schedule.NextRun = NextRun(schedule, firedAt)
	if schedule.NextRun == nil {
		s.expire(ctx, schedule)
		return
	}
	if err := s.repo.UpdateSchedule(ctx, schedule); err != nil {
		s.log.Error("updating schedule failed", "schedule", schedule.ID, "error", err)
	}
}

// expire deletes a schedule with no further occurrences and notifies its
// subscribers once. A schedule deleted by a concurrent caller is a no-op.
func (s *Service) expire(ctx context.Context, schedule *domain.SimulationSchedule) {
	subscribers, err := s.repo.ListSubscribers(ctx, schedule.ID)
	if err != nil {
		s.log.Warn("listing subscribers failed", "schedule", schedule.ID, "error", err)
	}

	if err := s.repo.DeleteSchedule(ctx, schedule.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return
		}
		s.log.Error("deleting expired schedule failed", "schedule", schedule.ID, "error", err)
		return
	}

	simulation, err := s.simRepo.GetSimulationByID(ctx, schedule.SimulationID)
	if err != nil {
		s.log.Warn("simulation lookup for expiry mail failed", "schedule", schedule.ID, "error", err)
		return
	}
	for _, subscriber := range subscribers {
		s.mailer.Enqueue(mailsvc.Notification{
			Kind:       mailsvc.KindScheduleEnded,
			Email:      subscriber.Email,
			Simulation: simulation,
			Schedule:   schedule,
		})
	}
}

// NotifyRunCompleted mails all subscribers of the schedule that triggered
// a run once that run reaches a terminal state.
func (s *Service) NotifyRunCompleted(ctx context.Context, run *domain.SimulationRun, stats []domain.RunStats) {
	if run.ScheduleID == nil {
		return
	}
	schedule, err := s.repo.GetScheduleByID(ctx, *run.ScheduleID)
	if err != nil {
		// Schedule may have expired between trigger and completion.
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("schedule lookup for result mail failed", "run", run.ID, "error", err)
		}
		return
	}
	simulation, err := s.simRepo.GetSimulationByID(ctx, schedule.SimulationID)
	if err != nil {
		s.log.Warn("simulation lookup for result mail failed", "run", run.ID, "error", err)
		return
	}
	subscribers, err := s.repo.ListSubscribers(ctx, schedule.ID)
	if err != nil {
		s.log.Warn("listing subscribers failed", "schedule", schedule.ID, "error", err)
		return
	}

	kind := mailsvc.KindRunFinished
	var failureLog *domain.LogMessage
	if run.Status == domain.RunStatusFailed {
		kind = mailsvc.KindRunFailed
		failureLog = s.latestErrorLog(ctx, run.ID)
	}
	for _, subscriber := range subscribers {
		s.mailer.Enqueue(mailsvc.Notification{
			Kind:           kind,
			Email:          subscriber.Email,
			Simulation:     simulation,
			Schedule:       schedule,
			Run:            run,
			Stats:          stats,
			FailureLog:     failureLog,
			UnsubscribeURL: s.unsubscribeURL(subscriber.Key),
		})
	}
}

// latestErrorLog returns the run's most recent error log entry, or nil when
// the run has none or the lookup fails. Mail content is best effort.
func (s *Service) latestErrorLog(ctx context.Context, runID string) *domain.LogMessage {
	if s.runLogs == nil {
		return nil
	}
	logs, err := s.runLogs.ListLogMessages(ctx, runID)
	if err != nil {
		s.log.Warn("log lookup for failure mail failed", "run", runID, "error", err)
		return nil
	}
	var latest *domain.LogMessage
	for i := range logs {
		msg := &logs[i]
		if !msg.IsError {
			continue
		}
		if latest == nil || msg.Timestamp.After(latest.Timestamp) {
			latest = msg
		}
	}
	return latest
}

func (s *Service) unsubscribeURL(token string) string {
	return fmt.Sprintf("%s/api/schedules/unsubscribe?token=%s", s.publicBaseURL, token)
}
