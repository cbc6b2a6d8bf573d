package repository

import (
	"context"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
)

// SimulationRepository persists simulation configurations.
type SimulationRepository interface {
	CreateSimulation(ctx context.Context, simulation *domain.Simulation) error
	GetSimulationByID(ctx context.Context, id string) (*domain.Simulation, error)
	ListSimulations(ctx context.Context) ([]domain.Simulation, error)
	UpdateSimulationInstructor(ctx context.Context, id, username string, password []byte) error
	// DeleteSimulation cascades to runs, schedules, stats and logs.
	DeleteSimulation(ctx context.Context, id string) error
}

// RunRepository persists simulation runs and their log messages.
type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.SimulationRun) error
	GetRunByID(ctx context.Context, id string) (*domain.SimulationRun, error)
	ListRunsBySimulation(ctx context.Context, simulationID string) ([]domain.SimulationRun, error)
	ListRunsByStatus(ctx context.Context, status domain.RunStatus) ([]domain.SimulationRun, error)
	UpdateRunStatus(ctx context.Context, run *domain.SimulationRun) error
	DeleteRun(ctx context.Context, id string) error
	AppendLogMessage(ctx context.Context, msg *domain.LogMessage) error
	ListLogMessages(ctx context.Context, runID string) ([]domain.LogMessage, error)
}

// StatsRepository persists aggregated timing data.
type StatsRepository interface {
	UpsertStatsBuckets(ctx context.Context, buckets []domain.StatsBucket) error
	ListStatsBuckets(ctx context.Context, runID string) ([]domain.StatsBucket, error)
	SaveRunStats(ctx context.Context, stats []domain.RunStats) error
	ListRunStats(ctx context.Context, runID string) ([]domain.RunStats, error)
}

// ScheduleRepository persists schedules and their subscribers.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule *domain.SimulationSchedule) error
	UpdateSchedule(ctx context.Context, schedule *domain.SimulationSchedule) error
	GetScheduleByID(ctx context.Context, id string) (*domain.SimulationSchedule, error)
	ListSchedules(ctx context.Context) ([]domain.SimulationSchedule, error)
	ListSchedulesBySimulation(ctx context.Context, simulationID string) ([]domain.SimulationSchedule, error)
	DeleteSchedule(ctx context.Context, id string) error
	AddSubscriber(ctx context.Context, subscriber *domain.ScheduleSubscriber) error
	ListSubscribers(ctx context.Context, scheduleID string) ([]domain.ScheduleSubscriber, error)
	DeleteSubscriber(ctx context.Context, id string) error
	GetSubscriberByID(ctx context.Context, id string) (*domain.ScheduleSubscriber, error)
}

// CiStatusRepository persists CI drain progress.
type CiStatusRepository interface {
	UpsertCiStatus(ctx context.Context, status *domain.CiStatus) error
	GetCiStatusByRun(ctx context.Context, runID string) (*domain.CiStatus, error)
	DeleteUnfinishedCiStatus(ctx context.Context) error
}

// AccountRepository stores Artemis accounts used to drive simulations.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *domain.ArtemisAccount) error
	ListAccountsByIndexes(ctx context.Context, server string, indexes []int) ([]domain.ArtemisAccount, error)
	GetAdminAccount(ctx context.Context, server string) (*domain.ArtemisAccount, error)
	DeleteAccount(ctx context.Context, id string) error
}
