package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/ws"
)

// Service owns one Aggregator per active run, periodically persists and
// broadcasts snapshots, and writes the final per-type totals when a run
// finishes.
type Service struct {
	repo          repository.StatsRepository
	hub           *ws.Hub
	log           *slog.Logger
	flushInterval time.Duration

	mu     sync.Mutex
	active map[string]*Aggregator
}

// New creates the stats service.
func New(repo repository.StatsRepository, hub *ws.Hub, flushInterval time.Duration, logger *slog.Logger) *Service {
	if flushInterval <= 0 {
		flushInterval = 15 * time.Second
	}
	return &Service{
		repo:          repo,
		hub:           hub,
		log:           logger,
		flushInterval: flushInterval,
		active:        make(map[string]*Aggregator),
	}
}

// StartRun registers an aggregator for a run entering RUNNING state and
// returns the recorder its workers feed.
func (s *Service) StartRun(runID string) func(domain.RequestStat) {
	agg := NewAggregator(runID)
	s.mu.Lock()
	s.active[runID] = agg
	s.mu.Unlock()
	return agg.Record
}

// Snapshot returns the live buckets of an active run, or the persisted
// buckets of a finished one.
func (s *Service) Snapshot(ctx context.Context, runID string) ([]domain.StatsBucket, error) {
	s.mu.Lock()
	agg, ok := s.active[runID]
	s.mu.Unlock()
	if ok {
		return agg.Snapshot(), nil
	}
	return s.repo.ListStatsBuckets(ctx, runID)
}

// RunStats returns the persisted per-type totals of a run.
func (s *Service) RunStats(ctx context.Context, runID string) ([]domain.RunStats, error) {
	return s.repo.ListRunStats(ctx, runID)
}

// Finalize flushes the run's aggregator, persists buckets and totals, and
// removes the aggregator from the active set.
func (s *Service) Finalize(ctx context.Context, runID string) error {
	s.mu.Lock()
	agg, ok := s.active[runID]
	delete(s.active, runID)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	buckets, totals := agg.Finalize()
	if len(buckets) > 0 {
		if err := s.repo.UpsertStatsBuckets(ctx, buckets); err != nil {
			return err
		}
	}
	for i := range totals {
		totals[i].ID = uuid.NewString()
	}
	if len(totals) > 0 {
		if err := s.repo.SaveRunStats(ctx, totals); err != nil {
			return err
		}
	}
	s.hub.Publish(runID, ws.EventStats, buckets)
	return nil
}

// Run periodically persists and broadcasts snapshots of all active runs
// until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flushActive(ctx)
		}
	}
}

func (s *Service) flushActive(ctx context.Context) {
	s.mu.Lock()
	aggregators := make(map[string]*Aggregator, len(s.active))
	for runID, agg := range s.active {
		aggregators[runID] = agg
	}
	s.mu.Unlock()

	for runID, agg := range aggregators {
		snapshot := agg.Snapshot()
		if len(snapshot) == 0 {
			continue
		}
		if err := s.repo.UpsertStatsBuckets(ctx, snapshot); err != nil {
			s.log.Warn("stats flush failed", "run", runID, "error", err)
			continue
		}
		s.hub.Publish(runID, ws.EventStats, snapshot)
	}
}
