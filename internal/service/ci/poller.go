package ci

import (
	"context"
	"log/slog"
	"time"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/ws"
)

// ResultQuery reports how many submissions of the run have produced a
// grading result so far.
type ResultQuery func(ctx context.Context) (int, error)

// Poller waits for the target's build backlog to drain after the
// submission phase of a run. One Drain call runs per run that needs it.
type Poller struct {
	repo     repository.CiStatusRepository
	hub      *ws.Hub
	log      *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// New creates a poller with the given polling interval.
func New(repo repository.CiStatusRepository, hub *ws.Hub, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{repo: repo, hub: hub, log: logger, interval: interval, now: time.Now}
}

// Drain polls until queuedJobs reaches zero, publishing progress each
// tick. totalJobs is computed once by the caller. Cancellation is checked
// before and after every sleep; transient query errors skip the tick.
func (p *Poller) Drain(ctx context.Context, runID string, totalJobs int, query ResultQuery) (*domain.CiStatus, error) {
	start := p.now()
	status := &domain.CiStatus{RunID: runID, TotalJobs: totalJobs, QueuedJobs: totalJobs}

	if totalJobs <= 0 {
		status.Finished = true
		p.publish(ctx, status)
		return status, nil
	}

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return status, err
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-timer.C:
		}
		if err := ctx.Err(); err != nil {
			return status, err
		}

		results, err := query(ctx)
		if err != nil {
			p.log.Warn("ci query failed, skipping tick", "run", runID, "error", err)
			timer.Reset(p.interval)
			continue
		}

		queued := totalJobs - results
		if queued < 0 {
			queued = 0
		}
		elapsed := int(p.now().Sub(start) / time.Minute)

		status.QueuedJobs = queued
		status.ElapsedMinutes = elapsed
		status.AvgJobsPerMinute = jobsPerMinute(totalJobs, queued, elapsed)
		status.UpdatedAt = p.now().UTC()

		if queued == 0 {
			status.Finished = true
			p.publish(ctx, status)
			return status, nil
		}
		p.publish(ctx, status)
		timer.Reset(p.interval)
	}
}

// jobsPerMinute clamps the drain rate to a non-negative value and reports
// zero while no full minute has elapsed.
func jobsPerMinute(total, queued, elapsedMinutes int) float64 {
	if elapsedMinutes == 0 {
		return 0
	}
	rate := float64(total-queued) / float64(elapsedMinutes)
	if rate < 0 {
		return 0
	}
	return rate
}

// Status returns the last persisted drain progress of a run.
func (p *Poller) Status(ctx context.Context, runID string) (*domain.CiStatus, error) {
	return p.repo.GetCiStatusByRun(ctx, runID)
}

// PurgeUnfinished removes drain records orphaned by a process crash.
// Called once at startup.
func (p *Poller) PurgeUnfinished(ctx context.Context) error {
	return p.repo.DeleteUnfinishedCiStatus(ctx)
}

func (p *Poller) publish(ctx context.Context, status *domain.CiStatus) {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = p.now().UTC()
	}
	if err := p.repo.UpsertCiStatus(ctx, status); err != nil {
		p.log.Warn("persisting ci status failed", "run", status.RunID, "error", err)
	}
	p.hub.Publish(status.RunID, ws.EventCiStatus, status)
}
