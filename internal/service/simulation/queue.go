package simulation

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

// Runner executes one run to a terminal state. Implementations must
// handle their own errors; Execute never reports one.
type Runner interface {
	Execute(ctx context.Context, run *domain.SimulationRun)
}

// Queue serializes run execution. A single dedicated worker pulls runs in
// FIFO order; at most one run is RUNNING system-wide at any instant.
type Queue struct {
	runner  Runner
	runRepo repository.RunRepository
	hub     *ws.Hub
	log     *slog.Logger

	mu           sync.Mutex
	pending      []*domain.SimulationRun
	activeID     string
	cancelActive context.CancelFunc

	wake chan struct{}
}

// NewQueue creates a run queue. Run must be started on its own goroutine.
func NewQueue(runner Runner, runRepo repository.RunRepository, hub *ws.Hub, logger *slog.Logger) *Queue {
	initQueueMetrics()
	return &Queue{
		runner:  runner,
		runRepo: runRepo,
		hub:     hub,
		log:     logger,
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue appends a run and returns immediately.
func (q *Queue) Enqueue(run *domain.SimulationRun) {
	q.mu.Lock()
	q.pending = append(q.pending, run)
	queueDepth.Set(float64(len(q.pending)))
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Cancel stops a queued or active run. It reports false when the run is
// not under the queue's control, which means it is already terminal or
// unknown; the caller maps that to the right error.
func (q *Queue) Cancel(ctx context.Context, runID string) bool {
	q.mu.Lock()
	for i, run := range q.pending {
		if run.ID == runID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			queueDepth.Set(float64(len(q.pending)))
			q.mu.Unlock()
			q.markCancelled(ctx, run)
			return true
		}
	}
	if q.activeID == runID && q.cancelActive != nil {
		cancel := q.cancelActive
		q.mu.Unlock()
		cancel()
		return true
	}
	q.mu.Unlock()
	return false
}

// markCancelled transitions a dequeued run straight to FAILED.
func (q *Queue) markCancelled(ctx context.Context, run *domain.SimulationRun) {
	now := time.Now().UTC()
	run.Status = domain.RunStatusFailed
	run.EndTime = &now
	if err := q.runRepo.UpdateRunStatus(ctx, run); err != nil {
		q.log.Error("cancelling queued run failed", "run", run.ID, "error", err)
		return
	}
	msg := &domain.LogMessage{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		Message:   "Run cancelled by operator before execution started",
		IsError:   true,
		Timestamp: now,
	}
	if err := q.runRepo.AppendLogMessage(ctx, msg); err != nil {
		q.log.Warn("appending cancellation log failed", "run", run.ID, "error", err)
	}
	q.hub.Publish(run.ID, ws.EventRunStatus, run)
}

// Run is the queue's worker loop. It pulls the head of the queue, drives
// the run to a terminal state, and only then pulls the next one. One
// run's failure never stops the worker.
func (q *Queue) Run(ctx context.Context) {
	for {
		run := q.next()
		if run == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		runCtx, cancel := context.WithCancel(ctx)
		q.mu.Lock()
		q.activeID = run.ID
		q.cancelActive = cancel
		q.mu.Unlock()
		queueActive.Set(1)

		q.execute(runCtx, run)

		cancel()
		q.mu.Lock()
		q.activeID = ""
		q.cancelActive = nil
		q.mu.Unlock()
		queueActive.Set(0)

		if ctx.Err() != nil {
			return
		}
	}
}

func (q *Queue) next() *domain.SimulationRun {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	run := q.pending[0]
	q.pending = q.pending[1:]
	queueDepth.Set(float64(len(q.pending)))
	return run
}

func (q *Queue) execute(ctx context.Context, run *domain.SimulationRun) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("run execution panicked", "run", run.ID, "panic", r)
			now := time.Now().UTC()
			run.Status = domain.RunStatusFailed
			run.EndTime = &now
			if err := q.runRepo.UpdateRunStatus(context.WithoutCancel(ctx), run); err != nil {
				q.log.Error("marking panicked run failed", "run", run.ID, "error", err)
			}
		}
	}()
	q.runner.Execute(ctx, run)
}

// Recover restores queue state after a process restart. Runs left RUNNING
// have no orchestrator anymore and are marked FAILED; persisted QUEUED
// runs are re-enqueued in their original order.
func (q *Queue) Recover(ctx context.Context) error {
	orphaned, err := q.runRepo.ListRunsByStatus(ctx, domain.RunStatusRunning)
	if err != nil {
		return err
	}
	for i := range orphaned {
		run := &orphaned[i]
		now := time.Now().UTC()
		run.Status = domain.RunStatusFailed
		run.EndTime = &now
		if err := q.runRepo.UpdateRunStatus(ctx, run); err != nil {
			q.log.Error("failing orphaned run failed", "run", run.ID, "error", err)
			continue
		}
		msg := &domain.LogMessage{
			ID:        uuid.NewString(),
			RunID:     run.ID,
			Message:   "Run was interrupted by a service restart and marked as failed",
			IsError:   true,
			Timestamp: now,
		}
		if err := q.runRepo.AppendLogMessage(ctx, msg); err != nil {
			q.log.Warn("appending recovery log failed", "run", run.ID, "error", err)
		}
	}

	queued, err := q.runRepo.ListRunsByStatus(ctx, domain.RunStatusQueued)
	if err != nil {
		return err
	}
	for i := range queued {
		q.Enqueue(&queued[i])
	}
	if len(orphaned) > 0 || len(queued) > 0 {
		q.log.Info("queue state recovered", "failed", len(orphaned), "requeued", len(queued))
	}
	return nil
}
