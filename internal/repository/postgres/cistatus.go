package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
)

// UpsertCiStatus writes the current CI drain progress for a run.
func (r *Repository) UpsertCiStatus(ctx context.Context, status *domain.CiStatus) error {
	const query = `INSERT INTO ci_status
		(run_id, total_jobs, queued_jobs, elapsed_minutes, avg_jobs_per_minute, finished, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO UPDATE SET
			total_jobs = EXCLUDED.total_jobs,
			queued_jobs = EXCLUDED.queued_jobs,
			elapsed_minutes = EXCLUDED.elapsed_minutes,
			avg_jobs_per_minute = EXCLUDED.avg_jobs_per_minute,
			finished = EXCLUDED.finished,
			updated_at = EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, query,
		status.RunID, status.TotalJobs, status.QueuedJobs, status.ElapsedMinutes,
		status.AvgJobsPerMinute, status.Finished, status.UpdatedAt)
	return err
}

// GetCiStatusByRun fetches the CI drain progress of a run.
func (r *Repository) GetCiStatusByRun(ctx context.Context, runID string) (*domain.CiStatus, error) {
	const query = `SELECT run_id, total_jobs, queued_jobs, elapsed_minutes, avg_jobs_per_minute, finished, updated_at
		FROM ci_status WHERE run_id = $1`
	row := r.pool.QueryRow(ctx, query, runID)
	var s domain.CiStatus
	err := row.Scan(&s.RunID, &s.TotalJobs, &s.QueuedJobs, &s.ElapsedMinutes, &s.AvgJobsPerMinute, &s.Finished, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// DeleteUnfinishedCiStatus removes records whose poller died with the
// process. Called once at startup.
func (r *Repository) DeleteUnfinishedCiStatus(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM ci_status WHERE finished = FALSE`)
	return err
}
