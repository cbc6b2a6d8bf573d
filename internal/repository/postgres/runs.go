package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
)

// CreateRun inserts a run.
func (r *Repository) CreateRun(ctx context.Context, run *domain.SimulationRun) error {
	const query = `INSERT INTO simulation_runs (id, simulation_id, status, start_time, end_time, schedule_id)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, run.ID, run.SimulationID, run.Status, run.StartTime, run.EndTime, run.ScheduleID)
	return err
}

const runColumns = `id, simulation_id, status, start_time, end_time, schedule_id`

func scanRun(row pgx.Row) (*domain.SimulationRun, error) {
	var run domain.SimulationRun
	err := row.Scan(&run.ID, &run.SimulationID, &run.Status, &run.StartTime, &run.EndTime, &run.ScheduleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// GetRunByID fetches a run.
func (r *Repository) GetRunByID(ctx context.Context, id string) (*domain.SimulationRun, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM simulation_runs WHERE id = $1`, id)
	return scanRun(row)
}

// ListRunsBySimulation returns a simulation's runs, newest first.
func (r *Repository) ListRunsBySimulation(ctx context.Context, simulationID string) ([]domain.SimulationRun, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+runColumns+` FROM simulation_runs WHERE simulation_id = $1 ORDER BY start_time DESC`, simulationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

// ListRunsByStatus returns all runs in the given status, oldest first. The
// queue uses this at startup to restore submission order.
func (r *Repository) ListRunsByStatus(ctx context.Context, status domain.RunStatus) ([]domain.SimulationRun, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+runColumns+` FROM simulation_runs WHERE status = $1 ORDER BY start_time ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

func collectRuns(rows pgx.Rows) ([]domain.SimulationRun, error) {
	var runs []domain.SimulationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// UpdateRunStatus persists a run's status and end time.
func (r *Repository) UpdateRunStatus(ctx context.Context, run *domain.SimulationRun) error {
	const query = `UPDATE simulation_runs SET status = $2, end_time = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, run.ID, run.Status, run.EndTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteRun removes a run; logs, stats and CI status cascade.
func (r *Repository) DeleteRun(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM simulation_runs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AppendLogMessage stores one run log line.
func (r *Repository) AppendLogMessage(ctx context.Context, msg *domain.LogMessage) error {
	const query = `INSERT INTO run_log_messages (id, run_id, message, is_error, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, msg.ID, msg.RunID, msg.Message, msg.IsError, msg.Timestamp)
	return err
}

// ListLogMessages returns a run's log in chronological order.
func (r *Repository) ListLogMessages(ctx context.Context, runID string) ([]domain.LogMessage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, run_id, message, is_error, created_at FROM run_log_messages WHERE run_id = $1 ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.LogMessage
	for rows.Next() {
		var m domain.LogMessage
		if err := rows.Scan(&m.ID, &m.RunID, &m.Message, &m.IsError, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
