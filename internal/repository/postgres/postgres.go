package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.SimulationRepository = (*Repository)(nil)
	_ repository.RunRepository        = (*Repository)(nil)
	_ repository.StatsRepository      = (*Repository)(nil)
	_ repository.ScheduleRepository   = (*Repository)(nil)
	_ repository.CiStatusRepository   = (*Repository)(nil)
	_ repository.AccountRepository    = (*Repository)(nil)
)

// CreateSimulation inserts a simulation.
func (r *Repository) CreateSimulation(ctx context.Context, s *domain.Simulation) error {
	const query = `INSERT INTO simulations
		(id, name, server, mode, number_of_users, customize_user_range, user_range,
		 course_id, exam_id, commits_from, commits_to, instructor_username, instructor_password, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.pool.Exec(ctx, query,
		s.ID, s.Name, s.Server, s.Mode, s.NumberOfUsers, s.CustomizeUserRange, s.UserRange,
		s.CourseID, s.ExamID, s.CommitsFrom, s.CommitsTo, s.InstructorUsername, s.InstructorPassword, s.CreatedAt)
	return err
}

const simulationColumns = `id, name, server, mode, number_of_users, customize_user_range, user_range,
	course_id, exam_id, commits_from, commits_to, instructor_username, instructor_password, created_at`

func scanSimulation(row pgx.Row) (*domain.Simulation, error) {
	var s domain.Simulation
	err := row.Scan(&s.ID, &s.Name, &s.Server, &s.Mode, &s.NumberOfUsers, &s.CustomizeUserRange, &s.UserRange,
		&s.CourseID, &s.ExamID, &s.CommitsFrom, &s.CommitsTo, &s.InstructorUsername, &s.InstructorPassword, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetSimulationByID fetches a simulation.
func (r *Repository) GetSimulationByID(ctx context.Context, id string) (*domain.Simulation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+simulationColumns+` FROM simulations WHERE id = $1`, id)
	return scanSimulation(row)
}

// ListSimulations returns all simulations, newest first.
func (r *Repository) ListSimulations(ctx context.Context) ([]domain.Simulation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+simulationColumns+` FROM simulations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var simulations []domain.Simulation
	for rows.Next() {
		s, err := scanSimulation(rows)
		if err != nil {
			return nil, err
		}
		simulations = append(simulations, *s)
	}
	return simulations, rows.Err()
}

// UpdateSimulationInstructor replaces the stored instructor account.
func (r *Repository) UpdateSimulationInstructor(ctx context.Context, id, username string, password []byte) error {
	const query = `UPDATE simulations SET instructor_username = $2, instructor_password = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, username, password)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteSimulation removes a simulation; runs, schedules, stats and logs
// cascade via foreign keys.
func (r *Repository) DeleteSimulation(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM simulations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
