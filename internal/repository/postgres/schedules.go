package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
)

// CreateSchedule inserts a schedule.
func (r *Repository) CreateSchedule(ctx context.Context, s *domain.SimulationSchedule) error {
	const query = `INSERT INTO simulation_schedules
		(id, simulation_id, cycle, start_date_time, end_date_time, time_of_day, day_of_week, next_run, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query,
		s.ID, s.SimulationID, s.Cycle, s.StartDateTime, s.EndDateTime, s.TimeOfDay, weekdayValue(s.DayOfWeek), s.NextRun, s.CreatedAt)
	return err
}

// UpdateSchedule persists changed cycle parameters and the recomputed next run.
func (r *Repository) UpdateSchedule(ctx context.Context, s *domain.SimulationSchedule) error {
	const query = `UPDATE simulation_schedules
		SET cycle = $2, start_date_time = $3, end_date_time = $4, time_of_day = $5, day_of_week = $6, next_run = $7
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		s.ID, s.Cycle, s.StartDateTime, s.EndDateTime, s.TimeOfDay, weekdayValue(s.DayOfWeek), s.NextRun)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

const scheduleColumns = `id, simulation_id, cycle, start_date_time, end_date_time, time_of_day, day_of_week, next_run, created_at`

func scanSchedule(row pgx.Row) (*domain.SimulationSchedule, error) {
	var (
		s       domain.SimulationSchedule
		weekday *int
	)
	err := row.Scan(&s.ID, &s.SimulationID, &s.Cycle, &s.StartDateTime, &s.EndDateTime, &s.TimeOfDay, &weekday, &s.NextRun, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if weekday != nil {
		day := time.Weekday(*weekday)
		s.DayOfWeek = &day
	}
	return &s, nil
}

func weekdayValue(day *time.Weekday) *int {
	if day == nil {
		return nil
	}
	v := int(*day)
	return &v
}

// GetScheduleByID fetches a schedule.
func (r *Repository) GetScheduleByID(ctx context.Context, id string) (*domain.SimulationSchedule, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM simulation_schedules WHERE id = $1`, id)
	return scanSchedule(row)
}

// ListSchedules returns every schedule.
func (r *Repository) ListSchedules(ctx context.Context) ([]domain.SimulationSchedule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+scheduleColumns+` FROM simulation_schedules ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// ListSchedulesBySimulation returns a simulation's schedules.
func (r *Repository) ListSchedulesBySimulation(ctx context.Context, simulationID string) ([]domain.SimulationSchedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM simulation_schedules WHERE simulation_id = $1 ORDER BY created_at ASC`, simulationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func collectSchedules(rows pgx.Rows) ([]domain.SimulationSchedule, error) {
	var schedules []domain.SimulationSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

// DeleteSchedule removes a schedule; subscribers cascade.
func (r *Repository) DeleteSchedule(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM simulation_schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AddSubscriber stores a schedule subscriber.
func (r *Repository) AddSubscriber(ctx context.Context, sub *domain.ScheduleSubscriber) error {
	const query = `INSERT INTO schedule_subscribers (id, schedule_id, email, unsubscribe_key, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, sub.ID, sub.ScheduleID, sub.Email, sub.Key, sub.CreatedAt)
	return err
}

// ListSubscribers returns a schedule's subscribers.
func (r *Repository) ListSubscribers(ctx context.Context, scheduleID string) ([]domain.ScheduleSubscriber, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, schedule_id, email, unsubscribe_key, created_at
		 FROM schedule_subscribers WHERE schedule_id = $1 ORDER BY created_at ASC`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subscribers []domain.ScheduleSubscriber
	for rows.Next() {
		var s domain.ScheduleSubscriber
		if err := rows.Scan(&s.ID, &s.ScheduleID, &s.Email, &s.Key, &s.CreatedAt); err != nil {
			return nil, err
		}
		subscribers = append(subscribers, s)
	}
	return subscribers, rows.Err()
}

// GetSubscriberByID fetches one subscriber.
func (r *Repository) GetSubscriberByID(ctx context.Context, id string) (*domain.ScheduleSubscriber, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, schedule_id, email, unsubscribe_key, created_at FROM schedule_subscribers WHERE id = $1`, id)
	var s domain.ScheduleSubscriber
	if err := row.Scan(&s.ID, &s.ScheduleID, &s.Email, &s.Key, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// DeleteSubscriber removes one subscriber.
func (r *Repository) DeleteSubscriber(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schedule_subscribers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
