package postgres

import (
	"context"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
)

// UpsertStatsBuckets writes flushed minute buckets. Re-flushing a minute
// (late merges) overwrites the previous row.
func (r *Repository) UpsertStatsBuckets(ctx context.Context, buckets []domain.StatsBucket) error {
	const query = `INSERT INTO run_stats_buckets (run_id, minute_start, request_count, avg_duration_ns)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, minute_start)
		DO UPDATE SET request_count = EXCLUDED.request_count, avg_duration_ns = EXCLUDED.avg_duration_ns`
	for _, b := range buckets {
		if _, err := r.pool.Exec(ctx, query, b.RunID, b.MinuteStart, b.RequestCount, b.AvgDurationNS); err != nil {
			return err
		}
	}
	return nil
}

// ListStatsBuckets returns a run's minute buckets in chronological order.
func (r *Repository) ListStatsBuckets(ctx context.Context, runID string) ([]domain.StatsBucket, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT run_id, minute_start, request_count, avg_duration_ns
		 FROM run_stats_buckets WHERE run_id = $1 ORDER BY minute_start ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []domain.StatsBucket
	for rows.Next() {
		var b domain.StatsBucket
		if err := rows.Scan(&b.RunID, &b.MinuteStart, &b.RequestCount, &b.AvgDurationNS); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// SaveRunStats persists final per-request-type aggregates.
func (r *Repository) SaveRunStats(ctx context.Context, stats []domain.RunStats) error {
	const query = `INSERT INTO run_stats (id, run_id, request_type, request_count, avg_duration_ns)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, request_type)
		DO UPDATE SET request_count = EXCLUDED.request_count, avg_duration_ns = EXCLUDED.avg_duration_ns`
	for _, s := range stats {
		if _, err := r.pool.Exec(ctx, query, s.ID, s.RunID, s.RequestType, s.RequestCount, s.AvgDurationNS); err != nil {
			return err
		}
	}
	return nil
}

// ListRunStats returns the final aggregates of a run.
func (r *Repository) ListRunStats(ctx context.Context, runID string) ([]domain.RunStats, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, run_id, request_type, request_count, avg_duration_ns
		 FROM run_stats WHERE run_id = $1 ORDER BY request_type ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.RunStats
	for rows.Next() {
		var s domain.RunStats
		if err := rows.Scan(&s.ID, &s.RunID, &s.RequestType, &s.RequestCount, &s.AvgDurationNS); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
