package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
)

// bucket is one mutable in-progress aggregation window.
type bucket struct {
	minuteStart time.Time
	count       int64
	avg         float64
}

// add folds one duration into the running average. The incremental form
// avoids overflowing a naive sum over long runs.
func (b *bucket) add(duration time.Duration) {
	b.count++
	b.avg += (float64(duration) - b.avg) / float64(b.count)
}

type typeTotal struct {
	count int64
	avg   float64
}

// Aggregator turns a concurrent stream of RequestStats into per-minute
// buckets and per-request-type totals for one run. Record is safe to call
// from many workers; flushed buckets are immutable.
type Aggregator struct {
	runID string

	mu      sync.Mutex
	open    map[int64]*bucket
	newest  int64
	flushed []domain.StatsBucket
	totals  map[domain.RequestType]*typeTotal
}

// NewAggregator creates an aggregator for one run.
func NewAggregator(runID string) *Aggregator {
	return &Aggregator{
		runID:  runID,
		open:   make(map[int64]*bucket),
		totals: make(map[domain.RequestType]*typeTotal),
	}
}

// Record routes one stat into its minute bucket and the per-type totals.
// A stat whose minute was already flushed is merged into the oldest still
// open bucket; exact attribution for late arrivals is best effort.
func (a *Aggregator) Record(stat domain.RequestStat) {
	minute := stat.Timestamp.Truncate(time.Minute)
	key := minute.Unix()

	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.open[key]
	switch {
	case ok:
		// Bucket still open.
	case key > a.newest:
		a.flushOlderLocked(key)
		b = &bucket{minuteStart: minute.UTC()}
		a.open[key] = b
		a.newest = key
	default:
		// Minute already flushed, fold into the oldest open bucket.
		b = a.oldestOpenLocked()
		if b == nil {
			b = &bucket{minuteStart: minute.UTC()}
			a.open[key] = b
			a.newest = key
		}
	}
	b.add(stat.Duration)

	a.addTotalLocked(stat.Type, stat.Duration)
	a.addTotalLocked(domain.RequestTypeTotal, stat.Duration)
}

func (a *Aggregator) addTotalLocked(kind domain.RequestType, duration time.Duration) {
	t, ok := a.totals[kind]
	if !ok {
		t = &typeTotal{}
		a.totals[kind] = t
	}
	t.count++
	t.avg += (float64(duration) - t.avg) / float64(t.count)
}

// flushOlderLocked emits every open bucket before the given minute.
func (a *Aggregator) flushOlderLocked(before int64) {
	for key, b := range a.open {
		if key < before {
			a.flushed = append(a.flushed, a.snapshotBucket(b))
			delete(a.open, key)
		}
	}
}

func (a *Aggregator) oldestOpenLocked() *bucket {
	var oldest *bucket
	var oldestKey int64
	for key, b := range a.open {
		if oldest == nil || key < oldestKey {
			oldest, oldestKey = b, key
		}
	}
	return oldest
}

func (a *Aggregator) snapshotBucket(b *bucket) domain.StatsBucket {
	return domain.StatsBucket{
		RunID:         a.runID,
		MinuteStart:   b.minuteStart,
		RequestCount:  b.count,
		AvgDurationNS: b.avg,
	}
}

// Snapshot returns flushed buckets plus the current in-progress ones,
// ordered by minute, for live display.
func (a *Aggregator) Snapshot() []domain.StatsBucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.StatsBucket, 0, len(a.flushed)+len(a.open))
	out = append(out, a.flushed...)
	for _, b := range a.open {
		out = append(out, a.snapshotBucket(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinuteStart.Before(out[j].MinuteStart) })
	return out
}

// Finalize flushes all open buckets and returns the full bucket list plus
// the per-request-type totals of the run. The aggregator must not be used
// after Finalize.
func (a *Aggregator) Finalize() ([]domain.StatsBucket, []domain.RunStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, b := range a.open {
		a.flushed = append(a.flushed, a.snapshotBucket(b))
		delete(a.open, key)
	}
	sort.Slice(a.flushed, func(i, j int) bool { return a.flushed[i].MinuteStart.Before(a.flushed[j].MinuteStart) })

	totals := make([]domain.RunStats, 0, len(a.totals))
	for kind, t := range a.totals {
		totals = append(totals, domain.RunStats{
			RunID:         a.runID,
			RequestType:   kind,
			RequestCount:  t.count,
			AvgDurationNS: int64(t.avg),
		})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].RequestType < totals[j].RequestType })
	return a.flushed, totals
}
