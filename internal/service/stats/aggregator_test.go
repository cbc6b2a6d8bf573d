package stats

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
)

func stat(ts time.Time, d time.Duration, kind domain.RequestType) domain.RequestStat {
	return domain.RequestStat{Timestamp: ts, Duration: d, Type: kind}
}

func TestAggregatorBucketCorrectness(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	agg := NewAggregator("run-1")

	// Three stats in minute 0, two in minute 1.
	agg.Record(stat(base.Add(5*time.Second), 100*time.Millisecond, domain.RequestTypeLogin))
	agg.Record(stat(base.Add(20*time.Second), 200*time.Millisecond, domain.RequestTypeMisc))
	agg.Record(stat(base.Add(59*time.Second), 300*time.Millisecond, domain.RequestTypeMisc))
	agg.Record(stat(base.Add(65*time.Second), 400*time.Millisecond, domain.RequestTypePush))
	agg.Record(stat(base.Add(90*time.Second), 600*time.Millisecond, domain.RequestTypePush))

	buckets := agg.Snapshot()
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}

	first := buckets[0]
	if !first.MinuteStart.Equal(base) {
		t.Fatalf("first bucket starts at %v, want %v", first.MinuteStart, base)
	}
	if first.RequestCount != 3 {
		t.Fatalf("first bucket count = %d, want 3", first.RequestCount)
	}
	wantAvg := float64(200 * time.Millisecond)
	if math.Abs(first.AvgDurationNS-wantAvg) > 1 {
		t.Fatalf("first bucket avg = %f, want %f", first.AvgDurationNS, wantAvg)
	}

	second := buckets[1]
	if second.RequestCount != 2 {
		t.Fatalf("second bucket count = %d, want 2", second.RequestCount)
	}
	wantAvg = float64(500 * time.Millisecond)
	if math.Abs(second.AvgDurationNS-wantAvg) > 1 {
		t.Fatalf("second bucket avg = %f, want %f", second.AvgDurationNS, wantAvg)
	}
}

func TestAggregatorFlushOnNewMinute(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	agg := NewAggregator("run-1")

	agg.Record(stat(base, time.Second, domain.RequestTypeMisc))
	agg.Record(stat(base.Add(time.Minute), time.Second, domain.RequestTypeMisc))

	agg.mu.Lock()
	flushedCount := len(agg.flushed)
	openCount := len(agg.open)
	agg.mu.Unlock()

	if flushedCount != 1 {
		t.Fatalf("flushed %d buckets, want 1", flushedCount)
	}
	if openCount != 1 {
		t.Fatalf("%d open buckets, want 1", openCount)
	}
}

func TestAggregatorLateStatMergesIntoOldestOpenBucket(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	agg := NewAggregator("run-1")

	agg.Record(stat(base, time.Second, domain.RequestTypeMisc))
	agg.Record(stat(base.Add(time.Minute), time.Second, domain.RequestTypeMisc))
	// Minute 0 is already flushed; this stat lands in the open minute-1 bucket.
	agg.Record(stat(base.Add(30*time.Second), time.Second, domain.RequestTypeMisc))

	buckets := agg.Snapshot()
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].RequestCount != 1 {
		t.Fatalf("flushed bucket count changed to %d", buckets[0].RequestCount)
	}
	if buckets[1].RequestCount != 2 {
		t.Fatalf("open bucket count = %d, want 2", buckets[1].RequestCount)
	}
}

func TestAggregatorConcurrentRecord(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	agg := NewAggregator("run-1")

	var wg sync.WaitGroup
	const workers = 16
	const perWorker = 200
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				agg.Record(stat(base.Add(time.Duration(i)*time.Second), 10*time.Millisecond, domain.RequestTypeMisc))
			}
		}()
	}
	wg.Wait()

	var total int64
	for _, b := range agg.Snapshot() {
		total += b.RequestCount
	}
	if total != workers*perWorker {
		t.Fatalf("recorded %d stats, want %d", total, workers*perWorker)
	}
}

func TestAggregatorFinalizeTotals(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	agg := NewAggregator("run-1")

	agg.Record(stat(base, 100*time.Millisecond, domain.RequestTypeLogin))
	agg.Record(stat(base.Add(time.Second), 300*time.Millisecond, domain.RequestTypeLogin))
	agg.Record(stat(base.Add(2*time.Second), 500*time.Millisecond, domain.RequestTypeClone))

	buckets, totals := agg.Finalize()
	if len(buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(buckets))
	}

	byType := make(map[domain.RequestType]domain.RunStats)
	for _, s := range totals {
		byType[s.RequestType] = s
	}

	login := byType[domain.RequestTypeLogin]
	if login.RequestCount != 2 || login.AvgDurationNS != int64(200*time.Millisecond) {
		t.Fatalf("login totals = %+v", login)
	}
	total := byType[domain.RequestTypeTotal]
	if total.RequestCount != 3 || total.AvgDurationNS != int64(300*time.Millisecond) {
		t.Fatalf("overall totals = %+v", total)
	}
}
