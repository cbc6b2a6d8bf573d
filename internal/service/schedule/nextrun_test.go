package schedule

import (
	"testing"
	"time"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
)

func clock(hour, minute int) time.Time {
	return time.Date(0, 1, 1, hour, minute, 0, 0, time.UTC)
}

func weekdayPtr(d time.Weekday) *time.Weekday { return &d }

func TestNextRunDailyTimeOfDayStillAhead(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s := &domain.SimulationSchedule{
		Cycle:         domain.CycleDaily,
		StartDateTime: now.Add(-24 * time.Hour),
		TimeOfDay:     clock(10, 0),
	}

	next := NextRun(s, now)
	if next == nil {
		t.Fatal("expected a next run")
	}
	want := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next run = %v, want %v", next, want)
	}
}

func TestNextRunDailyTimeOfDayAlreadyPassed(t *testing.T) {
	now := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	s := &domain.SimulationSchedule{
		Cycle:         domain.CycleDaily,
		StartDateTime: now.Add(-24 * time.Hour),
		TimeOfDay:     clock(10, 0),
	}

	next := NextRun(s, now)
	if next == nil {
		t.Fatal("expected a next run")
	}
	want := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next run = %v, want %v", next, want)
	}
}

func TestNextRunWeeklySameDayPassedAdvancesOneWeek(t *testing.T) {
	// 2026-03-10 is a Tuesday.
	now := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	s := &domain.SimulationSchedule{
		Cycle:         domain.CycleWeekly,
		StartDateTime: now.Add(-7 * 24 * time.Hour),
		TimeOfDay:     clock(10, 0),
		DayOfWeek:     weekdayPtr(time.Tuesday),
	}

	next := NextRun(s, now)
	if next == nil {
		t.Fatal("expected a next run")
	}
	want := time.Date(2026, 3, 17, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next run = %v, want %v", next, want)
	}
}

func TestNextRunWeeklySameDayStillAhead(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s := &domain.SimulationSchedule{
		Cycle:         domain.CycleWeekly,
		StartDateTime: now.Add(-7 * 24 * time.Hour),
		TimeOfDay:     clock(10, 0),
		DayOfWeek:     weekdayPtr(time.Tuesday),
	}

	next := NextRun(s, now)
	if next == nil {
		t.Fatal("expected a next run")
	}
	want := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next run = %v, want %v", next, want)
	}
}

func TestNextRunNilPastEndDate(t *testing.T) {
	now := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	s := &domain.SimulationSchedule{
		Cycle:         domain.CycleWeekly,
		StartDateTime: now.Add(-7 * 24 * time.Hour),
		EndDateTime:   &end,
		TimeOfDay:     clock(10, 0),
		DayOfWeek:     weekdayPtr(time.Tuesday),
	}

	if next := NextRun(s, now); next != nil {
		t.Fatalf("expected nil next run, got %v", next)
	}
}

func TestNextRunHonorsFutureStartDate(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	start := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	s := &domain.SimulationSchedule{
		Cycle:         domain.CycleDaily,
		StartDateTime: start,
		TimeOfDay:     clock(10, 0),
	}

	next := NextRun(s, now)
	if next == nil {
		t.Fatal("expected a next run")
	}
	want := time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next run = %v, want %v", next, want)
	}
}

func TestNextRunRecomputedFromFireInstant(t *testing.T) {
	// Recomputing from the consumed fire instant, not from a late tick's
	// wall clock, must yield exactly the following day.
	fired := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	s := &domain.SimulationSchedule{
		Cycle:         domain.CycleDaily,
		StartDateTime: fired.Add(-48 * time.Hour),
		TimeOfDay:     clock(10, 0),
	}

	next := NextRun(s, fired)
	if next == nil {
		t.Fatal("expected a next run")
	}
	want := fired.AddDate(0, 0, 1)
	if !next.Equal(want) {
		t.Fatalf("next run = %v, want %v", next, want)
	}
}
