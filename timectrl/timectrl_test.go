package timectrl

import (
	"context"
	"testing"
	"time"
)

func TestTimeControllerSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	sched := NewScheduler(start)
	tc := NewTimeController(sched, time.Second, RealTime)

	ran := false
	sched.Schedule(start.Add(10*time.Second), func() { ran = true })

	newNow := start.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
	if !ran {
		t.Fatalf("expected event before %v to run", newNow)
	}
}

func TestTimeControllerStartUpdatesNow(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	sched := NewScheduler(start)
	tc := NewTimeController(sched, 5*time.Millisecond, Accelerated)

	var ticks int
	tc.AddListener(func(time.Time) { ticks++ })

	done := tc.Start(context.Background(), 15*time.Millisecond)
	<-done

	expected := start.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
	if ticks != 3 {
		t.Fatalf("expected 3 listener calls, got %d", ticks)
	}
}

func TestTimeControllerHonoursStopAt(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	sched := NewScheduler(start)
	tc := NewTimeController(sched, time.Second, Accelerated)

	late := false
	sched.StopAt(start.Add(2500 * time.Millisecond))
	sched.Schedule(start.Add(4*time.Second), func() { late = true })

	var seen []time.Time
	tc.AddListener(func(at time.Time) { seen = append(seen, at) })
	<-tc.Start(context.Background(), 10*time.Second)

	stopAt := start.Add(2500 * time.Millisecond)
	if got := tc.Now(); !got.Equal(stopAt) {
		t.Fatalf("Now() = %v, want %v", got, stopAt)
	}
	if late {
		t.Fatalf("event after the stop ran")
	}
	if len(seen) != 3 || !seen[2].Equal(stopAt) {
		t.Fatalf("listener times = %v, want 1s, 2s and the stop time", seen)
	}
}

func TestTimeControllerStopsOnCancel(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	sched := NewScheduler(start)
	tc := NewTimeController(sched, time.Millisecond, RealTime)

	ctx, cancel := context.WithCancel(context.Background())
	done := tc.Start(ctx, 0)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("controller did not stop after context cancellation")
	}
}
