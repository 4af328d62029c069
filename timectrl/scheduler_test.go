package timectrl

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestScheduler_SingleEvent(t *testing.T) {
	sched := NewScheduler(epoch)

	var counter int
	t1 := epoch.Add(10 * time.Second)
	id := sched.Schedule(t1, func() { counter++ })
	if id == "" {
		t.Fatalf("Schedule returned empty ID")
	}

	sched.RunDue()
	if counter != 0 {
		t.Fatalf("expected counter=0 before time advance, got %d", counter)
	}

	sched.RunUntil(t1)
	if counter != 1 {
		t.Fatalf("expected counter=1 after time advance, got %d", counter)
	}
	if !sched.Now().Equal(t1) {
		t.Fatalf("Now() = %v, want %v", sched.Now(), t1)
	}

	sched.RunDue()
	if counter != 1 {
		t.Fatalf("event ran twice, counter=%d", counter)
	}
}

func TestScheduler_OrdersByTime(t *testing.T) {
	sched := NewScheduler(epoch)

	var order []string
	sched.Schedule(epoch.Add(30*time.Second), func() { order = append(order, "e3") })
	sched.Schedule(epoch.Add(10*time.Second), func() { order = append(order, "e1") })
	sched.Schedule(epoch.Add(20*time.Second), func() { order = append(order, "e2") })

	sched.Run()

	if len(order) != 3 || order[0] != "e1" || order[1] != "e2" || order[2] != "e3" {
		t.Fatalf("expected [e1 e2 e3], got %v", order)
	}
	if got := sched.Elapsed(); got != 30*time.Second {
		t.Fatalf("Elapsed() = %s, want 30s", got)
	}
}

func TestScheduler_FIFOAtEqualTime(t *testing.T) {
	sched := NewScheduler(epoch)
	at := epoch.Add(time.Second)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		sched.Schedule(at, func() { order = append(order, i) })
	}
	sched.Run()

	for i, v := range order {
		if v != i {
			t.Fatalf("equal-time events ran out of scheduling order: %v", order)
		}
	}
}

func TestScheduler_CancelSkipsEvent(t *testing.T) {
	sched := NewScheduler(epoch)

	ran := false
	id := sched.Schedule(epoch.Add(time.Second), func() { ran = true })
	sched.Cancel(id)
	sched.Cancel("ev-unknown")

	if sched.Pending() != 0 {
		t.Fatalf("Pending() = %d after cancel, want 0", sched.Pending())
	}
	sched.Run()
	if ran {
		t.Fatalf("cancelled event ran")
	}
}

func TestScheduler_PastEventsClampToNow(t *testing.T) {
	sched := NewScheduler(epoch)
	sched.RunUntil(epoch.Add(time.Minute))

	var at time.Time
	sched.Schedule(epoch, func() { at = sched.Now() })
	sched.RunDue()

	if !at.Equal(epoch.Add(time.Minute)) {
		t.Fatalf("past event ran at %v, want clamp to %v", at, epoch.Add(time.Minute))
	}
}

func TestScheduler_EventsScheduledFromCallbacks(t *testing.T) {
	sched := NewScheduler(epoch)

	var hits []time.Duration
	var tick func()
	tick = func() {
		hits = append(hits, sched.Elapsed())
		if len(hits) < 3 {
			sched.ScheduleAfter(time.Second, tick)
		}
	}
	sched.ScheduleAfter(time.Second, tick)
	sched.Run()

	if len(hits) != 3 || hits[2] != 3*time.Second {
		t.Fatalf("unexpected re-entrant schedule results: %v", hits)
	}
	if sched.Executed() != 3 {
		t.Fatalf("Executed() = %d, want 3", sched.Executed())
	}
}

func TestScheduler_StopAt(t *testing.T) {
	sched := NewScheduler(epoch)

	var count int
	var tick func()
	tick = func() {
		count++
		sched.ScheduleAfter(time.Second, tick)
	}
	sched.ScheduleAfter(time.Second, tick)
	sched.StopAt(epoch.Add(5 * time.Second))
	sched.Run()

	// The stop event was queued before the tick at 5s, so it wins the tie.
	if count != 4 {
		t.Fatalf("expected 4 ticks before stop, got %d", count)
	}
	if !sched.Stopped() {
		t.Fatalf("Stopped() = false after StopAt fired")
	}
	sched.RunUntil(sched.Now())
	if sched.Stopped() {
		t.Fatalf("Stopped() should reset on the next run")
	}
}
