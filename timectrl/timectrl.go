package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock gives read access to simulation time. Components that only need
// to timestamp things depend on this rather than on a scheduler.
type SimClock interface {
	Now() time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances virtual time in step with the wall clock.
	RealTime Mode = iota
	// Accelerated advances by Tick as fast as events can be processed.
	Accelerated
)

func (m Mode) String() string {
	if m == RealTime {
		return "realtime"
	}
	return "accelerated"
}

// TimeController drives a Scheduler forward in Tick-sized steps and
// notifies listeners after each step. In RealTime mode each step waits for
// one wall-clock Tick, which lets a run be observed live.
type TimeController struct {
	mu    sync.RWMutex
	sched *Scheduler
	Tick  time.Duration
	Mode  Mode

	listeners []func(time.Time)
}

// NewTimeController constructs a controller pacing sched.
func NewTimeController(sched *Scheduler, tick time.Duration, mode Mode) *TimeController {
	if tick <= 0 {
		tick = time.Second
	}
	return &TimeController{
		sched: sched,
		Tick:  tick,
		Mode:  mode,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	return tc.sched.Now()
}

// SetTime runs every event up to t and leaves the clock at t.
func (tc *TimeController) SetTime(t time.Time) {
	tc.sched.RunUntil(t)
}

// AddListener registers a callback invoked after every step.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start advances the scheduler for duration (0 = until ctx is done) in a
// separate goroutine. The returned channel is closed when it finishes. A
// Stop or StopAt on the scheduler ends the run at the stopping event;
// listeners then see the time the clock actually reached.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var ticker *time.Ticker
		if tc.Mode == RealTime {
			ticker = time.NewTicker(tc.Tick)
			defer ticker.Stop()
		}

		end := tc.sched.Now().Add(duration)
		for {
			if duration > 0 && !tc.sched.Now().Before(end) {
				return
			}
			if ticker != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			} else if ctx.Err() != nil {
				return
			}

			next := tc.sched.Now().Add(tc.Tick)
			if duration > 0 && next.After(end) {
				next = end
			}
			tc.sched.RunUntil(next)
			stopped := tc.sched.Stopped()
			if stopped {
				next = tc.sched.Now()
			}

			tc.mu.RLock()
			listeners := append([]func(time.Time){}, tc.listeners...)
			tc.mu.RUnlock()
			for _, fn := range listeners {
				fn(next)
			}
			if stopped {
				return
			}
		}
	}()
	return done
}
