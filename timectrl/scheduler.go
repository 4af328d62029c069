package timectrl

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// EventScheduler is the surface the simulation core depends on: schedule a
// callback at a virtual time, cancel it, read the virtual clock.
type EventScheduler interface {
	SimClock

	// Schedule registers f to run at virtual time at. Times in the past are
	// clamped to Now. The returned ID can be passed to Cancel.
	Schedule(at time.Time, f func()) (id string)

	// Cancel drops a pending event. Unknown or already-run IDs are ignored.
	Cancel(id string)
}

type scheduledEvent struct {
	id        string
	when      time.Time
	f         func()
	cancelled bool
}

// Scheduler is a single-threaded discrete-event scheduler owning a virtual
// clock. Events run one at a time, to completion, in timestamp order; events
// sharing a timestamp run in the order they were scheduled.
//
// The mutex only protects the queue against hosts that schedule from other
// goroutines; callbacks always run outside it.
type Scheduler struct {
	mu      sync.Mutex
	epoch   time.Time
	now     time.Time
	counter uint64
	events  []*scheduledEvent // ordered by when, FIFO among equal times
	index   map[string]*scheduledEvent
	stopped bool

	executed uint64
}

// NewScheduler creates a scheduler whose virtual clock starts at epoch.
func NewScheduler(epoch time.Time) *Scheduler {
	return &Scheduler{
		epoch: epoch,
		now:   epoch,
		index: make(map[string]*scheduledEvent),
	}
}

// Epoch returns the virtual time the scheduler started at.
func (s *Scheduler) Epoch() time.Time { return s.epoch }

// Now returns the current virtual time.
func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Elapsed returns the virtual time passed since the epoch.
func (s *Scheduler) Elapsed() time.Duration {
	return s.Now().Sub(s.epoch)
}

// Schedule registers a callback to run at the given virtual time.
func (s *Scheduler) Schedule(at time.Time, f func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at.Before(s.now) {
		at = s.now
	}
	s.counter++
	ev := &scheduledEvent{
		id:   fmt.Sprintf("ev-%d", s.counter),
		when: at,
		f:    f,
	}
	s.addEventLocked(ev)
	s.index[ev.id] = ev
	return ev.id
}

// ScheduleAfter registers a callback d after the current virtual time.
func (s *Scheduler) ScheduleAfter(d time.Duration, f func()) string {
	return s.Schedule(s.Now().Add(d), f)
}

// addEventLocked inserts ev after every event with an equal or earlier
// timestamp. Caller must hold s.mu.
func (s *Scheduler) addEventLocked(ev *scheduledEvent) {
	idx := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].when.After(ev.when)
	})
	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev
}

// Cancel marks a pending event as cancelled; it is skipped when reached.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return
	}
	ev.cancelled = true
	delete(s.index, id)
}

// Pending returns the number of events still queued (cancelled ones excluded).
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Executed returns the number of callbacks run so far.
func (s *Scheduler) Executed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executed
}

// popLocked removes the next live event with when <= limit, advancing the
// clock to its timestamp. Caller must hold s.mu.
func (s *Scheduler) popLocked(limit time.Time, bounded bool) *scheduledEvent {
	for len(s.events) > 0 {
		ev := s.events[0]
		if ev.cancelled {
			s.events = s.events[1:]
			continue
		}
		if bounded && ev.when.After(limit) {
			return nil
		}
		s.events = s.events[1:]
		delete(s.index, ev.id)
		s.now = ev.when
		s.executed++
		return ev
	}
	return nil
}

func (s *Scheduler) run(limit time.Time, bounded bool) {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		ev := s.popLocked(limit, bounded)
		s.mu.Unlock()
		if ev == nil {
			return
		}
		if ev.f != nil {
			ev.f()
		}
	}
}

// Run executes events until the queue drains or Stop is called.
func (s *Scheduler) Run() {
	s.run(time.Time{}, false)
}

// RunUntil executes every event due at or before t, then advances the
// clock to t. The clock never moves backwards.
func (s *Scheduler) RunUntil(t time.Time) {
	s.run(t, true)

	s.mu.Lock()
	if !s.stopped && t.After(s.now) {
		s.now = t
	}
	s.mu.Unlock()
}

// RunFor is RunUntil(Now()+d).
func (s *Scheduler) RunFor(d time.Duration) {
	s.RunUntil(s.Now().Add(d))
}

// RunDue executes the events due at the current virtual time.
func (s *Scheduler) RunDue() {
	s.RunUntil(s.Now())
}

// Stop makes the active Run/RunUntil return after the current event.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Stopped reports whether the last Run/RunUntil ended because of Stop.
func (s *Scheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// StopAt schedules a Stop at virtual time t.
func (s *Scheduler) StopAt(t time.Time) string {
	return s.Schedule(t, s.Stop)
}
