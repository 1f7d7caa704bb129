package coop

import (
	"container/heap"
	"time"

	"github.com/joeycumines/logiface"
)

// Scheduler is a single-threaded cooperative executor with two work queues.
// The priority queue holds continuation work and is always drained to
// exhaustion, including items enqueued mid-drain, before a single normal
// queue entry runs. The normal queue holds timed work ordered by eligibility
// time, stable FIFO among equally-eligible entries.
//
// The scheduler keeps a virtual clock. [Scheduler.RunUntilQuiescent] advances
// it directly to the next eligible entry whenever the queues have no due
// work, which makes schedules deterministic and instant under test. A
// [Driver] pins the same clock to real time instead.
//
// A Scheduler is not thread-safe: everything it runs, and every method on it
// and on the Deferreds attached to it, must execute on one logical thread.
// Cross-thread submission goes through [Driver.Submit].
type Scheduler struct {
	clock       Clock
	log         *logiface.Logger[logiface.Event]
	errorSink   func(error)
	onRejection func(error)

	// state guards against reentrant or concurrent drains.
	state fastState

	priority fifo[func()]
	timed    timerQueue
	// timedLive counts heap entries that have not fired or been stopped;
	// the heap itself may hold stopped entries pending lazy discard.
	timedLive int
	// seq stamps normal-queue entries so equal eligibility times keep
	// insertion order.
	seq uint64

	now  time.Time
	halt bool

	unhandled []*rejection
}

// rejection tracks a Deferred that settled Rejected with no continuations
// attached. handled flips when a continuation attaches before the
// end-of-cycle flush; reported flips when the flush delivers it.
type rejection struct {
	err      error
	handled  bool
	reported bool
}

// NewScheduler creates a scheduler. The virtual clock is seeded from the
// configured [Clock] (system clock by default).
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	cfg := resolveSchedulerOptions(opts)
	s := &Scheduler{
		clock:       cfg.clock,
		errorSink:   cfg.errorSink,
		onRejection: cfg.onRejection,
	}
	if cfg.loggerSet {
		s.log = cfg.logger
	} else {
		s.log = defaultLogger()
	}
	s.now = s.clock.Now()
	return s
}

// Now returns the scheduler's current virtual time.
func (s *Scheduler) Now() time.Time {
	return s.now
}

// Pending returns the number of queued callbacks across both queues. Entries
// cancelled via [Timer.Stop] are excluded.
func (s *Scheduler) Pending() int {
	return s.priority.len() + s.timedLive
}

// EnqueuePriority schedules fn onto the priority queue. Continuation work
// belongs here; it runs before any further normal-queue entry, in FIFO
// order. A nil fn is ignored.
func (s *Scheduler) EnqueuePriority(fn func()) {
	if fn == nil {
		return
	}
	s.priority.push(fn)
}

// EnqueueNormal schedules fn onto the normal queue, eligible immediately.
func (s *Scheduler) EnqueueNormal(fn func()) *Timer {
	return s.EnqueueAt(fn, s.now)
}

// EnqueueAfter schedules fn onto the normal queue, eligible after d has
// elapsed on the scheduler's clock. A non-positive d means eligible
// immediately.
func (s *Scheduler) EnqueueAfter(fn func(), d time.Duration) *Timer {
	return s.EnqueueAt(fn, s.now.Add(d))
}

// EnqueueAt schedules fn onto the normal queue, eligible once the
// scheduler's clock reaches when. A when earlier than Now is clamped to Now,
// so overdue entries run in insertion order. A nil fn returns an inert
// timer.
func (s *Scheduler) EnqueueAt(fn func(), when time.Time) *Timer {
	if fn == nil {
		return &Timer{}
	}
	if when.Before(s.now) {
		when = s.now
	}
	s.seq++
	e := &timerEntry{when: when, seq: s.seq, fn: fn}
	heap.Push(&s.timed, e)
	s.timedLive++
	return &Timer{s: s, e: e}
}

// RunUntilQuiescent drains both queues: the priority queue to exhaustion,
// then one eligible normal entry, repeating until no work remains or
// [Scheduler.Stop] is called. When no normal entry is due yet, virtual time
// jumps straight to the earliest one. Returns ErrSchedulerRunning if the
// scheduler is already draining (including calls from inside a callback).
func (s *Scheduler) RunUntilQuiescent() error {
	if !s.state.tryTransition(stateIdle, stateDraining) {
		return ErrSchedulerRunning
	}
	defer s.state.store(stateIdle)
	s.halt = false
	for {
		s.drainPriority()
		if s.halt {
			return nil
		}
		fn, ok := s.nextDue()
		if !ok {
			return nil
		}
		s.execute(fn)
		if s.halt {
			return nil
		}
	}
}

// Stop halts the drain loop after the current item. Queued work is kept and
// a later RunUntilQuiescent resumes it. Must be called from the scheduler's
// thread; to stop a driver-hosted scheduler from outside, cancel the
// driver's context or Submit a callback that calls Stop.
func (s *Scheduler) Stop() {
	s.halt = true
}

// drainPriority exhausts the priority queue, then flushes unhandled
// rejection reports. One flush per drain cycle.
func (s *Scheduler) drainPriority() (n int) {
	for {
		fn, ok := s.priority.pop()
		if !ok {
			break
		}
		s.execute(fn)
		n++
		if s.halt {
			break
		}
	}
	s.flushRejections()
	return n
}

// popDue removes the earliest live normal entry already eligible at the
// current virtual time, lazily discarding stopped entries on the way. The
// entry's fn is consumed, so a Timer held for it reports already-fired.
func (s *Scheduler) popDue() (func(), bool) {
	for len(s.timed) > 0 {
		e := s.timed[0]
		if e.fn == nil {
			heap.Pop(&s.timed)
			continue
		}
		if e.when.After(s.now) {
			return nil, false
		}
		heap.Pop(&s.timed)
		s.timedLive--
		s.traceTimer(e.when)
		fn := e.fn
		e.fn = nil
		return fn, true
	}
	return nil, false
}

// nextWake reports when the earliest live normal entry becomes eligible.
func (s *Scheduler) nextWake() (time.Time, bool) {
	for len(s.timed) > 0 {
		e := s.timed[0]
		if e.fn == nil {
			heap.Pop(&s.timed)
			continue
		}
		return e.when, true
	}
	return time.Time{}, false
}

// nextDue returns the next normal entry to run, advancing virtual time to
// its eligibility when nothing is due yet.
func (s *Scheduler) nextDue() (func(), bool) {
	if fn, ok := s.popDue(); ok {
		return fn, true
	}
	when, ok := s.nextWake()
	if !ok {
		return nil, false
	}
	s.traceAdvance(s.now, when)
	s.now = when
	return s.popDue()
}

// runDue executes all work eligible at the current virtual time without
// advancing it: priority drains before each normal entry. Reports whether
// anything ran. This is the driver's per-wake cycle.
func (s *Scheduler) runDue() bool {
	ran := false
	for {
		if s.drainPriority() > 0 {
			ran = true
		}
		if s.halt {
			return ran
		}
		fn, ok := s.popDue()
		if !ok {
			return ran
		}
		s.execute(fn)
		ran = true
		if s.halt {
			return ran
		}
	}
}

// advanceTo moves virtual time forward to t; it never moves backward.
func (s *Scheduler) advanceTo(t time.Time) {
	if t.After(s.now) {
		s.now = t
	}
}

// execute runs one callback with panic recovery. A panic is wrapped in
// [PanicError] and reported to the error sink; the drain continues.
func (s *Scheduler) execute(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.reportPanic(PanicError{Value: r})
		}
	}()
	fn()
}

// trackRejection records a rejection that settled with no continuations.
func (s *Scheduler) trackRejection(r *rejection) {
	s.unhandled = append(s.unhandled, r)
}

// flushRejections reports every tracked rejection that no continuation
// claimed, exactly once each.
func (s *Scheduler) flushRejections() {
	if len(s.unhandled) == 0 {
		return
	}
	pending := s.unhandled
	s.unhandled = nil
	for _, r := range pending {
		if r.handled || r.reported {
			continue
		}
		r.reported = true
		s.reportRejection(r.err)
	}
}
