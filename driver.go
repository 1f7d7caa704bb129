// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package coop

import (
	"context"
	"sync"
	"time"
)

// Driver pumps a [Scheduler] against real time on a single goroutine,
// parking between wakes. It is the bridge between the single-threaded core
// and the host program: [Driver.Submit] is the one thread-safe entry point,
// and [Async]/[Await] build on it.
//
// While Run is active the driver holds the scheduler's drain claim, so
// [Scheduler.RunUntilQuiescent] reports ErrSchedulerRunning instead of
// interleaving.
type Driver struct {
	s     *Scheduler
	clock Clock

	state fastState

	mu      sync.Mutex
	ingress fifo[func()]
	runCtx  context.Context

	// wake is buffered so a Submit landing mid-cycle is never lost: the
	// signal is consumed by the next park.
	wake chan struct{}
}

// NewDriver creates a driver for s. The pacing clock defaults to the
// scheduler's clock.
func NewDriver(s *Scheduler, opts ...DriverOption) *Driver {
	cfg := resolveDriverOptions(opts)
	clock := cfg.clock
	if clock == nil {
		clock = s.clock
	}
	return &Driver{s: s, clock: clock, wake: make(chan struct{}, 1)}
}

// Run pumps the scheduler until ctx ends or a callback calls
// [Scheduler.Stop]. Each cycle drains submitted callbacks into the normal
// queue, pins virtual time to the clock, runs everything due, then parks
// until a submission, the next timer, or context end.
//
// Returns ctx.Err() on context end and nil after Stop. A second concurrent
// call reports ErrDriverRunning; once Run has returned the driver is
// terminal and further calls report ErrDriverStopped. Callbacks accepted
// but not yet run when Run returns are dropped.
func (dr *Driver) Run(ctx context.Context) error {
	if !dr.state.tryTransition(stateIdle, stateDraining) {
		if dr.state.load() == stateStopped {
			return ErrDriverStopped
		}
		return ErrDriverRunning
	}
	if !dr.s.state.tryTransition(stateIdle, stateDraining) {
		dr.state.store(stateIdle)
		return ErrSchedulerRunning
	}
	dr.mu.Lock()
	dr.runCtx = ctx
	dr.mu.Unlock()
	defer func() {
		dr.s.state.store(stateIdle)
		// Terminal store under mu, so Submit's stopped check is ordered
		// against it.
		dr.mu.Lock()
		dr.state.store(stateStopped)
		dr.mu.Unlock()
	}()
	dr.s.halt = false
	for {
		dr.drainIngress()
		dr.s.advanceTo(dr.clock.Now())
		dr.s.runDue()
		if dr.s.halt {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := dr.park(ctx); err != nil {
			return err
		}
	}
}

// park blocks until something changes: a submission wake, the next timer's
// eligibility, or context end. Returns immediately when a timer is already
// due.
func (dr *Driver) park(ctx context.Context) error {
	var timerC <-chan time.Time
	if when, ok := dr.s.nextWake(); ok {
		d := when.Sub(dr.clock.Now())
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		defer t.Stop()
		timerC = t.C
	}
	dr.state.store(stateParked)
	defer dr.state.store(stateDraining)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-dr.wake:
	case <-timerC:
	}
	return nil
}

// drainIngress moves submitted callbacks onto the normal queue in
// submission order.
func (dr *Driver) drainIngress() {
	for {
		dr.mu.Lock()
		fn, ok := dr.ingress.pop()
		dr.mu.Unlock()
		if !ok {
			return
		}
		dr.s.EnqueueNormal(fn)
	}
}

// Submit hands fn to the scheduler from any goroutine; it runs on the
// loop's thread as a normal-queue entry at the next pump. Reports
// ErrDriverStopped once Run has returned. A nil fn is ignored.
func (dr *Driver) Submit(fn func()) error {
	if fn == nil {
		return nil
	}
	dr.mu.Lock()
	if dr.state.load() == stateStopped {
		dr.mu.Unlock()
		return ErrDriverStopped
	}
	dr.ingress.push(fn)
	dr.mu.Unlock()
	select {
	case dr.wake <- struct{}{}:
	default:
	}
	return nil
}

// Async runs fn on its own goroutine and returns a Deferred that settles on
// the loop's thread with fn's result, via [Driver.Submit]. fn receives the
// context passed to [Driver.Run] (context.Background() when the driver is
// not running); a panic in fn rejects with a [PanicError]. If the driver
// stops before the result lands, the Deferred never settles, so host-side
// consumers should [Await] with a context.
func Async[T any](dr *Driver, fn func(context.Context) (T, error)) *Deferred[T] {
	out, settler := NewDeferred[T](dr.s)
	dr.mu.Lock()
	ctx := dr.runCtx
	dr.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		var (
			v   T
			err error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = PanicError{Value: r}
				}
			}()
			v, err = fn(ctx)
		}()
		_ = dr.Submit(func() {
			if err != nil {
				settler.Reject(err)
			} else {
				settler.Fulfill(v)
			}
		})
	}()
	return out
}

// Await blocks the calling goroutine until d settles or ctx ends. A
// rejection returns its error, a cancellation returns the *CanceledError,
// and context end returns ctx.Err(). Safe from any goroutine, but at most
// one goroutine may block on a given Deferred before it settles.
func Await[T any](ctx context.Context, d *Deferred[T]) (T, error) {
	if o, ok := d.Outcome(); ok {
		return awaitOutcome(o)
	}
	select {
	case o := <-d.Chan():
		return awaitOutcome(o)
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func awaitOutcome[T any](o Outcome[T]) (T, error) {
	if o.State == Fulfilled {
		return o.Value, nil
	}
	var zero T
	return zero, o.Err
}
