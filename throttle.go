// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package coop

import "time"

// Throttler rate-limits calls to op: a call runs immediately when interval
// has elapsed since the last execution (or on first use), and otherwise
// coalesces into exactly one trailing execution at the end of the current
// window, shared by every coalesced caller.
//
// All methods run on the scheduler's thread.
type Throttler[T any] struct {
	s        *Scheduler
	interval time.Duration
	op       Operation[T]
	hasRun   bool
	lastRun  time.Time
	trail    *Deferred[T]
	trailSet *Settler[T]
	timer    *Timer
}

// NewThrottler creates a throttler on s. Panics on a non-positive interval
// or a nil operation.
func NewThrottler[T any](s *Scheduler, interval time.Duration, op Operation[T]) *Throttler[T] {
	if interval <= 0 {
		panic("coop: throttler requires a positive interval")
	}
	if op == nil {
		panic("coop: throttler requires an operation")
	}
	return &Throttler[T]{s: s, interval: interval, op: op}
}

// Call executes the operation immediately if the window is open, returning
// its Deferred; otherwise it returns the shared Deferred of the window's
// single trailing execution.
func (th *Throttler[T]) Call() *Deferred[T] {
	if th.trail != nil {
		return th.trail
	}
	now := th.s.Now()
	if !th.hasRun || now.Sub(th.lastRun) >= th.interval {
		th.hasRun = true
		th.lastRun = now
		return th.op.invoke(th.s)
	}
	th.trail, th.trailSet = NewDeferred[T](th.s)
	th.timer = th.s.EnqueueAfter(th.fireTrailing, th.lastRun.Add(th.interval).Sub(now))
	return th.trail
}

// fireTrailing runs the coalesced execution at the window boundary, which
// also starts the next window.
func (th *Throttler[T]) fireTrailing() {
	th.timer = nil
	out, settler := th.trail, th.trailSet
	th.trail, th.trailSet = nil, nil
	th.hasRun = true
	th.lastRun = th.s.Now()
	th.op.invoke(th.s).attach(func(o Outcome[T]) {
		mirror(out, settler, o)
	})
}
