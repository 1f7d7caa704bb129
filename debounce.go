// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package coop

import "time"

// Debouncer coalesces bursts of calls into a single trailing invocation of
// op. Calls within a window share one pending Deferred, and every call
// pushes the invocation out to Now()+delay, so only the last call in the
// burst executes.
//
// All methods run on the scheduler's thread.
type Debouncer[T any] struct {
	s       *Scheduler
	delay   time.Duration
	op      Operation[T]
	out     *Deferred[T]
	settler *Settler[T]
	timer   *Timer
}

// NewDebouncer creates a debouncer on s. Panics on a non-positive delay or
// a nil operation.
func NewDebouncer[T any](s *Scheduler, delay time.Duration, op Operation[T]) *Debouncer[T] {
	if delay <= 0 {
		panic("coop: debouncer requires a positive delay")
	}
	if op == nil {
		panic("coop: debouncer requires an operation")
	}
	return &Debouncer[T]{s: s, delay: delay, op: op}
}

// Call opens a window if none is pending and returns the window's shared
// Deferred, rescheduling the trailing invocation to delay from now. The
// operation's outcome settles the shared Deferred.
func (db *Debouncer[T]) Call() *Deferred[T] {
	if db.out == nil {
		db.out, db.settler = NewDeferred[T](db.s)
	}
	if db.timer != nil {
		db.timer.Stop()
	}
	db.timer = db.s.EnqueueAfter(db.fire, db.delay)
	return db.out
}

// Flush runs a pending window's operation immediately instead of waiting
// out the delay, returning the window's Deferred. Returns nil when no
// window is pending.
func (db *Debouncer[T]) Flush() *Deferred[T] {
	if db.out == nil {
		return nil
	}
	out := db.out
	if db.timer != nil {
		db.timer.Stop()
		db.timer = nil
	}
	db.run()
	return out
}

// Cancel drops a pending window without running the operation, settling the
// window's shared Deferred Canceled. No-op when no window is pending.
func (db *Debouncer[T]) Cancel() {
	if db.out == nil {
		return
	}
	if db.timer != nil {
		db.timer.Stop()
		db.timer = nil
	}
	out := db.out
	db.out, db.settler = nil, nil
	out.cancelNow(&CanceledError{})
}

func (db *Debouncer[T]) fire() {
	db.timer = nil
	db.run()
}

// run closes the current window and starts the operation; calls arriving
// while it is in flight open a fresh window.
func (db *Debouncer[T]) run() {
	out, settler := db.out, db.settler
	db.out, db.settler = nil, nil
	db.op.invoke(db.s).attach(func(o Outcome[T]) {
		mirror(out, settler, o)
	})
}
