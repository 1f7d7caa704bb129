// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package coop

import "time"

// Timeout races op against a deadline d. If the deadline fires first, the
// result rejects with a *TimeoutError and src is cancelled with the same
// error, stopping the underlying work; if op settles first, the deadline is
// stopped and the result mirrors op. Whichever side settles the result
// first wins, so an in-flight settlement is never clobbered by the timer.
//
// The deadline is an ordinary normal-queue item, observing virtual time.
func Timeout[T any](src *TokenSource, d time.Duration, op *Deferred[T]) *Deferred[T] {
	s := src.s
	out, settler := NewDeferred[T](s)
	terr := &TimeoutError{After: d}
	timer := s.EnqueueAfter(func() {
		if settler.Reject(terr) {
			src.Cancel(terr)
		}
	}, d)
	op.attach(func(o Outcome[T]) {
		timer.Stop()
		mirror(out, settler, o)
	})
	return out
}

// After returns a Deferred that fulfils with the scheduler's current time
// once d has elapsed on the scheduler's clock.
func After(s *Scheduler, d time.Duration) *Deferred[time.Time] {
	out, settler := NewDeferred[time.Time](s)
	s.EnqueueAfter(func() {
		settler.Fulfill(s.Now())
	}, d)
	return out
}
