// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package coop

// Operation is the factory shape shared by the concurrency toolkit: each
// invocation starts one asynchronous attempt and returns the Deferred for
// its outcome. Implementations must return a non-nil Deferred, and are
// always invoked on the scheduler's thread.
type Operation[T any] func() *Deferred[T]

// invoke starts one attempt, converting a panic in the factory itself into
// a rejected Deferred, the same way continuation panics reject their
// results.
func (op Operation[T]) invoke(s *Scheduler) (d *Deferred[T]) {
	defer func() {
		if r := recover(); r != nil {
			d = rejected[T](s, PanicError{Value: r})
		}
	}()
	return op()
}
