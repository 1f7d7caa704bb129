// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package coop

// bqEntry pairs a queued factory with the Deferred already handed to the
// caller.
type bqEntry[T any] struct {
	op      Operation[T]
	out     *Deferred[T]
	settler *Settler[T]
}

// BoundedQueue runs at most limit operations concurrently, holding the rest
// in FIFO order. Each settlement frees a slot and starts the next queued
// factory whose result is still pending, so `q.Add(op).CancelOn(tok)`
// composes: a cancelled entry is skipped instead of started.
//
// All methods run on the scheduler's thread.
type BoundedQueue[T any] struct {
	s       *Scheduler
	limit   int
	running int
	queued  fifo[*bqEntry[T]]
}

// NewBoundedQueue creates an empty queue on s. Panics on a non-positive
// limit.
func NewBoundedQueue[T any](s *Scheduler, limit int) *BoundedQueue[T] {
	if limit < 1 {
		panic("coop: bounded queue requires limit >= 1")
	}
	return &BoundedQueue[T]{s: s, limit: limit}
}

// Add submits a factory and returns the Deferred for that operation's
// eventual outcome. The factory runs immediately if a slot is free, and
// queues otherwise.
func (q *BoundedQueue[T]) Add(op Operation[T]) *Deferred[T] {
	out, settler := NewDeferred[T](q.s)
	e := &bqEntry[T]{op: op, out: out, settler: settler}
	if q.running < q.limit {
		q.start(e)
	} else {
		q.queued.push(e)
	}
	return out
}

// Running reports the number of operations currently in flight.
func (q *BoundedQueue[T]) Running() int {
	return q.running
}

// Len reports the number of entries awaiting a slot. A cancelled entry
// still counts until the queue reaches and skips it.
func (q *BoundedQueue[T]) Len() int {
	return q.queued.len()
}

func (q *BoundedQueue[T]) start(e *bqEntry[T]) {
	q.running++
	d := e.op.invoke(q.s)
	d.attach(func(o Outcome[T]) {
		q.running--
		mirror(e.out, e.settler, o)
		q.next()
	})
}

// next fills free slots from the backlog, skipping entries whose result
// settled before they started.
func (q *BoundedQueue[T]) next() {
	for q.running < q.limit {
		e, ok := q.queued.pop()
		if !ok {
			return
		}
		if e.out.State() != Pending {
			continue
		}
		q.start(e)
	}
}
