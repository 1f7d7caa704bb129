// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package coop

import (
	"math"
	"time"
)

// rlWaiter is a removable wait-list slot; cancellation marks it and the
// slot is discarded lazily, keeping admission strictly FIFO.
type rlWaiter struct {
	settler  *Settler[time.Time]
	canceled bool
}

// RateLimiter is a token bucket on the scheduler's clock: capacity tokens,
// refilled continuously at refillRate tokens per second, starting full.
// Fractional refill accumulates, so slow rates still make progress.
//
// All methods run on the scheduler's thread.
type RateLimiter struct {
	s        *Scheduler
	capacity float64
	rate     float64
	tokens   float64
	last     time.Time
	waiters  []*rlWaiter
	timer    *Timer
}

// NewRateLimiter creates a full bucket on s. Panics on a non-positive
// capacity or refill rate.
func NewRateLimiter(s *Scheduler, capacity int, refillRate float64) *RateLimiter {
	if capacity < 1 {
		panic("coop: rate limiter requires capacity >= 1")
	}
	if refillRate <= 0 {
		panic("coop: rate limiter requires a positive refill rate")
	}
	return &RateLimiter{
		s:        s,
		capacity: float64(capacity),
		rate:     refillRate,
		tokens:   float64(capacity),
		last:     s.Now(),
	}
}

// refill credits tokens for the time elapsed since the last refill, capped
// at capacity.
func (r *RateLimiter) refill() {
	now := r.s.Now()
	if elapsed := now.Sub(r.last); elapsed > 0 {
		r.tokens = math.Min(r.capacity, r.tokens+elapsed.Seconds()*r.rate)
	}
	r.last = now
}

// TryAcquire consumes one token if available, without waiting.
func (r *RateLimiter) TryAcquire() bool {
	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Acquire admits the caller as soon as a token is available, fulfilling
// with the admission time. Callers are served strictly FIFO: a fresh call
// never overtakes the wait list. Firing tok removes the waiter and settles
// its Deferred Canceled.
func (r *RateLimiter) Acquire(tok *Token) *Deferred[time.Time] {
	out, settler := NewDeferred[time.Time](r.s)
	if tok != nil && tok.Canceled() {
		out.CancelOn(tok)
		return out
	}
	r.prune()
	if len(r.waiters) == 0 && r.TryAcquire() {
		settler.Fulfill(r.s.Now())
		return out
	}
	w := &rlWaiter{settler: settler}
	r.waiters = append(r.waiters, w)
	if tok != nil {
		remove := tok.OnCancel(func(err error) {
			w.canceled = true
			r.s.EnqueuePriority(func() { out.cancelNow(err) })
		})
		out.cancelDetach = append(out.cancelDetach, remove)
	}
	r.arm()
	return out
}

// Waiting reports the live wait-list length.
func (r *RateLimiter) Waiting() int {
	n := 0
	for _, w := range r.waiters {
		if !w.canceled {
			n++
		}
	}
	return n
}

// prune discards cancelled slots from the head of the wait list, zeroing
// them as they go.
func (r *RateLimiter) prune() {
	for len(r.waiters) > 0 && r.waiters[0].canceled {
		r.waiters[0] = nil
		r.waiters = r.waiters[1:]
	}
}

// serve admits as many waiters as the bucket affords, then re-arms the
// wakeup if any remain.
func (r *RateLimiter) serve() {
	for {
		r.prune()
		if len(r.waiters) == 0 {
			return
		}
		if !r.TryAcquire() {
			break
		}
		w := r.waiters[0]
		r.waiters[0] = nil
		r.waiters = r.waiters[1:]
		w.settler.Fulfill(r.s.Now())
	}
	r.arm()
}

// arm schedules the single wakeup at the earliest time one whole token will
// have accrued. No-op while a wakeup is already pending; refill must have
// run first so the deficit is current.
func (r *RateLimiter) arm() {
	if r.timer != nil {
		return
	}
	need := 1 - r.tokens
	if need < 0 {
		need = 0
	}
	// Round up, so the wakeup never lands a hair before the token accrues.
	wait := time.Duration(math.Ceil(need / r.rate * float64(time.Second)))
	r.timer = r.s.EnqueueAfter(func() {
		r.timer = nil
		r.serve()
	}, wait)
}
