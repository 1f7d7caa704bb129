// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package coop

import "time"

// BreakerState is the circuit breaker's position.
type BreakerState int

const (
	// BreakerClosed admits every operation.
	BreakerClosed BreakerState = iota
	// BreakerOpen short-circuits every operation until the reset timeout
	// elapses.
	BreakerOpen
	// BreakerHalfOpen admits exactly one trial operation.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures [NewBreaker].
type BreakerConfig struct {
	// FailureThreshold is the consecutive-rejection count that opens the
	// breaker. Must be at least 1.
	FailureThreshold int

	// ResetTimeout is how long the breaker stays open before admitting a
	// half-open trial. Must be positive.
	ResetTimeout time.Duration
}

// Breaker short-circuits calls to a failing operation. Rejections observed
// while closed increment a consecutive-failure count and fulfilments reset
// it; reaching the threshold opens the breaker, which rejects calls with
// *BreakerOpenError without invoking them. After ResetTimeout, measured
// lazily against the scheduler clock, a single trial is admitted: success
// closes the breaker, failure reopens it and re-arms the timeout.
//
// Cancellations never count: a cancelled call leaves the failure count
// untouched, and a cancelled trial releases the trial slot without
// reopening.
type Breaker[T any] struct {
	s        *Scheduler
	cfg      BreakerConfig
	state    BreakerState
	failures int
	openedAt time.Time
}

// NewBreaker creates a closed breaker on s. Panics on a non-positive
// threshold or reset timeout.
func NewBreaker[T any](s *Scheduler, cfg BreakerConfig) *Breaker[T] {
	if cfg.FailureThreshold < 1 {
		panic("coop: breaker requires FailureThreshold >= 1")
	}
	if cfg.ResetTimeout <= 0 {
		panic("coop: breaker requires a positive ResetTimeout")
	}
	return &Breaker[T]{s: s, cfg: cfg}
}

// State reports the breaker's effective position: an open breaker whose
// reset timeout has elapsed reports half-open, though the transition is
// only stored when Do admits the trial.
func (b *Breaker[T]) State() BreakerState {
	if b.state == BreakerOpen && !b.s.Now().Before(b.openedAt.Add(b.cfg.ResetTimeout)) {
		return BreakerHalfOpen
	}
	return b.state
}

// Do runs op through the breaker and returns its Deferred. While open it
// rejects with a *BreakerOpenError carrying the time until the next trial,
// without invoking op; while a trial is in flight, further calls reject the
// same way.
func (b *Breaker[T]) Do(op Operation[T]) *Deferred[T] {
	switch b.state {
	case BreakerOpen:
		remaining := b.openedAt.Add(b.cfg.ResetTimeout).Sub(b.s.Now())
		if remaining > 0 {
			return rejected[T](b.s, &BreakerOpenError{RetryAfter: remaining})
		}
		b.state = BreakerHalfOpen
	case BreakerHalfOpen:
		return rejected[T](b.s, &BreakerOpenError{})
	}
	trial := b.state == BreakerHalfOpen
	d := op.invoke(b.s)
	d.attach(func(o Outcome[T]) {
		b.observe(o.State, trial)
	})
	return d
}

// observe folds one settlement into the breaker state. Results of calls
// admitted under an earlier state are ignored, so a late rejection from
// before the breaker opened cannot skew the next closed period.
func (b *Breaker[T]) observe(st DeferredState, trial bool) {
	if trial {
		switch st {
		case Fulfilled:
			b.state = BreakerClosed
			b.failures = 0
		case Rejected:
			b.state = BreakerOpen
			b.openedAt = b.s.Now()
		case Canceled:
			// Release the trial slot; openedAt is stale, so the next call
			// is admitted as a fresh trial.
			b.state = BreakerOpen
		}
		return
	}
	if b.state != BreakerClosed {
		return
	}
	switch st {
	case Fulfilled:
		b.failures = 0
	case Rejected:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = BreakerOpen
			b.openedAt = b.s.Now()
			b.failures = 0
		}
	}
}
