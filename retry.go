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

// RetryPolicy configures [Retry].
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first, and
	// must be at least 1.
	MaxAttempts int

	// BaseDelay is the pause before the second attempt.
	BaseDelay time.Duration

	// Multiplier scales the pause exponentially per attempt. Zero means 1,
	// a constant delay.
	Multiplier float64

	// Jitter, when non-nil, is sampled per pause and added to it.
	Jitter func() time.Duration
}

// delay returns the pause after rejected attempt n, 1-based.
func (p RetryPolicy) delay(attempt int) time.Duration {
	m := p.Multiplier
	if m == 0 {
		m = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(m, float64(attempt-1)))
	if p.Jitter != nil {
		d += p.Jitter()
	}
	return d
}

// Retry runs op, retrying rejected attempts on the normal queue per policy
// until one fulfils or MaxAttempts is reached, at which point the result
// rejects with a *RetryExhaustedError wrapping the final error.
//
// A non-nil tok makes the whole operation cancellable: firing it settles
// the result Canceled, stops any pending retry timer, and suppresses
// further attempts. An attempt that itself settles Canceled cancels the
// result. Panics on MaxAttempts < 1.
func Retry[T any](s *Scheduler, policy RetryPolicy, tok *Token, op Operation[T]) *Deferred[T] {
	if policy.MaxAttempts < 1 {
		panic("coop: retry requires MaxAttempts >= 1")
	}
	out, settler := NewDeferred[T](s)

	var (
		attempt int
		timer   *Timer
		run     func()
	)

	handle := func(o Outcome[T]) {
		switch o.State {
		case Fulfilled:
			settler.Fulfill(o.Value)
		case Canceled:
			out.cancelNow(o.Err)
		case Rejected:
			if tok != nil && tok.Canceled() {
				// The token observer settles the result.
				return
			}
			if attempt >= policy.MaxAttempts {
				settler.Reject(&RetryExhaustedError{Attempts: attempt, Err: o.Err})
				return
			}
			timer = s.EnqueueAfter(run, policy.delay(attempt))
		}
	}
	run = func() {
		timer = nil
		if out.State() != Pending {
			return
		}
		attempt++
		op.invoke(s).attach(handle)
	}

	if tok != nil {
		remove := tok.OnCancel(func(err error) {
			if timer != nil {
				timer.Stop()
				timer = nil
			}
			s.EnqueuePriority(func() { out.cancelNow(err) })
		})
		out.cancelDetach = append(out.cancelDetach, remove)
		if tok.Canceled() {
			return out
		}
	}
	run()
	return out
}
