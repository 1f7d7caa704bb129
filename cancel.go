// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package coop

import (
	"sync/atomic"
	"time"
)

// TokenSource owns the right to cancel. It hands out a shared [Token] for
// observation, and forms a tree: cancelling a source cancels its children
// transitively. Created per logical operation (or operation tree) and
// detached when the operation completes, so observer lists do not leak.
//
// Cancel, CancelAfter, Child, and Detach must run on the scheduler's
// thread. The Token's read side is safe from any goroutine.
type TokenSource struct {
	s        *Scheduler
	tok      *Token
	parent   *TokenSource
	children []*TokenSource
}

// Token is the observable side of a [TokenSource]: a monotonic cancelled
// flag plus observer callbacks. Long-running operations consult it;
// Deferreds associate with it through [Deferred.CancelOn].
type Token struct {
	s *Scheduler

	// cause and err are written before the canceled store, so the
	// cross-goroutine readers observe them fully built.
	canceled atomic.Bool
	cause    error
	err      *CanceledError

	observers []*cancelObserver
}

// cancelObserver is a removable observer slot; remove releases the closure
// rather than compacting the slice.
type cancelObserver struct {
	fn func(err error)
}

// NewTokenSource creates a cancellation source bound to s.
func NewTokenSource(s *Scheduler) *TokenSource {
	return &TokenSource{s: s, tok: &Token{s: s}}
}

// Token returns the source's observable token. Always the same token.
func (src *TokenSource) Token() *Token {
	return src.tok
}

// Cancel fires the token with the given cause. The first call wins and
// reports true; the token stays cancelled forever. Observers run
// synchronously, exactly once each, in registration order, then child
// sources are cancelled transitively. A nil cause yields a bare
// [CanceledError].
//
// Note that while the firing is synchronous, the effect on any associated
// Deferred is still scheduled onto the priority queue.
func (src *TokenSource) Cancel(cause error) bool {
	t := src.tok
	if t.canceled.Load() {
		return false
	}
	ce, ok := cause.(*CanceledError)
	if !ok {
		ce = &CanceledError{Cause: cause}
	}
	t.cause = cause
	t.err = ce
	t.canceled.Store(true)

	t.fire()

	children := src.children
	src.children = nil
	for _, child := range children {
		child.parent = nil
		child.Cancel(ce)
	}
	return true
}

// CancelAfter schedules cancellation with a [TimeoutError] cause after d on
// the normal queue. The returned timer can be stopped to call off the
// deadline; the timeout is a no-op if the source was cancelled first.
func (src *TokenSource) CancelAfter(d time.Duration) *Timer {
	err := &TimeoutError{After: d}
	return src.s.EnqueueAfter(func() {
		src.Cancel(err)
	}, d)
}

// Child creates a source subordinate to src: cancelling src cancels the
// child, while the child may cancel independently without affecting the
// parent. A child of an already-cancelled source is created cancelled.
func (src *TokenSource) Child() *TokenSource {
	child := NewTokenSource(src.s)
	if src.tok.canceled.Load() {
		child.Cancel(src.tok.err)
		return child
	}
	child.parent = src
	src.children = append(src.children, child)
	return child
}

// Detach unlinks src from its parent, so the parent's eventual cancellation
// no longer reaches it and the parent does not retain it. Call when the
// owning operation completes.
func (src *TokenSource) Detach() {
	p := src.parent
	if p == nil {
		return
	}
	src.parent = nil
	for i, c := range p.children {
		if c == src {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
}

// Canceled reports whether the token has fired. Safe from any goroutine.
func (t *Token) Canceled() bool {
	return t.canceled.Load()
}

// Cause returns the value passed to Cancel, which may be nil. Safe from any
// goroutine.
func (t *Token) Cause() error {
	if !t.canceled.Load() {
		return nil
	}
	return t.cause
}

// Err returns nil while the token is live, and the *CanceledError carrying
// the cause once it has fired. Safe from any goroutine.
func (t *Token) Err() error {
	if !t.canceled.Load() {
		return nil
	}
	return t.err
}

// OnCancel registers an observer invoked synchronously when the token
// fires, receiving the token's Err. If the token already fired, fn is
// invoked immediately. The returned remove function unregisters the
// observer; it releases the closure but never runs it.
func (t *Token) OnCancel(fn func(err error)) (remove func()) {
	if fn == nil {
		return func() {}
	}
	if t.canceled.Load() {
		fn(t.err)
		return func() {}
	}
	ob := &cancelObserver{fn: fn}
	t.observers = append(t.observers, ob)
	return func() { ob.fn = nil }
}

// fire invokes observers in registration order. Each slot is cleared before
// its callback runs, so re-entrant removal or registration cannot double
// fire.
func (t *Token) fire() {
	obs := t.observers
	t.observers = nil
	for _, ob := range obs {
		if fn := ob.fn; fn != nil {
			ob.fn = nil
			fn(t.err)
		}
	}
}
