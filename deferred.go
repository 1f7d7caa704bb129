package coop

import (
	"errors"
	"sync/atomic"
)

// DeferredState enumerates the lifecycle of a [Deferred].
//
// State Machine:
//
//	Pending → Fulfilled  [Settler.Fulfill]
//	Pending → Rejected   [Settler.Reject]
//	Pending → Canceled   [token fire via CancelOn]
//
// All non-Pending states are terminal. Settlement is first-write-wins;
// later attempts are no-ops, never errors, never second notifications.
type DeferredState int32

const (
	// Pending indicates the Deferred has not settled.
	Pending DeferredState = iota
	// Fulfilled indicates the Deferred settled with a value.
	Fulfilled
	// Rejected indicates the Deferred settled with an error.
	Rejected
	// Canceled indicates the Deferred was cancelled before settling. It is
	// deliberately distinct from Rejected.
	Canceled
)

// String returns a human-readable representation of the state.
func (s DeferredState) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Fulfilled:
		return "Fulfilled"
	case Rejected:
		return "Rejected"
	case Canceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Outcome is the tagged settlement record of a Deferred: Value is set for
// Fulfilled, Err for Rejected and Canceled (always a *CanceledError for the
// latter).
type Outcome[T any] struct {
	State DeferredState
	Value T
	Err   error
}

var errNilRejection = errors.New("coop: rejected with nil error")

// Deferred is a container for a value that becomes available later, with
// exactly one terminal settlement. It is created Pending by [NewDeferred];
// the returned [Settler] holds the settlement right, while any number of
// consumers attach continuations through [Then], [Deferred.Catch],
// [Deferred.Finally], and [Deferred.OnSettled].
//
// Continuations are invoked exactly once, in registration order, as priority
// queue items: never synchronously inside the call that settles the
// Deferred, even when attaching to an already-settled one.
//
// All methods except [Deferred.State], [Deferred.Outcome], and
// [Deferred.Chan] must be called on the scheduler's thread. The zero value
// is not usable.
type Deferred[T any] struct {
	s *Scheduler

	// state is stored after value/err are written, so the cross-thread
	// readers (State, Outcome, Chan) observe a fully-built settlement.
	state atomic.Int32
	value T
	err   error

	handlers []func(Outcome[T])
	rej      *rejection
	ch       atomic.Pointer[chan Outcome[T]]

	// cancelDetach unregisters token observers on settlement, so a finished
	// operation does not leak observer list entries.
	cancelDetach []func()
}

// Settler is the single-use handle authorized to settle a Deferred. The
// creator of an operation keeps the Settler; consumers only ever see the
// Deferred.
type Settler[T any] struct {
	d *Deferred[T]
}

// NewDeferred creates a pending Deferred bound to s, returning the
// read/attach handle and the settlement handle.
func NewDeferred[T any](s *Scheduler) (*Deferred[T], *Settler[T]) {
	d := &Deferred[T]{s: s}
	return d, &Settler[T]{d: d}
}

// Fulfill settles the Deferred with value. Reports whether this call
// performed the settlement; false means it had already settled.
func (x *Settler[T]) Fulfill(value T) bool {
	return x.d.settle(Outcome[T]{State: Fulfilled, Value: value})
}

// Reject settles the Deferred with err. A nil err is replaced with a
// placeholder so consumers always observe a non-nil rejection. Reports
// whether this call performed the settlement.
func (x *Settler[T]) Reject(err error) bool {
	if err == nil {
		err = errNilRejection
	}
	return x.d.settle(Outcome[T]{State: Rejected, Err: err})
}

// Deferred returns the handle this Settler settles.
func (x *Settler[T]) Deferred() *Deferred[T] {
	return x.d
}

// State returns the current state. Safe from any goroutine.
func (d *Deferred[T]) State() DeferredState {
	return DeferredState(d.state.Load())
}

// Outcome returns the terminal outcome, or false while still Pending. Safe
// from any goroutine.
func (d *Deferred[T]) Outcome() (Outcome[T], bool) {
	if d.State() == Pending {
		return Outcome[T]{}, false
	}
	return d.outcome(), true
}

// outcome builds the settlement record; the state must not be Pending.
func (d *Deferred[T]) outcome() Outcome[T] {
	o := Outcome[T]{State: d.State()}
	switch o.State {
	case Fulfilled:
		o.Value = d.value
	case Rejected, Canceled:
		o.Err = d.err
	}
	return o
}

// settle performs the terminal transition. First write wins.
func (d *Deferred[T]) settle(o Outcome[T]) bool {
	if d.State() != Pending {
		return false
	}
	d.value = o.Value
	d.err = o.Err
	d.state.Store(int32(o.State))

	for _, detach := range d.cancelDetach {
		detach()
	}
	d.cancelDetach = nil

	if ch := d.ch.Load(); ch != nil {
		select {
		case *ch <- o:
		default:
		}
	}

	if o.State == Rejected && len(d.handlers) == 0 {
		d.rej = &rejection{err: o.Err}
		d.s.trackRejection(d.rej)
	}
	hs := d.handlers
	d.handlers = nil
	for _, h := range hs {
		d.s.EnqueuePriority(func() { h(o) })
	}
	return true
}

// cancelNow transitions a pending Deferred to Canceled. Callers outside a
// running callback must schedule it as a priority item instead of invoking
// it directly; see CancelOn.
func (d *Deferred[T]) cancelNow(cause error) bool {
	if d.State() != Pending {
		return false
	}
	ce, ok := cause.(*CanceledError)
	if !ok {
		ce = &CanceledError{Cause: cause}
	}
	return d.settle(Outcome[T]{State: Canceled, Err: ce})
}

// attach registers a continuation. Already-settled sources still schedule
// the continuation onto the priority queue, and claim the unhandled
// rejection record if one is pending.
func (d *Deferred[T]) attach(h func(Outcome[T])) {
	if d.State() == Pending {
		d.handlers = append(d.handlers, h)
		return
	}
	if d.rej != nil {
		d.rej.handled = true
		d.rej = nil
	}
	o := d.outcome()
	d.s.EnqueuePriority(func() { h(o) })
}

// CancelOn associates the Deferred with tok: when the token fires while the
// Deferred is still Pending, it transitions to Canceled. The token's firing
// is synchronous but the transition is scheduled onto the priority queue, so
// a settlement that was already in flight wins. The observer registration is
// removed once the Deferred settles. Returns the receiver.
func (d *Deferred[T]) CancelOn(tok *Token) *Deferred[T] {
	if tok == nil {
		return d
	}
	remove := tok.OnCancel(func(cause error) {
		d.s.EnqueuePriority(func() { d.cancelNow(cause) })
	})
	if d.State() == Pending {
		d.cancelDetach = append(d.cancelDetach, remove)
	} else {
		remove()
	}
	return d
}

// Chan returns a one-shot buffered channel that receives the terminal
// Outcome exactly once. Safe to call from any goroutine; used by [Await] to
// bridge a Deferred to blocking host code.
func (d *Deferred[T]) Chan() <-chan Outcome[T] {
	if ch := d.ch.Load(); ch != nil {
		return *ch
	}
	ch := make(chan Outcome[T], 1)
	if !d.ch.CompareAndSwap(nil, &ch) {
		return *d.ch.Load()
	}
	// A settlement may have raced ahead of the pointer swap; deliver it.
	if d.State() != Pending {
		select {
		case ch <- d.outcome():
		default:
		}
	}
	return ch
}

// call invokes fn with v, converting a panic into a rejection error.
func call[T, U any](fn func(T) (U, error), v T) (out U, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
		}
	}()
	return fn(v)
}

// callVoid invokes fn, converting a panic into a rejection error.
func callVoid(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
		}
	}()
	fn()
	return nil
}

// mirror settles out with the source outcome o, preserving its kind.
func mirror[T any](out *Deferred[T], settler *Settler[T], o Outcome[T]) {
	switch o.State {
	case Fulfilled:
		settler.Fulfill(o.Value)
	case Rejected:
		settler.Reject(o.Err)
	case Canceled:
		out.cancelNow(o.Err)
	}
}

// Then attaches an on-fulfilled continuation to d and returns a fresh
// Deferred for the continuation's own outcome, enabling chaining. fn runs as
// a priority item after d fulfills; returning an error rejects the result,
// and a panic rejects it with [PanicError]. Rejection and cancellation of d
// pass through to the result unchanged. Then is a top-level function because
// the result type differs from the source type.
func Then[T, U any](d *Deferred[T], fn func(T) (U, error)) *Deferred[U] {
	out, settler := NewDeferred[U](d.s)
	d.attach(func(o Outcome[T]) {
		switch o.State {
		case Fulfilled:
			if v, err := call(fn, o.Value); err != nil {
				settler.Reject(err)
			} else {
				settler.Fulfill(v)
			}
		case Rejected:
			settler.Reject(o.Err)
		case Canceled:
			out.cancelNow(o.Err)
		}
	})
	return out
}

// Catch attaches an on-rejected continuation: fn may recover by returning a
// replacement value, or re-reject by returning an error. It is not invoked
// for cancellation, which passes through unchanged; fulfilment passes
// through as well.
func (d *Deferred[T]) Catch(fn func(error) (T, error)) *Deferred[T] {
	out, settler := NewDeferred[T](d.s)
	d.attach(func(o Outcome[T]) {
		switch o.State {
		case Fulfilled:
			settler.Fulfill(o.Value)
		case Rejected:
			if v, err := call(fn, o.Err); err != nil {
				settler.Reject(err)
			} else {
				settler.Fulfill(v)
			}
		case Canceled:
			out.cancelNow(o.Err)
		}
	})
	return out
}

// Finally attaches a continuation that runs on any settlement. The result
// mirrors the source outcome, unless fn panics, which rejects the result
// with [PanicError].
func (d *Deferred[T]) Finally(fn func()) *Deferred[T] {
	out, settler := NewDeferred[T](d.s)
	d.attach(func(o Outcome[T]) {
		if err := callVoid(fn); err != nil {
			settler.Reject(err)
			return
		}
		mirror(out, settler, o)
	})
	return out
}

// OnSettled attaches a continuation observing the full tagged outcome,
// including Canceled, which Then and Catch never see. The result mirrors the
// source outcome.
func (d *Deferred[T]) OnSettled(fn func(Outcome[T])) *Deferred[T] {
	out, settler := NewDeferred[T](d.s)
	d.attach(func(o Outcome[T]) {
		if err := callVoid(func() { fn(o) }); err != nil {
			settler.Reject(err)
			return
		}
		mirror(out, settler, o)
	})
	return out
}

// rejected returns a Deferred already settled with err.
func rejected[T any](s *Scheduler, err error) *Deferred[T] {
	d, settler := NewDeferred[T](s)
	settler.Reject(err)
	return d
}
