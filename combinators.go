package coop

// All joins the inputs into a single Deferred that fulfils with every value,
// in input order, once all inputs fulfil. The first rejection rejects the
// result immediately with that error; the first cancellation makes the
// result Canceled. Later settlements of the remaining inputs are observed
// (so they never count as unhandled) but do not change the result.
//
// With no inputs the result fulfils with an empty slice.
func All[T any](s *Scheduler, ds ...*Deferred[T]) *Deferred[[]T] {
	out, settler := NewDeferred[[]T](s)
	if len(ds) == 0 {
		settler.Fulfill([]T{})
		return out
	}
	values := make([]T, len(ds))
	remaining := len(ds)
	for i, d := range ds {
		d.attach(func(o Outcome[T]) {
			switch o.State {
			case Fulfilled:
				values[i] = o.Value
				remaining--
				if remaining == 0 {
					settler.Fulfill(values)
				}
			case Rejected:
				settler.Reject(o.Err)
			case Canceled:
				out.cancelNow(o.Err)
			}
		})
	}
	return out
}

// AllCancel is [All] with sibling cancellation: the first rejection or
// cancellation additionally cancels src, so inputs associated with src's
// token stop doing work that can no longer contribute to the result. The
// caller is expected to have tied the inputs to src via
// [Deferred.CancelOn] or token observation.
func AllCancel[T any](s *Scheduler, src *TokenSource, ds ...*Deferred[T]) *Deferred[[]T] {
	out, settler := NewDeferred[[]T](s)
	if len(ds) == 0 {
		settler.Fulfill([]T{})
		return out
	}
	values := make([]T, len(ds))
	remaining := len(ds)
	for i, d := range ds {
		d.attach(func(o Outcome[T]) {
			switch o.State {
			case Fulfilled:
				values[i] = o.Value
				remaining--
				if remaining == 0 {
					settler.Fulfill(values)
				}
			case Rejected:
				settler.Reject(o.Err)
				src.Cancel(o.Err)
			case Canceled:
				out.cancelNow(o.Err)
				src.Cancel(o.Err)
			}
		})
	}
	return out
}

// AllSettled waits for every input to settle and fulfils with the tagged
// outcomes in input order. It never rejects, and never cancels, regardless
// of how the inputs end.
//
// With no inputs the result fulfils with an empty slice.
func AllSettled[T any](s *Scheduler, ds ...*Deferred[T]) *Deferred[[]Outcome[T]] {
	out, settler := NewDeferred[[]Outcome[T]](s)
	if len(ds) == 0 {
		settler.Fulfill([]Outcome[T]{})
		return out
	}
	outcomes := make([]Outcome[T], len(ds))
	remaining := len(ds)
	for i, d := range ds {
		d.attach(func(o Outcome[T]) {
			outcomes[i] = o
			remaining--
			if remaining == 0 {
				settler.Fulfill(outcomes)
			}
		})
	}
	return out
}

// Race settles with the first input to settle, whatever the kind: value,
// error, or cancellation. Ties between inputs settling in the same drain
// are broken by settlement order.
//
// With no inputs the result never settles.
func Race[T any](s *Scheduler, ds ...*Deferred[T]) *Deferred[T] {
	out, settler := NewDeferred[T](s)
	for _, d := range ds {
		d.attach(func(o Outcome[T]) {
			mirror(out, settler, o)
		})
	}
	return out
}

// Any fulfils with the first input to fulfil, ignoring rejections and
// cancellations unless every input ends that way, in which case it rejects
// with an [AggregateError] carrying each input's error in input order.
// Cancelled inputs contribute their *CanceledError.
//
// With no inputs the result rejects immediately with an empty
// AggregateError.
func Any[T any](s *Scheduler, ds ...*Deferred[T]) *Deferred[T] {
	out, settler := NewDeferred[T](s)
	if len(ds) == 0 {
		settler.Reject(&AggregateError{Message: "coop: all deferreds rejected"})
		return out
	}
	errs := make([]error, len(ds))
	remaining := len(ds)
	for i, d := range ds {
		d.attach(func(o Outcome[T]) {
			if o.State == Fulfilled {
				settler.Fulfill(o.Value)
				return
			}
			errs[i] = o.Err
			remaining--
			if remaining == 0 {
				settler.Reject(&AggregateError{
					Message: "coop: all deferreds rejected",
					Errors:  errs,
				})
			}
		})
	}
	return out
}
