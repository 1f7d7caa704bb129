package coop

import (
	"errors"
	"slices"
	"testing"
)

// TestDeferred_SettleOnce verifies first-write-wins settlement.
func TestDeferred_SettleOnce(t *testing.T) {
	s := newTestScheduler()
	d, settler := NewDeferred[int](s)

	if d.State() != Pending {
		t.Fatalf("State() = %v, want Pending", d.State())
	}
	if !settler.Fulfill(42) {
		t.Fatal("Fulfill = false, want true")
	}
	if settler.Fulfill(99) {
		t.Error("second Fulfill = true, want false")
	}
	if settler.Reject(errors.New("late")) {
		t.Error("Reject after Fulfill = true, want false")
	}

	if d.State() != Fulfilled {
		t.Fatalf("State() = %v, want Fulfilled", d.State())
	}
	o, ok := d.Outcome()
	if !ok {
		t.Fatal("Outcome() not available after settlement")
	}
	if o.Value != 42 || o.Err != nil {
		t.Errorf("Outcome = %+v, want Value 42", o)
	}
}

// TestDeferred_RejectNilError verifies a nil rejection is replaced with a
// placeholder error.
func TestDeferred_RejectNilError(t *testing.T) {
	s := newTestScheduler()
	d, settler := NewDeferred[int](s)

	if !settler.Reject(nil) {
		t.Fatal("Reject(nil) = false, want true")
	}
	o, _ := d.Outcome()
	if o.State != Rejected || o.Err == nil {
		t.Errorf("Outcome = %+v, want Rejected with non-nil Err", o)
	}
}

// TestDeferred_ContinuationNeverSynchronous verifies that settling never
// invokes continuations inside the settle call.
func TestDeferred_ContinuationNeverSynchronous(t *testing.T) {
	s := newTestScheduler()
	d, settler := NewDeferred[string](s)

	var ran bool
	Then(d, func(v string) (string, error) {
		ran = true
		return v, nil
	})

	s.EnqueueNormal(func() {
		settler.Fulfill("hello")
		if ran {
			t.Error("continuation ran synchronously inside Fulfill")
		}
	})

	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatalf("RunUntilQuiescent failed: %v", err)
	}
	if !ran {
		t.Error("continuation never ran")
	}
}

// TestDeferred_HandlersRunInRegistrationOrder verifies continuation order
// for a single settlement.
func TestDeferred_HandlersRunInRegistrationOrder(t *testing.T) {
	s := newTestScheduler()
	d, settler := NewDeferred[int](s)

	var order []string
	d.OnSettled(func(Outcome[int]) { order = append(order, "a") })
	d.OnSettled(func(Outcome[int]) { order = append(order, "b") })
	d.OnSettled(func(Outcome[int]) { order = append(order, "c") })

	settler.Fulfill(1)
	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatalf("RunUntilQuiescent failed: %v", err)
	}

	if !slices.Equal(order, []string{"a", "b", "c"}) {
		t.Errorf("order = %v, want [a b c]", order)
	}
}

// TestDeferred_AttachAfterSettledStillAsynchronous verifies continuations
// attached to an already-settled Deferred are scheduled, not invoked inline.
func TestDeferred_AttachAfterSettledStillAsynchronous(t *testing.T) {
	s := newTestScheduler()
	d, settler := NewDeferred[int](s)
	settler.Fulfill(7)
	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatalf("RunUntilQuiescent failed: %v", err)
	}

	var got int
	Then(d, func(v int) (int, error) {
		got = v
		return v, nil
	})
	if got != 0 {
		t.Fatal("continuation ran synchronously on attach")
	}

	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatalf("RunUntilQuiescent failed: %v", err)
	}
	if got != 7 {
		t.Errorf("got = %d, want 7", got)
	}
}

// TestThen_ChainsValues verifies value transformation and chaining across
// result types.
func TestThen_ChainsValues(t *testing.T) {
	s := newTestScheduler()
	d, settler := NewDeferred[int](s)

	doubled := Then(d, func(v int) (int, error) { return v * 2, nil })
	labeled := Then(doubled, func(v int) (string, error) {
		if v%2 != 0 {
			return "", errors.New("odd")
		}
		return "even", nil
	})

	settler.Fulfill(21)
	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatalf("RunUntilQuiescent failed: %v", err)
	}

	o, ok := labeled.Outcome()
	if !ok || o.State != Fulfilled || o.Value != "even" {
		t.Errorf("Outcome = %+v, want Fulfilled even", o)
	}
}

// TestThen_ErrorRejectsResult verifies a continuation returning an error
// rejects the derived Deferred.
func TestThen_ErrorRejectsResult(t *testing.T) {
	s := newTestScheduler()
	d, settler := NewDeferred[int](s)

	boom := errors.New("boom")
	out := Then(d, func(int) (int, error) { return 0, boom })
	out.Catch(func(err error) (int, error) { return 0, err })

	settler.Fulfill(1)
	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatalf("RunUntilQuiescent failed: %v", err)
	}

	if o, _ := out.Outcome(); o.State != Rejected || !errors.Is(o.Err, boom) {
		t.Errorf("Outcome = %+v, want Rejected boom", o)
	}
}

// TestThen_PanicRejectsWithPanicError verifies a panicking continuation
// rejects its result rather than reaching the error sink.
func TestThen_PanicRejectsWithPanicError(t *testing.T) {
	var sunk []error
	s := newTestScheduler(WithErrorSink(func(err error) { sunk = append(sunk, err) }))
	d, settler := NewDeferred[int](s)

	out := Then(d, func(int) (int, error) { panic("kaboom") })
	var caught error
	out.Catch(func(err error) (int, error) {
		caught = err
		return 0, nil
	})

	settler.Fulfill(1)
	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatalf("RunUntilQuiescent failed: %v", err)
	}

	var pe PanicError
	if !errors.As(caught, &pe) || pe.Value != "kaboom" {
		t.Errorf("caught = %v, want PanicError kaboom", caught)
	}
	if len(sunk) != 0 {
		t.Errorf("error sink received %v, want nothing", sunk)
	}
}

// TestThen_RejectionPassesThrough verifies the rejection path skips the
// fulfilment continuation.
func TestThen_RejectionPassesThrough(t *testing.T) {
	s := newTestScheduler()
	d, settler := NewDeferred[int](s)

	boom := errors.New("boom")
	var invoked bool
	out := Then(d, func(int) (int, error) {
		invoked = true
		return 0, nil
	})
	out.Catch(func(err error) (int, error) { return 0, err })

	settler.Reject(boom)
	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatalf("RunUntilQuiescent failed: %v", err)
	}

	if invoked {
		t.Error("fulfilment continuation ran on rejection")
	}
	if o, _ := out.Outcome(); o.State != Rejected || !errors.Is(o.Err, boom) {
		t.Errorf("Outcome = %+v, want Rejected boom", o)
	}
}

// TestCatch_RecoversRejection verifies Catch can replace a rejection with a
// value.
func TestCatch_RecoversRejection(t *testing.T) {
	s := newTestScheduler()
	d, settler := NewDeferred[int](s)

	out := d.Catch(func(err error) (int, error) { return 42, nil })

	settler.Reject(errors.New("boom"))
	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatalf("RunUntilQuiescent failed: %v", err)
	}

	if o, _ := out.Outcome(); o.State != Fulfilled || o.Value != 42 {
		t.Errorf("Outcome = %+v, want Fulfilled 42", o)
	}
}

// TestFinally_RunsOnEverySettlement verifies Finally observes fulfilment
// and rejection alike, mirroring the source outcome.
func TestFinally_RunsOnEverySettlement(t *testing.T) {
	s := newTestScheduler()

	fd, fs := NewDeferred[int](s)
	rd, rs := NewDeferred[int](s)

	var finals int
	fOut := fd.Finally(func() { finals++ })
	rOut := rd.Finally(func() { finals++ })
	rOut.Catch(func(err error) (int, error) { return 0, err })

	fs.Fulfill(1)
	boom := errors.New("boom")
	rs.Reject(boom)
	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatalf("RunUntilQuiescent failed: %v", err)
	}

	if finals != 2 {
		t.Errorf("finally ran %d times, want 2", finals)
	}
	if o, _ := fOut.Outcome(); o.State != Fulfilled || o.Value != 1 {
		t.Errorf("fulfilled mirror = %+v, want Fulfilled 1", o)
	}
	if o, _ := rOut.Outcome(); o.State != Rejected || !errors.Is(o.Err, boom) {
		t.Errorf("rejected mirror = %+v, want Rejected boom", o)
	}
}

// TestOnSettled_ObservesCancellation verifies OnSettled sees the Canceled
// outcome that Then and Catch never surface.
func TestOnSettled_ObservesCancellation(t *testing.T) {
	s := newTestScheduler()
	src := NewTokenSource(s)
	d, _ := NewDeferred[int](s)
	d.CancelOn(src.Token())

	var thenRan, catchRan bool
	var observed Outcome[int]
	Then(d, func(v int) (int, error) {
		thenRan = true
		return v, nil
	})
	d.Catch(func(err error) (int, error) {
		catchRan = true
		return 0, err
	})
	d.OnSettled(func(o Outcome[int]) { observed = o })

	cause := errors.New("shutting down")
	src.Cancel(cause)
	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatalf("RunUntilQuiescent failed: %v", err)
	}

	if thenRan || catchRan {
		t.Errorf("thenRan=%v catchRan=%v, want neither on cancellation", thenRan, catchRan)
	}
	if observed.State != Canceled {
		t.Fatalf("observed state = %v, want Canceled", observed.State)
	}
	var ce *CanceledError
	if !errors.As(observed.Err, &ce) || !errors.Is(ce, cause) {
		t.Errorf("observed err = %v, want CanceledError wrapping cause", observed.Err)
	}
}

// TestDeferred_InFlightSettlementBeatsCancellation verifies that a
// settlement made in the same callback as the token fire wins, because the
// cancellation transition is scheduled rather than immediate.
func TestDeferred_InFlightSettlementBeatsCancellation(t *testing.T) {
	s := newTestScheduler()
	src := NewTokenSource(s)
	d, settler := NewDeferred[string](s)
	d.CancelOn(src.Token())

	s.EnqueueNormal(func() {
		src.Cancel(nil)
		settler.Fulfill("made it")
	})

	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatalf("RunUntilQuiescent failed: %v", err)
	}

	if o, _ := d.Outcome(); o.State != Fulfilled || o.Value != "made it" {
		t.Errorf("Outcome = %+v, want Fulfilled", o)
	}
}

// TestDeferred_ChanDeliversOutcome verifies the one-shot settlement
// channel.
func TestDeferred_ChanDeliversOutcome(t *testing.T) {
	s := newTestScheduler()
	d, settler := NewDeferred[int](s)

	ch := d.Chan()
	settler.Fulfill(5)
	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatalf("RunUntilQuiescent failed: %v", err)
	}

	select {
	case o := <-ch:
		if o.State != Fulfilled || o.Value != 5 {
			t.Errorf("received %+v, want Fulfilled 5", o)
		}
	default:
		t.Fatal("channel empty after settlement")
	}
}

// TestDeferred_ChanAfterSettlement verifies a channel requested after the
// settlement still observes it.
func TestDeferred_ChanAfterSettlement(t *testing.T) {
	s := newTestScheduler()
	d, settler := NewDeferred[int](s)
	settler.Fulfill(9)

	select {
	case o := <-d.Chan():
		if o.Value != 9 {
			t.Errorf("received %+v, want Value 9", o)
		}
	default:
		t.Fatal("channel empty for settled Deferred")
	}
}
