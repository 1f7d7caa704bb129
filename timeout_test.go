package coop

import (
	"errors"
	"testing"
	"time"
)

func TestTimeout_DeadlineRejectsAndCancels(t *testing.T) {
	s := newTestScheduler()
	src := NewTokenSource(s)

	d, _ := NewDeferred[string](s)
	d.CancelOn(src.Token())
	out := Timeout(src, 100*time.Millisecond, d)
	var caught error
	out.Catch(func(err error) (string, error) {
		caught = err
		return "", nil
	})
	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatal(err)
	}

	var te *TimeoutError
	if !errors.As(caught, &te) {
		t.Fatalf("caught = %v, want *TimeoutError", caught)
	}
	if te.After != 100*time.Millisecond {
		t.Errorf("After = %v, want 100ms", te.After)
	}
	if !src.Token().Canceled() {
		t.Error("token not cancelled by the deadline")
	}
	if !errors.Is(src.Token().Cause(), te) {
		t.Errorf("Cause = %v, want the timeout error", src.Token().Cause())
	}
	if got := d.State(); got != Canceled {
		t.Errorf("underlying op state = %v, want Canceled", got)
	}
	if got := s.Now(); !got.Equal(testEpoch.Add(100 * time.Millisecond)) {
		t.Errorf("Now = %v, want epoch+100ms", got)
	}
}

func TestTimeout_OpWinsStopsDeadline(t *testing.T) {
	s := newTestScheduler()
	src := NewTokenSource(s)

	d, settler := NewDeferred[string](s)
	s.EnqueueAfter(func() { settler.Fulfill("ok") }, 50*time.Millisecond)
	out := Timeout(src, 100*time.Millisecond, d)
	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatal(err)
	}

	o, settled := out.Outcome()
	if !settled || o.State != Fulfilled || o.Value != "ok" {
		t.Fatalf("outcome = %+v settled=%v, want fulfilled ok", o, settled)
	}
	if src.Token().Canceled() {
		t.Error("token cancelled even though the op settled first")
	}
	if got := s.Pending(); got != 0 {
		t.Errorf("Pending = %d, want 0 after the deadline timer is stopped", got)
	}
	// The stopped deadline must be discarded without advancing the clock.
	if got := s.Now(); !got.Equal(testEpoch.Add(50 * time.Millisecond)) {
		t.Errorf("Now = %v, want epoch+50ms", got)
	}
}

// TestTimeout_SettlementAtDeadlineInstantWins pins the tie-break: an op
// settling in the same cycle the deadline becomes due still wins, because
// its continuation drains before the deadline's normal-queue entry runs.
func TestTimeout_SettlementAtDeadlineInstantWins(t *testing.T) {
	s := newTestScheduler()
	src := NewTokenSource(s)

	d, settler := NewDeferred[string](s)
	s.EnqueueAfter(func() { settler.Fulfill("ok") }, 100*time.Millisecond)
	out := Timeout(src, 100*time.Millisecond, d)
	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatal(err)
	}

	o, _ := out.Outcome()
	if o.State != Fulfilled || o.Value != "ok" {
		t.Fatalf("outcome = %+v, want fulfilled ok", o)
	}
	if src.Token().Canceled() {
		t.Error("token cancelled even though the settlement won the tie")
	}
}

func TestAfter(t *testing.T) {
	s := newTestScheduler()
	d := After(s, 250*time.Millisecond)
	if err := s.RunUntilQuiescent(); err != nil {
		t.Fatal(err)
	}

	o, settled := d.Outcome()
	if !settled || o.State != Fulfilled {
		t.Fatalf("outcome = %+v settled=%v, want fulfilled", o, settled)
	}
	want := testEpoch.Add(250 * time.Millisecond)
	if !o.Value.Equal(want) {
		t.Errorf("value = %v, want %v", o.Value, want)
	}
	if !s.Now().Equal(want) {
		t.Errorf("Now = %v, want %v", s.Now(), want)
	}
}
