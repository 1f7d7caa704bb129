package coop

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failNTimes builds an operation that rejects its first n invocations and
// fulfils afterwards, recording the virtual attempt times.
func failNTimes(s *Scheduler, n int, times *[]time.Time) Operation[string] {
	count := 0
	return func() *Deferred[string] {
		*times = append(*times, s.Now())
		count++
		d, settler := NewDeferred[string](s)
		if count <= n {
			settler.Reject(errors.New("transient"))
		} else {
			settler.Fulfill("ok")
		}
		return d
	}
}

// TestRetry_SucceedsAfterFailures verifies the backoff schedule and the
// eventual fulfilment.
func TestRetry_SucceedsAfterFailures(t *testing.T) {
	s := newTestScheduler()

	var times []time.Time
	out := Retry(s, RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2,
	}, nil, failNTimes(s, 2, &times))

	require.NoError(t, s.RunUntilQuiescent())

	o, ok := out.Outcome()
	require.True(t, ok)
	require.Equal(t, Fulfilled, o.State)
	assert.Equal(t, "ok", o.Value)

	// Attempt 1 immediately, then 100ms, then 100ms*2.
	want := []time.Time{
		testEpoch,
		testEpoch.Add(100 * time.Millisecond),
		testEpoch.Add(300 * time.Millisecond),
	}
	assert.Equal(t, want, times)
}

// TestRetry_ZeroMultiplierMeansConstantDelay verifies the multiplier
// default.
func TestRetry_ZeroMultiplierMeansConstantDelay(t *testing.T) {
	s := newTestScheduler()

	var times []time.Time
	out := Retry(s, RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
	}, nil, failNTimes(s, 2, &times))

	require.NoError(t, s.RunUntilQuiescent())
	require.Equal(t, Fulfilled, out.State())

	want := []time.Time{
		testEpoch,
		testEpoch.Add(100 * time.Millisecond),
		testEpoch.Add(200 * time.Millisecond),
	}
	assert.Equal(t, want, times)
}

// TestRetry_JitterAddsToEveryDelay verifies the jitter sample lands on each
// pause.
func TestRetry_JitterAddsToEveryDelay(t *testing.T) {
	s := newTestScheduler()

	var times []time.Time
	out := Retry(s, RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2,
		Jitter:      func() time.Duration { return 7 * time.Millisecond },
	}, nil, failNTimes(s, 2, &times))

	require.NoError(t, s.RunUntilQuiescent())
	require.Equal(t, Fulfilled, out.State())

	want := []time.Time{
		testEpoch,
		testEpoch.Add(107 * time.Millisecond),
		testEpoch.Add(107 * time.Millisecond).Add(207 * time.Millisecond),
	}
	assert.Equal(t, want, times)
}

// TestRetry_ExhaustionWrapsLastError verifies the terminal rejection type
// and its cause chain.
func TestRetry_ExhaustionWrapsLastError(t *testing.T) {
	s := newTestScheduler()

	last := errors.New("still broken")
	attempts := 0
	out := Retry(s, RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond}, nil, func() *Deferred[int] {
		attempts++
		return rejected[int](s, last)
	})
	out.Catch(func(err error) (int, error) { return 0, nil })

	require.NoError(t, s.RunUntilQuiescent())

	o, _ := out.Outcome()
	require.Equal(t, Rejected, o.State)
	var re *RetryExhaustedError
	require.ErrorAs(t, o.Err, &re)
	assert.Equal(t, 3, re.Attempts)
	assert.ErrorIs(t, o.Err, last)
	assert.Equal(t, 3, attempts)
}

// TestRetry_CancelBetweenAttempts verifies a token firing during a backoff
// pause stops the pending timer and cancels the result.
func TestRetry_CancelBetweenAttempts(t *testing.T) {
	s := newTestScheduler()
	src := NewTokenSource(s)

	attempts := 0
	out := Retry(s, RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond}, src.Token(), func() *Deferred[int] {
		attempts++
		return rejected[int](s, errors.New("transient"))
	})
	src.CancelAfter(50 * time.Millisecond)

	require.NoError(t, s.RunUntilQuiescent())

	assert.Equal(t, Canceled, out.State())
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 0, s.Pending(), "retry timer should be stopped")
	assert.Equal(t, testEpoch.Add(50*time.Millisecond), s.Now(), "no further backoff should elapse")
}

// TestRetry_CanceledAttemptCancelsResult verifies cancellation of the
// in-flight attempt itself propagates.
func TestRetry_CanceledAttemptCancelsResult(t *testing.T) {
	s := newTestScheduler()
	src := NewTokenSource(s)

	attempts := 0
	out := Retry(s, RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond}, src.Token(), func() *Deferred[int] {
		attempts++
		d, _ := NewDeferred[int](s)
		return d.CancelOn(src.Token())
	})
	src.CancelAfter(30 * time.Millisecond)

	require.NoError(t, s.RunUntilQuiescent())
	assert.Equal(t, Canceled, out.State())
	assert.Equal(t, 1, attempts)
}

// TestRetry_PreCancelledTokenSkipsAllAttempts verifies no attempt runs when
// the token fired before the call.
func TestRetry_PreCancelledTokenSkipsAllAttempts(t *testing.T) {
	s := newTestScheduler()
	src := NewTokenSource(s)
	src.Cancel(errors.New("too late"))

	attempts := 0
	out := Retry(s, RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}, src.Token(), func() *Deferred[int] {
		attempts++
		return rejected[int](s, errors.New("transient"))
	})

	require.NoError(t, s.RunUntilQuiescent())
	assert.Equal(t, Canceled, out.State())
	assert.Equal(t, 0, attempts)
}

// TestRetry_FactoryPanicCountsAsFailure verifies a panicking factory
// behaves like a rejected attempt.
func TestRetry_FactoryPanicCountsAsFailure(t *testing.T) {
	s := newTestScheduler()

	out := Retry(s, RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}, nil, func() *Deferred[int] {
		panic("factory exploded")
	})
	out.Catch(func(err error) (int, error) { return 0, nil })

	require.NoError(t, s.RunUntilQuiescent())

	o, _ := out.Outcome()
	require.Equal(t, Rejected, o.State)
	var re *RetryExhaustedError
	require.ErrorAs(t, o.Err, &re)
	assert.Equal(t, 2, re.Attempts)
	var pe PanicError
	assert.ErrorAs(t, re.Err, &pe)
}

// TestRetry_PanicsOnBadPolicy verifies constructor-style validation.
func TestRetry_PanicsOnBadPolicy(t *testing.T) {
	s := newTestScheduler()
	assert.Panics(t, func() {
		Retry(s, RetryPolicy{MaxAttempts: 0}, nil, func() *Deferred[int] {
			d, _ := NewDeferred[int](s)
			return d
		})
	})
}
