package coop

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSchedulerRunning indicates RunUntilQuiescent was called while the
	// scheduler is already draining, including from within a callback.
	ErrSchedulerRunning = errors.New("coop: scheduler is already running")

	// ErrDriverRunning indicates Run was called on a driver that is already
	// running.
	ErrDriverRunning = errors.New("coop: driver is already running")

	// ErrDriverStopped indicates the driver's Run has returned; a stopped
	// driver never accepts further work.
	ErrDriverStopped = errors.New("coop: driver has stopped")
)

// CanceledError is the terminal error carried by a Deferred that was
// cancelled rather than rejected. It is deliberately a distinct type so that
// consumers can always tell "failed" apart from "cancelled".
type CanceledError struct {
	// Cause is the value passed to TokenSource.Cancel, if any.
	Cause error
}

// Error implements the error interface.
func (e *CanceledError) Error() string {
	if e.Cause == nil {
		return "operation canceled"
	}
	return fmt.Sprintf("operation canceled: %v", e.Cause)
}

// Unwrap returns the cancellation cause for use with [errors.Is] and
// [errors.As].
func (e *CanceledError) Unwrap() error {
	return e.Cause
}

// Is implements custom error matching: any *CanceledError matches any other,
// regardless of cause, so errors.Is(err, &CanceledError{}) answers "was this
// cancelled" without inspecting the cause chain.
func (e *CanceledError) Is(target error) bool {
	var t *CanceledError
	return errors.As(target, &t)
}

// TimeoutError is produced by [Timeout] and [TokenSource.CancelAfter] when a
// deadline elapses before the target operation settles.
type TimeoutError struct {
	// After is the configured timeout duration.
	After time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.After <= 0 {
		return "operation timed out"
	}
	return fmt.Sprintf("operation timed out after %s", e.After)
}

// BreakerOpenError is the immediate rejection returned by [Breaker.Do] while
// the breaker is open. The wrapped operation was not invoked.
type BreakerOpenError struct {
	// RetryAfter is the remaining cooldown at the time of the call. It may
	// be zero when the breaker reopened in the same cycle.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *BreakerOpenError) Error() string {
	if e.RetryAfter <= 0 {
		return "circuit breaker is open"
	}
	return fmt.Sprintf("circuit breaker is open, retry after %s", e.RetryAfter)
}

// RetryExhaustedError is the rejection produced by [Retry] once every attempt
// permitted by the policy has failed. Err holds the final attempt's
// rejection.
type RetryExhaustedError struct {
	// Attempts is the number of invocations that were made.
	Attempts int
	// Err is the last rejection observed.
	Err error
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the final rejection for use with [errors.Is] and
// [errors.As].
func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// PanicError wraps a recovered panic from a scheduled callback or a
// continuation handler. The scheduler reports it to the error sink;
// continuation panics reject the downstream Deferred with it.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("coop: callback panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
// This enables use with [errors.Is] and [errors.As] for error matching
// through the cause chain. If the panic Value is not an error, returns nil.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// AggregateError is the rejection produced by [Any] when every input settled
// without a fulfilment.
type AggregateError struct {
	Message string
	// Errors contains one entry per input, in input order. Cancelled inputs
	// contribute their *CanceledError.
	Errors []error
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "all deferreds were rejected"
}

// Unwrap returns the errors slice for multi-error unwrapping, enabling
// [errors.Is] and [errors.As] to check against all contained errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Is implements custom error matching for AggregateError. Returns true if
// target is an AggregateError (regardless of contents).
func (e *AggregateError) Is(target error) bool {
	var t *AggregateError
	return errors.As(target, &t)
}
