package coop

import (
	"os"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// defaultLogger builds the zero-configuration logger: stumpy JSON to stderr
// at warning level. Category rate limits back the Limit() calls on trace
// diagnostics, so lowering the level on a busy schedule cannot flood stderr.
func defaultLogger() *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		stumpy.L.WithLevel(logiface.LevelWarning),
		stumpy.L.WithCategoryRateLimits(map[time.Duration]int{
			time.Second: 5,
			time.Minute: 30,
		}),
	).Logger()
}

// reportPanic delivers a recovered callback panic, already wrapped in
// [PanicError], to the error sink. Must never itself panic.
func (s *Scheduler) reportPanic(err error) {
	if s.errorSink != nil {
		s.errorSink(err)
		return
	}
	s.log.Err().
		Err(err).
		Log("recovered panic in scheduled callback")
}

// reportRejection delivers an unhandled rejection once, at the end of the
// drain cycle in which it was detected.
func (s *Scheduler) reportRejection(err error) {
	if s.onRejection != nil {
		s.onRejection(err)
		return
	}
	if s.errorSink != nil {
		s.errorSink(err)
		return
	}
	s.log.Warning().
		Err(err).
		Log("unhandled rejection")
}

// traceAdvance records a virtual-time jump. Rate limited per call site; only
// visible when the configured logger enables trace.
func (s *Scheduler) traceAdvance(from, to time.Time) {
	s.log.Trace().
		Limit().
		Time("from", from).
		Time("to", to).
		Log("advancing virtual time")
}

// traceTimer records a normal-queue entry becoming eligible.
func (s *Scheduler) traceTimer(when time.Time) {
	s.log.Trace().
		Limit().
		Time("when", when).
		Log("running normal queue entry")
}
