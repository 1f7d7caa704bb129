// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package coop

import (
	"github.com/joeycumines/logiface"
)

// schedulerOptions holds configuration options for Scheduler creation.
type schedulerOptions struct {
	clock       Clock
	logger      *logiface.Logger[logiface.Event]
	loggerSet   bool
	errorSink   func(error)
	onRejection func(error)
}

// --- Scheduler Options ---

// SchedulerOption configures a Scheduler instance.
type SchedulerOption interface {
	applyScheduler(*schedulerOptions)
}

// schedulerOptionImpl implements SchedulerOption.
type schedulerOptionImpl struct {
	applySchedulerFunc func(*schedulerOptions)
}

func (x *schedulerOptionImpl) applyScheduler(opts *schedulerOptions) {
	x.applySchedulerFunc(opts)
}

// WithClock sets the time source used to seed the scheduler's virtual clock
// and to pace any driver attached to it. A nil clock leaves the default
// (system clock) in place.
func WithClock(c Clock) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) {
		if c != nil {
			opts.clock = c
		}
	}}
}

// WithLogger sets the structured logger used for panic reports, unhandled
// rejections, and trace diagnostics. Explicitly passing nil disables logging.
// When this option is absent entirely, a default logger is installed that
// writes stumpy JSON to stderr at warning level.
func WithLogger(logger *logiface.Logger[logiface.Event]) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) {
		opts.logger = logger
		opts.loggerSet = true
	}}
}

// WithErrorSink sets the sink that receives recovered callback panics
// (wrapped in [PanicError]) and, unless [WithUnhandledRejection] overrides
// it, unhandled rejections. The default sink logs through the configured
// logger.
func WithErrorSink(sink func(error)) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) {
		opts.errorSink = sink
	}}
}

// WithUnhandledRejection routes rejections that settled with no attached
// continuation to fn instead of the error sink. Each such rejection is
// reported exactly once, at the end of the drain cycle in which it became
// unhandled.
func WithUnhandledRejection(fn func(error)) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) {
		opts.onRejection = fn
	}}
}

// resolveSchedulerOptions applies SchedulerOption instances to
// schedulerOptions.
func resolveSchedulerOptions(opts []SchedulerOption) *schedulerOptions {
	cfg := &schedulerOptions{
		clock: systemClock{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyScheduler(cfg)
	}
	return cfg
}

// driverOptions holds configuration options for Driver creation.
type driverOptions struct {
	clock Clock
}

// --- Driver Options ---

// DriverOption configures a Driver instance.
type DriverOption interface {
	applyDriver(*driverOptions)
}

// driverOptionImpl implements DriverOption.
type driverOptionImpl struct {
	applyDriverFunc func(*driverOptions)
}

func (x *driverOptionImpl) applyDriver(opts *driverOptions) {
	x.applyDriverFunc(opts)
}

// WithDriverClock sets the real-time source the driver paces against. The
// default is the scheduler's clock.
func WithDriverClock(c Clock) DriverOption {
	return &driverOptionImpl{func(opts *driverOptions) {
		if c != nil {
			opts.clock = c
		}
	}}
}

// resolveDriverOptions applies DriverOption instances to driverOptions.
func resolveDriverOptions(opts []DriverOption) *driverOptions {
	cfg := &driverOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyDriver(cfg)
	}
	return cfg
}
