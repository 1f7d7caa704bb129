// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package coop is a cooperative asynchronous execution core: a
// single-threaded two-queue scheduler, settle-once deferred results with
// scheduled continuations, hierarchical cancellation tokens, and a
// concurrency toolkit (retry, circuit breaker, rate limiting, bounded
// concurrency, debounce, throttle) built on top of them.
//
// # Scheduling model
//
// A [Scheduler] owns two queues. The priority queue carries continuation
// work and is always drained to exhaustion, including items enqueued while
// draining, before a single normal-queue entry runs. The normal queue
// carries timed work, ordered by eligibility time and stable FIFO among
// entries with equal times. Work never runs inside the call that scheduled
// it: settling a Deferred schedules its continuations rather than invoking
// them, so observable ordering is independent of settlement timing.
//
// The scheduler keeps a virtual clock. [Scheduler.RunUntilQuiescent] jumps
// it straight to the next eligible entry whenever nothing is due, which
// makes timed behavior deterministic and instant under test. Panics in
// callbacks are recovered, wrapped in [PanicError], and reported to the
// configured error sink; the drain continues. Rejections that settle with
// no continuation attached are reported once each, at the end of the drain
// cycle, to the unhandled-rejection sink.
//
// # Threading
//
// The core is deliberately single-threaded: the scheduler, deferreds,
// tokens, and toolkit all assume one logical thread and take no locks.
// Three Deferred methods are safe from any goroutine (State, Outcome,
// Chan), and a [Driver] provides the thread-safe boundary: it pumps the
// scheduler against real time and accepts cross-thread work through
// [Driver.Submit], with [Async] and [Await] bridging goroutines to
// deferreds.
package coop
