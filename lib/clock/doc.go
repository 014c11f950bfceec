// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface parameter instead of calling
// time.Now, time.After, time.NewTicker, or time.Sleep directly. In
// production, Real() provides the standard library behavior. In tests,
// Fake() provides a deterministic clock that advances only when Advance
// is called.
//
// Chronicle's "today" boundary, the capture process's sampling ticker,
// and every timer-driven decision go through a Clock so that tests can
// fire a 3-minute sampling period or roll a calendar day without
// waiting on wall time.
//
// When a goroutine calls Sleep, After, or NewTicker on a FakeClock, it
// registers a pending waiter. Use WaitForTimers to block until a given
// number of waiters are registered before calling Advance; this removes
// the race between waiter registration and time advancement.
package clock
