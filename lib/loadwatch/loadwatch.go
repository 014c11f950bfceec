// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package loadwatch decides when Chronicle may spend CPU on embedding
// work. The capture process feeds a small sliding window of
// utilization samples; launch decisions require the whole window to be
// quiet (debounced), while the in-run admission check reacts to a
// single busy reading (fail fast once contention appears).
//
// Every failure mode is fail-closed: an unreadable /proc/stat, a parse
// error, or a missing baseline all read as "system busy."
package loadwatch

import "sync"

// Defaults for the monitor. Chosen so that roughly ten quiet minutes
// precede any opportunistic launch, while a single busy sample inside
// a run stops it.
const (
	// DefaultWindowSize is the number of samples a launch decision
	// considers.
	DefaultWindowSize = 3

	// DefaultLowWater is the utilization percentage every window
	// sample must stay under for SustainedLow.
	DefaultLowWater = 30.0

	// DefaultHighWater is the utilization percentage a single fresh
	// sample must stay under for Admit.
	DefaultHighWater = 80.0
)

// Sampler produces one CPU utilization percentage per call.
// Production uses ProcStatSampler; tests inject a fake.
type Sampler interface {
	Sample() (percent float64, err error)
}

// Monitor holds the sliding sample window and the two admission
// predicates. Observe is driven by the capture process's sampling
// ticker; Admit is called from inside a running batch processor.
//
// Safe for concurrent use.
type Monitor struct {
	sampler    Sampler
	windowSize int
	lowWater   float64
	highWater  float64

	mu     sync.Mutex
	window []float64
}

// Option adjusts a Monitor's thresholds.
type Option func(*Monitor)

// WithWindowSize overrides the sliding window length.
func WithWindowSize(n int) Option {
	return func(m *Monitor) { m.windowSize = n }
}

// WithLowWater overrides the sustained-low threshold.
func WithLowWater(percent float64) Option {
	return func(m *Monitor) { m.lowWater = percent }
}

// WithHighWater overrides the admission threshold.
func WithHighWater(percent float64) Option {
	return func(m *Monitor) { m.highWater = percent }
}

// NewMonitor returns a Monitor over the given sampler with defaults,
// adjusted by options.
func NewMonitor(sampler Sampler, options ...Option) *Monitor {
	monitor := &Monitor{
		sampler:    sampler,
		windowSize: DefaultWindowSize,
		lowWater:   DefaultLowWater,
		highWater:  DefaultHighWater,
	}
	for _, option := range options {
		option(monitor)
	}
	return monitor
}

// Observe takes one sample and pushes it into the window, evicting
// the oldest entry when full. A sampling failure empties the window
// instead: SustainedLow must then see a full span of fresh quiet
// samples before reporting true again.
func (m *Monitor) Observe() {
	percent, err := m.sampler.Sample()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.window = m.window[:0]
		return
	}
	m.window = append(m.window, percent)
	if len(m.window) > m.windowSize {
		m.window = m.window[1:]
	}
}

// SustainedLow reports whether the window is full and every sample is
// under the low-water mark. Gates launching an opportunistic
// processor.
func (m *Monitor) SustainedLow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.window) < m.windowSize {
		return false
	}
	for _, percent := range m.window {
		if percent >= m.lowWater {
			return false
		}
	}
	return true
}

// Admit takes one fresh sample and reports whether it is under the
// high-water mark. Gates each batch iteration inside an opportunistic
// processor run. A sampling failure denies admission.
func (m *Monitor) Admit() bool {
	percent, err := m.sampler.Sample()
	if err != nil {
		return false
	}
	return percent < m.highWater
}
