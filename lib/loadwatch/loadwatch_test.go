// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loadwatch

import (
	"errors"
	"testing"
)

// scriptSampler replays a fixed sequence of samples. A negative value
// means "fail this sample."
type scriptSampler struct {
	script []float64
	next   int
}

func (s *scriptSampler) Sample() (float64, error) {
	if s.next >= len(s.script) {
		return 0, errors.New("script exhausted")
	}
	value := s.script[s.next]
	s.next++
	if value < 0 {
		return 0, errors.New("sampling failed")
	}
	return value, nil
}

func TestSustainedLowRequiresFullWindow(t *testing.T) {
	monitor := NewMonitor(&scriptSampler{script: []float64{10, 10, 10}})

	monitor.Observe()
	if monitor.SustainedLow() {
		t.Error("SustainedLow with 1 of 3 samples")
	}
	monitor.Observe()
	if monitor.SustainedLow() {
		t.Error("SustainedLow with 2 of 3 samples")
	}
	monitor.Observe()
	if !monitor.SustainedLow() {
		t.Error("SustainedLow false with a full quiet window")
	}
}

func TestSustainedLowRejectsSingleHighSample(t *testing.T) {
	monitor := NewMonitor(&scriptSampler{script: []float64{10, 55, 10}})
	for i := 0; i < 3; i++ {
		monitor.Observe()
	}
	if monitor.SustainedLow() {
		t.Error("SustainedLow true despite a 55% sample in the window")
	}
}

func TestSustainedLowSlidesWindow(t *testing.T) {
	// A busy sample ages out after three further quiet ones.
	monitor := NewMonitor(&scriptSampler{script: []float64{90, 10, 10, 10}})
	for i := 0; i < 4; i++ {
		monitor.Observe()
	}
	if !monitor.SustainedLow() {
		t.Error("busy sample did not age out of the window")
	}
}

func TestObserveFailureEmptiesWindow(t *testing.T) {
	monitor := NewMonitor(&scriptSampler{script: []float64{10, 10, 10, -1, 10}})
	for i := 0; i < 3; i++ {
		monitor.Observe()
	}
	if !monitor.SustainedLow() {
		t.Fatal("setup: window should be quiet")
	}

	monitor.Observe() // fails
	if monitor.SustainedLow() {
		t.Error("SustainedLow true right after a sampling failure")
	}
	monitor.Observe() // one fresh quiet sample is not a full window
	if monitor.SustainedLow() {
		t.Error("SustainedLow true before the window refilled")
	}
}

func TestAdmit(t *testing.T) {
	tests := []struct {
		name   string
		sample float64
		want   bool
	}{
		{"quiet", 5, true},
		{"just_under", 79.9, true},
		{"at_mark", 80, false},
		{"busy", 95, false},
		{"failure", -1, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			monitor := NewMonitor(&scriptSampler{script: []float64{test.sample}})
			if got := monitor.Admit(); got != test.want {
				t.Errorf("Admit = %v, want %v", got, test.want)
			}
		})
	}
}

func TestAdmitIgnoresWindow(t *testing.T) {
	// Window full of busy samples; Admit only looks at the fresh one.
	monitor := NewMonitor(&scriptSampler{script: []float64{90, 90, 90, 40}})
	for i := 0; i < 3; i++ {
		monitor.Observe()
	}
	if !monitor.Admit() {
		t.Error("Admit denied despite fresh sample under high water")
	}
}

func TestOptions(t *testing.T) {
	monitor := NewMonitor(
		&scriptSampler{script: []float64{35, 35, 50}},
		WithWindowSize(2),
		WithLowWater(40),
		WithHighWater(45),
	)
	monitor.Observe()
	monitor.Observe()
	if !monitor.SustainedLow() {
		t.Error("SustainedLow false with raised low water and shrunk window")
	}
	if monitor.Admit() {
		t.Error("Admit true with lowered high water")
	}
}
