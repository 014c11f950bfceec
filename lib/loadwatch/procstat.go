// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loadwatch

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// cpuReading captures cumulative CPU time from /proc/stat for delta
// computation. The first line of /proc/stat aggregates all CPUs:
//
//	cpu  user nice system idle iowait irq softirq steal guest guest_nice
//
// busy = user + nice + system + irq + softirq + steal
// idle = idle + iowait
//
// guest and guest_nice are already included in user/nice (kernel
// accounting) so they are not added separately.
type cpuReading struct {
	busy uint64
	idle uint64
}

// ProcStatSampler reads host CPU utilization from /proc/stat.
// Utilization is the busy share of the jiffy delta between
// consecutive Sample calls, so the reported percentage covers the
// interval since the previous call, not an instant.
//
// Safe for concurrent use.
type ProcStatSampler struct {
	path string

	mu       sync.Mutex
	previous *cpuReading
}

// NewProcStatSampler returns a sampler over /proc/stat and primes the
// delta baseline. A failed baseline read is not an error here; the
// first Sample call will retry and fail if /proc/stat stays
// unreadable.
func NewProcStatSampler() *ProcStatSampler {
	sampler := &ProcStatSampler{path: "/proc/stat"}
	sampler.previous, _ = readCPUStats(sampler.path)
	return sampler
}

// Sample returns the CPU utilization percentage (0-100) since the
// previous call. The first successful call after a failed baseline
// returns an error because there is nothing to delta against.
func (s *ProcStatSampler) Sample() (float64, error) {
	current, err := readCPUStats(s.path)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.previous
	s.previous = current
	if previous == nil {
		return 0, fmt.Errorf("loadwatch: no baseline reading yet")
	}

	busyDelta := current.busy - previous.busy
	idleDelta := current.idle - previous.idle
	totalDelta := busyDelta + idleDelta
	if totalDelta == 0 {
		// Same jiffy as the previous call; no load observable.
		return 0, nil
	}
	return float64(busyDelta) / float64(totalDelta) * 100, nil
}

// readCPUStats parses the aggregate "cpu" line of a /proc/stat format
// file.
func readCPUStats(path string) (*cpuReading, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loadwatch: opening %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return nil, fmt.Errorf("loadwatch: %s is empty", path)
	}

	// Expected: "cpu  user nice system idle iowait irq softirq steal [guest guest_nice]"
	fields := strings.Fields(scanner.Text())
	if len(fields) < 9 || fields[0] != "cpu" {
		return nil, fmt.Errorf("loadwatch: unexpected first line of %s", path)
	}

	values := make([]uint64, len(fields)-1)
	for i := 1; i < len(fields); i++ {
		parsed, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("loadwatch: parsing %s field %d: %w", path, i, err)
		}
		values[i-1] = parsed
	}

	// 0=user, 1=nice, 2=system, 3=idle, 4=iowait, 5=irq, 6=softirq, 7=steal
	return &cpuReading{
		busy: values[0] + values[1] + values[2] + values[5] + values[6] + values[7],
		idle: values[3] + values[4],
	}, nil
}
