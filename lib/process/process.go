// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers plus the two
// process-level operations the capture loop needs: a best-effort scan
// for an already-running processor sibling, and detached re-execution
// of the chronicle binary in a processing mode.
//
// The sibling scan is a heuristic optimization only — it saves
// spawning a process that would immediately lose the cross-process
// lock and exit. The lock (lib/proclock) remains the sole authority
// over shared state; a scan that misses a sibling costs one wasted
// fork, never corruption.
package process

import (
	"bytes"
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. The
// standard chronicle binary entrypoint error handler, for errors from
// run() where the structured logger may not be initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// ProcessorRunning scans sibling processes for a chronicle binary
// already running in a processing mode (--mode=process or
// --mode=process-all). Any scan failure reads as "not running"; the
// only cost of a wrong answer is one redundant spawn that loses the
// lock.
func ProcessorRunning() bool {
	return processorRunningIn("/proc")
}

// processorRunningIn is the testable form over a synthetic proc root.
func processorRunningIn(procRoot string) bool {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return false
	}
	selfPID := fmt.Sprintf("%d", os.Getpid())

	for _, entry := range entries {
		pid := entry.Name()
		if !entry.IsDir() || !isNumeric(pid) || pid == selfPID {
			continue
		}
		// /proc/<pid>/cmdline is NUL-separated argv. Processes can
		// vanish between ReadDir and ReadFile; ignore read errors.
		cmdline, err := os.ReadFile(procRoot + "/" + pid + "/cmdline")
		if err != nil {
			continue
		}
		if cmdlineIsProcessor(cmdline) {
			return true
		}
	}
	return false
}

// cmdlineIsProcessor matches a NUL-separated argv that names a
// chronicle binary with a processing mode flag.
func cmdlineIsProcessor(cmdline []byte) bool {
	arguments := bytes.Split(cmdline, []byte{0})
	if len(arguments) == 0 {
		return false
	}
	if !bytes.Contains(arguments[0], []byte("chronicle")) {
		return false
	}
	for i, argument := range arguments {
		switch string(argument) {
		case "--mode=process", "--mode=process-all":
			return true
		case "--mode":
			if i+1 < len(arguments) {
				mode := string(arguments[i+1])
				if mode == "process" || mode == "process-all" {
					return true
				}
			}
		}
	}
	return false
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
