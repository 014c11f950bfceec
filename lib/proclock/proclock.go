// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package proclock is the host-wide mutual exclusion that serializes
// every mutator of the processing cursor document and the archive
// tree: the opportunistic processor, the catch-all processor, and the
// archiver. The long-lived capture process never takes this lock.
//
// Acquisition is non-blocking by design. Host scheduling triggers can
// fire while a previous run is still active (an hourly archive timer
// overlapping a slow catch-all run); the late arrival observes ErrHeld
// and exits quietly instead of queuing.
//
// The lock is an advisory file lock via gofslock, which provides
// exclusion both across processes and between goroutines of one
// process. Ownership exists only for the life of the holding process;
// nothing about the lock is persisted, and the OS releases it if the
// holder dies.
package proclock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/danjacques/gofslock/fslock"
)

// ErrHeld is returned by TryAcquire when another process (or another
// goroutine of this one) holds the lock. Callers treat it as "someone
// else is already doing the work" and no-op.
var ErrHeld = errors.New("proclock: lock held elsewhere")

// Handle is a process-lifetime token for a held lock. Release it on
// every exit path; prefer With, which guarantees that.
type Handle struct {
	inner       fslock.Handle
	releaseOnce sync.Once
	releaseErr  error
}

// TryAcquire attempts to take the named lock without blocking. On
// contention it returns ErrHeld immediately. The lock file's parent
// directory is created if absent; the file itself persists between
// runs (only the flock on it matters).
func TryAcquire(path string) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("proclock: creating lock directory: %w", err)
	}
	inner, err := fslock.Lock(path)
	if err != nil {
		if errors.Is(err, fslock.ErrLockHeld) {
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("proclock: acquiring %s: %w", path, err)
	}
	return &Handle{inner: inner}, nil
}

// Release drops the lock. Idempotent: the first call unlocks,
// repeated calls return the first call's result.
func (h *Handle) Release() error {
	h.releaseOnce.Do(func() {
		if err := h.inner.Unlock(); err != nil {
			h.releaseErr = fmt.Errorf("proclock: releasing: %w", err)
		}
	})
	return h.releaseErr
}

// With runs fn while holding the named lock, releasing on every exit
// path including panics. Contention returns ErrHeld without calling
// fn.
func With(path string, fn func() error) error {
	handle, err := TryAcquire(path)
	if err != nil {
		return err
	}
	defer handle.Release()
	return fn()
}
