// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package statestore persists the per-day processing cursor: how many
// leading records of each day's keyboard stream have been turned into
// embedding artifacts.
//
// The whole map lives in one JSON document, a flat object from DateKey
// to a non-negative count. Every mutation rewrites the document
// atomically (write to a temporary file in the same directory, fsync,
// rename, fsync the parent directory) so a process killed mid-write
// never leaves a torn file behind.
//
// Reads fail open: an absent or corrupt document is an empty map, and
// the processor simply rebuilds its cursors from zero. Writes fail
// closed: a failed replace is surfaced to the caller, because a
// dropped write silently regresses progress.
//
// The store does no locking of its own. Every mutator requires that
// the caller holds the cross-process lock (lib/proclock); concurrent
// mutation from two processes is a correctness bug in the caller.
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bureau-foundation/chronicle/lib/datekey"
)

// ErrCorrupt is wrapped by the error Load returns alongside a usable
// empty store when the document exists but does not parse. Callers
// log it and continue.
var ErrCorrupt = errors.New("statestore: document corrupt")

// Store is the in-memory image of the cursor document plus the path
// it persists to. Not safe for concurrent use within a process; the
// short-lived processor and archiver roles are single-goroutine.
type Store struct {
	path    string
	cursors map[datekey.DateKey]int
}

// Load reads the cursor document at path. An absent document yields
// an empty store and a nil error. A corrupt document yields an empty
// store and an error wrapping ErrCorrupt — the store is still fully
// usable, the error exists so the caller can log the data loss.
func Load(path string) (*Store, error) {
	store := &Store{path: path, cursors: make(map[datekey.DateKey]int)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return store, fmt.Errorf("%w: reading %s: %v", ErrCorrupt, path, err)
	}

	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return store, fmt.Errorf("%w: parsing %s: %v", ErrCorrupt, path, err)
	}
	for key, count := range raw {
		parsed, err := datekey.Parse(key)
		if err != nil || count < 0 {
			// One bad entry does not poison the rest.
			continue
		}
		store.cursors[parsed] = count
	}
	return store, nil
}

// Get returns the processed-record cursor for a day, 0 when the day
// has never had work attempted.
func (s *Store) Get(date datekey.DateKey) int {
	return s.cursors[date]
}

// Set records the cursor for a day and rewrites the document. The
// in-memory map is only updated when the write succeeds.
func (s *Store) Set(date datekey.DateKey, count int) error {
	if count < 0 {
		return fmt.Errorf("statestore: negative cursor %d for %s", count, date)
	}
	previous, existed := s.cursors[date]
	s.cursors[date] = count
	if err := s.save(); err != nil {
		if existed {
			s.cursors[date] = previous
		} else {
			delete(s.cursors, date)
		}
		return err
	}
	return nil
}

// Remove retires a day's entry and rewrites the document. Removing an
// absent day is a no-op with no write.
func (s *Store) Remove(date datekey.DateKey) error {
	return s.RemoveAll([]datekey.DateKey{date})
}

// RemoveAll retires several days in one document rewrite.
func (s *Store) RemoveAll(dates []datekey.DateKey) error {
	removed := make(map[datekey.DateKey]int)
	for _, date := range dates {
		if count, ok := s.cursors[date]; ok {
			removed[date] = count
			delete(s.cursors, date)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	if err := s.save(); err != nil {
		for date, count := range removed {
			s.cursors[date] = count
		}
		return err
	}
	return nil
}

// Dates returns every tracked day, oldest first.
func (s *Store) Dates() []datekey.DateKey {
	dates := make([]datekey.DateKey, 0, len(s.cursors))
	for date := range s.cursors {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// save atomically replaces the document: write a temporary file in
// the same directory, fsync, close, rename into place, then fsync the
// parent directory so the rename survives power loss.
func (s *Store) save() error {
	raw := make(map[string]int, len(s.cursors))
	for date, count := range s.cursors {
		raw[date.String()] = count
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshaling document: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("statestore: creating state directory: %w", err)
	}

	temporaryPath := s.path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("statestore: creating temporary document: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("statestore: writing temporary document: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("statestore: syncing temporary document: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("statestore: closing temporary document: %w", err)
	}
	if err := os.Rename(temporaryPath, s.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("statestore: renaming document into place: %w", err)
	}

	if parent, err := os.Open(filepath.Dir(s.path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
