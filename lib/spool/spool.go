// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package spool manages the per-day append-only stream files that the
// capture process writes and the batch processor and archiver read.
//
// Layout: one file per (stream, day) under a single spool directory,
// named <stream>-<datekey>.log (e.g. keyboard-20250703.log). Files are
// line-oriented in the record wire form; malformed lines are skipped
// on read and never count toward a day's total.
package spool

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bureau-foundation/chronicle/lib/datekey"
	"github.com/bureau-foundation/chronicle/lib/record"
)

// Dir is a spool directory. The zero value is unusable; construct
// with New.
type Dir struct {
	root string
}

// New returns a Dir rooted at path. The directory is created if
// absent.
func New(path string) (Dir, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return Dir{}, fmt.Errorf("creating spool directory: %w", err)
	}
	return Dir{root: path}, nil
}

// Root returns the spool directory path.
func (d Dir) Root() string { return d.root }

// PathFor returns the canonical path of a (stream, day) file. The
// file need not exist.
func (d Dir) PathFor(stream string, date datekey.DateKey) string {
	return filepath.Join(d.root, stream+"-"+date.String()+".log")
}

// ReadRecords parses the well-formed records of a (stream, day) file
// in file order. A missing file yields no records and no error;
// malformed lines are silently skipped.
func (d Dir) ReadRecords(stream string, date datekey.DateKey) ([]record.Record, error) {
	file, err := os.Open(d.PathFor(stream, date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s stream for %s: %w", stream, date, err)
	}
	defer file.Close()

	var records []record.Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if r, ok := record.ParseLine(scanner.Text()); ok {
			records = append(records, r)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s stream for %s: %w", stream, date, err)
	}
	return records, nil
}

// CountRecords returns the number of well-formed records in a
// (stream, day) file. 0 when the file is absent.
func (d Dir) CountRecords(stream string, date datekey.DateKey) (int, error) {
	records, err := d.ReadRecords(stream, date)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Dates returns every day that has an on-disk file for the stream,
// oldest first. Files whose names do not parse as a DateKey are
// ignored.
func (d Dir) Dates(stream string) ([]datekey.DateKey, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("listing spool directory: %w", err)
	}

	prefix := stream + "-"
	var dates []datekey.DateKey
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		key, err := datekey.Parse(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".log"))
		if err != nil {
			continue
		}
		dates = append(dates, key)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}
