// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spool

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/chronicle/lib/clock"
	"github.com/bureau-foundation/chronicle/lib/datekey"
	"github.com/bureau-foundation/chronicle/lib/record"
)

// Appender writes records to a stream's current-day file, one line
// per record. The file handle follows the calendar: when the day rolls
// over between appends, the old handle is closed and the next day's
// file is opened. Not safe for concurrent use; the capture loop owns
// one Appender per stream.
type Appender struct {
	dir    Dir
	stream string
	clock  clock.Clock

	file *os.File
	day  datekey.DateKey
}

// NewAppender returns an Appender for a stream. The day file is not
// opened until the first Append.
func (d Dir) NewAppender(stream string, c clock.Clock) *Appender {
	return &Appender{dir: d, stream: stream, clock: c}
}

// Append writes one record to the current day's file.
func (a *Appender) Append(r record.Record) error {
	today := datekey.Today(a.clock)
	if a.file == nil || today != a.day {
		if err := a.reopen(today); err != nil {
			return err
		}
	}
	if _, err := a.file.WriteString(record.FormatLine(r) + "\n"); err != nil {
		return fmt.Errorf("appending to %s stream: %w", a.stream, err)
	}
	return nil
}

// Sync flushes the current day file to stable storage. No-op before
// the first Append.
func (a *Appender) Sync() error {
	if a.file == nil {
		return nil
	}
	if err := a.file.Sync(); err != nil {
		return fmt.Errorf("syncing %s stream: %w", a.stream, err)
	}
	return nil
}

// Close releases the current day file. The Appender may be reused;
// the next Append reopens.
func (a *Appender) Close() error {
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	if err != nil {
		return fmt.Errorf("closing %s stream: %w", a.stream, err)
	}
	return nil
}

func (a *Appender) reopen(day datekey.DateKey) error {
	if a.file != nil {
		a.file.Close()
		a.file = nil
	}
	file, err := os.OpenFile(a.dir.PathFor(a.stream, day), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("opening %s stream for %s: %w", a.stream, day, err)
	}
	a.file = file
	a.day = day
	return nil
}
