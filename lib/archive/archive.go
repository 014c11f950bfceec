// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive retires fully-processed days into stable per-day
// bundles:
//
//	<archive-root>/<host>-<user>-<datekey>/logs/<stream>.log
//	<archive-root>/<host>-<user>-<datekey>/logs/chronicle-<component>.log
//	<archive-root>/<host>-<user>-<datekey>/embeddings/<datekey>/*.emb
//
// A day is complete when its on-disk keyboard record total equals the
// processing cursor; mouse and window streams have no completion
// signal of their own and ride along. Per-file moves are independent
// best-effort — one failed move is logged and does not stop the rest,
// and a partially archived day stays in the cursor store so the next
// run re-evaluates it.
//
// The caller holds the cross-process lock for the whole run.
package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/chronicle/lib/clock"
	"github.com/bureau-foundation/chronicle/lib/datekey"
	"github.com/bureau-foundation/chronicle/lib/embedstore"
	"github.com/bureau-foundation/chronicle/lib/logfile"
	"github.com/bureau-foundation/chronicle/lib/record"
	"github.com/bureau-foundation/chronicle/lib/spool"
	"github.com/bureau-foundation/chronicle/lib/statestore"
)

// Retention selects what happens to a day's raw keyboard stream when
// the day is archived. The keyboard stream is the sensitive one; the
// other streams are always preserved.
type Retention string

const (
	// RetentionPreserve moves the (still-encoded) keyboard stream
	// into the bundle for later inspection.
	RetentionPreserve Retention = "preserve"

	// RetentionPurge deletes the raw keyboard stream outright; only
	// the derived embeddings survive.
	RetentionPurge Retention = "purge"
)

// ParseRetention parses a retention policy from its config form.
func ParseRetention(name string) (Retention, error) {
	switch Retention(name) {
	case RetentionPreserve, RetentionPurge:
		return Retention(name), nil
	default:
		return "", fmt.Errorf("archive: unknown retention policy %q", name)
	}
}

// Archiver sweeps completed days into bundles and retires their
// cursor entries.
type Archiver struct {
	// Spool holds the stream files to move.
	Spool spool.Dir

	// State is the cursor store; completed days are removed from it
	// as the final step.
	State *statestore.Store

	// Artifacts locates each day's embeddings directory.
	Artifacts *embedstore.Store

	// LogDir holds the per-day component log files.
	LogDir string

	// Root is the archive output directory.
	Root string

	// Host and User key the bundle directory names.
	Host string
	User string

	// Retention controls the keyboard stream's fate.
	Retention Retention

	// Clock supplies "today"; the current day is never archived.
	Clock clock.Clock

	// Logger receives per-file move outcomes.
	Logger *slog.Logger
}

// Run performs one archive sweep. Only a failure to enumerate
// candidate days is an error; everything below that is per-day,
// per-file best effort.
func (a *Archiver) Run() error {
	a.applyDefaults()

	candidates, err := a.candidateDays()
	if err != nil {
		return err
	}
	today := datekey.Today(a.Clock)

	for _, date := range candidates {
		if !date.Before(today) {
			continue
		}
		total, err := a.Spool.CountRecords(record.StreamKeyboard, date)
		if err != nil {
			a.Logger.Error("counting keyboard records", "date", date.String(), "error", err)
			continue
		}
		if total != a.State.Get(date) {
			// Still has backlog (or an overshot cursor); not complete.
			continue
		}
		a.archiveDay(date)
	}
	return nil
}

// candidateDays is the union of days tracked in the cursor store and
// days with an on-disk keyboard stream, oldest first. The union
// matters: a day whose keyboard file holds zero well-formed records
// never gets a cursor entry but must still be archivable.
func (a *Archiver) candidateDays() ([]datekey.DateKey, error) {
	onDisk, err := a.Spool.Dates(record.StreamKeyboard)
	if err != nil {
		return nil, fmt.Errorf("archive: listing spool days: %w", err)
	}
	seen := make(map[datekey.DateKey]bool)
	var days []datekey.DateKey
	for _, date := range a.State.Dates() {
		seen[date] = true
		days = append(days, date)
	}
	for _, date := range onDisk {
		if !seen[date] {
			days = append(days, date)
		}
	}
	// State dates and spool dates are each sorted; the merged slice
	// needs one more pass.
	for i := 1; i < len(days); i++ {
		for j := i; j > 0 && days[j].Before(days[j-1]); j-- {
			days[j], days[j-1] = days[j-1], days[j]
		}
	}
	return days, nil
}

// archiveDay builds one day's bundle. Every step is logged; only the
// keyboard retention step gates retiring the cursor entry, because
// that entry is meaningless once the keyboard file is gone.
func (a *Archiver) archiveDay(date datekey.DateKey) {
	bundle := filepath.Join(a.Root, a.Host+"-"+a.User+"-"+date.String())
	logsDir := filepath.Join(bundle, "logs")
	embeddingsDir := filepath.Join(bundle, "embeddings")
	for _, dir := range []string{logsDir, embeddingsDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			a.Logger.Error("creating bundle", "date", date.String(), "error", err)
			return
		}
	}
	a.Logger.Info("archiving day", "date", date.String(), "bundle", bundle)

	// Keyboard stream first: its retention step must run exactly once
	// per bundle, and its success is what allows retiring the cursor.
	retired := a.retainKeyboard(date, logsDir)

	// Remaining streams ride along, best effort.
	for _, stream := range record.Streams() {
		if stream == record.StreamKeyboard {
			continue
		}
		source := a.Spool.PathFor(stream, date)
		a.moveFile(source, filepath.Join(logsDir, stream+".log"), date)
	}

	// The day's component logs.
	logPaths, err := logfile.ForDay(a.LogDir, date)
	if err != nil {
		a.Logger.Error("listing component logs", "date", date.String(), "error", err)
	}
	for _, source := range logPaths {
		name, ok := logfile.ArchiveName(source)
		if !ok {
			continue
		}
		a.moveFile(source, filepath.Join(logsDir, name), date)
	}

	// The day's embeddings directory, wholesale.
	dayDir := a.Artifacts.DayDir(date)
	if _, err := os.Stat(dayDir); err == nil {
		destination := filepath.Join(embeddingsDir, date.String())
		if err := os.Rename(dayDir, destination); err != nil {
			a.Logger.Error("moving embeddings", "date", date.String(), "error", err)
		}
	}

	if !retired {
		a.Logger.Warn("day stays eligible for retry", "date", date.String())
		return
	}
	if err := a.State.Remove(date); err != nil {
		a.Logger.Error("retiring cursor entry", "date", date.String(), "error", err)
	}
}

// retainKeyboard applies the retention policy to the raw keyboard
// stream. Returns true when the step succeeded (including the
// nothing-to-do case of an already-moved file).
func (a *Archiver) retainKeyboard(date datekey.DateKey, logsDir string) bool {
	source := a.Spool.PathFor(record.StreamKeyboard, date)
	if _, err := os.Stat(source); os.IsNotExist(err) {
		// Already handled by an earlier, partially failed run.
		return true
	}

	switch a.Retention {
	case RetentionPurge:
		if err := os.Remove(source); err != nil {
			a.Logger.Error("purging keyboard stream", "date", date.String(), "error", err)
			return false
		}
		a.Logger.Info("keyboard stream purged", "date", date.String())
		return true
	default:
		if err := os.Rename(source, filepath.Join(logsDir, record.StreamKeyboard+".log")); err != nil {
			a.Logger.Error("preserving keyboard stream", "date", date.String(), "error", err)
			return false
		}
		return true
	}
}

// moveFile renames one file into the bundle, logging instead of
// failing. A missing source is normal (stream never had events that
// day, or an earlier run already moved it).
func (a *Archiver) moveFile(source, destination string, date datekey.DateKey) {
	if _, err := os.Stat(source); os.IsNotExist(err) {
		return
	}
	if err := os.Rename(source, destination); err != nil {
		a.Logger.Error("moving file", "date", date.String(),
			"source", source, "error", err)
	}
}

func (a *Archiver) applyDefaults() {
	if a.Clock == nil {
		a.Clock = clock.Real()
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.Retention == "" {
		a.Retention = RetentionPreserve
	}
}
