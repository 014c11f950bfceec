// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logfile names and opens the per-day component log files
// that every Chronicle role writes. Keeping logs partitioned by day
// lets the archiver sweep a finished day's logs into its bundle along
// with the streams it describes.
//
// Naming: <dir>/chronicle-<component>-<datekey>.log. Inside an
// archive bundle the date suffix is dropped (the bundle name already
// carries the day): chronicle-<component>.log.
package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/chronicle/lib/datekey"
)

const prefix = "chronicle-"

// Path returns the log file path for a component on a day.
func Path(dir, component string, date datekey.DateKey) string {
	return filepath.Join(dir, prefix+component+"-"+date.String()+".log")
}

// Open opens (creating if needed) a component's log file for
// appending. The directory is created if absent.
func Open(dir, component string, date datekey.DateKey) (*os.File, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("logfile: creating log directory: %w", err)
	}
	file, err := os.OpenFile(Path(dir, component, date), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("logfile: opening %s log: %w", component, err)
	}
	return file, nil
}

// ForDay lists the log files of every component for one day. Missing
// directory means no files.
func ForDay(dir string, date datekey.DateKey) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logfile: listing log directory: %w", err)
	}
	suffix := "-" + date.String() + ".log"
	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths, nil
}

// ArchiveName returns the bundle-internal name for a day's log file:
// the date suffix is dropped because the bundle name implies it.
// Returns ok=false for paths that do not follow the day-file naming.
func ArchiveName(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, prefix) || !strings.HasSuffix(base, ".log") {
		return "", false
	}
	trimmed := strings.TrimSuffix(base, ".log")
	dash := strings.LastIndex(trimmed, "-")
	if dash < 0 {
		return "", false
	}
	if _, err := datekey.Parse(trimmed[dash+1:]); err != nil {
		return "", false
	}
	return trimmed[:dash] + ".log", true
}
