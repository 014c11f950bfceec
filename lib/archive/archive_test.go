// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/chronicle/lib/clock"
	"github.com/bureau-foundation/chronicle/lib/datekey"
	"github.com/bureau-foundation/chronicle/lib/embed"
	"github.com/bureau-foundation/chronicle/lib/embedstore"
	"github.com/bureau-foundation/chronicle/lib/logfile"
	"github.com/bureau-foundation/chronicle/lib/record"
	"github.com/bureau-foundation/chronicle/lib/spool"
	"github.com/bureau-foundation/chronicle/lib/statestore"
)

type fixture struct {
	archiver *Archiver
	spool    spool.Dir
	state    *statestore.Store
	logDir   string
}

// newFixture places "today" at 2025-07-04.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	directory := t.TempDir()
	spoolDir, err := spool.New(filepath.Join(directory, "spool"))
	if err != nil {
		t.Fatal(err)
	}
	state, err := statestore.Load(filepath.Join(directory, "state", "pending.json"))
	if err != nil {
		t.Fatal(err)
	}
	logDir := filepath.Join(directory, "logs")
	f := &fixture{
		spool:  spoolDir,
		state:  state,
		logDir: logDir,
	}
	f.archiver = &Archiver{
		Spool:     spoolDir,
		State:     state,
		Artifacts: embedstore.New(filepath.Join(directory, "embeddings"), embedstore.CompressionNone),
		LogDir:    logDir,
		Root:      filepath.Join(directory, "archive"),
		Host:      "workstation",
		User:      "alice",
		Retention: RetentionPreserve,
		Clock:     clock.Fake(time.Date(2025, 7, 4, 3, 0, 0, 0, time.UTC)),
		Logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	return f
}

// writeDay populates all three streams for a day with count keyboard
// records (mouse and window get one each) and sets the cursor.
func (f *fixture) writeDay(t *testing.T, date datekey.DateKey, count, cursor int) {
	t.Helper()
	var lines strings.Builder
	base := date.Time()
	for i := 0; i < count; i++ {
		lines.WriteString(record.FormatLine(record.Record{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Payload:   fmt.Sprintf("key-%d", i),
		}))
		lines.WriteString("\n")
	}
	if err := os.WriteFile(f.spool.PathFor(record.StreamKeyboard, date), []byte(lines.String()), 0600); err != nil {
		t.Fatal(err)
	}
	for _, stream := range []string{record.StreamMouse, record.StreamWindow} {
		line := record.FormatLine(record.Record{Timestamp: base, Payload: stream + "-event"}) + "\n"
		if err := os.WriteFile(f.spool.PathFor(stream, date), []byte(line), 0600); err != nil {
			t.Fatal(err)
		}
	}
	if cursor > 0 {
		if err := f.state.Set(date, cursor); err != nil {
			t.Fatal(err)
		}
	}
}

func (f *fixture) bundle(date datekey.DateKey) string {
	return filepath.Join(f.archiver.Root, "workstation-alice-"+date.String())
}

func TestCompleteDayIsArchived(t *testing.T) {
	f := newFixture(t)
	f.writeDay(t, "20250101", 5, 5)

	// A component log and some embeddings for the day.
	logHandle, err := logfile.Open(f.logDir, "capture", "20250101")
	if err != nil {
		t.Fatal(err)
	}
	logHandle.WriteString("captured stuff\n")
	logHandle.Close()
	if _, err := f.archiver.Artifacts.Put(embed.Artifact{Date: "20250101", Vector: []float32{1, 2}}); err != nil {
		t.Fatal(err)
	}

	if err := f.archiver.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	logsDir := filepath.Join(f.bundle("20250101"), "logs")
	for _, name := range []string{"keyboard.log", "mouse.log", "window.log", "chronicle-capture.log"} {
		if _, err := os.Stat(filepath.Join(logsDir, name)); err != nil {
			t.Errorf("bundle missing %s: %v", name, err)
		}
	}
	embeddingsDay := filepath.Join(f.bundle("20250101"), "embeddings", "20250101")
	entries, err := os.ReadDir(embeddingsDay)
	if err != nil || len(entries) != 1 {
		t.Errorf("embeddings dir = %v entries, err %v; want 1 file", len(entries), err)
	}

	// Originals are gone and the cursor entry is retired.
	if _, err := os.Stat(f.spool.PathFor(record.StreamKeyboard, "20250101")); !os.IsNotExist(err) {
		t.Error("keyboard stream still in spool")
	}
	if got := f.state.Get("20250101"); got != 0 {
		t.Errorf("cursor after archive = %d, want removed", got)
	}
	if len(f.state.Dates()) != 0 {
		t.Errorf("state still tracks %v", f.state.Dates())
	}
}

func TestIncompleteDayIsNotArchived(t *testing.T) {
	f := newFixture(t)
	f.writeDay(t, "20250101", 5, 3)

	if err := f.archiver.Run(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(f.bundle("20250101")); !os.IsNotExist(err) {
		t.Error("incomplete day produced a bundle")
	}
	if got := f.state.Get("20250101"); got != 3 {
		t.Errorf("cursor = %d, want 3 (untouched)", got)
	}
}

func TestTodayIsNeverArchived(t *testing.T) {
	f := newFixture(t)
	f.writeDay(t, "20250704", 2, 2) // today per the fake clock

	if err := f.archiver.Run(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(f.bundle("20250704")); !os.IsNotExist(err) {
		t.Error("today was archived")
	}
}

func TestPurgeRetentionDeletesKeyboard(t *testing.T) {
	f := newFixture(t)
	f.archiver.Retention = RetentionPurge
	f.writeDay(t, "20250101", 4, 4)

	if err := f.archiver.Run(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(f.bundle("20250101"), "logs", "keyboard.log")); !os.IsNotExist(err) {
		t.Error("purged keyboard stream appeared in the bundle")
	}
	if _, err := os.Stat(f.spool.PathFor(record.StreamKeyboard, "20250101")); !os.IsNotExist(err) {
		t.Error("purged keyboard stream still in spool")
	}
	// Other streams are preserved regardless of retention.
	if _, err := os.Stat(filepath.Join(f.bundle("20250101"), "logs", "mouse.log")); err != nil {
		t.Errorf("mouse stream missing under purge: %v", err)
	}
	if len(f.state.Dates()) != 0 {
		t.Error("cursor entry not retired under purge")
	}
}

func TestZeroRecordDayIsArchived(t *testing.T) {
	f := newFixture(t)
	// Keyboard file exists but holds no well-formed records, and the
	// day never earned a cursor entry.
	if err := os.WriteFile(f.spool.PathFor(record.StreamKeyboard, "20250101"), []byte("garbage\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := f.archiver.Run(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(f.bundle("20250101"), "logs", "keyboard.log")); err != nil {
		t.Errorf("zero-record day not archived: %v", err)
	}
}

func TestPartialFailureKeepsDayEligible(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root; chmod cannot make the spool unwritable")
	}
	f := newFixture(t)
	f.writeDay(t, "20250101", 3, 3)

	// Sabotage the keyboard retention step by making the spool
	// directory unwritable: the rename out of it must fail.
	if err := os.Chmod(f.spool.Root(), 0500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(f.spool.Root(), 0700) })

	if err := f.archiver.Run(); err != nil {
		t.Fatal(err)
	}
	if got := f.state.Get("20250101"); got != 3 {
		t.Errorf("cursor = %d, want 3 (day must stay eligible)", got)
	}

	// After the obstacle clears, the next run finishes the day.
	os.Chmod(f.spool.Root(), 0700)
	if err := f.archiver.Run(); err != nil {
		t.Fatal(err)
	}
	if len(f.state.Dates()) != 0 {
		t.Error("retry did not retire the day")
	}
	if _, err := os.Stat(filepath.Join(f.bundle("20250101"), "logs", "keyboard.log")); err != nil {
		t.Errorf("retry did not complete the bundle: %v", err)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.writeDay(t, "20250101", 2, 2)

	if err := f.archiver.Run(); err != nil {
		t.Fatal(err)
	}
	if err := f.archiver.Run(); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.bundle("20250101"), "logs", "keyboard.log")); err != nil {
		t.Errorf("bundle damaged by second run: %v", err)
	}
}
