// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeCmdline(t *testing.T, procRoot, pid string, argv ...string) {
	t.Helper()
	dir := filepath.Join(procRoot, pid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	for _, argument := range argv {
		buf.WriteString(argument)
		buf.WriteByte(0)
	}
	if err := os.WriteFile(filepath.Join(dir, "cmdline"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCmdlineIsProcessor(t *testing.T) {
	cases := []struct {
		name string
		argv []string
		want bool
	}{
		{"process mode joined", []string{"/usr/bin/chronicle", "--mode=process"}, true},
		{"process-all mode joined", []string{"chronicle", "--mode=process-all"}, true},
		{"mode as separate argument", []string{"chronicle", "--mode", "process"}, true},
		{"capture mode", []string{"chronicle", "--mode=capture"}, false},
		{"no mode flag", []string{"chronicle"}, false},
		{"different binary", []string{"/usr/bin/vim", "--mode=process"}, false},
		{"mode flag without value", []string{"chronicle", "--mode"}, false},
		{"empty cmdline", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			for _, argument := range tc.argv {
				buf.WriteString(argument)
				buf.WriteByte(0)
			}
			if got := cmdlineIsProcessor(buf.Bytes()); got != tc.want {
				t.Errorf("cmdlineIsProcessor(%q) = %v, want %v", tc.argv, got, tc.want)
			}
		})
	}
}

func TestProcessorRunningIn(t *testing.T) {
	procRoot := t.TempDir()
	writeCmdline(t, procRoot, "100", "/usr/lib/systemd/systemd")
	writeCmdline(t, procRoot, "200", "chronicle", "--mode=capture")
	if processorRunningIn(procRoot) {
		t.Fatal("no processor sibling present, scan reported one")
	}

	writeCmdline(t, procRoot, "300", "/usr/bin/chronicle", "--mode=process")
	if !processorRunningIn(procRoot) {
		t.Fatal("processor sibling present, scan missed it")
	}
}

func TestProcessorRunningInSkipsNonNumericEntries(t *testing.T) {
	procRoot := t.TempDir()
	writeCmdline(t, procRoot, "1234", "chronicle", "--mode=process")
	// Entries that are not numeric directories are skipped.
	if err := os.WriteFile(filepath.Join(procRoot, "uptime"), []byte("1 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !processorRunningIn(procRoot) {
		t.Fatal("numeric sibling with processor cmdline should match")
	}
}

func TestProcessorRunningInMissingRoot(t *testing.T) {
	if processorRunningIn(filepath.Join(t.TempDir(), "absent")) {
		t.Fatal("missing proc root must read as not running")
	}
}
