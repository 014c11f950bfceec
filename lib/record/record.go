// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package record defines the activity record wire form shared by the
// capture spool, the batch processor, and the archiver.
//
// A spool file is line-oriented: one record per line, each line
// independently parseable. The line form is
//
//	<RFC3339Nano timestamp> '\t' <payload>
//
// The payload is opaque to this package. The capture layer writes
// already-encoded content (the on-disk obfuscation of keystrokes is
// outside the core); the processor hands payloads to the embedding
// service without inspecting them.
package record

import (
	"strings"
	"time"
)

// Stream names. Only the keyboard stream's progress gates processing
// and archival; mouse and window are carried along passively.
const (
	StreamKeyboard = "keyboard"
	StreamMouse    = "mouse"
	StreamWindow   = "window"
)

// Streams returns all stream names, keyboard first.
func Streams() []string {
	return []string{StreamKeyboard, StreamMouse, StreamWindow}
}

// Record is one parsed spool line. Records are immutable once read.
type Record struct {
	// Timestamp is when the event was captured.
	Timestamp time.Time

	// Payload is the opaque encoded event content. May be empty
	// (e.g. a window-focus event with no title).
	Payload string
}

// ParseLine parses one spool line. Returns ok=false for malformed
// lines (no tab separator, or an unparseable timestamp); callers skip
// those, and skipped lines never count toward a day's record total.
func ParseLine(line string) (Record, bool) {
	timestampText, payload, found := strings.Cut(line, "\t")
	if !found {
		return Record{}, false
	}
	timestamp, err := time.Parse(time.RFC3339Nano, timestampText)
	if err != nil {
		return Record{}, false
	}
	return Record{Timestamp: timestamp, Payload: payload}, true
}

// FormatLine renders a record in the spool line form, without a
// trailing newline. Newlines inside the payload would break the
// one-record-per-line invariant, so they are replaced with spaces.
func FormatLine(r Record) string {
	payload := strings.NewReplacer("\n", " ", "\r", " ").Replace(r.Payload)
	return r.Timestamp.Format(time.RFC3339Nano) + "\t" + payload
}

// Blank reports whether the record carries no usable content. Batches
// in which every record is blank skip the embedding call entirely but
// still advance the processing cursor.
func (r Record) Blank() bool {
	return strings.TrimSpace(r.Payload) == ""
}
