// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package datekey defines the canonical calendar-day identifier that
// partitions every Chronicle stream, the processing cursor map, and
// the archive layout.
//
// A DateKey is the fixed-width form YYYYMMDD (e.g. "20250703"). The
// encoding is chosen so that lexicographic order equals chronological
// order: sorting a []DateKey with sort or slices yields oldest-first
// without parsing.
package datekey

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/chronicle/lib/clock"
)

// layout is the time.Format reference layout for YYYYMMDD.
const layout = "20060102"

// DateKey identifies one calendar day in the host's local time zone.
// The zero value is invalid; construct with FromTime or Parse.
type DateKey string

// FromTime returns the DateKey for the calendar day containing t, in
// t's location.
func FromTime(t time.Time) DateKey {
	return DateKey(t.Format(layout))
}

// Today returns the DateKey for the current day. The clock is injected
// so tests can place "today" wherever they need it.
func Today(c clock.Clock) DateKey {
	return FromTime(c.Now())
}

// Parse validates s as a YYYYMMDD day identifier. The check is strict:
// exactly eight digits naming a real calendar date (rejects 20250231).
func Parse(s string) (DateKey, error) {
	if len(s) != 8 {
		return "", fmt.Errorf("datekey: %q is %d characters, want 8", s, len(s))
	}
	parsed, err := time.Parse(layout, s)
	if err != nil {
		return "", fmt.Errorf("datekey: %q is not a calendar day: %w", s, err)
	}
	// time.Parse normalizes some out-of-range values (e.g. month 13);
	// round-tripping catches those.
	if parsed.Format(layout) != s {
		return "", fmt.Errorf("datekey: %q is not a calendar day", s)
	}
	return DateKey(s), nil
}

// String returns the canonical textual form.
func (k DateKey) String() string { return string(k) }

// Before reports whether k names an earlier day than other. Both keys
// must be well-formed; the comparison is textual.
func (k DateKey) Before(other DateKey) bool { return k < other }

// Time returns midnight local time of the day k names. Panics on a
// malformed key; keys reaching this method have been through Parse or
// FromTime.
func (k DateKey) Time() time.Time {
	t, err := time.ParseInLocation(layout, string(k), time.Local)
	if err != nil {
		panic("datekey: malformed key " + string(k))
	}
	return t
}
