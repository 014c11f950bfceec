// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bufio"
	"io"
	"strings"

	"github.com/bureau-foundation/chronicle/lib/clock"
)

// LineSource adapts a line-oriented reader into a Source. The OS hook
// program pipes events to chronicle's stdin, one per line, as
// "<stream>\t<payload>"; the timestamp is assigned on receipt. The
// event channel closes when the reader is exhausted.
type LineSource struct {
	events chan Event
}

// NewLineSource starts reading events from r. The returned source is
// live immediately; its goroutine exits when r reaches EOF or errors.
func NewLineSource(r io.Reader, c clock.Clock) *LineSource {
	source := &LineSource{events: make(chan Event)}
	go source.read(r, c)
	return source
}

// Events returns the event channel.
func (s *LineSource) Events() <-chan Event { return s.events }

func (s *LineSource) read(r io.Reader, c clock.Clock) {
	defer close(s.events)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		stream, payload, found := strings.Cut(line, "\t")
		if !found || stream == "" {
			continue
		}
		s.events <- Event{Stream: stream, Time: c.Now(), Payload: payload}
	}
}
