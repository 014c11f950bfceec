// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture is the long-lived front end: it drains an event
// source into the per-day spool streams, samples system load on a
// fixed period, and launches an opportunistic processor when backlog
// has accumulated and the machine has been quiet.
//
// The capture loop owns no shared state. It never takes the
// cross-process lock (appends and the launch heuristic are safe
// without it) and it never exits on a component error: a failed
// append or spawn is logged and the loop keeps recording. Losing
// events is worse than any downstream inconvenience.
package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/bureau-foundation/chronicle/lib/clock"
	"github.com/bureau-foundation/chronicle/lib/loadwatch"
	"github.com/bureau-foundation/chronicle/lib/pipeline"
	"github.com/bureau-foundation/chronicle/lib/process"
	"github.com/bureau-foundation/chronicle/lib/record"
	"github.com/bureau-foundation/chronicle/lib/spool"
)

// DefaultSamplePeriod is the load sampling and launch-decision
// interval.
const DefaultSamplePeriod = 3 * time.Minute

// Event is one user-activity observation from the OS hook layer.
type Event struct {
	// Stream is one of the record stream names (keyboard, mouse,
	// window).
	Stream string

	// Time is when the event occurred.
	Time time.Time

	// Payload is the free-form single-line description.
	Payload string
}

// Source delivers capture events. The OS hook layer lives behind this
// interface; closing the channel ends the capture run.
type Source interface {
	Events() <-chan Event
}

// Loop wires the event source to the spool and drives the periodic
// launch decision. Construct with every field set; Run applies
// defaults for SamplePeriod, Clock, Logger, Launch, and
// SiblingRunning.
type Loop struct {
	// Spool receives the per-day stream files.
	Spool spool.Dir

	// Source supplies the events to record.
	Source Source

	// Monitor accumulates the load window that gates launches.
	Monitor *loadwatch.Monitor

	// StatePath locates the processing cursor document, read without
	// the lock to estimate backlog.
	StatePath string

	// ConfigPath is forwarded to spawned processors. May be empty.
	ConfigPath string

	// Clock drives the sampling ticker and day rollover.
	Clock clock.Clock

	// Logger receives append failures and launch decisions.
	Logger *slog.Logger

	// SamplePeriod overrides DefaultSamplePeriod when positive.
	SamplePeriod time.Duration

	// Launch spawns a detached processor. Defaults to
	// process.StartDetached; tests substitute a recorder.
	Launch func(mode string, configPath string) error

	// SiblingRunning reports whether a processor already appears to
	// be running. Defaults to process.ProcessorRunning.
	SiblingRunning func() bool

	appenders map[string]*spool.Appender
}

// Run captures until the context is cancelled or the source channel
// closes. Stream files are synced and closed on the way out.
func (l *Loop) Run(ctx context.Context) error {
	l.applyDefaults()

	l.appenders = make(map[string]*spool.Appender)
	for _, stream := range record.Streams() {
		l.appenders[stream] = l.Spool.NewAppender(stream, l.Clock)
	}
	defer l.closeAppenders()

	ticker := l.Clock.NewTicker(l.SamplePeriod)
	defer ticker.Stop()

	events := l.Source.Events()
	l.Logger.Info("capture started", "spool", l.Spool.Root(), "sample_period", l.SamplePeriod.String())

	for {
		select {
		case <-ctx.Done():
			l.Logger.Info("capture stopping", "reason", "context cancelled")
			return nil
		case event, ok := <-events:
			if !ok {
				l.Logger.Info("capture stopping", "reason", "source closed")
				return nil
			}
			l.append(event)
		case <-ticker.C:
			l.sample()
		}
	}
}

// append records one event. Unknown streams and write failures are
// logged, never fatal.
func (l *Loop) append(event Event) {
	appender, ok := l.appenders[event.Stream]
	if !ok {
		l.Logger.Warn("event for unknown stream dropped", "stream", event.Stream)
		return
	}
	err := appender.Append(record.Record{Timestamp: event.Time, Payload: event.Payload})
	if err != nil {
		l.Logger.Error("append failed", "stream", event.Stream, "error", err)
	}
}

// sample takes one load observation, flushes the stream files, and
// makes the launch decision.
func (l *Loop) sample() {
	l.Monitor.Observe()
	for stream, appender := range l.appenders {
		if err := appender.Sync(); err != nil {
			l.Logger.Error("sync failed", "stream", stream, "error", err)
		}
	}
	l.maybeLaunch()
}

// maybeLaunch spawns an opportunistic processor when backlog exists,
// load has been sustained low, and no sibling processor is visible.
// All three checks are advisory; the spawned processor re-validates
// everything under the lock.
func (l *Loop) maybeLaunch() {
	if !l.Monitor.SustainedLow() {
		return
	}
	if l.SiblingRunning() {
		return
	}
	pending, err := pipeline.BacklogPending(l.Spool, l.StatePath, l.Clock)
	if err != nil {
		l.Logger.Error("backlog check failed", "error", err)
		return
	}
	if !pending {
		return
	}
	if err := l.Launch("process", l.ConfigPath); err != nil {
		l.Logger.Error("processor launch failed", "error", err)
		return
	}
	l.Logger.Info("opportunistic processor launched")
}

func (l *Loop) closeAppenders() {
	for stream, appender := range l.appenders {
		if err := appender.Sync(); err != nil {
			l.Logger.Error("final sync failed", "stream", stream, "error", err)
		}
		if err := appender.Close(); err != nil {
			l.Logger.Error("close failed", "stream", stream, "error", err)
		}
	}
}

func (l *Loop) applyDefaults() {
	if l.SamplePeriod <= 0 {
		l.SamplePeriod = DefaultSamplePeriod
	}
	if l.Clock == nil {
		l.Clock = clock.Real()
	}
	if l.Logger == nil {
		l.Logger = slog.Default()
	}
	if l.Launch == nil {
		l.Launch = process.StartDetached
	}
	if l.SiblingRunning == nil {
		l.SiblingRunning = process.ProcessorRunning
	}
}
