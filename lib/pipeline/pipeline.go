// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline is the resumable batch processor that turns
// unprocessed keyboard records into embedding artifacts.
//
// One invocation is one pass of the state machine: select the pending
// dates (oldest first, never today), then for each date advance the
// processing cursor batch by batch until the date is drained, the
// admission policy denies, or the context is cancelled. The cursor is
// persisted after every batch, so external termination between
// batches costs at most one in-flight batch of re-processing and
// never corrupts state.
//
// The caller holds the cross-process lock for the whole run; the
// processor itself never locks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/chronicle/lib/clock"
	"github.com/bureau-foundation/chronicle/lib/datekey"
	"github.com/bureau-foundation/chronicle/lib/embed"
	"github.com/bureau-foundation/chronicle/lib/embedstore"
	"github.com/bureau-foundation/chronicle/lib/record"
	"github.com/bureau-foundation/chronicle/lib/spool"
	"github.com/bureau-foundation/chronicle/lib/statestore"
)

// DefaultBatchSize bounds both memory per iteration and the latency
// between admission re-checks.
const DefaultBatchSize = 10

// errStopRun signals a graceful whole-run stop (admission denied or
// context cancelled). Not an error condition; state is already
// consistent.
var errStopRun = errors.New("pipeline: run stopped")

// Processor drives the date loop. Construct with every field set;
// Run applies defaults for BatchSize (10), Clock (real), and Logger.
type Processor struct {
	// Spool holds the per-day stream files.
	Spool spool.Dir

	// State is the processing cursor store. Mutated only here and by
	// the archiver, always under the cross-process lock.
	State *statestore.Store

	// Embedder is the external embedding collaborator.
	Embedder embed.Embedder

	// Artifacts persists what the embedder returns.
	Artifacts *embedstore.Store

	// Policy selects opportunistic or catch-all behavior.
	Policy AdmissionPolicy

	// Clock supplies "today"; work never touches the current day.
	Clock clock.Clock

	// Logger receives per-date and per-batch progress.
	Logger *slog.Logger

	// BatchSize caps records per iteration. 0 means DefaultBatchSize.
	BatchSize int

	// HaltOnFailure stops a date at the first batch whose artifact
	// generation failed, leaving the cursor behind so the batch is
	// retried next invocation. The default (false) advances the
	// cursor anyway, trading those records' artifacts for forward
	// progress — the backlog can never wedge on one bad batch.
	HaltOnFailure bool
}

// Run executes one processor invocation. Graceful stops (admission
// denial, context cancellation) return nil. Per-date failures are
// logged and do not affect other dates; Run returns an error only
// when date selection itself is impossible.
func (p *Processor) Run(ctx context.Context) error {
	p.applyDefaults()

	dates, err := p.SelectDates()
	if err != nil {
		return fmt.Errorf("pipeline: selecting dates: %w", err)
	}
	if len(dates) == 0 {
		p.Logger.Info("no backlog", "policy", p.Policy.Name())
		return nil
	}
	p.Logger.Info("backlog selected", "policy", p.Policy.Name(), "dates", len(dates))

	for _, date := range dates {
		err := p.processDate(ctx, date)
		if errors.Is(err, errStopRun) {
			p.Logger.Info("run stopped before completion", "date", date.String())
			return nil
		}
		if err != nil {
			// State-store or read failure: this date aborts, the
			// rest proceed.
			p.Logger.Error("date failed", "date", date.String(), "error", err)
		}
		if !p.Policy.Exhaustive() {
			// One date per opportunistic invocation; the launch
			// logic re-invokes while backlog remains.
			return nil
		}
	}
	return nil
}

// SelectDates returns the days with unprocessed keyboard records,
// oldest first. Today is excluded: its stream is still being appended
// to. Oldest-first matters because the oldest backlog is the most at
// risk and a stopped run must have cleared earlier days before
// touching later ones.
func (p *Processor) SelectDates() ([]datekey.DateKey, error) {
	p.applyDefaults()

	onDisk, err := p.Spool.Dates(record.StreamKeyboard)
	if err != nil {
		return nil, err
	}
	today := datekey.Today(p.Clock)

	var pending []datekey.DateKey
	for _, date := range onDisk {
		if !date.Before(today) {
			continue
		}
		total, err := p.Spool.CountRecords(record.StreamKeyboard, date)
		if err != nil {
			p.Logger.Error("counting records", "date", date.String(), "error", err)
			continue
		}
		if p.State.Get(date) < total {
			pending = append(pending, date)
		}
	}
	return pending, nil
}

// processDate drains one date's backlog batch by batch. Returns
// errStopRun for graceful stops, other errors for failures that
// abort this date only.
func (p *Processor) processDate(ctx context.Context, date datekey.DateKey) error {
	records, err := p.Spool.ReadRecords(record.StreamKeyboard, date)
	if err != nil {
		return err
	}
	total := len(records)
	cursor := p.State.Get(date)
	if cursor > total {
		// A cursor past the end means the stream shrank underneath
		// us (malformed lines reparsed differently, or manual
		// truncation). Nothing to process; the archiver will never
		// see this day as complete until the counts agree again.
		p.Logger.Warn("cursor beyond stream end", "date", date.String(),
			"cursor", cursor, "total", total)
		return nil
	}
	p.Logger.Info("processing date", "date", date.String(), "cursor", cursor, "total", total)

	for cursor < total {
		if ctx.Err() != nil {
			return errStopRun
		}
		if !p.Policy.Admit() {
			p.Logger.Info("admission denied", "date", date.String(), "cursor", cursor)
			return errStopRun
		}

		end := cursor + p.BatchSize
		if end > total {
			end = total
		}
		batch := records[cursor:end]

		if err := p.processBatch(ctx, date, cursor, batch); err != nil {
			p.Logger.Error("batch artifacts lost", "date", date.String(),
				"offset", cursor, "size", len(batch), "error", err)
			if p.HaltOnFailure {
				return fmt.Errorf("batch at offset %d: %w", cursor, err)
			}
		}

		// Advance and persist regardless of batch outcome (unless
		// HaltOnFailure). A failed persist aborts the date: the
		// cursor on disk still denotes a prefix, the batch is simply
		// re-processed next run.
		cursor = end
		if err := p.State.Set(date, cursor); err != nil {
			return err
		}
	}
	p.Logger.Info("date drained", "date", date.String(), "total", total)
	return nil
}

// processBatch embeds and persists one batch. A batch of only blank
// payloads skips the embedding call entirely but still counts as
// processed.
func (p *Processor) processBatch(ctx context.Context, date datekey.DateKey, offset int, batch []record.Record) error {
	allBlank := true
	for _, r := range batch {
		if !r.Blank() {
			allBlank = false
			break
		}
	}
	if allBlank {
		return nil
	}

	artifacts, err := p.Embedder.GenerateBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("generating embeddings: %w", err)
	}
	for i := range artifacts {
		artifacts[i].Date = date
		artifacts[i].Index = offset + i
	}
	if err := p.Artifacts.PutAll(artifacts); err != nil {
		return fmt.Errorf("persisting artifacts: %w", err)
	}
	return nil
}

// BacklogPending reports whether any day before today has unprocessed
// keyboard records. It loads the state file fresh on each call, without
// the cross-process lock: the capture loop uses this read-only check to
// decide whether spawning a processor is worthwhile, and a stale answer
// costs at most one wasted spawn. Corrupt or unreadable state reads as
// empty, which biases toward "backlog pending" and a spawn that sorts
// it out under the lock.
func BacklogPending(dir spool.Dir, statePath string, c clock.Clock) (bool, error) {
	// Load returns a usable empty store even on corruption; the
	// ErrCorrupt detail belongs to the lock holder, not this check.
	state, _ := statestore.Load(statePath)
	onDisk, err := dir.Dates(record.StreamKeyboard)
	if err != nil {
		return false, fmt.Errorf("pipeline: listing spool days: %w", err)
	}
	today := datekey.Today(c)
	for _, date := range onDisk {
		if !date.Before(today) {
			continue
		}
		total, err := dir.CountRecords(record.StreamKeyboard, date)
		if err != nil {
			continue
		}
		if state.Get(date) < total {
			return true, nil
		}
	}
	return false, nil
}

func (p *Processor) applyDefaults() {
	if p.BatchSize <= 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.Clock == nil {
		p.Clock = clock.Real()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
}
