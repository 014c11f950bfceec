// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Chronicle is a host-local activity recorder. One binary serves four
// roles, selected by --mode:
//
//	capture      long-lived; reads events from stdin into the per-day
//	             spool and launches opportunistic processing when the
//	             machine is quiet (default mode)
//	process      short-lived; drains one backlog day into embedding
//	             artifacts, batch by batch, while load stays low
//	process-all  short-lived; drains every backlog day unconditionally
//	archive      short-lived; moves completed days into archive bundles
//
// The three short-lived roles are mutually exclusive via a
// cross-process file lock; a second invocation while one is running
// exits quietly. Capture never takes the lock.
//
// An unrecognized mode falls back to capture so that a stale
// scheduling trigger can never leave the host unrecorded.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/chronicle/lib/archive"
	"github.com/bureau-foundation/chronicle/lib/capture"
	"github.com/bureau-foundation/chronicle/lib/clock"
	"github.com/bureau-foundation/chronicle/lib/config"
	"github.com/bureau-foundation/chronicle/lib/datekey"
	"github.com/bureau-foundation/chronicle/lib/embed"
	"github.com/bureau-foundation/chronicle/lib/embedstore"
	"github.com/bureau-foundation/chronicle/lib/loadwatch"
	"github.com/bureau-foundation/chronicle/lib/logfile"
	"github.com/bureau-foundation/chronicle/lib/pipeline"
	"github.com/bureau-foundation/chronicle/lib/process"
	"github.com/bureau-foundation/chronicle/lib/proclock"
	"github.com/bureau-foundation/chronicle/lib/spool"
	"github.com/bureau-foundation/chronicle/lib/statestore"
	"github.com/bureau-foundation/chronicle/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		mode        string
		configPath  string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("chronicle", pflag.ContinueOnError)
	flagSet.StringVar(&mode, "mode", "capture", "capture, process, process-all, or archive")
	flagSet.StringVar(&configPath, "config", "", "path to chronicle.yaml (default: CHRONICLE_CONFIG, else built-in defaults)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("chronicle %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return fmt.Errorf("preparing directories: %w", err)
	}

	// Unrecognized modes land on capture.
	switch mode {
	case "process", "process-all", "archive":
	default:
		mode = "capture"
	}

	logger, closeLog, err := openLogger(cfg, mode)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("chronicle starting", "mode", mode, "version", version.Version)

	switch mode {
	case "process":
		return runProcessor(ctx, cfg, logger, false)
	case "process-all":
		return runProcessor(ctx, cfg, logger, true)
	case "archive":
		return runArchiver(cfg, logger)
	default:
		return runCapture(ctx, cfg, configPath, logger)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// openLogger builds a JSON logger writing to both stderr and the
// mode's per-day log file. Falls back to stderr alone when the log
// directory is unusable; a broken log path must not stop recording.
func openLogger(cfg *config.Config, mode string) (*slog.Logger, func(), error) {
	today := datekey.Today(clock.Real())
	file, err := logfile.Open(cfg.Paths.Logs, mode, today)
	if err != nil {
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
		logger.Error("opening log file, continuing on stderr only", "error", err)
		return logger, func() {}, nil
	}
	handler := slog.NewJSONHandler(io.MultiWriter(os.Stderr, file), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler), func() { file.Close() }, nil
}

func runCapture(ctx context.Context, cfg *config.Config, configPath string, logger *slog.Logger) error {
	spoolDir, err := spool.New(cfg.Paths.Spool)
	if err != nil {
		return err
	}
	monitor := loadwatch.NewMonitor(loadwatch.NewProcStatSampler(),
		loadwatch.WithWindowSize(cfg.Capture.WindowSize),
		loadwatch.WithLowWater(cfg.Capture.LowWater),
		loadwatch.WithHighWater(cfg.Capture.HighWater),
	)
	loop := &capture.Loop{
		Spool:        spoolDir,
		Source:       capture.NewLineSource(os.Stdin, clock.Real()),
		Monitor:      monitor,
		StatePath:    cfg.Paths.StateFile,
		ConfigPath:   configPath,
		Clock:        clock.Real(),
		Logger:       logger,
		SamplePeriod: cfg.Capture.Period(),
	}
	return loop.Run(ctx)
}

// runProcessor runs one batch-processing invocation under the lock.
// catchAll selects the unconditional admission policy and exhaustive
// date coverage; otherwise admission follows the load monitor and one
// date is processed per invocation.
func runProcessor(ctx context.Context, cfg *config.Config, logger *slog.Logger, catchAll bool) error {
	handle, err := proclock.TryAcquire(cfg.Paths.LockFile)
	if err != nil {
		if errors.Is(err, proclock.ErrHeld) {
			logger.Info("another holder is active, nothing to do")
			return nil
		}
		return fmt.Errorf("acquiring processor lock: %w", err)
	}
	defer handle.Release()

	spoolDir, err := spool.New(cfg.Paths.Spool)
	if err != nil {
		return err
	}
	state, err := statestore.Load(cfg.Paths.StateFile)
	if err != nil {
		logger.Warn("state file unreadable, starting from an empty cursor set", "error", err)
	}

	var policy pipeline.AdmissionPolicy
	if catchAll {
		policy = pipeline.CatchAll{}
	} else {
		policy = pipeline.Opportunistic{
			Monitor: loadwatch.NewMonitor(loadwatch.NewProcStatSampler(),
				loadwatch.WithHighWater(cfg.Capture.HighWater),
			),
		}
	}

	processor := &pipeline.Processor{
		Spool:         spoolDir,
		State:         state,
		Embedder:      embed.NewHTTPEmbedder(cfg.Embedder.Endpoint, cfg.Embedder.Model, cfg.Embedder.TimeoutDuration()),
		Artifacts:     embedstore.New(cfg.Paths.Embeddings, embedstore.CompressionBG4LZ4),
		Policy:        policy,
		Clock:         clock.Real(),
		Logger:        logger,
		BatchSize:     cfg.Pipeline.BatchSize,
		HaltOnFailure: cfg.Pipeline.HaltOnFailure,
	}
	return processor.Run(ctx)
}

func runArchiver(cfg *config.Config, logger *slog.Logger) error {
	handle, err := proclock.TryAcquire(cfg.Paths.LockFile)
	if err != nil {
		if errors.Is(err, proclock.ErrHeld) {
			logger.Info("another holder is active, nothing to do")
			return nil
		}
		return fmt.Errorf("acquiring processor lock: %w", err)
	}
	defer handle.Release()

	spoolDir, err := spool.New(cfg.Paths.Spool)
	if err != nil {
		return err
	}
	state, err := statestore.Load(cfg.Paths.StateFile)
	if err != nil {
		logger.Warn("state file unreadable, starting from an empty cursor set", "error", err)
	}

	archiver := &archive.Archiver{
		Spool:     spoolDir,
		State:     state,
		Artifacts: embedstore.New(cfg.Paths.Embeddings, embedstore.CompressionBG4LZ4),
		LogDir:    cfg.Paths.Logs,
		Root:      cfg.Paths.Archive,
		Host:      hostName(),
		User:      userName(),
		Retention: cfg.Retention.KeyboardRetention(),
		Clock:     clock.Real(),
		Logger:    logger,
	}
	return archiver.Run()
}

func hostName() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return host
}

func userName() string {
	current, err := user.Current()
	if err != nil || current.Username == "" {
		return "unknown-user"
	}
	return current.Username
}
