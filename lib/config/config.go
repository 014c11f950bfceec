// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for chronicle.
//
// Configuration is loaded from a single file specified by:
//   - CHRONICLE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. Defaults cover every
// field, so running without a config file at all is also valid.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/chronicle/lib/archive"
)

// Config is the master configuration for chronicle.
type Config struct {
	// Paths configures directory and file locations.
	Paths PathsConfig `yaml:"paths"`

	// Capture configures the capture loop and load monitor.
	Capture CaptureConfig `yaml:"capture"`

	// Pipeline configures the batch processor.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Embedder configures the embedding service client.
	Embedder EmbedderConfig `yaml:"embedder"`

	// Retention configures keyboard stream handling at archival.
	Retention RetentionConfig `yaml:"retention"`
}

// PathsConfig configures directory and file locations.
type PathsConfig struct {
	// Root is the base directory for chronicle data. The other paths
	// default to subdirectories of it.
	Root string `yaml:"root"`

	// Spool holds the per-day stream files.
	Spool string `yaml:"spool"`

	// Embeddings holds the per-day artifact directories.
	Embeddings string `yaml:"embeddings"`

	// Archive is where completed day bundles are placed.
	Archive string `yaml:"archive"`

	// StateFile is the processing cursor document.
	StateFile string `yaml:"state_file"`

	// LockFile is the cross-process lock.
	LockFile string `yaml:"lock_file"`

	// Logs holds the per-day component log files.
	Logs string `yaml:"logs"`
}

// CaptureConfig configures the capture loop and load monitor.
type CaptureConfig struct {
	// SamplePeriod is the load sampling interval, as a Go duration
	// string. Default: 3m.
	SamplePeriod string `yaml:"sample_period"`

	// WindowSize is the number of consecutive samples in the
	// sustained-low window. Default: 3.
	WindowSize int `yaml:"window_size"`

	// LowWater is the CPU percentage below which a sample counts as
	// quiet. Default: 30.
	LowWater float64 `yaml:"low_water"`

	// HighWater is the CPU percentage at or above which a batch is
	// denied admission. Default: 80.
	HighWater float64 `yaml:"high_water"`
}

// PipelineConfig configures the batch processor.
type PipelineConfig struct {
	// BatchSize is the number of records per embedding call.
	// Default: 10.
	BatchSize int `yaml:"batch_size"`

	// HaltOnFailure stops a date at the first failed batch instead of
	// advancing past it. Default: false.
	HaltOnFailure bool `yaml:"halt_on_failure"`
}

// EmbedderConfig configures the embedding service client.
type EmbedderConfig struct {
	// Endpoint is the embedding service URL.
	Endpoint string `yaml:"endpoint"`

	// Model names the embedding model to request.
	Model string `yaml:"model"`

	// Timeout bounds one embedding call, as a Go duration string.
	// Default: 1m.
	Timeout string `yaml:"timeout"`
}

// RetentionConfig configures keyboard stream handling at archival.
type RetentionConfig struct {
	// Keyboard is "preserve" (move into the bundle) or "purge"
	// (delete). Default: preserve.
	Keyboard string `yaml:"keyboard"`
}

// Default returns the default configuration. Every field is usable
// without a config file; the file only overrides.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".local", "share", "chronicle")

	return &Config{
		Paths: PathsConfig{
			Root:       root,
			Spool:      filepath.Join(root, "spool"),
			Embeddings: filepath.Join(root, "embeddings"),
			Archive:    filepath.Join(root, "archive"),
			StateFile:  filepath.Join(root, "state", "pending.json"),
			LockFile:   filepath.Join(root, "state", "processor.lock"),
			Logs:       filepath.Join(root, "logs"),
		},
		Capture: CaptureConfig{
			SamplePeriod: "3m",
			WindowSize:   3,
			LowWater:     30,
			HighWater:    80,
		},
		Pipeline: PipelineConfig{
			BatchSize:     10,
			HaltOnFailure: false,
		},
		Embedder: EmbedderConfig{
			Endpoint: "http://127.0.0.1:8085/v1/embeddings",
			Model:    "chronicle-text-v1",
			Timeout:  "1m",
		},
		Retention: RetentionConfig{
			Keyboard: "preserve",
		},
	}
}

// Load loads configuration from the CHRONICLE_CONFIG environment
// variable. An unset variable yields the defaults; there is no file
// discovery.
func Load() (*Config, error) {
	configPath := os.Getenv("CHRONICLE_CONFIG")
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults. The config file is the single source of truth;
// environment variables never override values. The only expansion
// performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"CHRONICLE_ROOT": c.Paths.Root,
		"HOME":           os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["CHRONICLE_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Spool = expandVars(c.Paths.Spool, vars)
	c.Paths.Embeddings = expandVars(c.Paths.Embeddings, vars)
	c.Paths.Archive = expandVars(c.Paths.Archive, vars)
	c.Paths.StateFile = expandVars(c.Paths.StateFile, vars)
	c.Paths.LockFile = expandVars(c.Paths.LockFile, vars)
	c.Paths.Logs = expandVars(c.Paths.Logs, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Every error names the
// offending field.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Spool == "" {
		errs = append(errs, fmt.Errorf("paths.spool is required"))
	}
	if c.Paths.Embeddings == "" {
		errs = append(errs, fmt.Errorf("paths.embeddings is required"))
	}
	if c.Paths.Archive == "" {
		errs = append(errs, fmt.Errorf("paths.archive is required"))
	}
	if c.Paths.StateFile == "" {
		errs = append(errs, fmt.Errorf("paths.state_file is required"))
	}
	if c.Paths.LockFile == "" {
		errs = append(errs, fmt.Errorf("paths.lock_file is required"))
	}
	if c.Paths.Logs == "" {
		errs = append(errs, fmt.Errorf("paths.logs is required"))
	}

	if _, err := time.ParseDuration(c.Capture.SamplePeriod); err != nil {
		errs = append(errs, fmt.Errorf("capture.sample_period: %w", err))
	}
	if c.Capture.WindowSize < 1 {
		errs = append(errs, fmt.Errorf("capture.window_size must be at least 1"))
	}
	if c.Capture.LowWater <= 0 || c.Capture.LowWater > 100 {
		errs = append(errs, fmt.Errorf("capture.low_water must be in (0, 100]"))
	}
	if c.Capture.HighWater <= 0 || c.Capture.HighWater > 100 {
		errs = append(errs, fmt.Errorf("capture.high_water must be in (0, 100]"))
	}
	if c.Capture.LowWater > c.Capture.HighWater {
		errs = append(errs, fmt.Errorf("capture.low_water must not exceed capture.high_water"))
	}

	if c.Pipeline.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.batch_size must be at least 1"))
	}

	if c.Embedder.Endpoint == "" {
		errs = append(errs, fmt.Errorf("embedder.endpoint is required"))
	}
	if c.Embedder.Model == "" {
		errs = append(errs, fmt.Errorf("embedder.model is required"))
	}
	if _, err := time.ParseDuration(c.Embedder.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("embedder.timeout: %w", err))
	}

	if _, err := archive.ParseRetention(c.Retention.Keyboard); err != nil {
		errs = append(errs, fmt.Errorf("retention.keyboard: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Period returns the parsed capture sampling interval. Call after
// Validate; a malformed value yields the default.
func (c *CaptureConfig) Period() time.Duration {
	period, err := time.ParseDuration(c.SamplePeriod)
	if err != nil {
		return 3 * time.Minute
	}
	return period
}

// TimeoutDuration returns the parsed embedder call timeout. Call
// after Validate; a malformed value yields the default.
func (c *EmbedderConfig) TimeoutDuration() time.Duration {
	timeout, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return time.Minute
	}
	return timeout
}

// KeyboardRetention returns the parsed retention mode. Call after
// Validate; a malformed value yields preserve.
func (c *RetentionConfig) KeyboardRetention() archive.Retention {
	retention, err := archive.ParseRetention(c.Keyboard)
	if err != nil {
		return archive.RetentionPreserve
	}
	return retention
}

// EnsurePaths creates all configured directories if they don't exist.
// File paths get their parent directory created.
func (c *Config) EnsurePaths() error {
	directories := []string{
		c.Paths.Spool,
		c.Paths.Embeddings,
		c.Paths.Archive,
		filepath.Dir(c.Paths.StateFile),
		filepath.Dir(c.Paths.LockFile),
		c.Paths.Logs,
	}
	for _, directory := range directories {
		if directory == "" {
			continue
		}
		if err := os.MkdirAll(directory, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", directory, err)
		}
	}
	return nil
}
