// Package config loads the single configuration record for a deferrun
// process: a project-root file discovered by walking upward from the
// working directory, merged over secure defaults, with environment
// variable overrides for deployment flexibility.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggingConfig controls where and how much the runtime logs.
type LoggingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
	Level     string `yaml:"level"`
}

// ProcessConfig bounds a worker's resource usage.
type ProcessConfig struct {
	MemoryLimit string `yaml:"memory_limit"`
	TimeoutSec  int    `yaml:"timeout"`
}

// MetricsConfig controls the optional Prometheus exporter, off by
// default so a bare install never opens a listening port unasked.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// HistoryConfig controls the optional bbolt archive of terminal task
// statuses, consulted by pkg/runtime once a status file has been swept
// by cleanup.
type HistoryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
}

// Config is the fully-resolved configuration for one deferrun process.
type Config struct {
	TempDirectory      string        `yaml:"temp_directory"`
	Logging            LoggingConfig `yaml:"logging"`
	Process            ProcessConfig `yaml:"process"`
	BootstrapFramework bool          `yaml:"bootstrap_framework"`
	Metrics            MetricsConfig `yaml:"metrics"`
	History            HistoryConfig `yaml:"history"`
}

// marker is the file Discover looks for when walking upward; its
// presence identifies the project root the same way a dependency
// directory would.
const marker = "go.mod"

const fileName = "deferrun.yaml"

// Defaults returns the baseline configuration used when no file is
// found and no environment variable overrides it.
func Defaults() *Config {
	return &Config{
		TempDirectory: filepath.Join(os.TempDir(), "defer_tasks"),
		Logging: LoggingConfig{
			Enabled:   true,
			Directory: filepath.Join(os.TempDir(), "defer_logs"),
			Level:     "info",
		},
		Process: ProcessConfig{
			MemoryLimit: "512M",
			TimeoutSec:  0,
		},
		BootstrapFramework: true,
		Metrics: MetricsConfig{
			Enabled:       false,
			ListenAddress: ":9090",
		},
		History: HistoryConfig{
			Enabled:   false,
			Directory: filepath.Join(os.TempDir(), "defer_history"),
		},
	}
}

// Discover walks upward from dir (os.Getwd() if empty) to the nearest
// directory containing marker and returns the path to fileName there.
// It returns os.ErrNotExist if that directory has no fileName (the walk
// does not continue past it) or if no marker is found before reaching
// the filesystem root.
func Discover(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("discover config: %w", err)
		}
		dir = wd
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			candidate := filepath.Join(dir, fileName)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			return "", os.ErrNotExist
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// Load reads and parses the configuration file at path over Defaults(),
// so a partial file only overrides the keys it sets.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvOverrides applies deployment-time environment variable
// overrides, highest precedence.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEFERRUN_TEMP_DIRECTORY"); v != "" {
		cfg.TempDirectory = v
	}
	if v := os.Getenv("DEFERRUN_LOG_DIRECTORY"); v != "" {
		cfg.Logging.Directory = v
	}
	if v := os.Getenv("DEFERRUN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DEFERRUN_PROCESS_MEMORY_LIMIT"); v != "" {
		cfg.Process.MemoryLimit = v
	}
	if v := os.Getenv("DEFERRUN_PROCESS_TIMEOUT"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			cfg.Process.TimeoutSec = sec
		}
	}
	if v := os.Getenv("DEFERRUN_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "1" || v == "true"
	}
	if v := os.Getenv("DEFERRUN_METRICS_LISTEN_ADDRESS"); v != "" {
		cfg.Metrics.ListenAddress = v
	}
	if v := os.Getenv("DEFERRUN_HISTORY_ENABLED"); v != "" {
		cfg.History.Enabled = v == "1" || v == "true"
	}
	if v := os.Getenv("DEFERRUN_HISTORY_DIRECTORY"); v != "" {
		cfg.History.Directory = v
	}
}

var (
	singleton     *Config
	singletonOnce sync.Once
)

// Default lazily constructs the process-wide Config instance, a
// convenience top-level facade: Discover+Load if a project config file
// exists, otherwise Defaults(), always finished off with environment
// overrides. Safe to call repeatedly; the result is cached for the life
// of the process.
func Default() *Config {
	singletonOnce.Do(func() {
		cfg := Defaults()
		if path, err := Discover(""); err == nil {
			if loaded, err := Load(path); err == nil {
				cfg = loaded
			}
		}
		applyEnvOverrides(cfg)
		singleton = cfg
	})
	return singleton
}

// Timeout returns Process.TimeoutSec as a time.Duration, or 0 (no
// limit) when unset.
func (c *Config) Timeout() time.Duration {
	if c.Process.TimeoutSec <= 0 {
		return 0
	}
	return time.Duration(c.Process.TimeoutSec) * time.Second
}

// StatusDir is where statusstore keeps its "<taskId>.status" files.
func (c *Config) StatusDir() string {
	return filepath.Join(c.TempDirectory, "status")
}

// ScriptsDir is where workerscript writes generated worker sources
// before spawning them, and where cleanup sweeps orphans from.
func (c *Config) ScriptsDir() string {
	return filepath.Join(c.TempDirectory, "scripts")
}

// ProjectRoot returns the directory of the config file Discover finds,
// or the current working directory when Discover finds none (including
// when the marker directory has no config file). Used by
// pkg/bootstrap to scope its framework auto-detection.
func (c *Config) ProjectRoot() string {
	if path, err := Discover(""); err == nil {
		return filepath.Dir(path)
	}
	wd, _ := os.Getwd()
	return wd
}
