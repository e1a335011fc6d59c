// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Config describes one rollout run.
type Config struct {
	// Task selects the environment layout variant ("three" through
	// "eight").
	Task string `yaml:"task"`

	// Mode selects the worker isolation boundary: "inproc" or
	// "subprocess".
	Mode string `yaml:"mode"`

	// Steps is the total number of environment steps to run.
	Steps int `yaml:"steps"`

	// Seed fixes the environment and policy randomness.
	Seed int64 `yaml:"seed"`

	// EpisodeLength is the per-episode step budget before truncation.
	EpisodeLength int `yaml:"episode_length"`

	// LogLevel is the slog level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration. It is a complete, valid
// config; the file and flags only override it.
func Default() *Config {
	return &Config{
		Task:          "three",
		Mode:          "subprocess",
		Steps:         1000,
		Seed:          0,
		EpisodeLength: 1000,
		LogLevel:      "info",
	}
}

// Load loads configuration from the PARALLAX_CONFIG environment
// variable, falling back to the defaults when it is unset.
func Load() (*Config, error) {
	path := os.Getenv("PARALLAX_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults. The file is the single source of truth; environment
// variables do not override its values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

var (
	tasks     = []string{"three", "four", "five", "six", "seven", "eight"}
	modes     = []string{"inproc", "subprocess"}
	logLevels = []string{"debug", "info", "warn", "error"}
)

// Validate checks the configuration for errors, reporting all of them
// at once.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(tasks, c.Task) {
		errs = append(errs, fmt.Errorf("task must be one of %v, got %q", tasks, c.Task))
	}
	if !slices.Contains(modes, c.Mode) {
		errs = append(errs, fmt.Errorf("mode must be one of %v, got %q", modes, c.Mode))
	}
	if c.Steps <= 0 {
		errs = append(errs, fmt.Errorf("steps must be positive, got %d", c.Steps))
	}
	if c.EpisodeLength <= 0 {
		errs = append(errs, fmt.Errorf("episode_length must be positive, got %d", c.EpisodeLength))
	}
	if !slices.Contains(logLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level must be one of %v, got %q", logLevels, c.LogLevel))
	}

	return errors.Join(errs...)
}

// SlogLevel maps the configured level name to a slog level. Call
// Validate first; unknown names map to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
