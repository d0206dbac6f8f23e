// Package config loads opmesh settings from YAML.
//
// Every field has a default (see Default), so a config file only needs to
// name what it changes. Durations are written as Go duration strings such
// as "1s" or "24h".
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/opmesh/core"
	"github.com/hupe1980/opmesh/logging"
)

// Duration is a time.Duration written as a duration string in YAML.
type Duration time.Duration

// UnmarshalYAML parses strings like "500ms". Bare integers are nanoseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		var n int64
		if nerr := node.Decode(&n); nerr != nil {
			return fmt.Errorf("line %d: invalid duration %q", node.Line, s)
		}
		parsed = time.Duration(n)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ResilienceConfig tunes circuit breaking, retry and failover.
type ResilienceConfig struct {
	FailureThreshold uint     `yaml:"failure_threshold"`
	ResetTimeout     Duration `yaml:"reset_timeout"`
	MaxRetries       int      `yaml:"max_retries"`
	BaseDelay        Duration `yaml:"base_delay"`
	MaxDelay         Duration `yaml:"max_delay"`
	Providers        []string `yaml:"providers,omitempty"`
}

// ContextConfig bounds the per-session operation log.
type ContextConfig struct {
	MaxContextSize       int      `yaml:"max_context_size"`
	CompressionThreshold int      `yaml:"compression_threshold"`
	RelevantLimit        int      `yaml:"relevant_limit"`
	SessionMaxAge        Duration `yaml:"session_max_age"`
	CleanupInterval      Duration `yaml:"cleanup_interval"`
}

// EngineConfig tunes workflow execution.
type EngineConfig struct {
	MaxParallelism int `yaml:"max_parallelism"`
}

// HistoryConfig selects where finished executions are kept.
type HistoryConfig struct {
	Driver     string   `yaml:"driver"` // memory or sqlite
	Path       string   `yaml:"path,omitempty"`
	MaxEntries int      `yaml:"max_entries"`
	Retention  Duration `yaml:"retention"`
}

// LoggingConfig mirrors logging.LoggerConfig.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Config is the root document.
type Config struct {
	Resilience ResilienceConfig `yaml:"resilience"`
	Context    ContextConfig    `yaml:"context"`
	Engine     EngineConfig     `yaml:"engine"`
	History    HistoryConfig    `yaml:"history"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Resilience: ResilienceConfig{
			FailureThreshold: 5,
			ResetTimeout:     Duration(60 * time.Second),
			MaxRetries:       3,
			BaseDelay:        Duration(time.Second),
			MaxDelay:         Duration(30 * time.Second),
		},
		Context: ContextConfig{
			MaxContextSize:       10000,
			CompressionThreshold: 5000,
			RelevantLimit:        5,
			SessionMaxAge:        Duration(24 * time.Hour),
			CleanupInterval:      Duration(time.Hour),
		},
		History: HistoryConfig{
			Driver:     "memory",
			MaxEntries: 1000,
			Retention:  Duration(7 * 24 * time.Hour),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Marshal renders cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate reports every problem at once, wrapped in core.ErrInvalidConfig.
func (c Config) Validate() error {
	var problems []string

	r := c.Resilience
	if r.FailureThreshold == 0 {
		problems = append(problems, "resilience.failure_threshold must be positive")
	}
	if r.MaxRetries <= 0 {
		problems = append(problems, "resilience.max_retries must be positive")
	}
	if r.ResetTimeout < 0 || r.BaseDelay < 0 || r.MaxDelay < 0 {
		problems = append(problems, "resilience durations must not be negative")
	}
	if r.MaxDelay < r.BaseDelay {
		problems = append(problems, "resilience.max_delay must not be below base_delay")
	}

	cx := c.Context
	if cx.MaxContextSize <= 0 {
		problems = append(problems, "context.max_context_size must be positive")
	}
	if cx.CompressionThreshold <= 0 {
		problems = append(problems, "context.compression_threshold must be positive")
	}
	if cx.RelevantLimit <= 0 {
		problems = append(problems, "context.relevant_limit must be positive")
	}
	if cx.SessionMaxAge <= 0 {
		problems = append(problems, "context.session_max_age must be positive")
	}
	if cx.CleanupInterval < 0 {
		problems = append(problems, "context.cleanup_interval must not be negative")
	}

	if c.Engine.MaxParallelism < 0 {
		problems = append(problems, "engine.max_parallelism must not be negative")
	}

	switch c.History.Driver {
	case "memory":
	case "sqlite":
		if c.History.Path == "" {
			problems = append(problems, "history.path is required for the sqlite driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("history.driver %q is not one of memory, sqlite", c.History.Driver))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, "logging.level: "+err.Error())
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of json, text", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", core.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// LoggerConfig converts the logging section for logging.NewLogger. The
// level has already been validated.
func (c Config) LoggerConfig(out io.Writer) *logging.LoggerConfig {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return &logging.LoggerConfig{
		Level:       level,
		Format:      c.Logging.Format,
		Output:      out,
		AddSource:   c.Logging.AddSource,
		CustomAttrs: map[string]any{},
	}
}
