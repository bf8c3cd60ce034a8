// Package config loads sfcpath settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable setting. Zero values are replaced by Default.
type Config struct {
	// Database is the SQLite file path.
	Database string `yaml:"database"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Policy names the candidate selection policy: first-match, round-robin
	// or expression. PolicyExpression is the CEL predicate for expression.
	Policy           string `yaml:"policy"`
	PolicyExpression string `yaml:"policy_expression"`

	// BindRetries bounds retries of a forwarder write after an etag conflict.
	BindRetries int `yaml:"bind_retries"`

	// Workers bounds concurrently running units of work.
	Workers int `yaml:"workers"`

	// MetricsAddr is the listen address for /metrics in serve mode. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:    "sfcpath.db",
		LogLevel:    "info",
		LogFormat:   "text",
		Policy:      "first-match",
		BindRetries: 5,
		Workers:     4,
	}
}

// Load reads path and overlays it on Default. Unknown keys are rejected.
// An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q must be debug, info, warn or error", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", c.LogFormat))
	}
	switch c.Policy {
	case "first-match", "round-robin":
	case "expression":
		if c.PolicyExpression == "" {
			errs = append(errs, errors.New("policy_expression is required for the expression policy"))
		}
	default:
		errs = append(errs, fmt.Errorf("policy %q must be first-match, round-robin or expression", c.Policy))
	}
	if c.BindRetries < 0 {
		errs = append(errs, fmt.Errorf("bind_retries %d must not be negative", c.BindRetries))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers %d must be at least 1", c.Workers))
	}
	return errors.Join(errs...)
}
