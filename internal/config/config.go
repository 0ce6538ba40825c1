// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config assembles runtime configuration from the environment.
// Precedence is ENV > default; the instrument configuration file is a
// separate document loaded by the instrument registry.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the runtime settings of the test-execution core.
type Config struct {
	// ScriptsDir is the directory holding "Other" measurement scripts.
	// Relative paths resolve against the process working directory.
	ScriptsDir string

	// ReportBaseDir is the base directory for auto-generated CSV reports.
	ReportBaseDir string
	// ReportAutoSave controls whether a report is written on session finalisation.
	ReportAutoSave bool
	// ReportMaxAgeDays is the retention window for generated reports; 0 disables cleanup.
	ReportMaxAgeDays int

	// InstrumentsPath points to the instrument configuration document (JSON or YAML).
	InstrumentsPath string

	// StoreBackend selects the persistence adapter ("memory" or "sqlite").
	StoreBackend string
	// StorePath is the sqlite database path (unused for memory).
	StorePath string

	// Listen is the daemon bind address.
	Listen string

	LogLevel string
}

// FromEnv reads the configuration from the process environment.
func FromEnv() Config {
	return Config{
		ScriptsDir:       ParseString("SCRIPTS_DIR", "scripts"),
		ReportBaseDir:    ParseString("REPORT_BASE_DIR", "reports"),
		ReportAutoSave:   ParseBool("REPORT_AUTO_SAVE", true),
		ReportMaxAgeDays: ParseInt("REPORT_MAX_AGE_DAYS", 0),
		InstrumentsPath:  ParseString("WEBPDTOOL_INSTRUMENTS", "instruments.json"),
		StoreBackend:     ParseString("WEBPDTOOL_STORE", "memory"),
		StorePath:        ParseString("WEBPDTOOL_DB", "webpdtool.db"),
		Listen:           ParseString("WEBPDTOOL_LISTEN", ":8080"),
		LogLevel:         ParseString("LOG_LEVEL", "info"),
	}
}

// Validate checks settings that would otherwise fail deep inside a session.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown store backend: %s", c.StoreBackend)
	}
	if c.ReportMaxAgeDays < 0 {
		return fmt.Errorf("REPORT_MAX_AGE_DAYS must be >= 0, got %d", c.ReportMaxAgeDays)
	}
	return nil
}

// ResolveScriptsDir returns the absolute scripts directory. Relative paths
// are resolved against the process working directory, never against any
// source file location.
func (c Config) ResolveScriptsDir() (string, error) {
	if filepath.IsAbs(c.ScriptsDir) {
		return c.ScriptsDir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve scripts dir: %w", err)
	}
	return filepath.Join(wd, c.ScriptsDir), nil
}
