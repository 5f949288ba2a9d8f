// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logging sets up the daemon's process-wide zerolog logger, grounded
// on telnet2-opencode/go-opencode/internal/logging's Init shape: a console
// writer in debug mode, JSON lines otherwise, one global logger field-scoped
// per component rather than per-package loggers.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config configures the global logger.
type Config struct {
	// Debug selects a human-readable console writer instead of JSON lines.
	Debug bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Init installs the process-wide zerolog logger as the default logger used
// by every package's "github.com/rs/zerolog/log" import.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with component=name, the
// field-scoping convention every package in this daemon uses instead of a
// per-package logger instance.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
