// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package log builds the default logger of the profiler.
package log

import (
	"io"
	"log/slog"

	"github.com/go-logr/logr"
)

// New returns a logger writing JSON records with source locations to w.
// Records below level are discarded. Verbosity n of the returned logger
// maps to slog level -n, so V(1) records are emitted at the debug level.
func New(w io.Writer, level slog.Level) logr.Logger {
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)
	opts := &slog.HandlerOptions{AddSource: true, Level: levelVar}
	return logr.FromSlogHandler(slog.NewJSONHandler(w, opts))
}
