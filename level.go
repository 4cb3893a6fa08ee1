// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package msprofile

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
)

// LogLevel is the minimum level of the default logger.
type LogLevel string

const (
	logLevelUndefined LogLevel = ""
	// LogLevelDebug logs everything, including per-record diagnostics.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo logs lifecycle events, warnings and errors.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs warnings and errors.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs errors only.
	LogLevelError LogLevel = "error"
)

var errInvalidLogLevel = errors.New("invalid LogLevel")

// String returns the string encoding of the LogLevel l.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, logLevelUndefined:
		return string(l)
	default:
		return fmt.Sprintf("Level(%s)", string(l))
	}
}

// UnmarshalText decodes a case-insensitive level name.
func (l *LogLevel) UnmarshalText(text []byte) error {
	if l == nil {
		return errors.New("nil LogLevel")
	}
	*l = LogLevel(bytes.ToLower(bytes.TrimSpace(text)))
	switch *l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return fmt.Errorf("%w: %s", errInvalidLogLevel, l.String())
	}
}

// ParseLogLevel return a new LogLevel parsed from text. A non-nil error is
// returned if text is not a valid LogLevel.
func ParseLogLevel(text string) (LogLevel, error) {
	var level LogLevel
	err := level.UnmarshalText([]byte(text))
	return level, err
}

// slogLevel returns the slog level for l. An undefined level is info.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
