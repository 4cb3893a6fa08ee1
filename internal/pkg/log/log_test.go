// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package log_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latency-tracker/msprofile/internal/pkg/log"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	l := log.New(&buf, slog.LevelInfo).WithName("Reader")

	l.V(1).Info("hidden")
	assert.Zero(t, buf.Len(), "V(1) is below info")

	l.Error(errors.New("boom"), "poll failed", "fd", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "poll failed", rec["msg"])
	assert.Equal(t, "boom", rec["err"])
	assert.Equal(t, "Reader", rec["logger"])
	assert.Contains(t, rec, "source")
}

func TestNewDebug(t *testing.T) {
	var buf bytes.Buffer
	l := log.New(&buf, slog.LevelDebug)

	l.V(1).Info("shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
