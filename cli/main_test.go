// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestParseFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f, err := parseFlags(fs, []string{"-global", "-duration=2s", "-metrics-addr=:9464", "-log-level=debug"})
	require.NoError(t, err)
	assert.True(t, f.global)
	assert.Equal(t, 2*time.Second, f.duration)
	assert.Equal(t, 100*time.Millisecond, f.interval)
	assert.Equal(t, "/proc/self/stat", f.workloadFile)
	assert.Equal(t, ":9464", f.metricsAddr)
	assert.Equal(t, "debug", f.logLevel)

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	_, err = parseFlags(fs, []string{"-interval=0s"})
	assert.Error(t, err)
}

func TestRunWorkload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { assert.NoError(t, tp.Shutdown(context.Background())) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	n, err := runWorkload(ctx, tp.Tracer("test"), time.Millisecond, path)
	require.NoError(t, err)
	require.Positive(t, n)

	spans := sr.Ended()
	require.Len(t, spans, n)
	assert.Equal(t, "workload", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.Int64("file.read_bytes", 5))
}

func TestWorkloadMissingFile(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { assert.NoError(t, tp.Shutdown(context.Background())) })

	iteration(context.Background(), tp.Tracer("test"), filepath.Join(t.TempDir(), "missing"))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestNewVersion(t *testing.T) {
	v := newVersion()
	assert.NotEmpty(t, v.Release)
	assert.NotEmpty(t, v.Revision)
	assert.NotEmpty(t, v.Go)
}
