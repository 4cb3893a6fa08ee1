// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// runWorkload reads path inside a new span every interval until ctx is done.
// It returns the number of iterations run.
func runWorkload(ctx context.Context, tracer trace.Tracer, interval time.Duration, path string) (int, error) {
	t := time.NewTicker(interval)
	defer t.Stop()

	var n int
	for {
		select {
		case <-ctx.Done():
			return n, nil
		case <-t.C:
			iteration(ctx, tracer, path)
			n++
		}
	}
}

func iteration(ctx context.Context, tracer trace.Tracer, path string) {
	_, span := tracer.Start(ctx, "workload",
		trace.WithAttributes(attribute.String("file.path", path)),
	)
	defer span.End()

	f, err := os.Open(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open")
		return
	}
	defer f.Close()

	read, err := io.Copy(io.Discard, f)
	span.SetAttributes(attribute.Int64("file.read_bytes", read))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read")
	}
}
