// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package opentelemetry injects kernel syscall records into OpenTelemetry
// traces.
package opentelemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/latency-tracker/msprofile/internal/pkg/kernel"
	"github.com/latency-tracker/msprofile/internal/pkg/lifecycle"
	"github.com/latency-tracker/msprofile/internal/pkg/relay"
	"github.com/latency-tracker/msprofile/internal/pkg/telemetry"
)

const (
	// TracerName is the instrumentation scope of injected spans.
	TracerName = "github.com/latency-tracker/msprofile"

	// KernelSpanName is the name of the span grouping the syscalls of one
	// record.
	KernelSpanName = "kernel"

	// ReservedPrefix marks spans produced by the injector itself. Such spans
	// are never advertised to the kernel module.
	ReservedPrefix = "__"
)

// SyscallNameKey is the attribute holding the syscall name.
var SyscallNameKey = attribute.Key("syscall.name")

// ErrMalformed is returned for records whose identifiers cannot be decoded.
var ErrMalformed = errors.New("malformed relay record")

// Injector turns relay records into spans parented by the application span
// that was active when the syscalls happened.
type Injector struct {
	logger  logr.Logger
	tracer  trace.Tracer
	stop    *lifecycle.Stopper
	metrics *telemetry.Metrics
}

// NewInjector returns a new [Injector] creating spans with a tracer from tp.
// The stop token may be nil.
func NewInjector(logger logr.Logger, tp trace.TracerProvider, ver string, stop *lifecycle.Stopper, m *telemetry.Metrics) *Injector {
	return &Injector{
		logger:  logger.WithName("Injector"),
		tracer:  tp.Tracer(TracerName, trace.WithInstrumentationVersion(ver)),
		stop:    stop,
		metrics: m,
	}
}

// Inject creates a "kernel" span with one child per syscall of rec.
//
// If the stop token is set before all syscalls are injected, the kernel span
// is ended at the end of the last injected syscall and
// [lifecycle.ErrStopped] is returned.
func (i *Injector) Inject(rec relay.Record) error {
	sc, err := parentContext(rec.Header)
	if err != nil {
		i.logger.Error(err, "dropping relay record", "span_id", rec.Header.SpanID, "trace_id", rec.Header.TraceID)
		i.metrics.Drop(telemetry.DropMalformedIDs)
		return err
	}
	if len(rec.Syscalls) == 0 {
		return nil
	}

	ctx := trace.ContextWithRemoteSpanContext(context.Background(), sc)
	first := rec.Syscalls[0]
	ctx, kspan := i.tracer.Start(ctx, KernelSpanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(first.Start()),
	)

	end := first.Start()
	for n, sys := range rec.Syscalls {
		if i.stop.Stopped() {
			kspan.End(trace.WithTimestamp(end))
			i.logger.Info("stop requested during injection", "injected", n, "total", len(rec.Syscalls))
			return lifecycle.ErrStopped
		}

		_, span := i.tracer.Start(ctx, ReservedPrefix+sys.Name,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithTimestamp(sys.Start()),
			trace.WithAttributes(SyscallNameKey.String(sys.Name)),
		)
		end = sys.End()
		span.End(trace.WithTimestamp(end))
		if i.metrics != nil {
			i.metrics.InjectedSpans.Inc()
		}
	}

	last := rec.Syscalls[len(rec.Syscalls)-1]
	kspan.End(trace.WithTimestamp(kernelEnd(first, last)))
	return nil
}

// kernelEnd is the end of last on the system clock of first.
func kernelEnd(first, last relay.Descriptor) time.Time {
	return kernel.SteadyToSystem(first.StartSystem, first.StartSteady, last.EndSteady)
}

func parentContext(h relay.Header) (trace.SpanContext, error) {
	sid, err := trace.SpanIDFromHex(h.SpanID)
	if err != nil {
		return trace.SpanContext{}, fmt.Errorf("%w: span id %q: %w", ErrMalformed, h.SpanID, err)
	}
	tid, err := trace.TraceIDFromHex(h.TraceID)
	if err != nil {
		return trace.SpanContext{}, fmt.Errorf("%w: trace id %q: %w", ErrMalformed, h.TraceID, err)
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}), nil
}
