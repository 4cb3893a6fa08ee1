// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package boundary advertises application span boundaries to the latency
// tracker kernel module.
package boundary

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/latency-tracker/msprofile/internal/pkg/lifecycle"
	"github.com/latency-tracker/msprofile/internal/pkg/telemetry"
)

const (
	// BeginPath receives one record per started span.
	BeginPath = "/proc/latency-tracker-begin"
	// EndPath receives one record per ended span.
	EndPath = "/proc/latency-tracker-end"

	// ReservedPrefix marks spans that are never advertised.
	ReservedPrefix = "__"
)

// Processor is an [sdktrace.SpanProcessor] writing a begin record when a
// span starts and an end record when it ends. Each record is written with a
// single unbuffered write so the module sees it whole.
//
// If either boundary file cannot be opened the processor is inert.
type Processor struct {
	logger  logr.Logger
	stop    *lifecycle.Stopper
	metrics *telemetry.Metrics

	mu    sync.RWMutex
	begin *os.File
	end   *os.File
}

var _ sdktrace.SpanProcessor = (*Processor)(nil)

// New opens beginPath and endPath and returns a [Processor] writing to
// them. The stop token is stopped on Shutdown and may be nil.
func New(logger logr.Logger, beginPath, endPath string, stop *lifecycle.Stopper, m *telemetry.Metrics) *Processor {
	p := &Processor{
		logger:  logger.WithName("Boundary"),
		stop:    stop,
		metrics: m,
	}

	begin, err := openBoundary(beginPath)
	if err != nil {
		p.logger.Error(err, "span boundaries disabled", "path", beginPath)
		return p
	}
	end, err := openBoundary(endPath)
	if err != nil {
		p.logger.Error(err, "span boundaries disabled", "path", endPath)
		_ = begin.Close()
		return p
	}

	p.begin, p.end = begin, end
	return p
}

func openBoundary(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

// Active reports whether the processor writes records.
func (p *Processor) Active() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.begin != nil
}

// OnStart writes "<start ns hex>:<span id>:<trace id>\n" to the begin file.
func (p *Processor) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	if strings.HasPrefix(s.Name(), ReservedPrefix) {
		return
	}
	sc := s.SpanContext()

	buf := make([]byte, 0, 16+1+16+1+32+1)
	buf = strconv.AppendUint(buf, uint64(s.StartTime().UnixNano()), 16) // nolint: gosec  // Start times are after the epoch.
	buf = append(buf, ':')
	buf = append(buf, sc.SpanID().String()...)
	buf = append(buf, ':')
	buf = append(buf, sc.TraceID().String()...)
	buf = append(buf, '\n')

	p.write(telemetry.KindBegin, buf)
}

// OnEnd writes "<span id>\n" to the end file.
func (p *Processor) OnEnd(s sdktrace.ReadOnlySpan) {
	if strings.HasPrefix(s.Name(), ReservedPrefix) {
		return
	}
	buf := append([]byte(s.SpanContext().SpanID().String()), '\n')
	p.write(telemetry.KindEnd, buf)
}

func (p *Processor) write(kind string, rec []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	f := p.begin
	if kind == telemetry.KindEnd {
		f = p.end
	}
	if f == nil {
		return
	}

	if _, err := f.Write(rec); err != nil {
		p.logger.Error(err, "failed to write span boundary", "kind", kind)
		if p.metrics != nil {
			p.metrics.BoundaryWriteErrors.Inc()
		}
		return
	}
	if p.metrics != nil {
		p.metrics.BoundaryRecords.WithLabelValues(kind).Inc()
	}
}

// ForceFlush does nothing: records are written unbuffered.
func (p *Processor) ForceFlush(context.Context) error { return nil }

// Shutdown stops the shared stop token and closes the boundary files. It is
// safe to call more than once.
func (p *Processor) Shutdown(context.Context) error {
	if p.stop != nil {
		p.stop.Stop()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.begin != nil {
		err = errors.Join(err, p.begin.Close())
		p.begin = nil
	}
	if p.end != nil {
		err = errors.Join(err, p.end.Close())
		p.end = nil
	}
	if err != nil {
		p.logger.Error(err, "failed to close span boundary files")
	}
	return nil
}
