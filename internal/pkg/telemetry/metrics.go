// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry holds the self-observability metrics of the profiler.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "msprofile"

// Reasons a relay record is dropped.
const (
	DropShortHeader  = "short_header"
	DropShortPayload = "short_payload"
	DropOverCapacity = "over_capacity"
	DropMalformedIDs = "malformed_ids"
	DropReadError    = "read_error"
)

// Boundary record kinds.
const (
	KindBegin = "begin"
	KindEnd   = "end"
)

// Metrics holds all Prometheus metrics of the profiler.
type Metrics struct {
	// Relay channel metrics
	RelayRecords        prometheus.Counter
	RelayRecordsDropped *prometheus.CounterVec

	// Injector metrics
	InjectedSpans prometheus.Counter

	// Boundary exporter metrics
	BoundaryRecords     *prometheus.CounterVec
	BoundaryWriteErrors prometheus.Counter

	// CPU sampling metrics
	Samples        *prometheus.CounterVec
	SamplesDropped prometheus.Counter
	SampleOverhead prometheus.Histogram
}

// NewMetrics creates the profiler metrics and registers them with reg. If reg
// is nil, a private registry is used.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		RelayRecords: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_records_total",
			Help:      "Total number of records read from the relay channel",
		}),
		RelayRecordsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_records_dropped_total",
			Help:      "Total number of relay records dropped",
		}, []string{"reason"}),
		InjectedSpans: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "injected_spans_total",
			Help:      "Total number of syscall spans injected",
		}),
		BoundaryRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boundary_records_total",
			Help:      "Total number of span boundary records written",
		}, []string{"kind"}),
		BoundaryWriteErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boundary_write_errors_total",
			Help:      "Total number of failed span boundary writes",
		}),
		Samples: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Total number of stack samples captured",
		}, []string{"origin"}),
		SamplesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_dropped_total",
			Help:      "Total number of stack samples dropped because the queue was full",
		}),
		SampleOverhead: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sample_overhead_seconds",
			Help:      "Time spent capturing a stack sample",
			Buckets:   []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 5e-3, 1e-2},
		}),
	}
}

// Drop records a dropped relay record for reason. It is safe to call on a nil
// receiver.
func (m *Metrics) Drop(reason string) {
	if m == nil {
		return
	}
	m.RelayRecordsDropped.WithLabelValues(reason).Inc()
}
