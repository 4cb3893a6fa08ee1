// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RelayRecords.Inc()
	m.Drop(DropShortHeader)
	m.Drop(DropShortHeader)
	m.BoundaryRecords.WithLabelValues(KindBegin).Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayRecords))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RelayRecordsDropped.WithLabelValues(DropShortHeader)))

	n, err := testutil.GatherAndCount(reg, "msprofile_relay_records_total", "msprofile_boundary_records_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNewMetricsPrivateRegistry(t *testing.T) {
	// Two instances must not collide when no registerer is given.
	assert.NotPanics(t, func() {
		_ = NewMetrics(nil)
		_ = NewMetrics(nil)
	})
}

func TestDropNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.Drop(DropReadError) })
}
