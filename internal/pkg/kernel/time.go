// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"time"

	"golang.org/x/sys/unix"
)

// MonotonicNow returns the CLOCK_MONOTONIC time in nanoseconds. This is the
// clock the latency tracker module uses for its steady timestamps.
func MonotonicNow() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Nano()) // nolint: gosec  // Monotonic clock is never negative.
}

// SteadyToSystem converts the steady (monotonic) timestamp steady into
// system time, using the pair (anchorSystem, anchorSteady) that was sampled
// at the same instant on both clocks. A steady timestamp earlier than the
// anchor is clamped to the anchor.
func SteadyToSystem(anchorSystem, anchorSteady, steady uint64) time.Time {
	start := time.Unix(0, int64(anchorSystem)) // nolint: gosec  // Epoch ns fit in int64 until 2262.
	if steady <= anchorSteady {
		return start
	}
	return start.Add(time.Duration(steady - anchorSteady)) // nolint: gosec  // Span durations fit in int64.
}
