// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package msprofile

import "github.com/latency-tracker/msprofile/internal/pkg/sampling"

// StackSample is a snapshot of the goroutine stacks of the process.
type StackSample = sampling.Sample

// SampleOrigin is what triggered a [StackSample].
type SampleOrigin = sampling.Origin

const (
	// OriginUser samples are triggered by the profiling signal (off-CPU).
	OriginUser = sampling.OriginUser
	// OriginTimer samples are triggered by the profiling timer (on-CPU).
	OriginTimer = sampling.OriginTimer
)

// MaxStackDepth is the maximum number of frames kept per stack.
const MaxStackDepth = sampling.MaxStackDepth

// SampleSink consumes stack samples. It is called from a single goroutine.
type SampleSink = sampling.Sink

// SampleSinkFunc adapts a function to a [SampleSink].
type SampleSinkFunc = sampling.SinkFunc
