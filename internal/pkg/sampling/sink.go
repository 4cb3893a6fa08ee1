// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package sampling

import "github.com/go-logr/logr"

// Sink consumes captured samples. It is called from a single goroutine.
type Sink interface {
	Consume(Sample)
}

// SinkFunc adapts a function to a [Sink].
type SinkFunc func(Sample)

// Consume calls f(s).
func (f SinkFunc) Consume(s Sample) { f(s) }

// LogSink returns a [Sink] logging a summary of every sample at verbosity 1.
func LogSink(logger logr.Logger) Sink {
	logger = logger.WithName("Sink")
	return SinkFunc(func(s Sample) {
		if !logger.V(1).Enabled() {
			return
		}
		top := ""
		if len(s.Stacks) > 0 && len(s.Stacks[0]) > 0 {
			top = s.Frames(0)[0].Function
		}
		logger.V(1).Info("stack sample",
			"origin", s.Origin.String(),
			"on_cpu", s.Origin.OnCPU(),
			"goroutines", len(s.Stacks),
			"overhead", s.Overhead,
			"top", top,
		)
	})
}
