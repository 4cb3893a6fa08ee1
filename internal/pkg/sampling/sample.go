// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"runtime"
	"time"
)

// MaxStackDepth is the maximum number of program counters kept per stack.
const MaxStackDepth = 60

// Origin is what triggered a sample.
type Origin uint8

const (
	// OriginUser is a sample triggered by a signal sent to the process,
	// typically while its threads are blocked (off-CPU).
	OriginUser Origin = iota + 1
	// OriginTimer is a sample triggered by the profiling timer while the
	// process runs (on-CPU).
	OriginTimer
)

func (o Origin) String() string {
	switch o {
	case OriginUser:
		return "user"
	case OriginTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// OnCPU reports whether samples of this origin were taken on-CPU.
func (o Origin) OnCPU() bool { return o == OriginTimer }

// Sample is a snapshot of the goroutine stacks of the process.
type Sample struct {
	// Time is when the capture started.
	Time time.Time
	// Origin is what triggered the capture.
	Origin Origin
	// Overhead is the time spent capturing, measured on the monotonic clock.
	Overhead time.Duration
	// Stacks holds one entry per goroutine, each at most MaxStackDepth
	// program counters long.
	Stacks [][]uintptr
}

// Frames symbolizes the i-th stack of s.
func (s Sample) Frames(i int) []runtime.Frame {
	var out []runtime.Frame
	frames := runtime.CallersFrames(s.Stacks[i])
	for {
		f, more := frames.Next()
		out = append(out, f)
		if !more {
			break
		}
	}
	return out
}

// captureStacks returns the stacks of all goroutines, truncated to
// MaxStackDepth.
func captureStacks() [][]uintptr {
	n := runtime.NumGoroutine() + 16
	for {
		records := make([]runtime.StackRecord, n)
		got, ok := runtime.GoroutineProfile(records)
		if !ok {
			n = got + 16
			continue
		}

		stacks := make([][]uintptr, 0, got)
		for _, r := range records[:got] {
			pcs := r.Stack()
			if len(pcs) > MaxStackDepth {
				pcs = pcs[:MaxStackDepth]
			}
			stacks = append(stacks, append([]uintptr(nil), pcs...))
		}
		return stacks
	}
}
