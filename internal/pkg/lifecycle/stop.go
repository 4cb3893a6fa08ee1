// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle provides the stop token shared by the profiler
// components.
package lifecycle

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Stopper is a one-shot cancellation token. It is safe for concurrent use.
//
// The relay reader polls Stopped between bounded waits, the span injector
// checks it between descriptors, and the boundary processor sets it when the
// tracer provider shuts down.
type Stopper struct {
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
}

// NewStopper returns a [Stopper] that has not been stopped.
func NewStopper() *Stopper {
	return &Stopper{done: make(chan struct{})}
}

// Stop marks the token as stopped. Only the first call has an effect.
func (s *Stopper) Stop() {
	s.once.Do(func() {
		s.stopped.Store(true)
		close(s.done)
	})
}

// Stopped reports whether Stop has been called.
func (s *Stopper) Stopped() bool {
	if s == nil {
		return false
	}
	return s.stopped.Load()
}

// Done returns a channel that is closed once Stop has been called.
func (s *Stopper) Done() <-chan struct{} {
	return s.done
}

// ErrStopped is returned by operations that terminated early because the
// [Stopper] was stopped.
var ErrStopped = errors.New("stopped")
