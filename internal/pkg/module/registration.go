// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package module

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
)

// Registration tracks whether the process is registered with the latency
// tracker module. It is safe for concurrent use.
type Registration struct {
	logger      logr.Logger
	open        Opener
	serviceName string

	mu         sync.Mutex
	dev        Device
	registered atomic.Bool
	threshold  time.Duration
}

// NewRegistration returns a [Registration] for serviceName that opens the
// module with open. Nothing is sent until Register is called.
func NewRegistration(logger logr.Logger, serviceName string, open Opener) *Registration {
	return &Registration{
		logger:      logger.WithName("Registration"),
		open:        open,
		serviceName: serviceName,
	}
}

// Register registers the process with the module. A process already
// registered is first fully unregistered.
//
// The threshold is the minimum span duration the module should report. It
// is kept for diagnostics but not transmitted: the control message has no
// field for it.
func (r *Registration) Register(threshold time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registered.Load() {
		if err := r.unregister(); err != nil {
			r.logger.Error(err, "failed to unregister before re-registering")
		}
	}

	dev, err := r.open()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	msg := Message{Cmd: CommandRegister, ServiceName: r.serviceName}
	if err := dev.Control(msg); err != nil {
		return errors.Join(err, dev.Close())
	}

	r.dev = dev
	r.threshold = threshold
	r.registered.Store(true)
	r.logger.V(1).Info("registered", "service", r.serviceName, "threshold", threshold)
	return nil
}

// Unregister unregisters the process. It is a no-op when the process is not
// registered.
func (r *Registration) Unregister() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unregister()
}

func (r *Registration) unregister() error {
	if !r.registered.Load() {
		return nil
	}
	dev := r.dev
	r.dev = nil
	r.registered.Store(false)

	err := errors.Join(
		dev.Control(Message{Cmd: CommandUnregister, ServiceName: r.serviceName}),
		dev.Close(),
	)
	r.logger.V(1).Info("unregistered", "service", r.serviceName, "error", err)
	return err
}

// UnregisterThread asks the module to stop monitoring the calling OS thread
// while keeping the process registered. The caller is expected to have
// locked its goroutine to the thread. It is a no-op when the process is not
// registered.
func (r *Registration) UnregisterThread() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.registered.Load() {
		return nil
	}
	return r.dev.Control(Message{Cmd: CommandUnregister, ServiceName: r.serviceName})
}

// IsRegistered reports whether the process is currently registered.
func (r *Registration) IsRegistered() bool {
	return r.registered.Load()
}

// Threshold returns the threshold passed to the last successful Register.
func (r *Registration) Threshold() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threshold
}
