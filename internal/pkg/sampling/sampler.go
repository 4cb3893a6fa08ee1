// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package sampling captures goroutine stack samples on a profiling signal
// and on a profiling timer.
//
// The Go runtime owns SIGPROF and SIGURG, so the profiling signal is a
// different, configurable one (SIGUSR2 by default). Samples are handed to a
// bounded queue and consumed by a [Sink] on a dedicated goroutine.
package sampling

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"

	"github.com/latency-tracker/msprofile/internal/pkg/kernel"
	"github.com/latency-tracker/msprofile/internal/pkg/telemetry"
)

// DefaultSignal is the default profiling signal.
var DefaultSignal os.Signal = syscall.SIGUSR2

// QueueSize is the number of samples buffered for the sink. Newer samples are
// dropped when it is full.
const QueueSize = 1024

var (
	// ErrInstalled is returned by Install when the sampler is installed.
	ErrInstalled = errors.New("sampler already installed")
	// ErrNotInstalled is returned by StartTimer before Install.
	ErrNotInstalled = errors.New("sampler not installed")
	// ErrSignalReserved is returned for signals the Go runtime keeps.
	ErrSignalReserved = errors.New("signal reserved by the Go runtime")
	// ErrSignalClaimed is returned when the signal is ignored by the
	// process.
	ErrSignalClaimed = errors.New("signal ignored by the process")
)

// Sampler captures stack samples. It is safe for concurrent use.
type Sampler struct {
	logger  logr.Logger
	sig     os.Signal
	sink    Sink
	metrics *telemetry.Metrics
	queue   chan Sample

	mu        sync.Mutex
	installed bool
	sigCh     chan os.Signal
	done      chan struct{}
	wg        sync.WaitGroup
}

// New returns an uninstalled [Sampler] for sig. A nil sink logs samples.
func New(logger logr.Logger, sig os.Signal, sink Sink, m *telemetry.Metrics) *Sampler {
	logger = logger.WithName("Sampler")
	if sig == nil {
		sig = DefaultSignal
	}
	if sink == nil {
		sink = LogSink(logger)
	}
	return &Sampler{
		logger:  logger,
		sig:     sig,
		sink:    sink,
		metrics: m,
		queue:   make(chan Sample, QueueSize),
	}
}

// Signal returns the profiling signal.
func (s *Sampler) Signal() os.Signal { return s.sig }

// Install starts handling the profiling signal.
func (s *Sampler) Install() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.installed {
		return ErrInstalled
	}
	if sig, ok := s.sig.(syscall.Signal); ok && (sig == syscall.SIGPROF || sig == syscall.SIGURG) {
		return fmt.Errorf("%w: %s", ErrSignalReserved, s.sig)
	}
	if signal.Ignored(s.sig) {
		return fmt.Errorf("%w: %s", ErrSignalClaimed, s.sig)
	}

	s.sigCh = make(chan os.Signal, 1)
	s.done = make(chan struct{})
	signal.Notify(s.sigCh, s.sig)

	s.wg.Add(2)
	go s.handleSignals(s.sigCh, s.done)
	go s.drain(s.done)

	s.installed = true
	s.logger.V(1).Info("sampler installed", "signal", s.sig.String())
	return nil
}

// StartTimer captures on-CPU samples every period until Uninstall.
func (s *Sampler) StartTimer(period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("invalid sampling period %s", period)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.installed {
		return ErrNotInstalled
	}

	s.wg.Add(1)
	go s.tick(period, s.done)
	s.logger.V(1).Info("sampling timer started", "period", period)
	return nil
}

// Installed reports whether the sampler is installed.
func (s *Sampler) Installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed
}

// Uninstall stops handling the signal, stops the timer and waits for the
// queued samples to be consumed. It is a no-op when not installed.
func (s *Sampler) Uninstall() {
	s.mu.Lock()
	if !s.installed {
		s.mu.Unlock()
		return
	}
	signal.Stop(s.sigCh)
	close(s.done)
	s.installed = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.V(1).Info("sampler uninstalled")
}

func (s *Sampler) handleSignals(ch <-chan os.Signal, done <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-done:
			return
		case <-ch:
			s.enqueue(s.capture(OriginUser))
		}
	}
}

func (s *Sampler) tick(period time.Duration, done <-chan struct{}) {
	defer s.wg.Done()
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			s.enqueue(s.capture(OriginTimer))
		}
	}
}

func (s *Sampler) capture(origin Origin) Sample {
	now := time.Now()
	start := kernel.MonotonicNow()
	stacks := captureStacks()
	overhead := time.Duration(kernel.MonotonicNow() - start) // nolint: gosec  // Monotonic.

	if s.metrics != nil {
		s.metrics.Samples.WithLabelValues(origin.String()).Inc()
		s.metrics.SampleOverhead.Observe(overhead.Seconds())
	}
	return Sample{Time: now, Origin: origin, Overhead: overhead, Stacks: stacks}
}

func (s *Sampler) enqueue(smp Sample) {
	select {
	case s.queue <- smp:
	default:
		if s.metrics != nil {
			s.metrics.SamplesDropped.Inc()
		}
	}
}

func (s *Sampler) drain(done <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case smp := <-s.queue:
			s.sink.Consume(smp)
		case <-done:
			for {
				select {
				case smp := <-s.queue:
					s.sink.Consume(smp)
				default:
					return
				}
			}
		}
	}
}
