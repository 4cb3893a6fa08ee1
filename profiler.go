// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package msprofile injects the syscalls observed by the latency tracker
// kernel module into the OpenTelemetry traces of the running process.
//
// A [Profiler] registers the process with the module, advertises the
// boundaries of every application span through a span processor, and reads
// the module's relay channel to create one "kernel" span, with a child per
// syscall, under the application span that was active at the time. It also
// captures goroutine stack samples on a profiling signal and, optionally, on
// a timer.
package msprofile

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	sdk "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/latency-tracker/msprofile/internal/pkg/boundary"
	"github.com/latency-tracker/msprofile/internal/pkg/kernel"
	"github.com/latency-tracker/msprofile/internal/pkg/lifecycle"
	"github.com/latency-tracker/msprofile/internal/pkg/module"
	"github.com/latency-tracker/msprofile/internal/pkg/opentelemetry"
	"github.com/latency-tracker/msprofile/internal/pkg/relay"
	"github.com/latency-tracker/msprofile/internal/pkg/sampling"
	"github.com/latency-tracker/msprofile/internal/pkg/telemetry"
)

// Profiler bridges the latency tracker kernel module with an OpenTelemetry
// tracer provider.
type Profiler struct {
	logger logr.Logger

	stop     *lifecycle.Stopper
	reg      *module.Registration
	sampler  *sampling.Sampler
	tp       *sdk.TracerProvider
	injector *opentelemetry.Injector

	cancel context.CancelFunc
	group  *errgroup.Group
	done   chan struct{}
	runErr error

	shutdownOnce sync.Once
	shutdownErr  error
}

// New returns a running [Profiler] configured with opts.
//
// Only an invalid option or a failure to build the trace exporter is
// returned as an error. An absent kernel module, unavailable boundary files
// or relay channel, and an unusable profiling signal are logged and leave
// the corresponding part of the profiler disabled.
func New(ctx context.Context, opts ...Option) (*Profiler, error) {
	c, err := newConfig(ctx, opts)
	if err != nil {
		return nil, err
	}

	logger := c.Logger().WithName("msprofile")
	preflight(logger, kernel.Inspect())

	metrics := telemetry.NewMetrics(c.registerer)
	p := &Profiler{
		logger: logger,
		stop:   lifecycle.NewStopper(),
		done:   make(chan struct{}),
	}

	p.sampler = sampling.New(logger, c.signal, c.sink, metrics)
	if err := p.sampler.Install(); err != nil {
		logger.Error(err, "stack sampling disabled", "signal", c.signal.String())
	} else if c.samplingPeriod > 0 {
		if err := p.sampler.StartTimer(c.samplingPeriod); err != nil {
			logger.Error(err, "timer sampling disabled")
		}
	}

	p.reg = module.NewRegistration(logger, c.serviceName, module.OpenPath(c.controlPath))
	if err := p.reg.Register(c.threshold); err != nil {
		logger.Error(err, "failed to register with the latency tracker module", "path", c.controlPath)
	}

	bp := boundary.New(logger, c.beginPath, c.endPath, p.stop, metrics)
	p.tp, err = c.TracerProvider(ctx, bp)
	if err != nil {
		p.sampler.Uninstall()
		err = errors.Join(err, p.reg.Unregister(), bp.Shutdown(ctx))
		return nil, err
	}
	if c.global {
		otel.SetTracerProvider(p.tp)
	}

	p.injector = opentelemetry.NewInjector(logger, p.tp, Version(), p.stop, metrics)

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.group, runCtx = errgroup.WithContext(runCtx)

	path := relay.ChannelPath(c.channelDir, os.Getpid())
	r, err := relay.Open(logger, path,
		relay.WithPollTimeout(c.pollTimeout),
		relay.WithMetrics(metrics),
		relay.WithThreadInit(p.reg.UnregisterThread),
	)
	if err != nil {
		logger.Error(err, "kernel span injection disabled", "path", path)
	} else {
		p.group.Go(func() error {
			defer func() {
				if err := r.Close(); err != nil {
					logger.Error(err, "failed to close relay channel")
				}
			}()
			return r.Run(runCtx, p.stop, p.injector.Inject)
		})
	}

	go func() {
		p.runErr = p.group.Wait()
		close(p.done)
	}()

	return p, nil
}

func preflight(logger logr.Logger, r kernel.Report) {
	ver := "unknown"
	if r.Version != nil {
		ver = r.Version.String()
	}
	logger.V(1).Info("kernel", "version", ver, "lockdown", r.Lockdown.String())
	if !r.Supported() {
		logger.Info("kernel may be too old for the latency tracker module", "version", ver)
	}
	if r.DebugFSRestricted() {
		logger.Info("kernel lockdown may prevent reading the relay channel", "lockdown", r.Lockdown.String())
	}
}

// TracerProvider returns the tracer provider whose spans are advertised to
// the kernel module and which receives the injected kernel spans.
//
// Shutting it down stops the profiler's reader.
func (p *Profiler) TracerProvider() *sdk.TracerProvider { return p.tp }

// IsRegistered reports whether the process is registered with the kernel
// module.
func (p *Profiler) IsRegistered() bool { return p.reg.IsRegistered() }

// Done returns a channel closed once the relay reader has exited, or
// immediately if it never started.
func (p *Profiler) Done() <-chan struct{} { return p.done }

// Shutdown stops the reader and the sampler, unregisters from the kernel
// module and shuts down the tracer provider. Only the first call has an
// effect; later calls return its result.
func (p *Profiler) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.stop.Stop()
		p.cancel()

		var err error
		select {
		case <-p.done:
			err = p.runErr
		case <-ctx.Done():
			err = ctx.Err()
		}

		p.sampler.Uninstall()
		err = errors.Join(err, p.reg.Unregister(), p.tp.Shutdown(ctx))
		if err != nil {
			p.logger.Error(err, "shutdown")
		}
		p.shutdownErr = err
	})
	return p.shutdownErr
}
