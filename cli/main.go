// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Command msprofile-check runs the kernel latency profiler against a
// synthetic workload to verify that the latency tracker module is loaded and
// reports syscalls for this process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/latency-tracker/msprofile"
)

const help = `Usage of %s:
  -global
    	Register the profiler's tracer provider as the global one
  -duration duration
    	Stop after this long (0 runs until interrupted)
  -interval duration
    	Time between two workload iterations (default 100ms)
  -workload-file string
    	File read by each workload iteration (default "/proc/self/stat")
  -metrics-addr string
    	Serve Prometheus metrics on this address (disabled when empty)
  -log-level string
    	Logging level ("debug", "info", "warn", "error")

Starts the kernel latency profiler for this process and runs a workload
making a few syscalls inside an application span at every interval.

Environment variable configuration:

	- OTEL_LOG_LEVEL: log level (flag takes precedence)
	- OTEL_SERVICE_NAME (or OTEL_RESOURCE_ATTRIBUTES): service name
	- OTEL_TRACES_EXPORTER: trace exporter identifier
	- OTEL_TRACES_SAMPLER, OTEL_TRACES_SAMPLER_ARG: sampler
	- MSPROFILE_LATENCY_THRESHOLD: minimum syscall span duration
	- MSPROFILE_SAMPLING_PERIOD: on-CPU stack sampling period

The OTEL_TRACES_EXPORTER environment variable value is resolved using the
autoexport (go.opentelemetry.io/contrib/exporters/autoexport) package. See that
package's documentation for information on supported values and registration of
custom exporters.
`

// envLogLevelKey is the key for the environment variable value containing the
// log level.
const envLogLevelKey = "OTEL_LOG_LEVEL"

func usage() {
	program := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, help, program)
}

func newLogger(lvlStr string) *slog.Logger {
	levelVar := new(slog.LevelVar) // Default value of info.
	opts := &slog.HandlerOptions{AddSource: true, Level: levelVar}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, opts))

	if lvlStr == "" {
		lvlStr = os.Getenv(envLogLevelKey)
	}
	if lvlStr == "" {
		return logger
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(lvlStr)); err != nil {
		logger.Error("failed to parse log level", "error", err, "log-level", lvlStr)
	} else {
		levelVar.Set(level)
	}
	return logger
}

type flags struct {
	global       bool
	duration     time.Duration
	interval     time.Duration
	workloadFile string
	metricsAddr  string
	logLevel     string
}

func parseFlags(fs *flag.FlagSet, args []string) (flags, error) {
	var f flags
	fs.BoolVar(&f.global, "global", false, "Register the profiler's tracer provider as the global one")
	fs.DurationVar(&f.duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	fs.DurationVar(&f.interval, "interval", 100*time.Millisecond, "Time between two workload iterations")
	fs.StringVar(&f.workloadFile, "workload-file", "/proc/self/stat", "File read by each workload iteration")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.StringVar(&f.logLevel, "log-level", "", `Logging level ("debug", "info", "warn", "error")`)
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.interval <= 0 {
		return f, fmt.Errorf("invalid interval: %s", f.interval)
	}
	return f, nil
}

func main() {
	flag.Usage = usage
	f, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(f.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if f.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.duration)
		defer cancel()
	}

	if err := run(ctx, logger, f); err != nil {
		logger.Error("profiler check failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, f flags) error {
	logger.Info("starting kernel latency profiler ...", "version", newVersion())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []msprofile.Option{
		msprofile.WithEnv(),
		msprofile.WithLogger(logr.FromSlogHandler(logger.Handler())),
		msprofile.WithMetricsRegisterer(reg),
	}
	if f.global {
		opts = append(opts, msprofile.WithGlobal())
	}

	p, err := msprofile.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create profiler: %w", err)
	}
	logger.Info("profiler started", "registered", p.IsRegistered())

	g, gctx := errgroup.WithContext(ctx)
	if f.metricsAddr != "" {
		srv := &http.Server{
			Addr:              f.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", f.metricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		tracer := p.TracerProvider().Tracer("msprofile-check")
		n, err := runWorkload(gctx, tracer, f.interval, f.workloadFile)
		logger.Info("workload finished", "iterations", n)
		return err
	})
	g.Go(func() error {
		select {
		case <-p.Done():
			logger.Info("relay reader stopped")
		case <-gctx.Done():
		}
		return nil
	})

	err = g.Wait()

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(err, p.Shutdown(sctx))
}
