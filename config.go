// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package msprofile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/latency-tracker/msprofile/internal/pkg/boundary"
	"github.com/latency-tracker/msprofile/internal/pkg/log"
	"github.com/latency-tracker/msprofile/internal/pkg/module"
	"github.com/latency-tracker/msprofile/internal/pkg/relay"
	"github.com/latency-tracker/msprofile/internal/pkg/sampling"
)

// MinSpanDuration is the default latency threshold registered with the
// kernel module.
const MinSpanDuration = 100 * time.Microsecond

// Option configures a [Profiler] via [New].
type Option interface {
	apply(context.Context, config) (config, error)
}

type fnOpt func(context.Context, config) (config, error)

func (o fnOpt) apply(ctx context.Context, c config) (config, error) {
	return o(ctx, c)
}

// WithServiceName returns an [Option] defining the name of the service
// running. It is sent to the kernel module, truncated to 27 bytes, and set
// as the service.name resource attribute.
//
// If multiple of these options are provided, the last one will be used.
func WithServiceName(name string) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		c.serviceName = name
		return c, nil
	})
}

// WithLogger returns an [Option] that configures the logger used.
//
// If this option is not used, a JSON logger writing to STDERR is used.
func WithLogger(l logr.Logger) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		c.logger = &l
		return c, nil
	})
}

// WithLogLevel returns an [Option] setting the minimum level of the default
// logger. It has no effect when [WithLogger] is used.
func WithLogLevel(level LogLevel) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		if level != logLevelUndefined {
			var l LogLevel
			if err := l.UnmarshalText([]byte(level)); err != nil {
				return c, err
			}
		}
		c.logLevel = level
		return c, nil
	})
}

// WithResourceAttributes returns an [Option] that will configure attributes to
// be added to the OpenTelemetry Resource.
func WithResourceAttributes(attrs ...attribute.KeyValue) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		c.resAttrs = append(c.resAttrs, attrs...)
		return c, nil
	})
}

// WithTraceExporter returns an [Option] that will configure exp as the
// OpenTelemetry tracing exporter used.
//
// If this option is not used, an OTLP HTTP exporter is used.
func WithTraceExporter(exp sdk.SpanExporter) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		c.exporter = exp
		return c, nil
	})
}

// WithSampler returns an [Option] that will configure the sampler of the
// tracer provider. The default is [DefaultSampler].
func WithSampler(s Sampler) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		if s == nil {
			return c, errors.New("nil sampler")
		}
		if err := s.validate(); err != nil {
			return c, err
		}
		c.sampler = s
		return c, nil
	})
}

// WithGlobal returns an [Option] that registers the profiler's tracer
// provider as the global OpenTelemetry tracer provider.
func WithGlobal() Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		c.global = true
		return c, nil
	})
}

// WithLatencyThreshold returns an [Option] setting the minimum duration of
// the spans the kernel module should report. The default is
// [MinSpanDuration].
func WithLatencyThreshold(d time.Duration) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		if d < 0 {
			return c, fmt.Errorf("negative latency threshold: %s", d)
		}
		c.threshold = d
		return c, nil
	})
}

// WithSamplingPeriod returns an [Option] enabling on-CPU stack samples every
// period. Sampling on the profiling signal is always enabled.
func WithSamplingPeriod(period time.Duration) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		if period < 0 {
			return c, fmt.Errorf("negative sampling period: %s", period)
		}
		c.samplingPeriod = period
		return c, nil
	})
}

// WithSamplingSignal returns an [Option] setting the signal that triggers an
// off-CPU stack sample. The default is SIGUSR2. SIGPROF and SIGURG belong to
// the Go runtime and cannot be used.
func WithSamplingSignal(sig os.Signal) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		c.signal = sig
		return c, nil
	})
}

// WithSampleSink returns an [Option] setting the consumer of stack samples.
// The default logs a summary of each sample at debug level.
func WithSampleSink(sink SampleSink) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		c.sink = sink
		return c, nil
	})
}

// WithMetricsRegisterer returns an [Option] registering the profiler metrics
// with reg. By default the metrics are kept in a private registry.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		c.registerer = reg
		return c, nil
	})
}

// WithPollTimeout returns an [Option] bounding each wait on the relay
// channel, and so the time a shutdown waits for the reader.
func WithPollTimeout(d time.Duration) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		if d <= 0 {
			return c, fmt.Errorf("invalid poll timeout: %s", d)
		}
		c.pollTimeout = d
		return c, nil
	})
}

// WithControlPath returns an [Option] overriding the kernel module control
// file.
func WithControlPath(path string) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		c.controlPath = path
		return c, nil
	})
}

// WithBoundaryPaths returns an [Option] overriding the files receiving span
// begin and end records.
func WithBoundaryPaths(begin, end string) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		c.beginPath, c.endPath = begin, end
		return c, nil
	})
}

// WithChannelDir returns an [Option] overriding the directory holding the
// relay channels.
func WithChannelDir(dir string) Option {
	return fnOpt(func(_ context.Context, c config) (config, error) {
		c.channelDir = dir
		return c, nil
	})
}

// env holds the environment variables read by [WithEnv].
type env struct {
	ServiceName        *string        `envconfig:"OTEL_SERVICE_NAME"`
	ResourceAttributes string         `envconfig:"OTEL_RESOURCE_ATTRIBUTES"`
	TracesExporter     string         `envconfig:"OTEL_TRACES_EXPORTER"`
	LogLevel           string         `envconfig:"OTEL_LOG_LEVEL"`
	TracesSampler      string         `envconfig:"OTEL_TRACES_SAMPLER"`
	TracesSamplerArg   string         `envconfig:"OTEL_TRACES_SAMPLER_ARG"`
	LatencyThreshold   *time.Duration `envconfig:"MSPROFILE_LATENCY_THRESHOLD"`
	SamplingPeriod     *time.Duration `envconfig:"MSPROFILE_SAMPLING_PERIOD"`
}

// WithEnv returns an [Option] that will apply configuration using the values
// defined by the following environment variables:
//
//   - OTEL_SERVICE_NAME (or OTEL_RESOURCE_ATTRIBUTES): sets the service name
//   - OTEL_RESOURCE_ATTRIBUTES: adds resource attributes
//   - OTEL_TRACES_EXPORTER: sets the trace exporter
//   - OTEL_LOG_LEVEL: sets the default logger's minimum logging level
//   - OTEL_TRACES_SAMPLER and OTEL_TRACES_SAMPLER_ARG: set the sampler
//   - MSPROFILE_LATENCY_THRESHOLD: sets the latency threshold
//   - MSPROFILE_SAMPLING_PERIOD: enables timer sampling with this period
//
// Options after this one take precedence over it.
//
// The OTEL_TRACES_EXPORTER environment variable value is resolved using the
// [autoexport] package. See that package's documentation for information on
// supported values and registration of custom exporters.
func WithEnv() Option {
	return fnOpt(func(ctx context.Context, c config) (config, error) {
		var e env
		if err := envconfig.Process("", &e); err != nil {
			return c, fmt.Errorf("read environment: %w", err)
		}

		var err error
		if e.TracesExporter != "" {
			// NewSpanExporter re-reads OTEL_TRACES_EXPORTER and defaults to
			// OTLP over HTTP/protobuf.
			exp, expErr := autoexport.NewSpanExporter(ctx)
			if expErr != nil {
				err = errors.Join(err, expErr)
			} else {
				c.exporter = exp
			}
		}

		for _, kv := range parseResourceAttributes(e.ResourceAttributes) {
			if kv.Key == semconv.ServiceNameKey {
				c.serviceName = kv.Value.AsString()
				continue
			}
			c.resAttrs = append(c.resAttrs, kv)
		}
		if e.ServiceName != nil {
			c.serviceName = *e.ServiceName
		}
		if e.LogLevel != "" {
			level, lvlErr := ParseLogLevel(e.LogLevel)
			if lvlErr != nil {
				err = errors.Join(err, fmt.Errorf("parse log level %q: %w", e.LogLevel, lvlErr))
			} else {
				c.logLevel = level
			}
		}
		if e.TracesSampler != "" {
			smp, smpErr := parseSampler(e.TracesSampler, e.TracesSamplerArg)
			if smpErr != nil {
				err = errors.Join(err, smpErr)
			} else {
				c.sampler = smp
			}
		}
		if e.LatencyThreshold != nil {
			c.threshold = *e.LatencyThreshold
		}
		if e.SamplingPeriod != nil {
			c.samplingPeriod = *e.SamplingPeriod
		}
		return c, err
	})
}

func parseResourceAttributes(raw string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for _, pair := range strings.Split(strings.TrimSpace(raw), ",") {
		key, val, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if key == "" {
			continue
		}
		attrs = append(attrs, attribute.String(key, val))
	}
	return attrs
}

type config struct {
	logger   *logr.Logger
	logLevel LogLevel

	serviceName string
	resAttrs    []attribute.KeyValue
	exporter    sdk.SpanExporter
	sampler     Sampler
	global      bool

	threshold      time.Duration
	samplingPeriod time.Duration
	signal         os.Signal
	sink           SampleSink
	registerer     prometheus.Registerer
	pollTimeout    time.Duration

	controlPath string
	beginPath   string
	endPath     string
	channelDir  string
}

func newConfig(ctx context.Context, options []Option) (config, error) {
	c := config{
		serviceName: defaultServiceName(),
		sampler:     DefaultSampler(),
		threshold:   MinSpanDuration,
		signal:      sampling.DefaultSignal,
		pollTimeout: relay.DefaultPollTimeout,
		controlPath: module.ControlPath,
		beginPath:   boundary.BeginPath,
		endPath:     boundary.EndPath,
		channelDir:  relay.ChannelDir,
	}

	var err error
	for _, opt := range options {
		var e error
		c, e = opt.apply(ctx, c)
		err = errors.Join(err, e)
	}

	return c, err
}

func defaultServiceName() string {
	executable, err := os.Executable()
	if err != nil {
		return "unknown_service:go"
	}
	return "unknown_service:" + filepath.Base(executable)
}

func (c config) Logger() logr.Logger {
	if c.logger != nil {
		return *c.logger
	}
	return log.New(os.Stderr, c.logLevel.slogLevel())
}

func (c config) resource() *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		append(
			[]attribute.KeyValue{
				semconv.TelemetrySDKLanguageGo,
				semconv.TelemetryDistroNameKey.String("msprofile"),
				semconv.TelemetryDistroVersionKey.String(Version()),
				semconv.ProcessPID(os.Getpid()),
				semconv.ServiceName(c.serviceName),
			},
			c.resAttrs...,
		)...,
	)
}
