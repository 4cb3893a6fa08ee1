// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package msprofile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	sdk "go.opentelemetry.io/otel/sdk/trace"
)

// Sampler decides whether a trace should be sampled and exported.
//
// Injected kernel spans are children of a remote, sampled application span,
// so any parent-based sampler keeps them.
type Sampler interface {
	validate() error
	sdkSampler() sdk.Sampler
}

// OpenTelemetry sampler names.
const (
	samplerNameAlwaysOn                = "always_on"
	samplerNameAlwaysOff               = "always_off"
	samplerNameTraceIDRatio            = "traceidratio"
	samplerNameParentBasedAlwaysOn     = "parentbased_always_on"
	samplerNameParentBasedAlwaysOff    = "parentbased_always_off"
	samplerNameParentBasedTraceIDRatio = "parentbased_traceidratio"
)

var errUnknownSampler = errors.New("unknown sampler name")

// AlwaysOnSampler is a Sampler that samples every trace.
type AlwaysOnSampler struct{}

var _ Sampler = AlwaysOnSampler{}

func (AlwaysOnSampler) validate() error         { return nil }
func (AlwaysOnSampler) sdkSampler() sdk.Sampler { return sdk.AlwaysSample() }

// AlwaysOffSampler returns a Sampler that samples no traces.
type AlwaysOffSampler struct{}

var _ Sampler = AlwaysOffSampler{}

func (AlwaysOffSampler) validate() error         { return nil }
func (AlwaysOffSampler) sdkSampler() sdk.Sampler { return sdk.NeverSample() }

// TraceIDRatioSampler samples a given fraction of traces. To respect the
// parent trace's SampledFlag, use it as a delegate of a
// [ParentBasedSampler].
type TraceIDRatioSampler struct {
	// Fraction is the fraction of traces to sample, in the interval [0, 1].
	Fraction float64
}

var _ Sampler = TraceIDRatioSampler{}

func (t TraceIDRatioSampler) validate() error {
	if t.Fraction < 0 || t.Fraction > 1 {
		return errors.New("fraction in TraceIDRatio must be in the range [0, 1]")
	}
	return nil
}

func (t TraceIDRatioSampler) sdkSampler() sdk.Sampler { return sdk.TraceIDRatioBased(t.Fraction) }

// ParentBasedSampler is a [Sampler] which behaves differently based on the
// parent of the span. If the span has no parent, the Root sampler is used.
// Otherwise, depending on whether the parent is remote and whether it is
// sampled, one of the following samplers applies:
//   - RemoteSampled (default: [AlwaysOnSampler])
//   - RemoteNotSampled (default: [AlwaysOffSampler])
//   - LocalSampled (default: [AlwaysOnSampler])
//   - LocalNotSampled (default: [AlwaysOffSampler])
type ParentBasedSampler struct {
	Root             Sampler
	RemoteSampled    Sampler
	RemoteNotSampled Sampler
	LocalSampled     Sampler
	LocalNotSampled  Sampler
}

var _ Sampler = ParentBasedSampler{}

func validateParentBasedComponent(s Sampler) error {
	if s == nil {
		return nil
	}
	if _, ok := s.(ParentBasedSampler); ok {
		return errors.New("parent-based sampler cannot wrap parent-based sampler")
	}
	return s.validate()
}

func (p ParentBasedSampler) validate() error {
	return errors.Join(
		validateParentBasedComponent(p.Root),
		validateParentBasedComponent(p.RemoteSampled),
		validateParentBasedComponent(p.RemoteNotSampled),
		validateParentBasedComponent(p.LocalSampled),
		validateParentBasedComponent(p.LocalNotSampled),
	)
}

func (p ParentBasedSampler) sdkSampler() sdk.Sampler {
	root := sdk.AlwaysSample()
	if p.Root != nil {
		root = p.Root.sdkSampler()
	}

	var opts []sdk.ParentBasedSamplerOption
	if p.RemoteSampled != nil {
		opts = append(opts, sdk.WithRemoteParentSampled(p.RemoteSampled.sdkSampler()))
	}
	if p.RemoteNotSampled != nil {
		opts = append(opts, sdk.WithRemoteParentNotSampled(p.RemoteNotSampled.sdkSampler()))
	}
	if p.LocalSampled != nil {
		opts = append(opts, sdk.WithLocalParentSampled(p.LocalSampled.sdkSampler()))
	}
	if p.LocalNotSampled != nil {
		opts = append(opts, sdk.WithLocalParentNotSampled(p.LocalNotSampled.sdkSampler()))
	}
	return sdk.ParentBased(root, opts...)
}

// DefaultSampler returns a ParentBased sampler with the following defaults:
//   - Root: AlwaysOn
//   - RemoteSampled: AlwaysOn
//   - RemoteNotSampled: AlwaysOff
//   - LocalSampled: AlwaysOn
//   - LocalNotSampled: AlwaysOff
func DefaultSampler() Sampler {
	return ParentBasedSampler{
		Root:             AlwaysOnSampler{},
		RemoteSampled:    AlwaysOnSampler{},
		RemoteNotSampled: AlwaysOffSampler{},
		LocalSampled:     AlwaysOnSampler{},
		LocalNotSampled:  AlwaysOffSampler{},
	}
}

// parseSampler returns the Sampler named by the OTEL_TRACES_SAMPLER value
// name with the OTEL_TRACES_SAMPLER_ARG value arg. An empty arg is treated
// as unset.
func parseSampler(name, arg string) (Sampler, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	arg = strings.TrimSpace(arg)

	ratio := func() (float64, error) {
		if arg == "" {
			return 1, nil
		}
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return 0, fmt.Errorf("parse sampler argument %q: %w", arg, err)
		}
		return f, nil
	}

	parentBased := DefaultSampler().(ParentBasedSampler)
	var s Sampler
	switch name {
	case samplerNameAlwaysOn:
		s = AlwaysOnSampler{}
	case samplerNameAlwaysOff:
		s = AlwaysOffSampler{}
	case samplerNameTraceIDRatio:
		f, err := ratio()
		if err != nil {
			return nil, err
		}
		s = TraceIDRatioSampler{Fraction: f}
	case samplerNameParentBasedAlwaysOn:
		s = parentBased
	case samplerNameParentBasedAlwaysOff:
		parentBased.Root = AlwaysOffSampler{}
		s = parentBased
	case samplerNameParentBasedTraceIDRatio:
		f, err := ratio()
		if err != nil {
			return nil, err
		}
		parentBased.Root = TraceIDRatioSampler{Fraction: f}
		s = parentBased
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownSampler, name)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}
