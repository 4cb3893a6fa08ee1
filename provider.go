// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package msprofile

import (
	"context"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdk "go.opentelemetry.io/otel/sdk/trace"
)

// NewTracerProvider returns a tracer provider whose first span processor is
// boundary. The remaining opts are applied after it, so any processor or
// exporter they add observes spans after their boundaries were advertised.
func NewTracerProvider(boundary sdk.SpanProcessor, opts ...sdk.TracerProviderOption) *sdk.TracerProvider {
	return sdk.NewTracerProvider(append([]sdk.TracerProviderOption{sdk.WithSpanProcessor(boundary)}, opts...)...)
}

func (c config) TracerProvider(ctx context.Context, boundary sdk.SpanProcessor) (*sdk.TracerProvider, error) {
	exp := c.exporter
	if exp == nil {
		var err error
		exp, err = otlptracehttp.New(ctx)
		if err != nil {
			return nil, err
		}
	}

	return NewTracerProvider(boundary,
		sdk.WithSampler(c.sampler.sdkSampler()),
		sdk.WithResource(c.resource()),
		sdk.WithBatcher(exp),
	), nil
}
