// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires up distributed tracing for the gateway. A
// dispatch fan-out that touches several backends and resolves
// asynchronously through a callback is exactly the kind of request
// shape tracing is meant to make legible, so every correlation gets a
// span covering its full lifetime from POST /aggregate/journals to
// its terminal SSE summary.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
)

// ShutdownFunc flushes and stops the tracer provider. Call it once at
// process shutdown.
type ShutdownFunc func(context.Context) error

var (
	initOnce sync.Once
	tracer   trace.Tracer = otel.Tracer("aggregator-gateway")
)

// Init installs a TracerProvider that exports spans to stdout, tagged
// with serviceName. Only the first call per process has any effect;
// later calls are no-ops that return a shutdown func which does
// nothing. If enabled is false, the global no-op tracer remains
// installed and Tracer()'s spans are free.
func Init(serviceName string, enabled bool) (ShutdownFunc, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	var (
		shutdown ShutdownFunc
		initErr  error
	)
	initOnce.Do(func() {
		res, err := resource.New(context.Background(),
			resource.WithAttributes(
				semconv.ServiceNameKey.String(serviceName),
				attribute.String("service.component", "aggregator-gateway"),
			),
		)
		if err != nil {
			initErr = fmt.Errorf("build otel resource: %w", err)
			return
		}

		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			initErr = fmt.Errorf("build stdout trace exporter: %w", err)
			return
		}

		provider := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio()))),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(provider)
		tracer = otel.Tracer("aggregator-gateway")
		shutdown = provider.Shutdown
	})
	if initErr != nil {
		return nil, initErr
	}
	if shutdown == nil {
		shutdown = func(context.Context) error { return nil }
	}
	return shutdown, nil
}

// Tracer returns the package's tracer. Before Init runs (or when
// tracing is disabled) this is otel's global no-op tracer, so callers
// never need to check whether tracing is enabled.
func Tracer() trace.Tracer {
	return tracer
}

// sampleRatio reads OTEL_SAMPLER_RATIO, defaulting to 1.0 — the
// gateway's trace volume is bounded by request volume, not high enough
// to need downsampling by default.
func sampleRatio() float64 {
	raw := strings.TrimSpace(os.Getenv("OTEL_SAMPLER_RATIO"))
	if raw == "" {
		return 1.0
	}
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 1.0
	}
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}
