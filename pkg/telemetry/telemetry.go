// Package telemetry wires OpenTelemetry tracing for the analyzer service.
//
// Spans are exported over OTLP when the telemetry section of the
// configuration, or OTEL_ENABLED=true, turns tracing on. Otherwise the
// global TracerProvider stays the no-op default and StartSpan costs nothing.
package telemetry

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var current atomic.Pointer[Config]

// ShutdownFunc flushes and stops the TracerProvider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs a TracerProvider for cfg. A nil or disabled cfg leaves
// tracing off and returns a no-op shutdown.
func Init(ctx context.Context, cfg *Config) (ShutdownFunc, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	current.Store(cfg)
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		cfg.Enabled = false
		return noopShutdown, err
	}
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		cfg.Enabled = false
		return noopShutdown, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(newSampler(cfg)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// Enabled reports whether Init turned tracing on.
func Enabled() bool {
	cfg := current.Load()
	return cfg != nil && cfg.Enabled
}

// GetConfig returns the configuration passed to Init, or nil before Init.
func GetConfig() *Config {
	return current.Load()
}
