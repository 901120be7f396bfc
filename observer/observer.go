// Package observer provides OTEL-based observability for the routing
// pipeline.
//
// It exposes instruments for query, phase, and dispatch telemetry and a
// prism.Tracer implementation that emits spans via OpenTelemetry. Users
// export to any OTEL-compatible backend by setting standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/prism/observer"

// Instruments holds all OTEL instruments used by the pipeline.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	// Counters
	Queries      metric.Int64Counter
	Dispatches   metric.Int64Counter
	Fallbacks    metric.Int64Counter
	FastPathHits metric.Int64Counter
	TokenUsage   metric.Int64Counter

	// Histograms
	PhaseDuration    metric.Float64Histogram
	DispatchDuration metric.Float64Histogram
	QueryDuration    metric.Float64Histogram
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("prism")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	// Log provider
	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	queries, err := meter.Int64Counter("router.queries",
		metric.WithDescription("Routed query count"),
		metric.WithUnit("{query}"))
	if err != nil {
		return nil, err
	}

	dispatches, err := meter.Int64Counter("router.dispatches",
		metric.WithDescription("Agent dispatch count"),
		metric.WithUnit("{dispatch}"))
	if err != nil {
		return nil, err
	}

	fallbacks, err := meter.Int64Counter("router.fallbacks",
		metric.WithDescription("Quality-gate fallback count"),
		metric.WithUnit("{fallback}"))
	if err != nil {
		return nil, err
	}

	fastPathHits, err := meter.Int64Counter("router.fastpath.hits",
		metric.WithDescription("Fast-path pre-classifier hit count"),
		metric.WithUnit("{hit}"))
	if err != nil {
		return nil, err
	}

	tokenUsage, err := meter.Int64Counter("llm.token.usage",
		metric.WithDescription("Total tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	phaseDuration, err := meter.Float64Histogram("router.phase.duration",
		metric.WithDescription("Pipeline phase duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	dispatchDuration, err := meter.Float64Histogram("router.dispatch.duration",
		metric.WithDescription("Agent dispatch duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram("router.query.duration",
		metric.WithDescription("End-to-end query duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:           tracer,
		Meter:            meter,
		Logger:           logger,
		Queries:          queries,
		Dispatches:       dispatches,
		Fallbacks:        fallbacks,
		FastPathHits:     fastPathHits,
		TokenUsage:       tokenUsage,
		PhaseDuration:    phaseDuration,
		DispatchDuration: dispatchDuration,
		QueryDuration:    queryDuration,
	}, nil
}
