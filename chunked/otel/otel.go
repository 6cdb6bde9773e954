// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

// Package chunkedotel provides OpenTelemetry instrumentation for chunked
// search commands. It implements the [chunked.ExecutionHook] interface to
// add tracing and metrics to command invocations.
//
// Usage:
//
//	cmd := chunked.NewStreamingCommand("mask", mask)
//	chunkedotel.InstrumentCommand(cmd, chunkedotel.DefaultConfig())
package chunkedotel

import (
	"context"
	"errors"
	"time"

	"github.com/streamweave/chunked-go/chunked"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chunked"

// OtelConfig configures OpenTelemetry instrumentation for a command.
type OtelConfig struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed invocations.
	// Default true.
	RecordExceptions bool
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns an OtelConfig with sensible defaults.
// TracerProvider and MeterProvider are resolved from the global OTel SDK
// at instrumentation time.
func DefaultConfig() OtelConfig {
	return OtelConfig{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// InstrumentCommand attaches OpenTelemetry instrumentation to a command.
// The hook is installed via [chunked.Command.SetExecutionHook].
func InstrumentCommand(cmd *chunked.Command, cfg OtelConfig) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}

	hook := &otelHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		hook.invocationCounter, _ = meter.Int64Counter("search.command.invocations",
			metric.WithUnit("{invocation}"),
			metric.WithDescription("Number of command invocations"),
		)
		hook.durationHistogram, _ = meter.Float64Histogram("search.command.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of command invocations"),
		)
	}

	cmd.SetExecutionHook(hook)
}

// otelHook implements chunked.ExecutionHook with OpenTelemetry tracing and
// metrics.
type otelHook struct {
	cfg               OtelConfig
	tracer            trace.Tracer
	invocationCounter metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

// spanToken is the HookToken returned by OnRunStart.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnRunStart starts a server span for the invocation.
func (h *otelHook) OnRunStart(ctx context.Context, info chunked.RunInfo) (context.Context, chunked.HookToken) {
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	attrs := []attribute.KeyValue{
		attribute.String("search.command", info.Command),
		attribute.String("search.command.variant", info.Variant),
		attribute.String("search.invocation_id", info.InvocationID),
		attribute.StringSlice("search.fieldnames", info.Fieldnames),
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, "chunked/"+info.Command,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)

	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnRunEnd records span attributes, metrics, and ends the span.
func (h *otelHook) OnRunEnd(ctx context.Context, token chunked.HookToken, info chunked.RunInfo, stats *chunked.RunStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	duration := time.Since(st.startTime)

	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("search.command", info.Command),
			attribute.String("search.command.variant", info.Variant),
			attribute.String("status", status),
		)
		if h.invocationCounter != nil {
			h.invocationCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
	}

	if st.span != nil && st.span.IsRecording() {
		if stats != nil {
			st.span.SetAttributes(
				attribute.Int64("search.input_chunks", stats.InputChunks),
				attribute.Int64("search.output_chunks", stats.OutputChunks),
				attribute.Int64("search.input_rows", stats.InputRows),
				attribute.Int64("search.output_rows", stats.OutputRows),
				attribute.Int64("search.input_bytes", stats.InputBytes),
				attribute.Int64("search.output_bytes", stats.OutputBytes),
			)
		}

		if err != nil {
			st.span.SetStatus(codes.Error, err.Error())
			if h.cfg.RecordExceptions {
				st.span.RecordError(err)
			}
			st.span.SetAttributes(attribute.String("search.error_type", errorType(err)))
		} else {
			st.span.SetStatus(codes.Ok, "")
		}

		st.span.End()
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, chunked.ErrProtocol):
		return "protocol"
	case errors.Is(err, chunked.ErrConfiguration):
		return "configuration"
	case errors.Is(err, chunked.ErrTransform):
		return "transform"
	case errors.Is(err, chunked.ErrUsage):
		return "usage"
	default:
		return "unknown"
	}
}
