// © Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

package chunkedotel

import (
	"bytes"
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/streamweave/chunked-go/chunked"
)

func passthrough(_ context.Context, _ *chunked.Invocation, records iter.Seq[*chunked.Record]) iter.Seq[*chunked.Record] {
	return records
}

func exploding(_ context.Context, _ *chunked.Invocation, records iter.Seq[*chunked.Record]) iter.Seq[*chunked.Record] {
	return func(yield func(*chunked.Record) bool) {
		for range records {
			panic("instrumented failure")
		}
	}
}

// runCommand drives cmd through a single-chunk invocation over in-memory
// buffers.
func runCommand(t *testing.T, cmd *chunked.Command) error {
	t.Helper()
	var in, out bytes.Buffer
	meta := chunked.NewMetadata().
		Set(chunked.MetaAction, "getinfo").
		Set(chunked.MetaArgs, []any{"word"})
	require.NoError(t, chunked.WriteChunk(&in, meta, nil))

	body, err := chunked.MarshalRecords([]*chunked.Record{
		chunked.NewRecord().Set("word", "x"),
	})
	require.NoError(t, err)
	execMeta := chunked.NewMetadata().
		Set(chunked.MetaAction, "execute").
		Set(chunked.MetaFinished, true)
	require.NoError(t, chunked.WriteChunk(&in, execMeta, body))

	return cmd.Run(&in, &out)
}

func spanAttribute(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestInstrumentCommandRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	cfg := DefaultConfig()
	cfg.TracerProvider = tp
	cfg.MeterProvider = mp
	cfg.CustomAttributes = []attribute.KeyValue{attribute.String("deployment", "test")}

	cmd := chunked.NewStreamingCommand("mask", passthrough)
	InstrumentCommand(cmd, cfg)
	require.NoError(t, runCommand(t, cmd))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "chunked/mask", span.Name())
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())
	assert.Equal(t, codes.Ok, span.Status().Code)

	v, ok := spanAttribute(span, "search.command")
	require.True(t, ok)
	assert.Equal(t, "mask", v.AsString())
	v, ok = spanAttribute(span, "search.command.variant")
	require.True(t, ok)
	assert.Equal(t, "streaming", v.AsString())
	v, ok = spanAttribute(span, "search.input_rows")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.AsInt64())
	_, ok = spanAttribute(span, "deployment")
	assert.True(t, ok)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	names := make(map[string]bool)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
	}
	assert.True(t, names["search.command.invocations"])
	assert.True(t, names["search.command.duration"])
}

func TestInstrumentCommandRecordsFailure(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	cfg := DefaultConfig()
	cfg.TracerProvider = tp
	cfg.EnableMetrics = false

	cmd := chunked.NewStreamingCommand("mask", exploding)
	InstrumentCommand(cmd, cfg)
	require.ErrorIs(t, runCommand(t, cmd), chunked.ErrTransform)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, codes.Error, span.Status().Code)
	v, ok := spanAttribute(span, "search.error_type")
	require.True(t, ok)
	assert.Equal(t, "transform", v.AsString())
	require.NotEmpty(t, span.Events())
}

func TestInstrumentCommandTracingDisabled(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	cfg := DefaultConfig()
	cfg.TracerProvider = tp
	cfg.EnableMetrics = false
	cfg.EnableTracing = false

	cmd := chunked.NewStreamingCommand("mask", passthrough)
	InstrumentCommand(cmd, cfg)
	require.NoError(t, runCommand(t, cmd))

	assert.Empty(t, recorder.Ended())
}
