package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// =============================================================================
// TracerConfig Tests
// =============================================================================

func TestDefaultTracerConfig(t *testing.T) {
	t.Run("returns expected defaults", func(t *testing.T) {
		cfg := DefaultTracerConfig()

		assert.False(t, cfg.Enabled)
		assert.Equal(t, "localhost:4317", cfg.Endpoint)
		assert.Equal(t, "bundlesize", cfg.ServiceName)
		assert.Equal(t, "development", cfg.Environment)
		assert.Equal(t, 1.0, cfg.SampleRate)
		assert.True(t, cfg.Insecure)
	})

	t.Run("returns new instance each time", func(t *testing.T) {
		cfg1 := DefaultTracerConfig()
		cfg2 := DefaultTracerConfig()

		cfg1.ServiceName = "modified"
		assert.Equal(t, "bundlesize", cfg2.ServiceName)
	})
}

// =============================================================================
// Tracer Tests
// =============================================================================

func TestNewTracer_Disabled(t *testing.T) {
	tracer, err := NewTracer(context.Background(), TracerConfig{Enabled: false})
	require.NoError(t, err)

	assert.False(t, tracer.IsEnabled())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestTracer_NilIsDisabled(t *testing.T) {
	var tracer *Tracer
	assert.False(t, tracer.IsEnabled())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

// =============================================================================
// Span helper Tests
// =============================================================================

// withRecorder installs an in-memory span recorder as the global provider for the test.
func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func TestRecordError(t *testing.T) {
	t.Run("does not panic with no span", func(t *testing.T) {
		assert.NotPanics(t, func() {
			RecordError(context.Background(), errors.New("test error"))
		})
	})

	t.Run("does not panic with nil error", func(t *testing.T) {
		assert.NotPanics(t, func() {
			RecordError(context.Background(), nil)
		})
	})

	t.Run("marks the span in context as failed", func(t *testing.T) {
		recorder := withRecorder(t)

		ctx, span := StartBundleSpan(context.Background(), BundleSpanConfig{})
		RecordError(ctx, errors.New("module not found"))
		span.End()

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		require.Len(t, spans[0].Events(), 1)
		assert.Equal(t, "exception", spans[0].Events()[0].Name)
	})
}

func TestStartBundleSpan(t *testing.T) {
	recorder := withRecorder(t)

	ctx, span := StartBundleSpan(context.Background(), BundleSpanConfig{
		RequestID:   "req-1",
		SourceBytes: 42,
		Mangle:      true,
	})
	SetSpanAttributes(ctx, attribute.Int("bundle.chunks", 1))
	AddSpanEvent(ctx, "created bundle")
	assert.NotEmpty(t, ExtractTraceID(ctx))
	EndSpan(span, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "bundle", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("bundle.request_id", "req-1"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("bundle.source_bytes", 42))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("bundle.chunks", 1))
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "created bundle", spans[0].Events()[0].Name)
}

func TestEndSpan_RecordsError(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartFetchSpan(context.Background(), "https://unpkg.com/react")
	EndSpan(span, errors.New("connection refused"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "fetch", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "connection refused", spans[0].Status().Description)
}

func TestStartResolveSpan(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartResolveSpan(context.Background(), "./x", "https://unpkg.com/pkg/index.js")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes(), attribute.String("module.specifier", "./x"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("module.importer", "https://unpkg.com/pkg/index.js"))
}

func TestExtractTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, ExtractTraceID(context.Background()))
}
