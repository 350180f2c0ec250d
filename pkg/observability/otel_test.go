package observability

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitOTel_Disabled(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)

	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, logger)
	require.NoError(t, err)
	assert.Nil(t, providers, "disabled export must not build providers")
}

func TestShutdownOTel_NilProviders(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)
	assert.NoError(t, ShutdownOTel(context.Background(), nil, logger))
}

func TestSpanLogger_OutsideSpan(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)
	assert.Same(t, logger, SpanLogger(context.Background(), logger),
		"no recording span must leave the logger untouched")
}

func TestSpanLogger_InsideSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "resolve-access")
	defer span.End()

	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)
	SpanLogger(ctx, logger).Info("decision evaluated")

	line := decodeLogLine(t, &buf)
	assert.NotEmpty(t, line["trace_id"])
	assert.NotEmpty(t, line["span_id"])
}
