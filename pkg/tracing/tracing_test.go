package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNoopTracer(t *testing.T) {
	tr, err := New(Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, tr.Enabled())

	ctx, span := tr.Start(context.Background(), "pipeline")
	span.End()
	_, ok := TraceID(ctx)
	assert.False(t, ok)
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestTracerExportsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tr := NewWithExporter(Config{Enabled: true, ServiceName: "test"}, exp)

	ctx, span := tr.Start(context.Background(), "signal.pipeline", attribute.String("origin", "webhook"))
	id, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.NotEmpty(t, id)
	Fail(span, errors.New("decode"))
	span.End()

	// Shutdown would clear the in-memory exporter, so flush first
	require.NoError(t, tr.provider.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "signal.pipeline", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	require.NoError(t, tr.Shutdown(context.Background()))
}
