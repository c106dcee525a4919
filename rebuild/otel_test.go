package rebuild_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/brepkit/identity/depgraph"
	"github.com/brepkit/identity/kernel/kerneltest"
	"github.com/brepkit/identity/rebuild"
	"github.com/brepkit/identity/registry"
)

// TestTransactionSpans verifies that every transaction emits one span
// tagged with the body name and terminal state.
func TestTransactionSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	kern := kerneltest.New()
	kern.ReturnSolid("pad", kerneltest.NewSolid("out"))

	graph := depgraph.New()
	require.NoError(t, graph.AddFeature("pad"))
	body := rebuild.NewBody("main", kern, graph, registry.New(kern, nil),
		rebuild.WithTracer(provider.Tracer("test")),
		rebuild.WithMeter(noop.NewMeterProvider().Meter("test")))

	_, err := body.Run(context.Background(), graph.DirtySet())
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "rebuild.transaction", spans[0].Name())

	attrs := spans[0].Attributes()
	assert.Contains(t, attrs, attribute.String("body", "main"))
	assert.Contains(t, attrs, attribute.String("state", string(rebuild.StateCommitted)))
}

// TestTransactionSpanOnRollback verifies the span records the rolled
// back state and an error status when the kernel rejects a feature.
func TestTransactionSpanOnRollback(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	kern := kerneltest.New()
	kern.FailRecompute("pad", errors.New("degenerate sketch"))

	graph := depgraph.New()
	require.NoError(t, graph.AddFeature("pad"))
	body := rebuild.NewBody("main", kern, graph, registry.New(kern, nil),
		rebuild.WithTracer(provider.Tracer("test")))

	_, err := body.Run(context.Background(), graph.DirtySet())
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes(),
		attribute.String("state", string(rebuild.StateRolledBack)))
}
