package rebuild

import (
	"context"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/brepkit/identity/depgraph"
	"github.com/brepkit/identity/kernel"
	"github.com/brepkit/identity/registry"
	"github.com/brepkit/identity/shape"
)

// BodyState is the atomically published view of a Body: the committed
// solid and the registry that describes it. Readers load one pointer and
// get a consistent pair; a transaction in flight is invisible until it
// commits.
type BodyState struct {
	// Solid is the committed solid, nil before the first rebuild.
	Solid shape.Solid

	// Registry is the committed shape registry.
	Registry *registry.Registry
}

// Body is one solid body of a document together with its identity state.
// A Body enforces the single-writer discipline: at most one rebuild
// transaction is active at a time, while readers proceed concurrently
// against the last committed state.
type Body struct {
	name   string
	kernel kernel.Kernel
	graph  *depgraph.Graph
	logger *slog.Logger
	tracer trace.Tracer
	ins    *instruments

	published atomic.Pointer[BodyState]

	// writer is a one-slot semaphore serializing transactions. Waiting on
	// it is the edit queue; a queued request cancelled before acquiring
	// the slot costs nothing.
	writer chan struct{}
}

// BodyOption configures a Body.
type BodyOption func(*Body)

// WithLogger sets the structured logger. Nil falls back to slog.Default().
func WithLogger(logger *slog.Logger) BodyOption {
	return func(b *Body) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTracer enables transaction spans. Nil disables tracing.
func WithTracer(tracer trace.Tracer) BodyOption {
	return func(b *Body) {
		b.tracer = tracer
	}
}

// WithMeter enables transaction metrics. Nil disables them. Instrument
// creation failures are logged, not fatal; observability never blocks a
// rebuild.
func WithMeter(meter metric.Meter) BodyOption {
	return func(b *Body) {
		ins, err := newInstruments(meter)
		if err != nil {
			b.logger.Warn("rebuild metrics disabled", "error", err)
			return
		}
		b.ins = ins
	}
}

// NewBody creates a Body over the given kernel, feature graph, and
// registry. The registry becomes the first committed state, paired with a
// nil solid until the first transaction commits.
func NewBody(name string, k kernel.Kernel, graph *depgraph.Graph, reg *registry.Registry, opts ...BodyOption) *Body {
	b := &Body{
		name:   name,
		kernel: k,
		graph:  graph,
		logger: slog.Default(),
		writer: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.published.Store(&BodyState{Registry: reg})
	return b
}

// Name returns the body's name.
func (b *Body) Name() string { return b.name }

// Graph returns the feature dependency graph.
func (b *Body) Graph() *depgraph.Graph { return b.graph }

// State returns the last committed state. Safe to call at any time from
// any goroutine; never observes a transaction in flight.
func (b *Body) State() *BodyState {
	return b.published.Load()
}

// Solid returns the last committed solid, nil before the first rebuild.
func (b *Body) Solid() shape.Solid {
	return b.State().Solid
}

// Registry returns the last committed registry.
func (b *Body) Registry() *registry.Registry {
	return b.State().Registry
}

// Run executes one rebuild transaction over the given dirty feature set
// and blocks until it commits or rolls back. If another transaction is
// active the call queues behind it; cancelling ctx while queued abandons
// the request for free. Once the kernel is mid-call the transaction runs
// to completion; kernel calls are atomic, non-interruptible units.
//
// Kernel calls are synchronous and potentially slow; interactive callers
// should use RunAsync and keep the UI goroutine free.
func (b *Body) Run(ctx context.Context, dirty []shape.FeatureID) (*Outcome, error) {
	select {
	case b.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-b.writer }()

	tx := newTransaction(b, dirty)
	return tx.run(ctx)
}

// AsyncResult delivers a transaction result back from a worker goroutine.
type AsyncResult struct {
	Outcome *Outcome
	Err     error
}

// RunAsync starts the transaction on its own goroutine and returns a
// channel that delivers the result. The channel is buffered; the result
// is never lost if the caller is slow to receive.
func (b *Body) RunAsync(ctx context.Context, dirty []shape.FeatureID) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		outcome, err := b.Run(ctx, dirty)
		out <- AsyncResult{Outcome: outcome, Err: err}
	}()
	return out
}
