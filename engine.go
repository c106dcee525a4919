package identity

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/brepkit/identity/depgraph"
	"github.com/brepkit/identity/kernel"
	"github.com/brepkit/identity/persist"
	"github.com/brepkit/identity/rebuild"
	"github.com/brepkit/identity/registry"
	"github.com/brepkit/identity/resolve"
	"github.com/brepkit/identity/shape"
)

// Engine is the identity engine of one document. It owns the document's
// bodies, wires each body's feature graph, registry, and resolution
// pipeline together, and provides the persistence glue for saving and
// restoring identity state.
//
// An Engine is safe for concurrent use. Per-body write operations are
// serialized by the body itself; engine-level body management holds its
// own lock.
type Engine struct {
	mu       sync.RWMutex
	document string
	kernel   kernel.Kernel
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	policy   resolve.Policy
	pipeline *resolve.Pipeline
	store    persist.Store
	bodies   map[string]*rebuild.Body
}

// NewEngine creates an identity engine for one document over the given
// kernel.
//
// Example:
//
//	engine, err := identity.NewEngine("bracket.doc", kern,
//	    identity.WithLogger(logger),
//	    identity.WithPolicyFile("/path/to/resolution.yaml"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewEngine(document string, k kernel.Kernel, opts ...Option) (*Engine, error) {
	if k == nil {
		return nil, NewValidationError("NewEngine", ErrInvalidConfig).
			WithContext(map[string]any{"reason": "kernel is required"})
	}

	cfg := &engineConfig{policy: resolve.DefaultPolicy()}
	for _, opt := range opts {
		opt(cfg)
	}

	// Create default logger if not provided
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	if cfg.configPath != "" {
		fileCfg, err := LoadConfig(cfg.configPath)
		if err != nil {
			return nil, NewConfigurationError("NewEngine", err)
		}
		if !cfg.policySet {
			cfg.policy = fileCfg.Policy
		}
		if cfg.store == nil && fileCfg.Snapshots.RedisURL != "" {
			store, err := persist.NewRedisStore(persist.RedisOptions{
				URL:       fileCfg.Snapshots.RedisURL,
				KeyPrefix: fileCfg.Snapshots.KeyPrefix,
				TTL:       fileCfg.Snapshots.TTL(),
			})
			if err != nil {
				return nil, NewConfigurationError("NewEngine", err)
			}
			cfg.store = store
		}
	}

	if cfg.policyPath != "" {
		policy, err := resolve.LoadPolicy(cfg.policyPath)
		if err != nil {
			return nil, NewConfigurationError("NewEngine", err)
		}
		cfg.policy = policy
	}

	pipeline, err := resolve.NewPipeline(cfg.policy, cfg.logger)
	if err != nil {
		return nil, NewConfigurationError("NewEngine", err)
	}

	return &Engine{
		document: document,
		kernel:   k,
		logger:   cfg.logger,
		tracer:   cfg.tracer,
		meter:    cfg.meter,
		policy:   cfg.policy,
		pipeline: pipeline,
		store:    cfg.store,
		bodies:   make(map[string]*rebuild.Body),
	}, nil
}

// Document returns the document name the engine was created for.
func (e *Engine) Document() string { return e.document }

// Policy returns the resolution policy in effect.
func (e *Engine) Policy() resolve.Policy { return e.policy }

// AddBody creates a new body with an empty feature graph and registry.
// Returns ErrBodyExists if a body with the same name is already present.
func (e *Engine) AddBody(name string) (*rebuild.Body, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.bodies[name]; ok {
		return nil, NewValidationError("Engine.AddBody", ErrBodyExists).
			WithContext(map[string]any{"body": name})
	}

	reg := registry.New(e.kernel, e.pipeline, registry.WithLogger(e.logger))
	body := rebuild.NewBody(name, e.kernel, depgraph.New(), reg,
		rebuild.WithLogger(e.logger),
		rebuild.WithTracer(e.tracer),
		rebuild.WithMeter(e.meter),
	)
	e.bodies[name] = body

	e.logger.Debug("body added", "document", e.document, "body", name)
	return body, nil
}

// Body returns the named body. Returns ErrBodyNotFound if absent.
func (e *Engine) Body(name string) (*rebuild.Body, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	body, ok := e.bodies[name]
	if !ok {
		return nil, NewNotFoundError("Engine.Body", ErrBodyNotFound).
			WithContext(map[string]any{"body": name})
	}
	return body, nil
}

// Bodies returns the names of all bodies, sorted.
func (e *Engine) Bodies() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.bodies))
	for name := range e.bodies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RemoveBody removes a body and its identity state from the engine.
func (e *Engine) RemoveBody(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.bodies[name]; !ok {
		return NewNotFoundError("Engine.RemoveBody", ErrBodyNotFound).
			WithContext(map[string]any{"body": name})
	}
	delete(e.bodies, name)
	return nil
}

// AddFeature adds a feature to a body's dependency graph, depending on
// the given upstream features. The new feature starts dirty.
func (e *Engine) AddFeature(body string, feature shape.FeatureID, upstream ...shape.FeatureID) error {
	b, err := e.Body(body)
	if err != nil {
		return err
	}
	if err := b.Graph().AddFeature(feature, upstream...); err != nil {
		return NewValidationError("Engine.AddFeature", err).
			WithContext(map[string]any{"body": body, "feature": string(feature)})
	}
	return nil
}

// SetParams updates a feature's parameters and marks it and everything
// downstream of it dirty. Returns the dirtied features.
func (e *Engine) SetParams(body string, feature shape.FeatureID, params map[string]any) ([]shape.FeatureID, error) {
	b, err := e.Body(body)
	if err != nil {
		return nil, err
	}
	dirtied, err := b.Graph().SetParams(feature, params)
	if err != nil {
		return nil, NewValidationError("Engine.SetParams", err).
			WithContext(map[string]any{"body": body, "feature": string(feature)})
	}
	return dirtied, nil
}

// MarkDirty flags a feature and its transitive downstream set for rebuild
// without changing parameters. Returns the dirtied features.
func (e *Engine) MarkDirty(body string, feature shape.FeatureID) ([]shape.FeatureID, error) {
	b, err := e.Body(body)
	if err != nil {
		return nil, err
	}
	dirtied, err := b.Graph().MarkDirty(feature)
	if err != nil {
		return nil, NewValidationError("Engine.MarkDirty", err).
			WithContext(map[string]any{"body": body, "feature": string(feature)})
	}
	return dirtied, nil
}

// Register assigns persistent identities to shapes produced by a feature,
// in the committed registry of the named body. Typically called right
// after a rebuild commits, for the features that created new geometry.
func (e *Engine) Register(body string, feature shape.FeatureID, shapes []shape.Shape) ([]shape.ShapeID, error) {
	b, err := e.Body(body)
	if err != nil {
		return nil, err
	}
	ids, err := b.Registry().Register(feature, shapes)
	if err != nil {
		return nil, NewResolutionError("Engine.Register", err).
			WithContext(map[string]any{"body": body, "feature": string(feature)})
	}
	return ids, nil
}

// Lookup returns the live reference behind a ShapeID in the committed
// state of the named body. A stale reference surfaces as
// registry.ErrStaleReference.
func (e *Engine) Lookup(body string, id shape.ShapeID) (*shape.Reference, error) {
	b, err := e.Body(body)
	if err != nil {
		return nil, err
	}
	ref, err := b.Registry().Lookup(id)
	if err != nil {
		return nil, NewResolutionError("Engine.Lookup", err).
			WithContext(map[string]any{"body": body, "shape_id": id.String()})
	}
	return ref, nil
}

// InvalidateFeature marks every reference owned by a feature for
// re-resolution on the next rebuild. Returns the number of references
// affected.
func (e *Engine) InvalidateFeature(body string, feature shape.FeatureID) (int, error) {
	b, err := e.Body(body)
	if err != nil {
		return 0, err
	}
	return b.Registry().InvalidateFeature(feature), nil
}

// Rebuild runs one rebuild transaction over a body's current dirty set
// and blocks until it commits or rolls back. A body with nothing dirty
// commits trivially without touching the kernel.
func (e *Engine) Rebuild(ctx context.Context, body string) (*rebuild.Outcome, error) {
	b, err := e.Body(body)
	if err != nil {
		return nil, err
	}

	dirty := b.Graph().DirtySet()
	if len(dirty) == 0 {
		return &rebuild.Outcome{Body: body, State: rebuild.StateCommitted}, nil
	}

	outcome, err := b.Run(ctx, dirty)
	if err != nil {
		return outcome, NewRebuildError("Engine.Rebuild", err).
			WithContext(map[string]any{"body": body})
	}
	return outcome, nil
}

// RebuildAsync starts a rebuild of the body's dirty set on a worker
// goroutine and returns a channel delivering the result.
func (e *Engine) RebuildAsync(ctx context.Context, body string) (<-chan rebuild.AsyncResult, error) {
	b, err := e.Body(body)
	if err != nil {
		return nil, err
	}
	return b.RunAsync(ctx, b.Graph().DirtySet()), nil
}

// Save captures the durable identity state of a body into the snapshot
// store. Returns ErrNoStore when no store is configured.
func (e *Engine) Save(ctx context.Context, body string) error {
	if e.store == nil {
		return NewConfigurationError("Engine.Save", ErrNoStore)
	}
	b, err := e.Body(body)
	if err != nil {
		return err
	}

	snap := persist.FromRegistry(e.document, body, b.Registry())
	if err := e.store.Save(ctx, snap); err != nil {
		return NewStorageError("Engine.Save", err).
			WithContext(map[string]any{"body": body})
	}

	e.logger.Debug("identity snapshot saved",
		"document", e.document, "body", body, "references", len(snap.References))
	return nil
}

// Restore seeds a body's registry from the snapshot store. The body must
// already exist with an empty registry; its feature graph is part of the
// document model and is reconstructed by the document loader, not by the
// engine. Restored references carry no live handles until the next
// rebuild re-resolves them.
func (e *Engine) Restore(ctx context.Context, body string) error {
	if e.store == nil {
		return NewConfigurationError("Engine.Restore", ErrNoStore)
	}
	b, err := e.Body(body)
	if err != nil {
		return err
	}

	snap, err := e.store.Load(ctx, e.document, body)
	if err != nil {
		return NewStorageError("Engine.Restore", err).
			WithContext(map[string]any{"body": body})
	}

	if err := snap.Seed(b.Registry()); err != nil {
		return NewResolutionError("Engine.Restore", err).
			WithContext(map[string]any{"body": body})
	}

	e.logger.Debug("identity snapshot restored",
		"document", e.document, "body", body, "references", len(snap.References))
	return nil
}

// Close releases engine resources, closing the snapshot store if one is
// configured.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}
