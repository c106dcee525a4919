// Package registry owns the persistent-identity map of one Body: every
// ShapeID ever handed out, the live reference it currently denotes, and
// the per-feature indices used for invalidation and compaction.
//
// The registry is an explicitly owned object, one per Body, passed by
// reference rather than held in a process-wide singleton, so multiple
// open documents and deterministic tests stay independent.
//
// Mutation discipline: ResolveAll is pure and reports per-reference
// outcomes without touching state; only Commit applies them. A rebuild
// transaction therefore works on a Clone and publishes it atomically,
// leaving readers on the previous registry until commit.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/brepkit/identity/kernel"
	"github.com/brepkit/identity/resolve"
	"github.com/brepkit/identity/shape"
)

// Sentinel errors for registry operations.
var (
	// ErrStaleReference indicates a ShapeID that is no longer in the
	// registry. Always recoverable: callers treat the entity as deleted.
	ErrStaleReference = errors.New("registry: stale shape reference")

	// ErrFeatureRegistered indicates a feature whose outputs were already
	// registered. ShapeIDs are assigned once per feature lifetime;
	// subsequent rebuilds refresh references through ResolveAll/Commit.
	ErrFeatureRegistered = errors.New("registry: feature already registered")

	// ErrDuplicateEntity indicates an attempt to hold two live references
	// denoting the same kernel entity.
	ErrDuplicateEntity = errors.New("registry: entity already referenced")
)

// Results maps each resolved ShapeID to its pipeline outcome.
type Results map[shape.ShapeID]resolve.Outcome

// Failures returns the subset of outcomes that did not resolve.
func (r Results) Failures() map[shape.ShapeID]*resolve.Failure {
	out := make(map[shape.ShapeID]*resolve.Failure)
	for id, outcome := range r {
		if outcome.Failure != nil {
			out[id] = outcome.Failure
		}
	}
	return out
}

// ResolvedCount returns how many references resolved to a live shape.
func (r Results) ResolvedCount() int {
	n := 0
	for _, outcome := range r {
		if outcome.Resolved() {
			n++
		}
	}
	return n
}

// Registry is the ShapeID → Reference map for one Body.
// All methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	kernel    kernel.Kernel
	pipeline  *resolve.Pipeline
	logger    *slog.Logger
	refs      map[shape.ShapeID]*shape.Reference
	byFeature map[shape.FeatureID][]shape.ShapeID
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the structured logger. Nil falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an empty registry backed by the given kernel and pipeline.
// A nil pipeline gets the standard pipeline with the default policy.
func New(k kernel.Kernel, pipeline *resolve.Pipeline, opts ...Option) *Registry {
	if pipeline == nil {
		// DefaultPolicy always validates.
		pipeline, _ = resolve.NewPipeline(resolve.DefaultPolicy(), nil)
	}
	r := &Registry{
		kernel:    k,
		pipeline:  pipeline,
		logger:    slog.Default(),
		refs:      make(map[shape.ShapeID]*shape.Reference),
		byFeature: make(map[shape.FeatureID][]shape.ShapeID),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register enumerates a feature's outputs in the given stable order,
// assigns each a fresh ShapeID, and stores the initial references with
// freshly computed descriptors. It is called once, when the feature first
// builds; later rebuilds refresh the references through ResolveAll/Commit.
//
// Registering an entity already referenced by a live reference violates
// the registry's uniqueness invariant and fails with ErrDuplicateEntity;
// no partial state is left behind.
func (r *Registry) Register(feature shape.FeatureID, shapes []shape.Shape) ([]shape.ShapeID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byFeature[feature]; exists {
		return nil, fmt.Errorf("%w: %s", ErrFeatureRegistered, feature)
	}

	live := make(map[shape.Shape]shape.ShapeID, len(r.refs))
	for id, ref := range r.refs {
		if ref.LastKnown != nil {
			live[ref.LastKnown] = id
		}
	}

	perKind := make(map[shape.Kind]int)
	ids := make([]shape.ShapeID, 0, len(shapes))
	refs := make([]*shape.Reference, 0, len(shapes))

	for _, s := range shapes {
		if holder, dup := live[s]; dup {
			return nil, fmt.Errorf("%w: already held by %s", ErrDuplicateEntity, holder)
		}
		desc, err := r.kernel.Describe(s)
		if err != nil {
			return nil, fmt.Errorf("registry: describe output of %s: %w", feature, err)
		}
		id := shape.ShapeID{
			OwningFeature: feature,
			LocalIndex:    perKind[s.Kind()],
			Kind:          s.Kind(),
		}
		perKind[s.Kind()]++
		live[s] = id
		ids = append(ids, id)
		refs = append(refs, &shape.Reference{ID: id, LastKnown: s, Descriptor: &desc})
	}

	for i, ref := range refs {
		r.refs[ids[i]] = ref
	}
	r.byFeature[feature] = ids
	return ids, nil
}

// Seed restores references loaded from persistence. Restored references
// carry no live handle; callers re-resolve them against the freshly
// rebuilt solid immediately after loading. References lacking both a
// descriptor and a selector get a positional selector synthesized from
// their ShapeID as a last-resort fallback.
func (r *Registry) Seed(refs []*shape.Reference) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range refs {
		if _, exists := r.refs[ref.ID]; exists {
			return fmt.Errorf("registry: seed collision on %s", ref.ID)
		}
	}
	for _, ref := range refs {
		clone := ref.Clone()
		clone.LastKnown = nil
		if clone.Descriptor == nil && clone.Selector == nil {
			clone.Selector = &shape.Selector{Kind: clone.ID.Kind, Ordinal: clone.ID.LocalIndex}
		}
		r.refs[clone.ID] = clone
		r.byFeature[clone.ID.OwningFeature] = append(r.byFeature[clone.ID.OwningFeature], clone.ID)
	}
	return nil
}

// ResolveAll runs the resolution pipeline for every reference in the
// registry against the rebuilt solid. It never fails as a whole and never
// mutates registry state: each reference gets an independent outcome, so
// one unresolvable reference cannot block the rebuild of unrelated
// features.
//
// When two references resolve to the same kernel entity (a many-to-one
// merge), the lowest ShapeID keeps the entity and the others report
// DeletedByOperation, preserving the invariant that no two live
// references denote the same entity.
func (r *Registry) ResolveAll(ctx context.Context, newSolid shape.Solid, history *kernel.History) Results {
	r.mu.RLock()
	refs := make([]*shape.Reference, 0, len(r.refs))
	for _, ref := range r.refs {
		refs = append(refs, ref.Clone())
	}
	r.mu.RUnlock()

	target := resolve.NewTarget(r.kernel, newSolid, history)
	results := make(Results, len(refs))
	for _, ref := range refs {
		results[ref.ID] = r.pipeline.Resolve(ctx, ref, target)
	}

	dedupeMerges(results)
	return results
}

// dedupeMerges rewrites outcomes so that at most one reference survives
// per kernel entity. Losers report DeletedByOperation: their entity was
// consumed into the winner's by the operation.
func dedupeMerges(results Results) {
	byShape := make(map[shape.Shape][]shape.ShapeID)
	for id, outcome := range results {
		if outcome.Resolved() {
			byShape[outcome.Shape] = append(byShape[outcome.Shape], id)
		}
	}
	for _, ids := range byShape {
		if len(ids) < 2 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
		winner := ids[0]
		for _, loser := range ids[1:] {
			results[loser] = resolve.Outcome{
				ID: loser,
				Failure: &resolve.Failure{
					ID:     loser,
					Reason: resolve.ReasonDeletedByOperation,
					Detail: fmt.Sprintf("merged into entity now owned by %s", winner),
				},
			}
		}
	}
}

// Commit applies resolved outcomes to the live map: each resolved
// reference gets its new live handle and fresh descriptor, and any legacy
// selector is dropped now that a descriptor exists. Failed outcomes leave
// their references untouched; the owning features decide how to degrade.
func (r *Registry) Commit(results Results) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[shape.Shape]shape.ShapeID)
	for id, outcome := range results {
		if !outcome.Resolved() {
			continue
		}
		if prev, dup := seen[outcome.Shape]; dup {
			return fmt.Errorf("%w: %s and %s both resolve to the same entity", ErrDuplicateEntity, prev, id)
		}
		seen[outcome.Shape] = id
	}

	for id, outcome := range results {
		if !outcome.Resolved() {
			continue
		}
		ref, ok := r.refs[id]
		if !ok {
			// Reference removed between resolve and commit (feature
			// deleted); treat as stale and skip.
			r.logger.Debug("skipping commit for stale reference", "shape_id", id.String())
			continue
		}
		ref.LastKnown = outcome.Shape
		if outcome.Descriptor != nil {
			d := outcome.Descriptor.Clone()
			ref.Descriptor = &d
		}
		ref.Selector = nil
	}
	return nil
}

// InvalidateFeature removes every reference owned by the feature,
// returning how many were removed. Used on feature delete and suppress.
func (r *Registry) InvalidateFeature(feature shape.FeatureID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.byFeature[feature]
	for _, id := range ids {
		delete(r.refs, id)
	}
	delete(r.byFeature, feature)
	return len(ids)
}

// Compact removes references whose entity is absent from the current
// solid (by native identity containment) and whose owning feature was not
// part of the rebuild that produced it. This bounds registry growth
// across many edit cycles. References without a live handle (freshly
// loaded from persistence) are kept; they cannot be judged until
// re-resolved. Returns the number of references removed.
func (r *Registry) Compact(current shape.Solid, rebuilt map[shape.FeatureID]bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, ref := range r.refs {
		if rebuilt[id.OwningFeature] || ref.LastKnown == nil {
			continue
		}
		if r.kernel.Contains(current, ref.LastKnown) {
			continue
		}
		delete(r.refs, id)
		r.byFeature[id.OwningFeature] = removeID(r.byFeature[id.OwningFeature], id)
		if len(r.byFeature[id.OwningFeature]) == 0 {
			delete(r.byFeature, id.OwningFeature)
		}
		removed++
	}
	if removed > 0 {
		r.logger.Debug("compacted stale references", "removed", removed)
	}
	return removed
}

// Lookup returns a copy of the reference for the given ShapeID, or
// ErrStaleReference when the ID is no longer registered. Stale IDs are
// recoverable by treating the entity as deleted.
func (r *Registry) Lookup(id shape.ShapeID) (*shape.Reference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, ok := r.refs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStaleReference, id)
	}
	return ref.Clone(), nil
}

// References returns copies of every reference, ordered by ShapeID.
func (r *Registry) References() []*shape.Reference {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*shape.Reference, 0, len(r.refs))
	for _, ref := range r.refs {
		out = append(out, ref.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}

// FeatureShapeIDs returns the ShapeIDs owned by the feature, in
// registration order.
func (r *Registry) FeatureShapeIDs(feature shape.FeatureID) []shape.ShapeID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]shape.ShapeID, len(r.byFeature[feature]))
	copy(out, r.byFeature[feature])
	return out
}

// Len returns the number of live references.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.refs)
}

// Clone returns a deep copy sharing the kernel, pipeline, and logger.
// Rebuild transactions clone the registry, mutate the clone, and publish
// it atomically on commit; the cost is proportional to the number of
// references, with no geometry copied.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clone := &Registry{
		kernel:    r.kernel,
		pipeline:  r.pipeline,
		logger:    r.logger,
		refs:      make(map[shape.ShapeID]*shape.Reference, len(r.refs)),
		byFeature: make(map[shape.FeatureID][]shape.ShapeID, len(r.byFeature)),
	}
	for id, ref := range r.refs {
		clone.refs[id] = ref.Clone()
	}
	for feature, ids := range r.byFeature {
		cp := make([]shape.ShapeID, len(ids))
		copy(cp, ids)
		clone.byFeature[feature] = cp
	}
	return clone
}

func removeID(ids []shape.ShapeID, id shape.ShapeID) []shape.ShapeID {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
