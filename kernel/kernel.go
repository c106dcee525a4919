// Package kernel defines the seam between the identity engine and the
// underlying geometry kernel. The kernel is an opaque collaborator: it
// consumes a solid plus operation parameters and returns an entirely new
// solid, with no guarantee that any topological entity keeps its identity
// across the call. Everything the engine knows about live geometry flows
// through the Kernel interface.
//
// Any B-Rep kernel that can enumerate shapes, measure them, answer native
// identity containment, and recompute a feature satisfies this package;
// kernels that additionally report operation history implement
// HistoryProvider and unlock exact resolution.
package kernel

import (
	"context"
	"fmt"

	"github.com/brepkit/identity/shape"
)

// Kernel is the minimal surface the engine requires from a geometry kernel.
//
// Implementations must be safe for concurrent readers: EnumerateShapes,
// Describe, and Contains may be called from inspector goroutines while a
// rebuild transaction is in flight. Recompute is only ever invoked by the
// single writer of a Body.
type Kernel interface {
	// EnumerateShapes returns the live handles of the given kind on the
	// solid, in a stable order. Calling it twice on the same solid must
	// yield the same handles in the same order.
	EnumerateShapes(solid shape.Solid, kind shape.Kind) ([]shape.Shape, error)

	// Describe computes the geometric fingerprint of a live shape. The
	// result is valid only for the current rebuild cycle.
	Describe(s shape.Shape) (shape.Descriptor, error)

	// Contains reports whether the shape handle denotes an entity of the
	// solid, by native kernel identity, not geometric equality.
	Contains(solid shape.Solid, s shape.Shape) bool

	// Recompute rebuilds a feature's output from its upstream solid and
	// current parameters. Upstream is nil for features at the root of the
	// tree. Kernel calls are synchronous, potentially slow, and treated as
	// atomic non-interruptible units; ctx is consulted only before the
	// operation starts.
	Recompute(ctx context.Context, upstream shape.Solid, feature shape.FeatureID, params map[string]any) (shape.Solid, error)
}

// History is the kernel-reported correlation for one operation: each entity
// of the old solid maps to the entities of the new solid it became. An
// entity mapped to an empty slice was consumed by the operation; an entity
// mapped to several was split.
type History struct {
	mapping map[shape.Shape][]shape.Shape
}

// NewHistory builds a History from an old-shape to new-shapes mapping.
func NewHistory(mapping map[shape.Shape][]shape.Shape) *History {
	return &History{mapping: mapping}
}

// Lookup returns the new-solid entities the old entity became. The second
// result is false when the kernel reported nothing about the entity, which
// is distinct from an explicit empty mapping (consumed).
func (h *History) Lookup(old shape.Shape) ([]shape.Shape, bool) {
	if h == nil || h.mapping == nil {
		return nil, false
	}
	out, ok := h.mapping[old]
	return out, ok
}

// HistoryProvider is the optional kernel capability of reporting
// create/modify/delete correlation for an operation just performed.
// Kernels without it fall back to geometric resolution.
type HistoryProvider interface {
	// OperationHistory returns the correlation between oldSolid and
	// newSolid for the named operation, or false when the kernel cannot
	// report one for this pair.
	OperationHistory(oldSolid, newSolid shape.Solid, op string) (*History, bool)
}

// HistoryFor extracts operation history from k when it implements
// HistoryProvider, and returns nil otherwise.
func HistoryFor(k Kernel, oldSolid, newSolid shape.Solid, op string) *History {
	hp, ok := k.(HistoryProvider)
	if !ok {
		return nil
	}
	h, ok := hp.OperationHistory(oldSolid, newSolid, op)
	if !ok {
		return nil
	}
	return h
}

// OperationError reports a kernel-rejected operation. It is fatal to the
// surrounding rebuild transaction and always triggers a rollback.
type OperationError struct {
	// Feature is the feature whose recompute failed.
	Feature shape.FeatureID

	// Op names the kernel operation, when known (e.g. "extrude", "boolean_cut").
	Op string

	// Err is the kernel's error detail.
	Err error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("kernel: %s failed for feature %s: %v", e.Op, e.Feature, e.Err)
	}
	return fmt.Sprintf("kernel: recompute failed for feature %s: %v", e.Feature, e.Err)
}

// Unwrap returns the kernel's underlying error.
func (e *OperationError) Unwrap() error {
	return e.Err
}
