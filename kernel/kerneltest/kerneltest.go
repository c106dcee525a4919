// Package kerneltest provides a scriptable in-memory geometry kernel for
// tests and examples. Solids are flat collections of shape handles with
// hand-authored descriptors; recompute results, kernel failures, and
// operation history are scripted per feature.
//
// The fake deliberately reproduces the one property that makes topological
// naming hard: every scripted recompute returns brand-new shape handles,
// so nothing matches by identity across a rebuild unless the test wires up
// history or relies on geometric resolution.
package kerneltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/brepkit/identity/kernel"
	"github.com/brepkit/identity/shape"
)

// Shape is a fake live shape handle. Identity is pointer identity, exactly
// like a real kernel handle.
type Shape struct {
	id   string
	desc shape.Descriptor
}

// NewShape creates a handle with an explicit descriptor.
func NewShape(id string, desc shape.Descriptor) *Shape {
	return &Shape{id: id, desc: desc}
}

// Face creates a face handle with the given centroid, normal, and area.
func Face(id string, centroid, normal shape.Vec3, area float64) *Shape {
	return NewShape(id, shape.Descriptor{
		Kind:               shape.KindFace,
		Centroid:           centroid,
		PrincipalDirection: normal,
		Extent:             area,
	})
}

// Edge creates an edge handle with the given centroid, tangent, and length.
func Edge(id string, centroid, tangent shape.Vec3, length float64) *Shape {
	return NewShape(id, shape.Descriptor{
		Kind:               shape.KindEdge,
		Centroid:           centroid,
		PrincipalDirection: tangent,
		Extent:             length,
	})
}

// Vertex creates a vertex handle at the given position.
func Vertex(id string, at shape.Vec3) *Shape {
	return NewShape(id, shape.Descriptor{
		Kind:     shape.KindVertex,
		Centroid: at,
	})
}

// WithDomain returns a copy of the handle carrying a parameter domain.
func (s *Shape) WithDomain(d shape.ParamDomain) *Shape {
	out := *s
	out.desc.ParamDomain = &d
	return &out
}

// Kind implements shape.Shape.
func (s *Shape) Kind() shape.Kind { return s.desc.Kind }

// ID returns the handle's test label.
func (s *Shape) ID() string { return s.id }

// String returns the test label, making assertion failures readable.
func (s *Shape) String() string { return s.id }

// Solid is a fake kernel solid: a named, ordered collection of handles.
type Solid struct {
	name   string
	shapes []*Shape
}

// NewSolid creates a solid containing the given handles, in order.
func NewSolid(name string, shapes ...*Shape) *Solid {
	return &Solid{name: name, shapes: shapes}
}

// Name returns the solid's test label.
func (s *Solid) Name() string { return s.name }

// Shapes returns the solid's handles in enumeration order.
func (s *Solid) Shapes() []*Shape {
	out := make([]*Shape, len(s.shapes))
	copy(out, s.shapes)
	return out
}

// RecomputeFunc produces a feature's output from its upstream solid and
// parameters.
type RecomputeFunc func(upstream shape.Solid, params map[string]any) (shape.Solid, error)

type solidPair struct {
	oldSolid shape.Solid
	newSolid shape.Solid
}

// Kernel is the scriptable fake. The zero value is not usable; create
// instances with New.
type Kernel struct {
	mu        sync.Mutex
	recompute map[shape.FeatureID]RecomputeFunc
	failures  map[shape.FeatureID]error
	histories map[solidPair]*kernel.History
	calls     []shape.FeatureID
}

// New creates an empty fake kernel.
func New() *Kernel {
	return &Kernel{
		recompute: make(map[shape.FeatureID]RecomputeFunc),
		failures:  make(map[shape.FeatureID]error),
		histories: make(map[solidPair]*kernel.History),
	}
}

// OnRecompute scripts the output of a feature's recompute.
func (k *Kernel) OnRecompute(feature shape.FeatureID, fn RecomputeFunc) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.recompute[feature] = fn
}

// ReturnSolid scripts a feature to always produce the given solid.
func (k *Kernel) ReturnSolid(feature shape.FeatureID, solid *Solid) {
	k.OnRecompute(feature, func(shape.Solid, map[string]any) (shape.Solid, error) {
		return solid, nil
	})
}

// FailRecompute scripts a feature's recompute to fail with err.
func (k *Kernel) FailRecompute(feature shape.FeatureID, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.failures[feature] = err
}

// SetHistory scripts the operation history reported for the (old, new)
// solid pair. Shapes mapped to an empty slice are reported as consumed.
func (k *Kernel) SetHistory(oldSolid, newSolid shape.Solid, mapping map[shape.Shape][]shape.Shape) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.histories[solidPair{oldSolid, newSolid}] = kernel.NewHistory(mapping)
}

// Calls returns the features recomputed so far, in call order.
func (k *Kernel) Calls() []shape.FeatureID {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]shape.FeatureID, len(k.calls))
	copy(out, k.calls)
	return out
}

// EnumerateShapes implements kernel.Kernel.
func (k *Kernel) EnumerateShapes(solid shape.Solid, kind shape.Kind) ([]shape.Shape, error) {
	s, ok := solid.(*Solid)
	if !ok {
		return nil, fmt.Errorf("kerneltest: unknown solid type %T", solid)
	}
	var out []shape.Shape
	for _, sh := range s.shapes {
		if sh.Kind() == kind {
			out = append(out, sh)
		}
	}
	return out, nil
}

// Describe implements kernel.Kernel.
func (k *Kernel) Describe(s shape.Shape) (shape.Descriptor, error) {
	sh, ok := s.(*Shape)
	if !ok {
		return shape.Descriptor{}, fmt.Errorf("kerneltest: unknown shape type %T", s)
	}
	return sh.desc.Clone(), nil
}

// Contains implements kernel.Kernel using pointer identity.
func (k *Kernel) Contains(solid shape.Solid, s shape.Shape) bool {
	sol, ok := solid.(*Solid)
	if !ok {
		return false
	}
	for _, sh := range sol.shapes {
		if sh == s {
			return true
		}
	}
	return false
}

// Recompute implements kernel.Kernel by running the scripted function for
// the feature, or failing with the scripted error.
func (k *Kernel) Recompute(ctx context.Context, upstream shape.Solid, feature shape.FeatureID, params map[string]any) (shape.Solid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	k.calls = append(k.calls, feature)
	err := k.failures[feature]
	fn := k.recompute[feature]
	k.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("kerneltest: no recompute scripted for feature %s", feature)
	}
	return fn(upstream, params)
}

// OperationHistory implements kernel.HistoryProvider.
func (k *Kernel) OperationHistory(oldSolid, newSolid shape.Solid, op string) (*kernel.History, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	h, ok := k.histories[solidPair{oldSolid, newSolid}]
	return h, ok
}
