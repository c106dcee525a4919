package shape

import (
	"fmt"
)

// Kind identifies the topological class of a B-Rep entity.
type Kind string

// Canonical shape kinds.
const (
	// KindFace is a bounded surface region of a solid.
	KindFace Kind = "face"

	// KindEdge is a bounded curve where two faces meet.
	KindEdge Kind = "edge"

	// KindVertex is a point where edges meet.
	KindVertex Kind = "vertex"

	// KindSolid is a complete closed solid body.
	KindSolid Kind = "solid"
)

// Valid reports whether k is one of the canonical shape kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFace, KindEdge, KindVertex, KindSolid:
		return true
	}
	return false
}

// FeatureID identifies a feature in the document's feature tree
// (e.g. "Pad001", "Fillet003"). Feature IDs are unique per document.
type FeatureID string

// Shape is an opaque handle to a live topological entity owned by the
// geometry kernel. Handle equality is native kernel identity: two Shape
// values are the same entity if and only if they compare equal. The engine
// never inspects a handle beyond its Kind; all geometric measures come
// from the kernel seam.
type Shape interface {
	// Kind returns the topological class of the entity.
	Kind() Kind
}

// Solid is an opaque handle to a kernel solid. The engine treats solids as
// immutable values: every kernel operation produces a new Solid and the old
// one remains valid until released by the owner.
type Solid interface{}

// ShapeID is the persistent identity of a topological entity. It is
// immutable and unique per document for the lifetime of the owning feature,
// and is the only handle stored in persisted features and selections.
//
// The zero value is not a valid ShapeID.
type ShapeID struct {
	// OwningFeature is the feature whose rebuild first produced the entity.
	OwningFeature FeatureID `json:"owning_feature"`

	// LocalIndex is the position of the entity within the owning feature's
	// outputs of the same kind, in stable enumeration order.
	LocalIndex int `json:"local_index"`

	// Kind is the topological class of the entity.
	Kind Kind `json:"kind"`
}

// String returns a compact human-readable form, e.g. "Pad001/face[3]".
func (id ShapeID) String() string {
	return fmt.Sprintf("%s/%s[%d]", id.OwningFeature, id.Kind, id.LocalIndex)
}

// IsZero reports whether id is the zero value.
func (id ShapeID) IsZero() bool {
	return id == ShapeID{}
}

// Less defines a total order over shape identifiers: owning feature first,
// then kind, then local index. The order is used wherever a deterministic
// tie-break between identifiers is required, such as choosing the surviving
// reference when the kernel reports a many-to-one merge.
func (id ShapeID) Less(other ShapeID) bool {
	if id.OwningFeature != other.OwningFeature {
		return id.OwningFeature < other.OwningFeature
	}
	if id.Kind != other.Kind {
		return id.Kind < other.Kind
	}
	return id.LocalIndex < other.LocalIndex
}
