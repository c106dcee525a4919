// Package shape defines the vocabulary shared by every component of the
// identity engine: topological shape kinds, persistent shape identifiers,
// live shape references, geometric descriptors, and the similarity scoring
// used to compare descriptors across rebuilds.
//
// A geometry kernel gives no guarantee that a face, edge, or vertex keeps a
// stable identity when a solid is rebuilt. The types in this package are the
// building blocks used to recover "the same" entity afterwards:
//
//   - ShapeID is the immutable, externally visible handle a feature stores.
//   - Reference pairs a ShapeID with the last known live handle and the
//     descriptor recorded when that handle was last resolved.
//   - Descriptor is a geometric fingerprint (centroid, principal direction,
//     extent, optional parameter domain) recomputed fresh from a live shape
//     and never trusted beyond one rebuild cycle.
//   - Weights and Similarity implement the configurable fuzzy comparison
//     between two same-kind descriptors.
//
// The package has no dependencies on the kernel seam or the resolution
// pipeline; everything here is a plain value type.
package shape
