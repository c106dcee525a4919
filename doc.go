// Package identity implements persistent shape identity for parametric
// solid models.
//
// In a parametric modeler, features reference the faces, edges, and
// vertices of earlier features. The kernel assigns those entities fresh
// transient handles on every rebuild, so a raw handle held across an edit
// dangles or silently points at the wrong geometry. This package gives
// every referenced entity a stable ShapeID, tracks how entities evolve
// across rebuilds, and re-binds each ID to its surviving entity after
// every edit.
//
// # Architecture
//
// The Engine is the per-document entry point. It owns a set of bodies,
// each pairing a feature dependency graph (package depgraph) with a
// shape registry (package registry). Edits mark features dirty; a
// rebuild transaction (package rebuild) recomputes the dirty set in
// dependency order through the kernel abstraction (package kernel), then
// re-resolves every registered reference against the new solid using a
// three-stage pipeline (package resolve):
//
//  1. History: exact mapping from the kernel's operation logs, when the
//     kernel provides them. Handles splits, merges, and deletions
//     authoritatively.
//  2. Geometric: fuzzy matching by centroid, orientation, extent, and
//     parameter domain against the descriptor recorded at the last
//     successful resolution.
//  3. Legacy: positional fallback for references imported from older
//     documents that carry only an ordinal selector.
//
// The transaction commits the new solid and registry with a single
// atomic pointer swap, so concurrent readers always observe a consistent
// committed state and a failed rebuild leaves the model exactly as it
// was.
//
// # Quick Start
//
//	engine, err := identity.NewEngine("bracket.doc", kern)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	body, _ := engine.AddBody("main")
//	_ = engine.AddFeature("main", "pad")
//	_ = engine.AddFeature("main", "hole", "pad")
//
//	outcome, err := engine.Rebuild(ctx, "main")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Give the pad's faces persistent identities, then look one up
//	// after any later rebuild.
//	ids, _ := engine.Register("main", "pad", padFaces)
//	ref, err := engine.Lookup("main", ids[0])
//
// # Persistence
//
// Identity state survives document save/load through package persist.
// Configure a store with WithStore; Save captures each reference's
// ShapeID, descriptor, and selector, and Restore seeds them back so the
// next rebuild re-binds them to live geometry.
//
// # Error Handling
//
// Operations return *Error values carrying the failed operation, an
// error kind, and the underlying cause. Sentinel errors such as
// ErrBodyNotFound work with errors.Is through any level of wrapping.
package identity
