// Package rebuild orchestrates the edit cycle of a Body: kernel rebuild of
// the dirty feature set, re-resolution of every persistent shape
// reference, and an atomic commit-or-rollback of the result.
//
// A transaction is a short-lived state machine:
//
//	Idle → Snapshot → Rebuilding → (Resolving → Committed) | RolledBack
//
// Snapshot captures the current solid reference and a clone of the
// registry; no geometric copy is made. Rebuilding walks the topological
// order of the dirty set, asking the kernel to recompute each feature from
// its already-updated upstream output. Resolving runs the resolution
// pipeline for every reference against the final solid and compacts stale
// entries. Committed publishes the new solid and registry with a single
// reference swap; until that instant, readers observe the previous
// committed state and never any intermediate one.
//
// A kernel failure aborts the transaction at the failing feature: the
// committed state is untouched, the feature is marked failed with the
// kernel's error detail and keeps its dirty flag, and downstream features
// are left alone. Resolution failures never abort; they are collected per
// reference and surface on the owning features as a degraded state.
//
// Concurrency: at most one transaction runs per Body. Concurrent edit
// requests queue behind the writer slot and cancelling a queued request
// is free; a kernel call already in flight is atomic and
// non-interruptible. Kernel calls block, so interactive callers run
// transactions off the UI goroutine (see Body.RunAsync).
package rebuild
