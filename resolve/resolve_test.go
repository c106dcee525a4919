package resolve_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/brepkit/identity/kernel"
	"github.com/brepkit/identity/kernel/kerneltest"
	"github.com/brepkit/identity/resolve"
	"github.com/brepkit/identity/shape"
)

func newPipeline(t *testing.T, policy resolve.Policy) *resolve.Pipeline {
	t.Helper()
	p, err := resolve.NewPipeline(policy, nil)
	require.NoError(t, err)
	return p
}

func faceID(feature shape.FeatureID, index int) shape.ShapeID {
	return shape.ShapeID{OwningFeature: feature, LocalIndex: index, Kind: shape.KindFace}
}

func describeOf(t *testing.T, k kernel.Kernel, s shape.Shape) *shape.Descriptor {
	t.Helper()
	desc, err := k.Describe(s)
	require.NoError(t, err)
	return &desc
}

// TestHistoryExactMatch verifies that a kernel-reported one-to-one mapping
// resolves exactly, without consulting geometry.
func TestHistoryExactMatch(t *testing.T) {
	kern := kerneltest.New()
	oldFace := kerneltest.Face("old", shape.Vec3{}, shape.Vec3{Z: 1}, 4)
	newFace := kerneltest.Face("new", shape.Vec3{X: 50}, shape.Vec3{X: 1}, 0.5)
	oldSolid := kerneltest.NewSolid("old", oldFace)
	newSolid := kerneltest.NewSolid("new", newFace)
	kern.SetHistory(oldSolid, newSolid, map[shape.Shape][]shape.Shape{
		oldFace: {newFace},
	})

	ref := &shape.Reference{
		ID:         faceID("pad", 0),
		LastKnown:  oldFace,
		Descriptor: describeOf(t, kern, oldFace),
	}

	history := kernel.HistoryFor(kern, oldSolid, newSolid, "cut")
	require.NotNil(t, history)
	target := resolve.NewTarget(kern, newSolid, history)

	outcome := newPipeline(t, resolve.DefaultPolicy()).Resolve(context.Background(), ref, target)
	require.True(t, outcome.Resolved())
	assert.Equal(t, "history", outcome.Strategy)
	assert.Same(t, newFace, outcome.Shape.(*kerneltest.Shape))
	assert.Equal(t, 1.0, outcome.Score)
}

// TestHistoryDeletion verifies that an entity the kernel reports as
// consumed yields DeletedByOperation, a lifecycle event distinct from a
// failed match.
func TestHistoryDeletion(t *testing.T) {
	kern := kerneltest.New()
	oldFace := kerneltest.Face("old", shape.Vec3{}, shape.Vec3{Z: 1}, 4)
	survivor := kerneltest.Face("survivor", shape.Vec3{}, shape.Vec3{Z: 1}, 4)
	oldSolid := kerneltest.NewSolid("old", oldFace)
	newSolid := kerneltest.NewSolid("new", survivor)
	kern.SetHistory(oldSolid, newSolid, map[shape.Shape][]shape.Shape{
		oldFace: {},
	})

	ref := &shape.Reference{
		ID:         faceID("pad", 0),
		LastKnown:  oldFace,
		Descriptor: describeOf(t, kern, oldFace),
	}

	history := kernel.HistoryFor(kern, oldSolid, newSolid, "cut")
	target := resolve.NewTarget(kern, newSolid, history)

	outcome := newPipeline(t, resolve.DefaultPolicy()).Resolve(context.Background(), ref, target)
	require.NotNil(t, outcome.Failure)
	assert.Equal(t, resolve.ReasonDeletedByOperation, outcome.Failure.Reason)

	// The identical survivor face must not be claimed: the kernel's verdict
	// overrides any geometric resemblance.
	assert.Nil(t, outcome.Shape)
}

// TestHistorySplitLargest verifies the default split policy: the fragment
// with the largest extent keeps the identity, and all fragments are
// reported on the outcome.
func TestHistorySplitLargest(t *testing.T) {
	kern := kerneltest.New()
	oldFace := kerneltest.Face("old", shape.Vec3{}, shape.Vec3{Z: 1}, 8)
	small := kerneltest.Face("small", shape.Vec3{X: -1}, shape.Vec3{Z: 1}, 2)
	large := kerneltest.Face("large", shape.Vec3{X: 1}, shape.Vec3{Z: 1}, 5)
	oldSolid := kerneltest.NewSolid("old", oldFace)
	newSolid := kerneltest.NewSolid("new", small, large)
	kern.SetHistory(oldSolid, newSolid, map[shape.Shape][]shape.Shape{
		oldFace: {small, large},
	})

	ref := &shape.Reference{
		ID:         faceID("pad", 0),
		LastKnown:  oldFace,
		Descriptor: describeOf(t, kern, oldFace),
	}

	history := kernel.HistoryFor(kern, oldSolid, newSolid, "cut")
	target := resolve.NewTarget(kern, newSolid, history)

	outcome := newPipeline(t, resolve.DefaultPolicy()).Resolve(context.Background(), ref, target)
	require.True(t, outcome.Resolved())
	assert.Same(t, large, outcome.Shape.(*kerneltest.Shape))
	assert.Len(t, outcome.Fragments, 2)
}

// TestHistorySplitReject verifies the strict split policy: the pipeline
// refuses to choose and reports the fragments as candidates for manual
// re-selection.
func TestHistorySplitReject(t *testing.T) {
	kern := kerneltest.New()
	oldFace := kerneltest.Face("old", shape.Vec3{}, shape.Vec3{Z: 1}, 8)
	a := kerneltest.Face("a", shape.Vec3{X: -1}, shape.Vec3{Z: 1}, 4)
	b := kerneltest.Face("b", shape.Vec3{X: 1}, shape.Vec3{Z: 1}, 4)
	oldSolid := kerneltest.NewSolid("old", oldFace)
	newSolid := kerneltest.NewSolid("new", a, b)
	kern.SetHistory(oldSolid, newSolid, map[shape.Shape][]shape.Shape{
		oldFace: {a, b},
	})

	policy := resolve.DefaultPolicy()
	policy.Split = resolve.SplitReject

	ref := &shape.Reference{
		ID:         faceID("pad", 0),
		LastKnown:  oldFace,
		Descriptor: describeOf(t, kern, oldFace),
	}

	history := kernel.HistoryFor(kern, oldSolid, newSolid, "cut")
	target := resolve.NewTarget(kern, newSolid, history)

	outcome := newPipeline(t, policy).Resolve(context.Background(), ref, target)
	require.NotNil(t, outcome.Failure)
	assert.Equal(t, resolve.ReasonAmbiguousSplit, outcome.Failure.Reason)
	assert.Len(t, outcome.Failure.Candidates, 2)
}

// TestGeometricFallback verifies that a reference unknown to history is
// resolved geometrically against the rebuilt solid.
func TestGeometricFallback(t *testing.T) {
	kern := kerneltest.New()
	oldFace := kerneltest.Face("old", shape.Vec3{}, shape.Vec3{Z: 1}, 4)
	// Same position, flipped normal, same area: a convincing survivor.
	match := kerneltest.Face("match", shape.Vec3{}, shape.Vec3{Z: -1}, 4)
	other := kerneltest.Face("other", shape.Vec3{X: 10}, shape.Vec3{Z: 1}, 4)
	newSolid := kerneltest.NewSolid("new", other, match)

	ref := &shape.Reference{
		ID:         faceID("pad", 0),
		LastKnown:  oldFace,
		Descriptor: describeOf(t, kern, oldFace),
	}

	// No history at all for this pair.
	target := resolve.NewTarget(kern, newSolid, nil)

	outcome := newPipeline(t, resolve.DefaultPolicy()).Resolve(context.Background(), ref, target)
	require.True(t, outcome.Resolved())
	assert.Equal(t, "geometric", outcome.Strategy)
	assert.Same(t, match, outcome.Shape.(*kerneltest.Shape))
	assert.InDelta(t, 0.9, outcome.Score, 1e-9)

	// The committed descriptor must be the fresh one, not the stale one.
	require.NotNil(t, outcome.Descriptor)
	assert.Equal(t, shape.Vec3{Z: -1}, outcome.Descriptor.PrincipalDirection)
}

// TestGeometricBelowThreshold verifies that a lone poor candidate is
// rejected rather than silently accepted. A single candidate is not a
// confident candidate.
func TestGeometricBelowThreshold(t *testing.T) {
	kern := kerneltest.New()
	oldFace := kerneltest.Face("old", shape.Vec3{}, shape.Vec3{Z: 1}, 4)
	stranger := kerneltest.Face("stranger", shape.Vec3{X: 50}, shape.Vec3{X: 1}, 0.1)
	newSolid := kerneltest.NewSolid("new", stranger)

	ref := &shape.Reference{
		ID:         faceID("pad", 0),
		LastKnown:  oldFace,
		Descriptor: describeOf(t, kern, oldFace),
	}

	target := resolve.NewTarget(kern, newSolid, nil)

	outcome := newPipeline(t, resolve.DefaultPolicy()).Resolve(context.Background(), ref, target)
	require.NotNil(t, outcome.Failure)
	assert.Equal(t, resolve.ReasonNoConfidentMatch, outcome.Failure.Reason)
	assert.NotEmpty(t, outcome.Failure.Candidates)
}

// TestGeometricMarginGuard verifies that two near-tie candidates fail
// resolution even when both clear the threshold: an arbitrary winner is
// worse than an honest failure.
func TestGeometricMarginGuard(t *testing.T) {
	kern := kerneltest.New()
	oldFace := kerneltest.Face("old", shape.Vec3{}, shape.Vec3{Z: 1}, 4)
	left := kerneltest.Face("left", shape.Vec3{X: -1}, shape.Vec3{Z: 1}, 4)
	right := kerneltest.Face("right", shape.Vec3{X: 1}, shape.Vec3{Z: 1}, 4)
	newSolid := kerneltest.NewSolid("new", left, right)

	ref := &shape.Reference{
		ID:         faceID("pad", 0),
		LastKnown:  oldFace,
		Descriptor: describeOf(t, kern, oldFace),
	}

	target := resolve.NewTarget(kern, newSolid, nil)

	outcome := newPipeline(t, resolve.DefaultPolicy()).Resolve(context.Background(), ref, target)
	require.NotNil(t, outcome.Failure)
	assert.Equal(t, resolve.ReasonNoConfidentMatch, outcome.Failure.Reason)
	assert.Contains(t, outcome.Failure.Detail, "margin")
	assert.Len(t, outcome.Failure.Candidates, 2)
}

// TestLegacySelector verifies the positional fallback for references that
// predate descriptor recording.
func TestLegacySelector(t *testing.T) {
	kern := kerneltest.New()
	f0 := kerneltest.Face("f0", shape.Vec3{}, shape.Vec3{Z: 1}, 1)
	f1 := kerneltest.Face("f1", shape.Vec3{X: 1}, shape.Vec3{Z: 1}, 1)
	f2 := kerneltest.Face("f2", shape.Vec3{X: 2}, shape.Vec3{Z: 1}, 1)
	newSolid := kerneltest.NewSolid("new", f0, f1, f2)

	pipeline := newPipeline(t, resolve.DefaultPolicy())
	target := resolve.NewTarget(kern, newSolid, nil)

	t.Run("ordinal in range", func(t *testing.T) {
		ref := &shape.Reference{
			ID:       faceID("pad", 1),
			Selector: &shape.Selector{Kind: shape.KindFace, Ordinal: 1},
		}
		outcome := pipeline.Resolve(context.Background(), ref, target)
		require.True(t, outcome.Resolved())
		assert.Equal(t, "legacy", outcome.Strategy)
		assert.Same(t, f1, outcome.Shape.(*kerneltest.Shape))
	})

	t.Run("ordinal out of range", func(t *testing.T) {
		ref := &shape.Reference{
			ID:       faceID("pad", 9),
			Selector: &shape.Selector{Kind: shape.KindFace, Ordinal: 9},
		}
		outcome := pipeline.Resolve(context.Background(), ref, target)
		require.NotNil(t, outcome.Failure)
		assert.Equal(t, resolve.ReasonNoConfidentMatch, outcome.Failure.Reason)
	})

	t.Run("never consulted when descriptor exists", func(t *testing.T) {
		ref := &shape.Reference{
			ID:         faceID("pad", 0),
			Descriptor: describeOf(t, kern, f2),
			Selector:   &shape.Selector{Kind: shape.KindFace, Ordinal: 0},
		}
		outcome := pipeline.Resolve(context.Background(), ref, target)
		require.True(t, outcome.Resolved())
		assert.Equal(t, "geometric", outcome.Strategy)
		assert.Same(t, f2, outcome.Shape.(*kerneltest.Shape))
	})
}

// TestPipelineNothingToActOn verifies that a reference with no handle,
// descriptor, or selector reports NoConfidentMatch instead of panicking
// or guessing.
func TestPipelineNothingToActOn(t *testing.T) {
	kern := kerneltest.New()
	newSolid := kerneltest.NewSolid("new")
	target := resolve.NewTarget(kern, newSolid, nil)

	ref := &shape.Reference{ID: faceID("pad", 0)}
	outcome := newPipeline(t, resolve.DefaultPolicy()).Resolve(context.Background(), ref, target)
	require.NotNil(t, outcome.Failure)
	assert.Equal(t, resolve.ReasonNoConfidentMatch, outcome.Failure.Reason)
}
