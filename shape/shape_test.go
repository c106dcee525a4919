package shape_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/brepkit/identity/shape"
)

func TestShapeIDString(t *testing.T) {
	id := shape.ShapeID{OwningFeature: "Pad001", LocalIndex: 3, Kind: shape.KindFace}
	assert.Equal(t, "Pad001/face[3]", id.String())
}

func TestShapeIDIsZero(t *testing.T) {
	assert.True(t, shape.ShapeID{}.IsZero())
	assert.False(t, shape.ShapeID{OwningFeature: "Pad001", Kind: shape.KindFace}.IsZero())
}

// TestShapeIDLess verifies the total order used for deterministic
// tie-breaks: owning feature first, then kind, then local index.
func TestShapeIDLess(t *testing.T) {
	tests := []struct {
		name string
		a, b shape.ShapeID
		less bool
	}{
		{
			name: "feature ordering dominates",
			a:    shape.ShapeID{OwningFeature: "Cut002", LocalIndex: 9, Kind: shape.KindVertex},
			b:    shape.ShapeID{OwningFeature: "Pad001", LocalIndex: 0, Kind: shape.KindEdge},
			less: true,
		},
		{
			name: "kind breaks feature ties",
			a:    shape.ShapeID{OwningFeature: "Pad001", LocalIndex: 5, Kind: shape.KindEdge},
			b:    shape.ShapeID{OwningFeature: "Pad001", LocalIndex: 0, Kind: shape.KindFace},
			less: true,
		},
		{
			name: "index breaks kind ties",
			a:    shape.ShapeID{OwningFeature: "Pad001", LocalIndex: 1, Kind: shape.KindFace},
			b:    shape.ShapeID{OwningFeature: "Pad001", LocalIndex: 2, Kind: shape.KindFace},
			less: true,
		},
		{
			name: "equal IDs are not less",
			a:    shape.ShapeID{OwningFeature: "Pad001", LocalIndex: 1, Kind: shape.KindFace},
			b:    shape.ShapeID{OwningFeature: "Pad001", LocalIndex: 1, Kind: shape.KindFace},
			less: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.less, tt.a.Less(tt.b))
			if tt.less {
				assert.False(t, tt.b.Less(tt.a))
			}
		})
	}
}

func TestKindValid(t *testing.T) {
	assert.True(t, shape.KindFace.Valid())
	assert.True(t, shape.KindEdge.Valid())
	assert.True(t, shape.KindVertex.Valid())
	assert.True(t, shape.KindSolid.Valid())
	assert.False(t, shape.Kind("shell").Valid())
	assert.False(t, shape.Kind("").Valid())
}

// TestDescriptorClone verifies the clone is deep with respect to the
// optional parameter domain.
func TestDescriptorClone(t *testing.T) {
	orig := shape.Descriptor{
		Kind:        shape.KindFace,
		Centroid:    shape.Vec3{X: 1, Y: 2, Z: 3},
		Extent:      4,
		ParamDomain: &shape.ParamDomain{UMin: 0, UMax: 1, VMin: 0, VMax: 1},
	}

	clone := orig.Clone()
	clone.ParamDomain.UMax = 99

	assert.Equal(t, 1.0, orig.ParamDomain.UMax)
	assert.Equal(t, 99.0, clone.ParamDomain.UMax)
}

// TestReferenceClone verifies deep copy of descriptor and selector while
// the opaque live handle is shared.
func TestReferenceClone(t *testing.T) {
	ref := &shape.Reference{
		ID:         shape.ShapeID{OwningFeature: "Pad001", Kind: shape.KindFace},
		Descriptor: &shape.Descriptor{Kind: shape.KindFace, Extent: 4},
		Selector:   &shape.Selector{Kind: shape.KindFace, Ordinal: 2},
	}

	clone := ref.Clone()
	require.NotNil(t, clone)

	clone.Descriptor.Extent = 10
	clone.Selector.Ordinal = 7

	assert.Equal(t, 4.0, ref.Descriptor.Extent)
	assert.Equal(t, 2, ref.Selector.Ordinal)
	assert.Equal(t, ref.ID, clone.ID)
}

func TestReferenceCloneNil(t *testing.T) {
	var ref *shape.Reference
	assert.Nil(t, ref.Clone())
}

func TestVec3(t *testing.T) {
	v := shape.Vec3{X: 3, Y: 4, Z: 0}
	assert.Equal(t, 5.0, v.Length())
	assert.Equal(t, shape.Vec3{X: 2, Y: 4, Z: 0}, v.Sub(shape.Vec3{X: 1}))
	assert.Equal(t, 25.0, v.Dot(v))
	assert.False(t, v.IsZero())
	assert.True(t, shape.Vec3{}.IsZero())
}
