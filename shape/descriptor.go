package shape

import "math"

// Vec3 is a 3D vector in model space.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Dot returns the dot product of v and other.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Length returns the Euclidean norm of v.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// IsZero reports whether v is the zero vector.
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// ParamDomain is the parameter-space bounding box of an entity on its
// underlying surface or curve. For curves (edges) only the U interval is
// meaningful and the V interval is left zero.
type ParamDomain struct {
	UMin float64 `json:"u_min" yaml:"u_min"`
	UMax float64 `json:"u_max" yaml:"u_max"`
	VMin float64 `json:"v_min" yaml:"v_min"`
	VMax float64 `json:"v_max" yaml:"v_max"`
}

// Descriptor is a geometric fingerprint of a topological entity, used to
// compare entities across rebuilds when no authoritative identity exists.
//
// A descriptor is recomputed fresh from a live shape every time its owning
// feature participates in a rebuild; a descriptor from a previous cycle is
// only ever compared against, never trusted as current geometry.
type Descriptor struct {
	// Kind is the topological class the descriptor was computed for.
	// Descriptors of different kinds never compare above zero.
	Kind Kind `json:"kind" yaml:"kind"`

	// Centroid is the center of mass of the entity.
	Centroid Vec3 `json:"centroid" yaml:"centroid"`

	// PrincipalDirection is the dominant direction of the entity: the face
	// normal at the centroid, the edge tangent, or zero for vertices.
	// Orientation is not significant; comparison is sign-insensitive.
	PrincipalDirection Vec3 `json:"principal_direction" yaml:"principal_direction"`

	// Extent is the scalar size of the entity: area for faces, length for
	// edges, zero for vertices.
	Extent float64 `json:"extent" yaml:"extent"`

	// ParamDomain is the optional parameter-space footprint. Nil when the
	// kernel does not report one; the overlap term then contributes zero.
	ParamDomain *ParamDomain `json:"param_domain,omitempty" yaml:"param_domain,omitempty"`
}

// Clone returns a deep copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	out := d
	if d.ParamDomain != nil {
		pd := *d.ParamDomain
		out.ParamDomain = &pd
	}
	return out
}
