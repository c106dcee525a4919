package shape

// Selector is a positional fallback reference predating descriptor
// recording: "the n-th entity of this kind" in the owning feature's
// enumeration order. It survives from documents written before descriptors
// were persisted and carries the weakest resolution guarantee.
type Selector struct {
	// Kind is the topological class selected.
	Kind Kind `json:"kind" yaml:"kind"`

	// Ordinal is the zero-based position within the enumeration of that
	// kind on the rebuilt solid.
	Ordinal int `json:"ordinal" yaml:"ordinal"`
}

// Reference is the mutable registry record for one persistent ShapeID.
// LastKnown and Descriptor are refreshed on every successful resolution;
// the ID itself never changes for the lifetime of the owning feature.
type Reference struct {
	// ID is the persistent identity. Immutable.
	ID ShapeID `json:"id"`

	// LastKnown is the live kernel handle from the most recent successful
	// resolution. Nil after loading from persistence, until the reference
	// is re-resolved against a freshly rebuilt solid. Never persisted.
	LastKnown Shape `json:"-"`

	// Descriptor is the fingerprint recorded when LastKnown was current.
	// Nil only for references restored from documents that predate
	// descriptor recording.
	Descriptor *Descriptor `json:"descriptor,omitempty"`

	// Selector is the positional fallback used when Descriptor is nil.
	Selector *Selector `json:"selector,omitempty"`
}

// Clone returns a deep copy of the reference. The opaque LastKnown handle
// is shared, not copied; kernel handles are immutable values.
func (r *Reference) Clone() *Reference {
	if r == nil {
		return nil
	}
	out := *r
	if r.Descriptor != nil {
		d := r.Descriptor.Clone()
		out.Descriptor = &d
	}
	if r.Selector != nil {
		s := *r.Selector
		out.Selector = &s
	}
	return &out
}
