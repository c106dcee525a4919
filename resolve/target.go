package resolve

import (
	"fmt"
	"sync"

	"github.com/brepkit/identity/kernel"
	"github.com/brepkit/identity/shape"
)

// Target is the rebuilt solid a pipeline run resolves against, together
// with the kernel that owns it and the operation history when the kernel
// reported one.
//
// Candidate enumeration and description are cached per kind, so resolving
// hundreds of references against the same solid measures each live entity
// once.
type Target struct {
	kernel  kernel.Kernel
	solid   shape.Solid
	history *kernel.History

	mu         sync.Mutex
	candidates map[shape.Kind][]Candidate
}

// NewTarget creates a resolution target. History may be nil when the
// kernel reported no correlation for the operation.
func NewTarget(k kernel.Kernel, solid shape.Solid, history *kernel.History) *Target {
	return &Target{
		kernel:     k,
		solid:      solid,
		history:    history,
		candidates: make(map[shape.Kind][]Candidate),
	}
}

// Solid returns the solid being resolved against.
func (t *Target) Solid() shape.Solid { return t.solid }

// History returns the kernel-reported operation history, or nil.
func (t *Target) History() *kernel.History { return t.history }

// Kernel returns the owning kernel.
func (t *Target) Kernel() kernel.Kernel { return t.kernel }

// Candidates returns every entity of the given kind on the target solid,
// each paired with its freshly computed descriptor. Scores are zero; the
// geometric strategy fills them in per reference.
func (t *Target) Candidates(kind shape.Kind) ([]Candidate, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cached, ok := t.candidates[kind]; ok {
		return cached, nil
	}

	shapes, err := t.kernel.EnumerateShapes(t.solid, kind)
	if err != nil {
		return nil, fmt.Errorf("resolve: enumerate %s candidates: %w", kind, err)
	}

	out := make([]Candidate, 0, len(shapes))
	for _, s := range shapes {
		desc, err := t.kernel.Describe(s)
		if err != nil {
			return nil, fmt.Errorf("resolve: describe %s candidate: %w", kind, err)
		}
		out = append(out, Candidate{Shape: s, Descriptor: desc})
	}
	t.candidates[kind] = out
	return out, nil
}
