package resolve

import (
	"fmt"

	"github.com/brepkit/identity/shape"
)

// Reason classifies why a reference could not be resolved to a live shape.
type Reason string

const (
	// ReasonNoConfidentMatch means no candidate cleared the confidence
	// threshold and runner-up margin. The reference needs manual
	// re-selection; the engine never auto-corrects to an arbitrary guess.
	ReasonNoConfidentMatch Reason = "no_confident_match"

	// ReasonDeletedByOperation means the kernel reported the entity as
	// consumed by the operation just performed. This is a legitimate
	// lifecycle event, not a matching failure.
	ReasonDeletedByOperation Reason = "deleted_by_operation"

	// ReasonAmbiguousSplit means the entity split into several fragments
	// and the configured split policy declined to pick one.
	ReasonAmbiguousSplit Reason = "ambiguous_split"
)

// Candidate is a scored live shape considered during resolution. Failures
// carry their top candidates so the owning feature can offer them for
// manual re-selection.
type Candidate struct {
	Shape      shape.Shape
	Descriptor shape.Descriptor
	Score      float64
}

// Failure is the per-reference resolution failure. It is non-fatal to the
// surrounding transaction: the owning feature enters a degraded state
// instead of blocking the rebuild of unrelated features.
type Failure struct {
	// ID is the reference that failed to resolve.
	ID shape.ShapeID

	// Reason classifies the failure.
	Reason Reason

	// Detail is a human-readable explanation.
	Detail string

	// Candidates holds the best-scoring rejected candidates, when the
	// failing strategy had any.
	Candidates []Candidate
}

// Error implements the error interface so failures can be logged and
// wrapped uniformly.
func (f *Failure) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("resolve: %s: %s: %s", f.ID, f.Reason, f.Detail)
	}
	return fmt.Sprintf("resolve: %s: %s", f.ID, f.Reason)
}

// Outcome is the result of running the pipeline for one reference: either
// a live shape with its fresh descriptor, or a Failure.
type Outcome struct {
	// ID is the reference the outcome belongs to.
	ID shape.ShapeID

	// Shape is the resolved live handle. Nil when Failure is set.
	Shape shape.Shape

	// Descriptor is the fingerprint of Shape, computed during resolution.
	Descriptor *shape.Descriptor

	// Strategy names the strategy that concluded ("history", "geometric",
	// "legacy").
	Strategy string

	// Score is the similarity score of the accepted match. Only meaningful
	// for geometric resolution; exact strategies report 1.
	Score float64

	// Fragments lists every fragment the entity became when the kernel
	// reported a split, including the one chosen by policy. Callers that
	// need the full mapping (e.g. to offer fragment selection) read it from
	// here.
	Fragments []shape.Shape

	// Failure is set when the reference could not be resolved.
	Failure *Failure
}

// Resolved reports whether the outcome carries a live shape.
func (o Outcome) Resolved() bool {
	return o.Failure == nil && o.Shape != nil
}

func failed(id shape.ShapeID, reason Reason, detail string, candidates ...Candidate) Outcome {
	return Outcome{
		ID: id,
		Failure: &Failure{
			ID:         id,
			Reason:     reason,
			Detail:     detail,
			Candidates: candidates,
		},
	}
}
