package resolve

import (
	"context"
	"fmt"

	"github.com/brepkit/identity/shape"
)

// History is the exact resolution strategy backed by kernel-reported
// operation correlation. It only applies when the kernel implements
// HistoryProvider and reported a mapping for the operation just performed,
// and when the reference still holds a live handle from before that
// operation.
//
// Many-to-one merges (two old entities consumed into one new entity) are
// not visible to a single pipeline run; the registry settles them after
// resolving all references, keeping the lowest ShapeID as the surviving
// owner.
type History struct {
	// Policy supplies the split policy.
	Policy Policy
}

// Name implements Strategy.
func (h *History) Name() string { return "history" }

// Resolve implements Strategy. It is conclusive whenever the history has
// an entry for the reference's last known handle, including the entry
// "consumed" (empty mapping), which reports DeletedByOperation rather than
// a failure to match.
func (h *History) Resolve(ctx context.Context, ref *shape.Reference, target *Target) (Outcome, bool) {
	history := target.History()
	if history == nil || ref.LastKnown == nil {
		return Outcome{}, false
	}

	fragments, ok := history.Lookup(ref.LastKnown)
	if !ok {
		// The kernel said nothing about this entity; fall through to
		// geometric resolution.
		return Outcome{}, false
	}

	switch len(fragments) {
	case 0:
		return failed(ref.ID, ReasonDeletedByOperation,
			"entity consumed by the operation"), true

	case 1:
		desc, err := target.Kernel().Describe(fragments[0])
		if err != nil {
			return failed(ref.ID, ReasonNoConfidentMatch,
				fmt.Sprintf("describe history match: %v", err)), true
		}
		return Outcome{
			ID:         ref.ID,
			Shape:      fragments[0],
			Descriptor: &desc,
			Strategy:   h.Name(),
			Score:      1,
		}, true

	default:
		return h.resolveSplit(ref, target, fragments), true
	}
}

// resolveSplit settles a one-to-many mapping. All fragments are reported
// on the outcome regardless of which one the policy picks.
func (h *History) resolveSplit(ref *shape.Reference, target *Target, fragments []shape.Shape) Outcome {
	if h.Policy.Split == SplitReject {
		return failed(ref.ID, ReasonAmbiguousSplit,
			fmt.Sprintf("entity split into %d fragments", len(fragments)),
			describeAll(target, fragments)...)
	}

	// SplitLargest: largest-extent fragment wins; ties break on mapping
	// order, which the kernel keeps stable.
	var (
		best     shape.Shape
		bestDesc shape.Descriptor
		bestSet  bool
	)
	for _, frag := range fragments {
		desc, err := target.Kernel().Describe(frag)
		if err != nil {
			return failed(ref.ID, ReasonAmbiguousSplit,
				fmt.Sprintf("describe split fragment: %v", err))
		}
		if !bestSet || desc.Extent > bestDesc.Extent {
			best, bestDesc, bestSet = frag, desc, true
		}
	}

	return Outcome{
		ID:         ref.ID,
		Shape:      best,
		Descriptor: &bestDesc,
		Strategy:   h.Name(),
		Score:      1,
		Fragments:  fragments,
	}
}

func describeAll(target *Target, shapes []shape.Shape) []Candidate {
	out := make([]Candidate, 0, len(shapes))
	for _, s := range shapes {
		desc, err := target.Kernel().Describe(s)
		if err != nil {
			continue
		}
		out = append(out, Candidate{Shape: s, Descriptor: desc})
	}
	return out
}
