package resolve

import (
	"context"
	"fmt"

	"github.com/brepkit/identity/shape"
)

// Legacy is the last-resort positional strategy for references restored
// from documents that predate descriptor recording. It picks "the n-th
// entity of this kind" on the rebuilt solid, which is only correct while
// the enumeration order happens to survive the edit, the weakest
// guarantee in the pipeline. It is never consulted when a descriptor
// exists.
type Legacy struct{}

// Name implements Strategy.
func (l *Legacy) Name() string { return "legacy" }

// Resolve implements Strategy.
func (l *Legacy) Resolve(ctx context.Context, ref *shape.Reference, target *Target) (Outcome, bool) {
	if ref.Descriptor != nil || ref.Selector == nil {
		return Outcome{}, false
	}

	candidates, err := target.Candidates(ref.Selector.Kind)
	if err != nil {
		return failed(ref.ID, ReasonNoConfidentMatch, err.Error()), true
	}

	ord := ref.Selector.Ordinal
	if ord < 0 || ord >= len(candidates) {
		return failed(ref.ID, ReasonNoConfidentMatch,
			fmt.Sprintf("legacy selector ordinal %d out of range (%d %s entities)",
				ord, len(candidates), ref.Selector.Kind)), true
	}

	chosen := candidates[ord]
	desc := chosen.Descriptor
	return Outcome{
		ID:         ref.ID,
		Shape:      chosen.Shape,
		Descriptor: &desc,
		Strategy:   l.Name(),
		Score:      1,
	}, true
}
