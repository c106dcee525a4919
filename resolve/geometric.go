package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/brepkit/identity/shape"
)

// maxReportedCandidates bounds how many rejected candidates a failure
// carries back to the owning feature.
const maxReportedCandidates = 3

// Geometric is the fuzzy resolution strategy: it scores every same-kind
// candidate on the target solid against the reference's recorded
// descriptor and accepts the best candidate only when it clears the
// confidence threshold and leads the runner-up by the configured margin.
//
// The margin guard exists because the most dangerous failure mode of
// fuzzy matching is not a miss but a silent near-tie: two candidates
// scoring 0.71 and 0.69 means the winner is essentially arbitrary, and an
// arbitrary winner is how a fillet lands on the wrong edge without any
// warning. Below the margin the strategy reports NoConfidentMatch and the
// feature asks for manual re-selection instead.
type Geometric struct {
	// Policy supplies threshold, margin, and similarity weights.
	Policy Policy

	// Logger receives a record of every accepted match scoring below
	// LowConfidenceLog, for later policy tuning. Nil disables the log.
	Logger *slog.Logger
}

// Name implements Strategy.
func (g *Geometric) Name() string { return "geometric" }

// Resolve implements Strategy. It applies only when the reference carries
// a recorded descriptor, and is then always conclusive: either a confident
// match or NoConfidentMatch.
func (g *Geometric) Resolve(ctx context.Context, ref *shape.Reference, target *Target) (Outcome, bool) {
	if ref.Descriptor == nil {
		return Outcome{}, false
	}

	candidates, err := target.Candidates(ref.ID.Kind)
	if err != nil {
		return failed(ref.ID, ReasonNoConfidentMatch, err.Error()), true
	}
	if len(candidates) == 0 {
		return failed(ref.ID, ReasonNoConfidentMatch,
			fmt.Sprintf("no %s candidates on rebuilt solid", ref.ID.Kind)), true
	}

	scored := make([]Candidate, len(candidates))
	copy(scored, candidates)
	for i := range scored {
		scored[i].Score = shape.Similarity(*ref.Descriptor, scored[i].Descriptor, g.Policy.Weights)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	best := scored[0]
	if best.Score < g.Policy.Threshold {
		return failed(ref.ID, ReasonNoConfidentMatch,
			fmt.Sprintf("best score %.3f below threshold %.2f", best.Score, g.Policy.Threshold),
			topCandidates(scored)...), true
	}
	if len(scored) > 1 {
		lead := best.Score - scored[1].Score
		if lead < g.Policy.Margin {
			return failed(ref.ID, ReasonNoConfidentMatch,
				fmt.Sprintf("margin %.3f below required %.2f (best %.3f, runner-up %.3f)",
					lead, g.Policy.Margin, best.Score, scored[1].Score),
				topCandidates(scored)...), true
		}
	}

	if best.Score < LowConfidenceLog && g.Logger != nil {
		g.Logger.Info("accepted low-confidence geometric match",
			"shape_id", ref.ID.String(),
			"score", best.Score,
			"threshold", g.Policy.Threshold)
	}

	desc := best.Descriptor
	return Outcome{
		ID:         ref.ID,
		Shape:      best.Shape,
		Descriptor: &desc,
		Strategy:   g.Name(),
		Score:      best.Score,
	}, true
}

func topCandidates(scored []Candidate) []Candidate {
	n := len(scored)
	if n > maxReportedCandidates {
		n = maxReportedCandidates
	}
	out := make([]Candidate, n)
	copy(out, scored[:n])
	return out
}
