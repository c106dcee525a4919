package resolve

import (
	"context"
	"log/slog"

	"github.com/brepkit/identity/shape"
)

// Strategy is one stage of the resolution pipeline.
type Strategy interface {
	// Name identifies the strategy in outcomes and logs.
	Name() string

	// Resolve attempts to resolve the reference against the target. The
	// second result reports whether the strategy was conclusive; an
	// inconclusive strategy defers to the next one in the pipeline.
	Resolve(ctx context.Context, ref *shape.Reference, target *Target) (Outcome, bool)
}

// Pipeline runs the ordered resolution strategies for one reference at a
// time. Pipelines are stateless apart from their policy and are safe for
// concurrent use.
type Pipeline struct {
	strategies []Strategy
}

// NewPipeline builds the standard history → geometric → legacy pipeline.
// A nil logger disables low-confidence match logging.
func NewPipeline(policy Policy, logger *slog.Logger) (*Pipeline, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		strategies: []Strategy{
			&History{Policy: policy},
			&Geometric{Policy: policy, Logger: logger},
			&Legacy{},
		},
	}, nil
}

// Resolve runs the pipeline for one reference. It never mutates the
// reference or any registry state; the caller decides whether to commit
// the outcome. A reference no strategy can act on (no live handle, no
// descriptor, no selector) reports NoConfidentMatch.
func (p *Pipeline) Resolve(ctx context.Context, ref *shape.Reference, target *Target) Outcome {
	for _, s := range p.strategies {
		if outcome, conclusive := s.Resolve(ctx, ref, target); conclusive {
			return outcome
		}
	}
	return failed(ref.ID, ReasonNoConfidentMatch,
		"reference carries no descriptor or legacy selector")
}
