package resolve

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/brepkit/identity/shape"
)

// Policy constants. Threshold and margin are tuned heuristics, not physical
// law; every accepted match below LowConfidenceLog is logged so deployments
// can retune them against real edit histories.
const (
	// DefaultThreshold is the minimum similarity score a geometric match
	// must reach to be accepted.
	DefaultThreshold = 0.6

	// DefaultMargin is the minimum lead the best geometric candidate must
	// hold over the runner-up. It prevents silently picking an arbitrary
	// winner among near-ties.
	DefaultMargin = 0.1

	// LowConfidenceLog is the score under which accepted matches are
	// logged for later policy tuning.
	LowConfidenceLog = 0.8
)

// SplitPolicy decides which fragment survives when the kernel reports an
// entity splitting into several.
type SplitPolicy string

const (
	// SplitLargest keeps the fragment with the largest extent. This is the
	// default.
	SplitLargest SplitPolicy = "largest"

	// SplitReject refuses to choose and reports an ambiguous split,
	// forcing manual re-selection.
	SplitReject SplitPolicy = "reject"
)

// Valid reports whether p is a known split policy.
func (p SplitPolicy) Valid() bool {
	return p == SplitLargest || p == SplitReject
}

// Policy bundles the tunable constants of the resolution pipeline.
type Policy struct {
	// Threshold is the minimum acceptable geometric similarity score.
	Threshold float64 `yaml:"threshold"`

	// Margin is the minimum lead over the runner-up candidate.
	Margin float64 `yaml:"margin"`

	// Split decides how kernel-reported splits are settled.
	Split SplitPolicy `yaml:"split"`

	// Weights configures the descriptor similarity score.
	Weights shape.Weights `yaml:"weights"`
}

// DefaultPolicy returns the default resolution policy.
func DefaultPolicy() Policy {
	return Policy{
		Threshold: DefaultThreshold,
		Margin:    DefaultMargin,
		Split:     SplitLargest,
		Weights:   shape.DefaultWeights(),
	}
}

// Validate checks the policy for internal consistency.
func (p Policy) Validate() error {
	if p.Threshold <= 0 || p.Threshold > 1 {
		return fmt.Errorf("resolve: threshold must be in (0,1], got %v", p.Threshold)
	}
	if p.Margin < 0 || p.Margin >= 1 {
		return fmt.Errorf("resolve: margin must be in [0,1), got %v", p.Margin)
	}
	if !p.Split.Valid() {
		return fmt.Errorf("resolve: unknown split policy %q", p.Split)
	}
	if err := p.Weights.Validate(); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	return nil
}

// LoadPolicy reads a policy from a YAML file. Fields absent from the file
// keep their defaults; the merged policy is validated before being
// returned.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("resolve: read policy file: %w", err)
	}

	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("resolve: parse policy file: %w", err)
	}

	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}
