package shape

import (
	"fmt"
	"math"
)

// Default similarity weights. The split reflects how discriminating each
// measure is in practice: position first, orientation second, size third,
// parameter footprint last. These are policy constants, not physics;
// callers tune them through Weights.
const (
	DefaultCentroidWeight    = 0.4
	DefaultDirectionWeight   = 0.3
	DefaultExtentWeight      = 0.2
	DefaultParamDomainWeight = 0.1

	// DefaultCentroidTolerance is the centroid distance, in model units, at
	// which the centroid term falls to one half.
	DefaultCentroidTolerance = 1.0
)

// Weights configures the weighted similarity score between two descriptors.
// The four weights should sum to 1.0 so that Similarity stays in [0,1].
type Weights struct {
	// Centroid weighs proximity of the two centroids, with a
	// tolerance-relative falloff.
	Centroid float64 `yaml:"centroid" json:"centroid"`

	// Direction weighs alignment of the principal directions
	// (sign-insensitive dot product).
	Direction float64 `yaml:"direction" json:"direction"`

	// Extent weighs the size ratio (min/max of the two extents).
	Extent float64 `yaml:"extent" json:"extent"`

	// ParamDomain weighs parameter-domain overlap. The term contributes
	// zero when either descriptor has no recorded domain.
	ParamDomain float64 `yaml:"param_domain" json:"param_domain"`

	// CentroidTolerance is the distance, in model units, at which the
	// centroid term scores 0.5. Must be positive.
	CentroidTolerance float64 `yaml:"centroid_tolerance" json:"centroid_tolerance"`
}

// DefaultWeights returns the default similarity weights.
func DefaultWeights() Weights {
	return Weights{
		Centroid:          DefaultCentroidWeight,
		Direction:         DefaultDirectionWeight,
		Extent:            DefaultExtentWeight,
		ParamDomain:       DefaultParamDomainWeight,
		CentroidTolerance: DefaultCentroidTolerance,
	}
}

// Validate checks that the weights are non-negative, sum to 1.0 within a
// small tolerance, and that the centroid tolerance is positive.
func (w Weights) Validate() error {
	if w.Centroid < 0 || w.Direction < 0 || w.Extent < 0 || w.ParamDomain < 0 {
		return fmt.Errorf("similarity weights must be non-negative: %+v", w)
	}
	sum := w.Centroid + w.Direction + w.Extent + w.ParamDomain
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("similarity weights must sum to 1.0, got %v", sum)
	}
	if w.CentroidTolerance <= 0 {
		return fmt.Errorf("centroid tolerance must be positive, got %v", w.CentroidTolerance)
	}
	return nil
}

// Similarity returns a score in [0,1] describing how likely a and b denote
// the same topological entity across a rebuild. Descriptors of different
// kinds always score zero.
//
// The score is the weighted sum of four terms:
//
//	centroid proximity   tol / (tol + distance)
//	direction alignment  |dot| of the normalized directions
//	extent ratio         min(extent) / max(extent)
//	param-domain overlap intersection / union of the domains
func Similarity(a, b Descriptor, w Weights) float64 {
	if a.Kind != b.Kind {
		return 0
	}

	score := w.Centroid * centroidScore(a.Centroid, b.Centroid, w.CentroidTolerance)
	score += w.Direction * directionScore(a.PrincipalDirection, b.PrincipalDirection)
	score += w.Extent * extentScore(a.Extent, b.Extent)
	score += w.ParamDomain * domainScore(a.ParamDomain, b.ParamDomain)

	if score > 1 {
		return 1
	}
	return score
}

func centroidScore(a, b Vec3, tol float64) float64 {
	if tol <= 0 {
		tol = DefaultCentroidTolerance
	}
	dist := a.Sub(b).Length()
	return tol / (tol + dist)
}

// directionScore is the sign-insensitive alignment of the two principal
// directions. Two undirected entities (both zero vectors, e.g. vertices)
// are perfectly aligned; a directed entity never aligns with an undirected
// one.
func directionScore(a, b Vec3) float64 {
	la, lb := a.Length(), b.Length()
	if la == 0 && lb == 0 {
		return 1
	}
	if la == 0 || lb == 0 {
		return 0
	}
	return math.Abs(a.Dot(b)) / (la * lb)
}

func extentScore(a, b float64) float64 {
	a, b = math.Abs(a), math.Abs(b)
	if a == 0 && b == 0 {
		return 1
	}
	lo, hi := math.Min(a, b), math.Max(a, b)
	if hi == 0 {
		return 0
	}
	return lo / hi
}

// domainScore is the intersection-over-union of the two parameter domains.
// It contributes zero when either domain is unrecorded.
func domainScore(a, b *ParamDomain) float64 {
	if a == nil || b == nil {
		return 0
	}
	interU := intervalOverlap(a.UMin, a.UMax, b.UMin, b.UMax)
	unionU := intervalUnion(a.UMin, a.UMax, b.UMin, b.UMax)

	// Curves carry only a U interval; a degenerate V interval on both sides
	// reduces the overlap to one dimension.
	if a.VMin == a.VMax && b.VMin == b.VMax {
		if unionU == 0 {
			return 0
		}
		return interU / unionU
	}

	interV := intervalOverlap(a.VMin, a.VMax, b.VMin, b.VMax)
	unionV := intervalUnion(a.VMin, a.VMax, b.VMin, b.VMax)
	if unionU == 0 || unionV == 0 {
		return 0
	}
	return (interU * interV) / (unionU * unionV)
}

func intervalOverlap(aMin, aMax, bMin, bMax float64) float64 {
	lo := math.Max(aMin, bMin)
	hi := math.Min(aMax, bMax)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

func intervalUnion(aMin, aMax, bMin, bMax float64) float64 {
	lo := math.Min(aMin, bMin)
	hi := math.Max(aMax, bMax)
	if hi <= lo {
		return 0
	}
	return hi - lo
}
