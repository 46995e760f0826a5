package l2sampling

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/depthscan/internal/geom"
)

// SamplingRate scales how eagerly new frames are sampled. Higher rates
// give smaller thresholds and more frequent accumulation.
type SamplingRate float32

const (
	RateSlow    SamplingRate = 0.5
	RateRegular SamplingRate = 1
	RateFast    SamplingRate = 1.5
)

// ParseSamplingRate maps "slow", "regular" or "fast" to a SamplingRate.
func ParseSamplingRate(s string) (SamplingRate, error) {
	switch s {
	case "slow":
		return RateSlow, nil
	case "regular":
		return RateRegular, nil
	case "fast":
		return RateFast, nil
	}
	return 0, fmt.Errorf("unknown sampling rate %q", s)
}

// ErrInvalidSamplingRate is returned for rates that are not positive and
// finite.
var ErrInvalidSamplingRate = errors.New("invalid sampling rate")

// Validate reports whether r can scale the gate thresholds.
func (r SamplingRate) Validate() error {
	if !(r > 0) || math.IsInf(float64(r), 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSamplingRate, float32(r))
	}
	return nil
}

const (
	baseRotationDegrees = 2.0
	baseTranslationM    = 0.02
)

// Thresholds are the precomputed gate limits.
type Thresholds struct {
	// RotationCos is compared against the dot product of the forward axes.
	RotationCos float32
	// TranslationSq is the squared origin distance in m².
	TranslationSq float32
}

// NewThresholds derives thresholds from the horizontal (rotation) and
// vertical (translation) sampling rates. Both must be positive.
func NewThresholds(horizontal, vertical SamplingRate) (Thresholds, error) {
	if err := horizontal.Validate(); err != nil {
		return Thresholds{}, fmt.Errorf("horizontal: %w", err)
	}
	if err := vertical.Validate(); err != nil {
		return Thresholds{}, fmt.Errorf("vertical: %w", err)
	}
	deg := baseRotationDegrees / float64(horizontal)
	dist := baseTranslationM / float64(vertical)
	return Thresholds{
		RotationCos:   float32(math.Cos(deg * math.Pi / 180)),
		TranslationSq: float32(dist * dist),
	}, nil
}

// ShouldAccumulate reports whether a frame at current is worth sampling
// given the last accumulated pose. The first frame (pointCount == 0) is
// always accepted.
func ShouldAccumulate(current, last geom.Mat4, pointCount int, t Thresholds) bool {
	if pointCount == 0 {
		return true
	}
	if current.Forward().Dot(last.Forward()) <= t.RotationCos {
		return true
	}
	return current.Origin().DistSq(last.Origin()) >= t.TranslationSq
}

// Gate caches thresholds for the configured rates. It is not safe for
// concurrent use; the accumulation engine guards it.
type Gate struct {
	horizontal, vertical SamplingRate
	thresholds           Thresholds
}

// NewGate returns a gate for the given rates.
func NewGate(horizontal, vertical SamplingRate) (*Gate, error) {
	g := &Gate{}
	if err := g.SetRates(horizontal, vertical); err != nil {
		return nil, err
	}
	return g, nil
}

// SetRates updates the rates, recomputing thresholds only on change.
// Invalid rates leave the gate unchanged.
func (g *Gate) SetRates(horizontal, vertical SamplingRate) error {
	if g.horizontal == horizontal && g.vertical == vertical {
		return nil
	}
	th, err := NewThresholds(horizontal, vertical)
	if err != nil {
		return err
	}
	g.horizontal, g.vertical = horizontal, vertical
	g.thresholds = th
	return nil
}

// Rates returns the configured horizontal and vertical rates.
func (g *Gate) Rates() (SamplingRate, SamplingRate) { return g.horizontal, g.vertical }

// Thresholds returns the cached thresholds.
func (g *Gate) Thresholds() Thresholds { return g.thresholds }

// ShouldAccumulate applies the cached thresholds.
func (g *Gate) ShouldAccumulate(current, last geom.Mat4, pointCount int) bool {
	return ShouldAccumulate(current, last, pointCount, g.thresholds)
}
