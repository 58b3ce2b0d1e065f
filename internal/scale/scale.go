// Package scale maps aggregate counts to visual magnitudes.
package scale

import (
	"math"
	"sort"

	"github.com/jusunglee/bikeshare-go/internal/models"
)

// Radius ranges, in pixels, for the unfiltered and the windowed views
var (
	AnyTimeRadius  = [2]float64{0, 25}
	WindowedRadius = [2]float64{3, 50}
)

// Sqrt is a square-root scale: area of the marker grows linearly with the
// value. Inputs outside the domain are extrapolated, not clamped.
type Sqrt struct {
	d0, d1 float64
	r0, r1 float64
}

// NewSqrt creates a scale over domain [0, 1] and range [0, 1]
func NewSqrt() *Sqrt {
	return &Sqrt{d1: 1, r1: 1}
}

// Domain sets the input extent
func (s *Sqrt) Domain(d0, d1 float64) *Sqrt {
	s.d0, s.d1 = d0, d1
	return s
}

// Range sets the output extent
func (s *Sqrt) Range(r0, r1 float64) *Sqrt {
	s.r0, s.r1 = r0, r1
	return s
}

// GetDomain returns the input extent
func (s *Sqrt) GetDomain() (float64, float64) { return s.d0, s.d1 }

// GetRange returns the output extent
func (s *Sqrt) GetRange() (float64, float64) { return s.r0, s.r1 }

// Scale maps x into the range. A zero-width domain maps everything to the
// middle of the range.
func (s *Sqrt) Scale(x float64) float64 {
	a, b := sqrt(s.d0), sqrt(s.d1)
	var t float64
	switch width := b - a; {
	case math.IsNaN(width):
		return math.NaN()
	case width == 0:
		t = 0.5
	default:
		t = (sqrt(x) - a) / width
	}
	return s.r0 + t*(s.r1-s.r0)
}

// sign-preserving square root
func sqrt(x float64) float64 {
	if x < 0 {
		return -math.Sqrt(-x)
	}
	return math.Sqrt(x)
}

// RadiusRange returns the pixel range for the given filter: markers are
// boosted and floored when a time window is active.
func RadiusRange(filter models.TimeFilter) [2]float64 {
	if filter.IsAnyTime() {
		return AnyTimeRadius
	}
	return WindowedRadius
}

// Quantize maps a continuous domain onto a few discrete levels of equal width
type Quantize struct {
	d0, d1     float64
	levels     []float64
	thresholds []float64
	unknown    float64
}

// NewQuantize creates a quantize scale over [d0, d1] with the given output levels
func NewQuantize(d0, d1 float64, levels ...float64) *Quantize {
	q := &Quantize{d0: d0, d1: d1, levels: levels}
	n := len(levels)
	for i := 1; i < n; i++ {
		q.thresholds = append(q.thresholds, d0+float64(i)*(d1-d0)/float64(n))
	}
	return q
}

// Unknown sets the value returned for NaN inputs
func (q *Quantize) Unknown(v float64) *Quantize {
	q.unknown = v
	return q
}

// Thresholds returns the bucket boundaries
func (q *Quantize) Thresholds() []float64 {
	return append([]float64(nil), q.thresholds...)
}

// Scale returns the level of the bucket x falls into. A value equal to a
// threshold belongs to the upper bucket.
func (q *Quantize) Scale(x float64) float64 {
	if math.IsNaN(x) || len(q.levels) == 0 {
		return q.unknown
	}
	i := sort.Search(len(q.thresholds), func(i int) bool {
		return q.thresholds[i] > x
	})
	return q.levels[i]
}

// NewFlowScale returns the 3-level departure ratio scale. 0/0 ratios (stations
// without traffic) fall in the lowest bucket.
func NewFlowScale() *Quantize {
	return NewQuantize(0, 1, 0, 0.5, 1).Unknown(0)
}

// FlowRatio is the departure share of a station's traffic. It is NaN when the
// station has no traffic.
func FlowRatio(departures, total int) float64 {
	if total == 0 {
		return math.NaN()
	}
	return float64(departures) / float64(total)
}
