package render

import (
	"math"

	"github.com/roman-kulish/rf-sentinel/internal/spectrum"
)

const (
	defaultMinPower = -120.0 // dB, the estimator floor
	defaultMaxPower = -20.0

	// Percentiles need a few samples to mean anything
	minimumSamples = 20
	minimumRange   = 30 // dB
)

// Bounds is the power range a gradient spans
type Bounds struct {
	Min  float64 // 5th percentile less a margin, dB
	Max  float64 // 95th percentile plus a margin, dB
	Mean float64
}

// DefaultBounds is used until enough power values have been seen
func DefaultBounds() Bounds {
	return Bounds{
		Min:  defaultMinPower,
		Max:  defaultMaxPower,
		Mean: (defaultMinPower + defaultMaxPower) / 2,
	}
}

// Histogram counts power values in 1 dB bins
type Histogram struct {
	bins  map[int]uint64
	total uint64
	lo    int
	hi    int
}

func NewHistogram() *Histogram {
	h := Histogram{}
	h.Reset()
	return &h
}

// Add counts one power value. NaN and infinities are ignored.
func (h *Histogram) Add(power float64) {
	if math.IsNaN(power) || math.IsInf(power, 0) {
		return
	}

	bin := int(math.Floor(power))
	h.bins[bin]++
	h.total++
	h.lo = min(h.lo, bin)
	h.hi = max(h.hi, bin)
}

// AddRow counts every bin of a spectrum row
func (h *Histogram) AddRow(row spectrum.Row) {
	for _, p := range row {
		h.Add(p)
	}
}

// Count returns the number of values added
func (h *Histogram) Count() uint64 {
	return h.total
}

func (h *Histogram) Reset() {
	h.bins = make(map[int]uint64)
	h.total = 0
	h.lo = math.MaxInt32
	h.hi = math.MinInt32
}

// Bounds returns the 5th..95th percentile range widened to at least 30 dB
// with a 10% margin on each side.
func (h *Histogram) Bounds() Bounds {
	if h.total < minimumSamples {
		return DefaultBounds()
	}

	tail := h.total * 5 / 100

	var count uint64
	lo := h.lo
	for ; lo <= h.hi; lo++ {
		if count += h.bins[lo]; count > tail {
			break
		}
	}

	count = 0
	hi := h.hi
	for ; hi >= h.lo; hi-- {
		if count += h.bins[hi]; count > tail {
			break
		}
	}

	var sum float64
	for bin, n := range h.bins {
		sum += (float64(bin) + 0.5) * float64(n)
	}

	if hi-lo < minimumRange {
		centre := (hi + lo) / 2
		lo = centre - minimumRange/2
		hi = centre + minimumRange/2
	}

	margin := (hi - lo) / 10
	return Bounds{
		Min:  float64(lo - margin),
		Max:  float64(hi + 1 + margin),
		Mean: sum / float64(h.total),
	}
}

// FrameBounds returns the percentile bounds of every row of a frame
func FrameBounds(frame *spectrum.Frame) Bounds {
	h := NewHistogram()
	for _, row := range frame.Rows {
		h.AddRow(row)
	}
	return h.Bounds()
}

// SmoothBounds follows the bounds of a stream of frames with exponential
// smoothing, so that a live display does not flicker.
type SmoothBounds struct {
	alpha   float64
	current Bounds
	seen    bool
}

// NewSmoothBounds creates a smoother, alpha in (0, 1] weights new bounds
func NewSmoothBounds(alpha float64) *SmoothBounds {
	return &SmoothBounds{alpha: min(max(alpha, 0.01), 1), current: DefaultBounds()}
}

// Update folds the bounds of a frame into the smoothed bounds. The first
// update is taken as is.
func (s *SmoothBounds) Update(b Bounds) Bounds {
	if !s.seen {
		s.current, s.seen = b, true
		return s.current
	}

	s.current.Min = s.current.Min*(1-s.alpha) + b.Min*s.alpha
	s.current.Max = s.current.Max*(1-s.alpha) + b.Max*s.alpha
	s.current.Mean = b.Mean
	return s.current
}

func (s *SmoothBounds) Current() Bounds {
	return s.current
}
