// Package scheduler implements the modulating load-pattern scheduler: a
// piecewise-linear hits-per-time-unit curve that produces a stream of
// request "tickets" at a rate that can ramp up or down over a test's
// duration. The segment-walking math is driven by a self-resetting
// time.Timer loop, since the interval between ticks is non-uniform.
package scheduler

import (
	"math"
	"time"
)

const nanosPerSecond = 1e9

// HitsPerKind selects the unit a load pattern segment's percentage is
// relative to.
type HitsPerKind int

const (
	HitsPerSecond HitsPerKind = iota
	HitsPerMinute
)

// HitsPer pairs a peak rate with the unit it's expressed in.
type HitsPer struct {
	Kind  HitsPerKind
	Value float64
}

func (h HitsPer) perSecond() float64 {
	if h.Kind == HitsPerMinute {
		return h.Value / 60.0
	}
	return h.Value
}

// LinearPiece is one segment of a piecewise-linear load pattern: over
// Duration, the hit rate ramps linearly from StartPercent*peak to
// EndPercent*peak.
type LinearPiece struct {
	StartPercent float64
	EndPercent   float64
	Duration     time.Duration
}

// linearSegment holds the precomputed slope/intercept for one piece, in
// nanosecond units.
type linearSegment struct {
	durationNanos float64
	m, b          float64
	maxY          float64
}

func newLinearSegment(p LinearPiece, peakHPS float64) linearSegment {
	durationNanos := float64(p.Duration.Nanoseconds())
	b := peakHPS * p.StartPercent
	m := (p.EndPercent*peakHPS - b) / durationNanos

	a := nanosPerSecond
	var maxY float64
	if m == 0 {
		// flat segment: the constant rate alone sets the delay
		maxY = math.Inf(1)
	} else if m > 0 {
		maxY = (-b + math.Sqrt(b*b+8*m*a)) / (2 * m)
	} else {
		maxY = -((b + math.Sqrt(b*b+8*m*a)) / (2 * m))
	}
	return linearSegment{durationNanos: durationNanos, m: m, b: b, maxY: maxY}
}

// y returns the nanosecond delay until the next hit, given x nanoseconds
// elapsed within this segment.
func (s linearSegment) y(x float64) float64 {
	hps := s.m*x + s.b
	inst := nanosPerSecond / hps
	return math.Min(s.maxY, inst)
}

// LinearScaling walks a sequence of LinearPiece segments end to end,
// presenting them as one continuous ScaleFn.
type LinearScaling struct {
	segments []linearSegment
	offsets  []float64 // cumulative duration-nanos before each segment
	total    float64
}

// NewLinearScaling builds a scaling function over the given pieces at the
// given peak load. Panics if pieces is empty — a load pattern always has
// at least one piece, enforced at config-parse time.
func NewLinearScaling(pieces []LinearPiece, peak HitsPer) *LinearScaling {
	if len(pieces) == 0 {
		panic("scheduler: a load pattern needs at least one piece")
	}
	peakHPS := peak.perSecond()
	segs := make([]linearSegment, len(pieces))
	offsets := make([]float64, len(pieces))
	var total float64
	for i, p := range pieces {
		segs[i] = newLinearSegment(p, peakHPS)
		offsets[i] = total
		total += segs[i].durationNanos
	}
	return &LinearScaling{segments: segs, offsets: offsets, total: total}
}

// MaxX reports the total duration of the load pattern, in nanoseconds.
func (ls *LinearScaling) MaxX() float64 { return ls.total }

// Y returns the nanosecond delay until the next hit at elapsed time x
// (nanoseconds since the pattern started).
func (ls *LinearScaling) Y(x float64) float64 {
	i := 0
	for i < len(ls.segments)-1 && x-ls.offsets[i] >= ls.segments[i].durationNanos {
		i++
	}
	return ls.segments[i].y(x - ls.offsets[i])
}
