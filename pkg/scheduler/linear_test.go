package scheduler

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLinearScalingRampsHitRateOverSegments(t *testing.T) {
	cases := []struct {
		start, end float64
		durSec     int
		peak       HitsPer
		checks     [][2]float64 // (seconds elapsed, expected hits/sec)
	}{
		{0.0, 1.0, 30, HitsPer{HitsPerSecond, 12}, [][2]float64{
			{0.0, 0.447213}, {10.0, 4.0}, {15.0, 6.0}, {30.0, 12.0},
		}},
		{0.0, 1.0, 30, HitsPer{HitsPerMinute, 720}, [][2]float64{
			{0.0, 0.447213}, {10.0, 4.0}, {15.0, 6.0}, {30.0, 12.0},
		}},
		{0.5, 1.0, 30, HitsPer{HitsPerSecond, 12}, [][2]float64{
			{0.0, 6.0}, {10.0, 8.0}, {15.0, 9.0}, {30.0, 12.0},
		}},
	}

	for _, c := range cases {
		ls := NewLinearScaling([]LinearPiece{{
			StartPercent: c.start,
			EndPercent:   c.end,
			Duration:     time.Duration(c.durSec) * time.Second,
		}}, c.peak)

		for _, chk := range c.checks {
			xNanos := chk[0] * nanosPerSecond
			yNanos := ls.Y(xNanos)
			gotHPS := nanosPerSecond / yNanos
			assert.InDelta(t, chk[1], gotHPS, 0.01, "x=%v", chk[0])
		}
	}
}

func TestLinearScalingMultiplePiecesWalksSegments(t *testing.T) {
	ls := NewLinearScaling([]LinearPiece{
		{StartPercent: 0, EndPercent: 1, Duration: 10 * time.Second},
		{StartPercent: 1, EndPercent: 1, Duration: 10 * time.Second},
	}, HitsPer{HitsPerSecond, 10})

	assert.InDelta(t, 20*nanosPerSecond, ls.MaxX(), 1)

	// well into the second (flat) segment, rate should be steady at peak
	y := ls.Y(15 * nanosPerSecond)
	hps := nanosPerSecond / y
	assert.InDelta(t, 10.0, hps, 0.01)
}

func TestNewLinearScalingPanicsOnEmptyPieces(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected a panic for zero pieces")
		}
	}()
	NewLinearScaling(nil, HitsPer{HitsPerSecond, 1})
}

func TestHitsPerMinuteConvertsToPerSecond(t *testing.T) {
	assert.Equal(t, 1.0, HitsPer{HitsPerMinute, 60}.perSecond())
	assert.True(t, math.Abs(HitsPer{HitsPerSecond, 5}.perSecond()-5) < 1e-9)
}
