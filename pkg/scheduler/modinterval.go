package scheduler

import (
	"context"
	"time"
)

// ModInterval drives a LinearScaling curve as a stream of hit instants, as
// a blocking Next(ctx) call driven by a self-resetting time.Timer.
type ModInterval struct {
	scale *LinearScaling

	startTime time.Time
	endTime   time.Time
	deadline  time.Time
	timer     *time.Timer

	now func() time.Time // overridable for tests
}

// NewModInterval builds the schedule for a load pattern; its clock starts
// on the first call to Next, which blocks until the pattern's initial
// delay elapses.
func NewModInterval(scale *LinearScaling) *ModInterval {
	return &ModInterval{scale: scale, now: time.Now}
}

// Next blocks until the next hit instant, returns ctx.Err() if ctx is
// done first, and returns (zero, false, nil) once the load pattern's
// total duration has elapsed (the stream's natural end).
func (m *ModInterval) Next(ctx context.Context) (time.Time, bool, error) {
	now := m.now()

	if m.startTime.IsZero() {
		m.startTime = now
		m.endTime = now.Add(nanosToDuration(m.scale.MaxX()))
		m.deadline = now.Add(nanosToDuration(m.scale.Y(0)))
		m.timer = time.NewTimer(time.Until(m.deadline))
	}

	if now.Sub(m.endTime) >= 0 {
		m.stopTimer()
		return time.Time{}, false, nil
	}

	if m.deadline.Sub(now) > 0 {
		select {
		case <-m.timer.C:
		case <-ctx.Done():
			return time.Time{}, false, ctx.Err()
		}
	}

	x := float64(m.deadline.Sub(m.startTime).Nanoseconds())
	y := m.scale.Y(x)
	next := m.startTime.Add(nanosToDuration(x + y))
	if next.After(m.endTime) {
		next = m.endTime
	}

	hit := m.deadline
	m.deadline = next
	m.timer.Reset(time.Until(m.deadline))
	return hit, true, nil
}

func (m *ModInterval) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
	}
}

func nanosToDuration(n float64) time.Duration {
	return time.Duration(n)
}
