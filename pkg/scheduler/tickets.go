package scheduler

import (
	"context"

	"github.com/grafana/pewpewgo/pkg/channel"
)

// TickSource produces one signal per request attempt an endpoint should
// make. Two implementations back it: a load-pattern-driven ModInterval for
// ordinary endpoints, and an on-demand receiver for endpoints marked
// `on_demand`, which replace the tick source with an on-demand receiver.
type TickSource interface {
	// Next blocks until the next tick, returns (false, nil) at the
	// source's natural end (only ModInterval has one), or an error if ctx
	// is done or the upstream receiver has gone away.
	Next(ctx context.Context) (bool, error)
}

// modIntervalTickSource adapts a ModInterval to the TickSource interface.
type modIntervalTickSource struct {
	mi *ModInterval
}

func NewModIntervalTickSource(scale *LinearScaling) TickSource {
	return &modIntervalTickSource{mi: NewModInterval(scale)}
}

func (t *modIntervalTickSource) Next(ctx context.Context) (bool, error) {
	_, ok, err := t.mi.Next(ctx)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// onDemandTickSource adapts a channel.OnDemand adapter (watching a
// downstream provider's receiver) to the TickSource interface: an
// `on_demand` endpoint only fires when that provider signals it needs
// more values.
type onDemandTickSource[T any] struct {
	od *channel.OnDemand[T]
}

func NewOnDemandTickSource[T any](od *channel.OnDemand[T]) TickSource {
	return &onDemandTickSource[T]{od: od}
}

func (t *onDemandTickSource[T]) Next(ctx context.Context) (bool, error) {
	if err := t.od.Next(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ParallelCap enforces an endpoint's max_parallel_requests: ticks that
// arrive while the cap is already saturated are dropped, not queued.
type ParallelCap struct {
	slots chan struct{}
}

// NewParallelCap builds a cap with n concurrent slots. n<=0 means
// unlimited: TryAcquire always succeeds and Release is a no-op.
func NewParallelCap(n int) *ParallelCap {
	if n <= 0 {
		return &ParallelCap{}
	}
	return &ParallelCap{slots: make(chan struct{}, n)}
}

// TryAcquire reports whether a slot was obtained. The caller must call
// Release exactly once for every successful TryAcquire.
func (p *ParallelCap) TryAcquire() bool {
	if p.slots == nil {
		return true
	}
	select {
	case p.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (p *ParallelCap) Release() {
	if p.slots == nil {
		return
	}
	<-p.slots
}
