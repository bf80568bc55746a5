// Package channel implements the bounded multi-producer/multi-consumer
// queue fabric every provider is built on top of: auto-sizing limits,
// on-demand signaling, backpressure, and wake-all parked-task semantics.
//
// The state machine is expressed as blocking calls (Send/Recv) that park
// on a broadcast-on-change signal, plus non-blocking TrySend/TryRecv for
// callers (like the on-demand adapter) that need the raw state transition
// without blocking.
package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

// ErrClosed is returned by Send/TrySend once the last receiver has gone
// away, and by Recv/TryRecv once the last sender has gone away and the
// buffer has drained.
var ErrClosed = errors.New("channel: closed")

// SendStatus is the outcome of a non-blocking send attempt.
type SendStatus int

const (
	Success SendStatus = iota
	Full
	Closed
)

var (
	metricChannelLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pewpewgo",
		Subsystem: "channel",
		Name:      "buffered_length",
		Help:      "Current number of buffered values in a provider channel.",
	}, []string{"provider"})

	metricChannelLimit = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pewpewgo",
		Subsystem: "channel",
		Name:      "limit",
		Help:      "Current send limit of a provider channel (grows under auto-sizing).",
	}, []string{"provider"})
)

// broadcaster implements Go's canonical wake-all-waiters pattern: waiters
// grab the current channel, release the lock, then select on it; wake()
// closes the channel (waking everyone currently selecting on it) and
// installs a fresh one for the next round.
type broadcaster struct {
	mu sync.Mutex
	ch chan struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{ch: make(chan struct{})}
}

func (b *broadcaster) wait() <-chan struct{} {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	return ch
}

func (b *broadcaster) wake() {
	b.mu.Lock()
	close(b.ch)
	b.ch = make(chan struct{})
	b.mu.Unlock()
}

// core is the shared state between every Sender/Receiver clone of one
// channel.
type core[T any] struct {
	mu    sync.Mutex
	queue []T

	limit    int64
	auto     bool
	hasMaxed bool

	unique *uniqueSetHook[T]

	senders   atomic.Int64
	receivers atomic.Int64

	sendWake *broadcaster // closed when space frees up or the channel closes
	recvWake *broadcaster // closed when an item arrives or the channel closes

	name string // for metrics; empty disables per-channel metric labels
}

// uniqueSetHook lets a channel reject duplicate inserts without making the
// generic core depend on jsonvalue directly; providers of jsonvalue.Value
// wire this up via NewUnique.
type uniqueSetHook[T any] struct {
	fingerprint func(T) uint64
	set         *uniqueSet
}

// New creates a fresh channel with the given starting limit and returns one
// Sender and one Receiver handle, both cloneable via Clone().
func New[T any](limit int, name string) (*Sender[T], *Receiver[T]) {
	return newChannel[T](limit, false, name)
}

// NewAuto creates a channel whose limit starts at startLimit and grows by
// one every time the buffer fully empties after having been observed full
// (auto-limit rule). Never shrinks.
func NewAuto[T any](startLimit int, name string) (*Sender[T], *Receiver[T]) {
	return newChannel[T](startLimit, true, name)
}

func newChannel[T any](limit int, auto bool, name string) (*Sender[T], *Receiver[T]) {
	c := &core[T]{
		limit:    int64(limit),
		auto:     auto,
		sendWake: newBroadcaster(),
		recvWake: newBroadcaster(),
		name:     name,
	}
	c.senders.Store(1)
	c.receivers.Store(1)
	c.reportMetrics()
	return &Sender[T]{c: c}, &Receiver[T]{c: c}
}

func (c *core[T]) reportMetrics() {
	if c.name == "" {
		return
	}
	metricChannelLength.WithLabelValues(c.name).Set(float64(len(c.queue)))
	metricChannelLimit.WithLabelValues(c.name).Set(float64(c.limit))
}

// Sender is one handle onto the send half of a channel. Clone it to get an
// independent handle sharing the same underlying queue; Close it when done
// so the receiver can observe end-of-stream once every sender clone has
// closed.
type Sender[T any] struct {
	c      *core[T]
	closed bool
}

func (s *Sender[T]) Clone() *Sender[T] {
	s.c.senders.Inc()
	return &Sender[T]{c: s.c}
}

func (s *Sender[T]) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.c.senders.Dec() == 0 {
		s.c.recvWake.wake() // let parked receivers observe end-of-stream
	}
}

// TrySend attempts a non-blocking insert. See
// Sender::try_send contract.
func (s *Sender[T]) TrySend(item T) SendStatus {
	s.c.mu.Lock()
	if s.c.receivers.Load() == 0 {
		s.c.mu.Unlock()
		return Closed
	}
	if int64(len(s.c.queue)) >= s.c.limit {
		s.c.mu.Unlock()
		// Re-check for a close race before reporting Full.
		if s.c.receivers.Load() == 0 {
			return Closed
		}
		return Full
	}
	if s.c.unique != nil {
		fp := s.c.unique.fingerprint(item)
		if !s.c.unique.set.insertHash(fp) {
			s.c.mu.Unlock()
			return Success // duplicate silently coalesced; value already present
		}
	}
	s.c.queue = append(s.c.queue, item)
	s.c.reportMetrics()
	s.c.mu.Unlock()
	s.c.recvWake.wake()
	return Success
}

// ForceSend pushes unconditionally, bypassing the limit. Used by the
// `force` auto-return policy.
func (s *Sender[T]) ForceSend(item T) {
	s.c.mu.Lock()
	s.c.queue = append(s.c.queue, item)
	s.c.reportMetrics()
	s.c.mu.Unlock()
	s.c.recvWake.wake()
}

// Send blocks until the item is accepted, the channel closes, or ctx is
// done.
func (s *Sender[T]) Send(ctx context.Context, item T) error {
	for {
		switch s.TrySend(item) {
		case Success:
			return nil
		case Closed:
			return ErrClosed
		case Full:
			wait := s.c.sendWake.wait()
			select {
			case <-wait:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Len reports the current buffered length, used by the on-demand adapter
// and by metrics snapshots.
func (s *Sender[T]) Len() int {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return len(s.c.queue)
}

// Receiver is one handle onto the receive half of a channel.
type Receiver[T any] struct {
	c      *core[T]
	closed bool
}

func (r *Receiver[T]) Clone() *Receiver[T] {
	r.c.receivers.Inc()
	return &Receiver[T]{c: r.c}
}

func (r *Receiver[T]) Close() {
	if r.closed {
		return
	}
	r.closed = true
	if r.c.receivers.Dec() == 0 {
		r.c.sendWake.wake() // let parked senders observe Closed
	}
}

// TryRecv attempts a non-blocking pop. Returns (value, true, nil) on
// success, (zero, false, nil) if the queue is empty but senders remain, and
// (zero, false, ErrClosed) at end-of-stream.
func (r *Receiver[T]) TryRecv() (T, bool, error) {
	var zero T
	r.c.mu.Lock()
	if len(r.c.queue) > 0 {
		oldLen := len(r.c.queue)
		item := r.c.queue[0]
		r.c.queue = r.c.queue[1:]
		newLen := len(r.c.queue)

		if r.c.unique != nil {
			r.c.unique.set.removeHash(r.c.unique.fingerprint(item))
		}

		if newLen == 0 && r.c.auto && r.c.hasMaxed {
			r.c.hasMaxed = false
			r.c.limit++
		} else if int64(oldLen) == r.c.limit {
			r.c.hasMaxed = true
		}
		r.c.reportMetrics()
		r.c.mu.Unlock()
		r.c.sendWake.wake()
		return item, true, nil
	}
	senderCount := r.c.senders.Load()
	r.c.mu.Unlock()
	if senderCount == 0 {
		return zero, false, ErrClosed
	}
	return zero, false, nil
}

// Recv blocks until a value is available, end-of-stream, or ctx is done.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	for {
		item, ok, err := r.TryRecv()
		if ok {
			return item, nil
		}
		if err != nil {
			return item, err
		}
		wait := r.c.recvWake.wait()
		select {
		case <-wait:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Len reports the current buffered length.
func (r *Receiver[T]) Len() int {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return len(r.c.queue)
}

// Limit reports the current send limit (grows over time under auto-sizing;
// invariant: never shrinks).
func (r *Receiver[T]) Limit() int64 {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.limit
}
