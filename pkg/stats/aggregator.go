package stats

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pewpewgo",
		Subsystem: "stats",
		Name:      "queue_depth",
		Help:      "Current number of stats records waiting to be aggregated.",
	})

	metricBucketKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pewpewgo",
		Subsystem: "stats",
		Name:      "bucket_keys",
		Help:      "Current number of distinct (endpoint, tag-map) stats buckets.",
	})
)

// unboundedQueue is an ever-growing FIFO: Push never blocks, matching
// "stats aggregator... fed by an unbounded channel" rule.
// Adapted from pkg/channel's broadcaster wake-on-change idiom with the
// size limit removed — a stats record producer must never be made to
// wait on a slow consumer.
type unboundedQueue struct {
	mu     sync.Mutex
	items  []Record
	wake   chan struct{}
	closed bool
}

func newUnboundedQueue() *unboundedQueue {
	return &unboundedQueue{wake: make(chan struct{})}
}

func (q *unboundedQueue) push(r Record) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, r)
	metricQueueDepth.Set(float64(len(q.items)))
	close(q.wake)
	q.wake = make(chan struct{})
	q.mu.Unlock()
}

// popAll non-blockingly removes and returns every currently queued item.
// The second return is false once the queue has been closed and drained.
func (q *unboundedQueue) popAll() ([]Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, !q.closed
	}
	items := q.items
	q.items = nil
	metricQueueDepth.Set(0)
	return items, true
}

// wakeChan returns the channel that closes the next time an item is
// pushed or the queue closes.
func (q *unboundedQueue) wakeChan() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.wake
}

func (q *unboundedQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.wake)
}

// Writer receives one BucketReport per elapsed bucket_size interval.
// writer.go's NDJSONWriter and SummaryWriter both implement it.
type Writer interface {
	WriteBucket(BucketReport) error
}

// BucketReport is one bucket_size interval's worth of per-key entries,
// matching stats-file object shape
// (`time, duration`, per-key entries).
type BucketReport struct {
	Time     time.Time     `json:"time"`
	Duration time.Duration `json:"duration"`
	Entries  []BucketEntry `json:"entries"`
}

// Aggregator owns every (endpoint, tag-map) bucket for one run. Emit is
// safe to call from any number of request-task goroutines; Run must be
// called exactly once and owns the buckets map exclusively.
type Aggregator struct {
	bucketSize time.Duration
	writers    []Writer

	queue *unboundedQueue

	mu      sync.Mutex
	buckets map[string]*bucket
	order   []string // insertion order, so reports are stable across runs
}

// NewAggregator constructs an aggregator that snapshots every bucketSize
// interval (config.general.bucket_size, default 60s) and fans each
// snapshot out to writers (an ndjson stats file, a stdout summary, or
// both per --output-format/--stats-file).
func NewAggregator(bucketSize time.Duration, writers ...Writer) *Aggregator {
	return &Aggregator{
		bucketSize: bucketSize,
		writers:    writers,
		queue:      newUnboundedQueue(),
		buckets:    make(map[string]*bucket),
	}
}

// Emit enqueues one stats record. Never blocks.
func (a *Aggregator) Emit(r Record) {
	a.queue.push(r)
}

// Run drains records and applies them to their bucket until ctx is done
// or Close is called, snapshotting on every bucketSize boundary. It
// returns once a final snapshot covering any partial trailing interval
// has been written, so callers can rely on Run's return to mean "every
// emitted record has been flushed."
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.bucketSize)
	defer ticker.Stop()

	intervalStart := time.Now()

	for {
		items, open := a.queue.popAll()
		for _, r := range items {
			a.apply(r)
		}
		if !open {
			return a.flush(intervalStart, time.Since(intervalStart))
		}

		select {
		case <-a.queue.wakeChan():
		case <-ticker.C:
			if err := a.flush(intervalStart, time.Since(intervalStart)); err != nil {
				return err
			}
			intervalStart = time.Now()
		case <-ctx.Done():
			a.queue.close()
		}
	}
}

func (a *Aggregator) apply(r Record) {
	key := r.key()

	a.mu.Lock()
	b, exists := a.buckets[key]
	if !exists {
		b = newBucket(r.EndpointID, r.Tags)
		a.buckets[key] = b
		a.order = append(a.order, key)
		metricBucketKeys.Set(float64(len(a.buckets)))
	}
	a.mu.Unlock()

	b.record(r)
}

func (a *Aggregator) flush(start time.Time, duration time.Duration) error {
	a.mu.Lock()
	keys := append([]string(nil), a.order...)
	bucketsByKey := make(map[string]*bucket, len(keys))
	for _, k := range keys {
		bucketsByKey[k] = a.buckets[k]
	}
	a.mu.Unlock()

	entries := make([]BucketEntry, 0, len(keys))
	for _, k := range keys {
		entry, err := bucketsByKey[k].snapshot()
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	report := BucketReport{Time: start, Duration: duration, Entries: entries}
	for _, w := range a.writers {
		if err := w.WriteBucket(report); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting new records and lets a pending Run drain and
// return.
func (a *Aggregator) Close() {
	a.queue.close()
}
