package stats

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

// Histogram bounds for RTT-in-microseconds tracking: 1us floor, one hour
// ceiling (a hung request under any sane request_timeout), 3 significant
// figures — a common trade-off between memory and percentile precision.
const (
	histogramMinValue = 1
	histogramSigFigs  = 3
)

var histogramMaxValue = int64(time.Hour / time.Microsecond)

// bucket owns one (endpoint, tag-map) key's histogram and per-interval
// counters. The histogram is cumulative for the lifetime of the run
// (never reset); statusCounts/requestTimeouts/testErrors are reset every
// time a snapshot is taken, so each snapshot carries a running total
// alongside its periodic deltas.
type bucket struct {
	mu sync.Mutex

	endpointID string
	tags       jsonvalue.Value

	hist            *hdrhistogram.Histogram
	statusCounts    map[int]int64
	requestTimeouts int64
	testErrors      int64
}

func newBucket(endpointID string, tags jsonvalue.Value) *bucket {
	return &bucket{
		endpointID:   endpointID,
		tags:         tags,
		hist:         hdrhistogram.New(histogramMinValue, histogramMaxValue, histogramSigFigs),
		statusCounts: make(map[int]int64),
	}
}

// record applies one Record to this bucket's histogram and counters.
func (b *bucket) record(r Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Kind {
	case KindResponse:
		b.statusCounts[r.Status]++
		_ = b.hist.RecordValue(clampToHistogram(r.RTTMicros))
	case KindTimeout:
		b.requestTimeouts++
		_ = b.hist.RecordValue(clampToHistogram(r.RTTMicros))
	case KindRecoverableError:
		b.testErrors++
		if r.RTTMicros > 0 {
			_ = b.hist.RecordValue(clampToHistogram(r.RTTMicros))
		}
	}
}

func clampToHistogram(us int64) int64 {
	if us < histogramMinValue {
		return histogramMinValue
	}
	if us > histogramMaxValue {
		return histogramMaxValue
	}
	return us
}

// BucketEntry is one (endpoint, tag-map) key's contribution to a
// BucketReport, matching stats-file entry shape.
type BucketEntry struct {
	EndpointID      string           `json:"endpointId"`
	Tags            jsonvalue.Value  `json:"tags"`
	RTTHistogram    string           `json:"rttHistogram"`
	RequestTimeouts int64            `json:"requestTimeouts"`
	TestErrors      int64            `json:"testErrors"`
	StatusCounts    map[string]int64 `json:"statusCounts"`

	// summary fields, filled in for the human-readable writer; omitted
	// from JSON since rttHistogram is the wire-format source of truth.
	count int64
	p50   int64
	p90   int64
	p99   int64
	max   int64
}

// snapshot encodes the cumulative histogram and the counters accumulated
// since the previous snapshot, then resets the counters (not the
// histogram).
func (b *bucket) snapshot() (BucketEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	encoded, err := encodeHistogram(b.hist)
	if err != nil {
		return BucketEntry{}, fmt.Errorf("stats: encoding histogram for %q: %w", b.endpointID, err)
	}

	statusCounts := make(map[string]int64, len(b.statusCounts))
	for status, count := range b.statusCounts {
		statusCounts[fmt.Sprintf("%d", status)] = count
	}

	entry := BucketEntry{
		EndpointID:      b.endpointID,
		Tags:            b.tags,
		RTTHistogram:    encoded,
		RequestTimeouts: b.requestTimeouts,
		TestErrors:      b.testErrors,
		StatusCounts:    statusCounts,
		count:           b.hist.TotalCount(),
		p50:             b.hist.ValueAtQuantile(50),
		p90:             b.hist.ValueAtQuantile(90),
		p99:             b.hist.ValueAtQuantile(99),
		max:             b.hist.Max(),
	}

	b.requestTimeouts = 0
	b.testErrors = 0
	b.statusCounts = make(map[int]int64)

	return entry, nil
}

// encodeHistogram serializes a histogram's exportable snapshot as base64
// JSON, matching "rttHistogram (HDR-serialized
// base64)" wire shape. hdrhistogram-go's own Export/Import pair (rather
// than the Java-compatible compressed wire format other HDR bindings use)
// is the serialization: this repo only ever reads its own stats files
// back, so there is no cross-language wire-compatibility requirement to
// satisfy, and Export()/Import() round-trip losslessly.
func encodeHistogram(h *hdrhistogram.Histogram) (string, error) {
	raw, err := json.Marshal(h.Export())
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// decodeHistogram reverses encodeHistogram, used by tests and by any
// future stats-file replay tooling.
func decodeHistogram(encoded string) (*hdrhistogram.Histogram, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	var snap hdrhistogram.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return hdrhistogram.Import(&snap), nil
}
