// Package stats implements the per-response stats aggregator: a single
// goroutine owns one HDR histogram and counter set per (endpoint, tag-map)
// key, fed by an unbounded queue so a slow aggregator can never make a
// request task block. A promauto gauge publishes queue depth.
package stats

import (
	"time"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

// Kind discriminates a Record's outcome, matching
// `Response{status,rtt_us} | RecoverableError{kind,rtt?} | Timeout` union.
type Kind int

const (
	KindResponse Kind = iota
	KindRecoverableError
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindRecoverableError:
		return "recoverable_error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Record is one stats event, emitted exactly once per request attempt
// (testable property 6).
type Record struct {
	EndpointID string
	Tags       jsonvalue.Value // object; Stable() forms half of the bucket key
	Time       time.Time
	Kind       Kind

	// Status and RTTMicros are populated for KindResponse.
	Status    int
	RTTMicros int64

	// ErrorKind names the recoverable-error variant (e.g. "connect",
	// "decode"); RTTMicros may also be set for a timed-out recoverable
	// error`RecoverableError{kind, rtt?}` shape.
	ErrorKind string
}

// key returns the (endpoint_id, tag_map) bucket key this record maps to.
func (r Record) key() string {
	return r.EndpointID + "\x00" + r.Tags.Stable()
}
