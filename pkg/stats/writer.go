package stats

import (
	"fmt"
	"io"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// NDJSONWriter appends one JSON object per bucket_size interval to an
// io.Writer, matching the "sequence of newline-delimited JSON objects"
// stats-file format (--stats-file-format json). Uses jsoniter on the
// encode side for consistency with the rest of the stats pipeline (see
// DESIGN.md).
type NDJSONWriter struct {
	w io.Writer
}

// NewNDJSONWriter wraps w (typically an *os.File opened for the
// --stats-file path).
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{w: w}
}

func (n *NDJSONWriter) WriteBucket(report BucketReport) error {
	line, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(report)
	if err != nil {
		return fmt.Errorf("stats: marshaling bucket report: %w", err)
	}
	if _, err := n.w.Write(line); err != nil {
		return err
	}
	_, err = n.w.Write([]byte("\n"))
	return err
}

// SummaryWriter prints a human-readable bucket summary to an io.Writer,
// used for --output-format human (the default when no --stats-file is
// given).
type SummaryWriter struct {
	w io.Writer
}

func NewSummaryWriter(w io.Writer) *SummaryWriter {
	return &SummaryWriter{w: w}
}

func (s *SummaryWriter) WriteBucket(report BucketReport) error {
	if _, err := fmt.Fprintf(s.w, "--- bucket %s (%s) ---\n",
		report.Time.Format(time.RFC3339), report.Duration.Round(time.Millisecond)); err != nil {
		return err
	}

	entries := append([]BucketEntry(nil), report.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].EndpointID < entries[j].EndpointID })

	for _, e := range entries {
		if _, err := fmt.Fprintf(s.w, "%s  requests=%d p50=%dus p90=%dus p99=%dus max=%dus timeouts=%d errors=%d statuses=%v\n",
			e.EndpointID, e.count, e.p50, e.p90, e.p99, e.max, e.RequestTimeouts, e.TestErrors, e.StatusCounts); err != nil {
			return err
		}
	}
	return nil
}
