// Package query implements the select/for_each/where evaluation engine:
// select is a JSON-shaped tree whose string leaves are JS expressions,
// for_each expands a Cartesian product of tuples to drive repeated
// selections, and where gates each tuple. Each query carries request/
// response/stats capability bit-flags describing which parts of a
// completed exchange it needs to evaluate.
package query

import "regexp"

// Capability is a bit-flagged request/response/stats/control-flow surface
// a query may read, used to decide which optional sub-fields the request
// pipeline needs to compute.
type Capability uint16

const (
	RequestStartLine Capability = 1 << iota
	RequestHeaders
	RequestHeadersAll
	RequestBody
	RequestMethod
	RequestURL
	ResponseStartLine
	ResponseHeaders
	ResponseHeadersAll
	ResponseBody
	ResponseStatus
	Stats
	ForEach
	Error
)

// RequestAll/ResponseAll are convenience unions for "the whole
// request/response object was referenced bare" (e.g. a select leaf of
// exactly `request` rather than `request.body`).
const (
	RequestAll  = RequestStartLine | RequestHeaders | RequestHeadersAll | RequestBody | RequestMethod | RequestURL
	ResponseAll = ResponseStartLine | ResponseHeaders | ResponseHeadersAll | ResponseBody | ResponseStatus
)

func (c Capability) Has(flag Capability) bool { return c&flag != 0 }

// capabilityPattern pairs a literal dotted-path with the regex that
// detects a reference to it inside a JS source string — a property
// access (`request.body`), bracket access (`request["body"]`), or the
// bare root identifier (`request`) used alone.
var capabilityPatterns = []struct {
	flag Capability
	re   *regexp.Regexp
}{
	{RequestStartLine, mustCompile(`\brequest\s*\[\s*["']start-line["']\s*\]`)},
	{RequestHeadersAll, mustCompile(`\brequest\s*\.\s*headers_all\b`)},
	{RequestHeaders, mustCompile(`\brequest\s*\.\s*headers\b`)},
	{RequestBody, mustCompile(`\brequest\s*\.\s*body\b`)},
	{RequestMethod, mustCompile(`\brequest\s*\.\s*method\b`)},
	{RequestURL, mustCompile(`\brequest\s*\.\s*url\b`)},
	{RequestAll, mustCompile(`\brequest\b(?:\s*[^\s.\[]|\s*$)`)},
	{ResponseStartLine, mustCompile(`\bresponse\s*\[\s*["']start-line["']\s*\]`)},
	{ResponseHeadersAll, mustCompile(`\bresponse\s*\.\s*headers_all\b`)},
	{ResponseHeaders, mustCompile(`\bresponse\s*\.\s*headers\b`)},
	{ResponseBody, mustCompile(`\bresponse\s*\.\s*body\b`)},
	{ResponseStatus, mustCompile(`\bresponse\s*\.\s*status\b`)},
	{ResponseAll, mustCompile(`\bresponse\b(?:\s*[^\s.\[]|\s*$)`)},
	{Stats, mustCompile(`\bstats\b`)},
	{ForEach, mustCompile(`\bfor_each\b`)},
	{Error, mustCompile(`\berror\b`)},
}

func mustCompile(pattern string) *regexp.Regexp {
	return regexp.MustCompile(pattern)
}

// AnalyzeRequiredCapabilities scans raw JS source strings (select leaves,
// for_each entries, a where clause) for references to the standard
// request/response/stats/for_each/error surfaces.
//
// select/for_each/where are arbitrary JS handed to a real JS engine, so
// there is no custom AST to walk here; a regex scan over the source text
// is the practical equivalent — false positives only arise from
// deliberately confusing identifier names (e.g. a local variable
// literally named `response`).
func AnalyzeRequiredCapabilities(sources ...string) Capability {
	var caps Capability
	for _, src := range sources {
		for _, p := range capabilityPatterns {
			if p.re.MatchString(src) {
				caps |= p.flag
			}
		}
	}
	return caps
}
