// Package config implements the two-stage YAML configuration model
// : a Raw tree decoded straight off the
// document (templates left uncompiled, vars unresolved) and a Resolved
// tree produced by running every template through pkg/template's
// Compile/ResolveEnv/ResolveVars pipeline and every declare/provides/
// logs/where expression through pkg/query.Compile.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// durationRE matches one `<n><unit>` run.
var durationRE = regexp.MustCompile(`(?i)(\d+)\s*(d|h|m|s|days?|hrs?|mins?|secs?|hours?|minutes?|seconds?)`)

// durationSanityRE requires the whole string to be one or more duration
// terms back to back, rejecting trailing garbage.
var durationSanityRE = regexp.MustCompile(`(?i)^(?:\s*\d+\s*(?:d|h|m|s|days?|hrs?|mins?|secs?|hours?|minutes?|seconds?)\s*)+$`)

// ParseDuration parses strings like "1h30m", "90 secs", "2days 4hrs" into a
// time.Duration. Case-insensitive, units may repeat, whitespace between
// terms is optional.
func ParseDuration(s string) (time.Duration, error) {
	if !durationSanityRE.MatchString(s) {
		return 0, fmt.Errorf("config: %q is not a valid duration", s)
	}
	var total time.Duration
	for _, m := range durationRE.FindAllStringSubmatch(s, -1) {
		n, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("config: parsing duration %q: %w", s, err)
		}
		var unit time.Duration
		switch strings.ToLower(m[2])[0] {
		case 'd':
			unit = 24 * time.Hour
		case 'h':
			unit = time.Hour
		case 'm':
			unit = time.Minute
		case 's':
			unit = time.Second
		}
		total += time.Duration(n) * unit
	}
	return total, nil
}

// percentRE matches a bare number optionally followed by '%'.
var percentRE = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*%?$`)

// ParsePercent parses a load-pattern percentage ("50%", "100", "0.5%")
// into a fraction of 1.0.
func ParsePercent(s string) (float64, error) {
	m := percentRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("config: %q is not a valid percentage", s)
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("config: parsing percentage %q: %w", s, err)
	}
	return f / 100.0, nil
}

// hitsPerRE matches the peak_load shorthand: a number followed by "hpm"
// or "hps" (case-insensitive).
var hitsPerRE = regexp.MustCompile(`^(?i)(\d+(?:\.\d+)?)\s*hp([ms])$`)

// HitsPerKind selects which unit a peak_load value is expressed in.
type HitsPerKind int

const (
	HitsPerMinute HitsPerKind = iota
	HitsPerSecond
)

// ParseHitsPer parses a peak_load value such as "500hpm" or "25.5hps".
func ParseHitsPer(s string) (float64, HitsPerKind, error) {
	m := hitsPerRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, fmt.Errorf("config: %q is not a valid peak_load (want e.g. \"500hpm\")", s)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("config: parsing peak_load %q: %w", s, err)
	}
	switch strings.ToLower(m[2]) {
	case "m":
		return n, HitsPerMinute, nil
	case "s":
		return n, HitsPerSecond, nil
	default:
		return 0, 0, fmt.Errorf("config: unknown peak_load unit in %q", s)
	}
}
