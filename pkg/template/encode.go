package template

import (
	"encoding/base64"
	"strings"
)

// Encoding selects one of the `encode` helper's output formats. stdlib
// net/url's percent-encoding is tied to URL component semantics and
// doesn't expose these five distinct ASCII-set variants, so each is
// hand-rolled here directly against its byte set (see DESIGN.md's
// stdlib-justification table).
type Encoding int

const (
	EncodeBase64 Encoding = iota
	EncodePercentSimple
	EncodePercentQuery
	EncodePercent
	EncodePercentPath
	EncodePercentUserinfo
	EncodeNonAlphanumeric
)

func ParseEncoding(s string) (Encoding, bool) {
	switch s {
	case "base64":
		return EncodeBase64, true
	case "percent-simple":
		return EncodePercentSimple, true
	case "percent-query":
		return EncodePercentQuery, true
	case "percent":
		return EncodePercent, true
	case "percent-path":
		return EncodePercentPath, true
	case "percent-userinfo":
		return EncodePercentUserinfo, true
	case "non-alphanumeric":
		return EncodeNonAlphanumeric, true
	default:
		return 0, false
	}
}

var (
	controlsSet      = controlSet()
	querySet         = extend(controlsSet, " \"#<>")
	defaultSet       = extend(querySet, "`?{}")
	pathSegmentSet   = extend(defaultSet, "%/")
	userinfoSet      = extend(defaultSet, "/:;=@[\\]^|")
	nonAlphanumeric  = nonAlnumSet()
)

func controlSet() [256]bool {
	var set [256]bool
	for i := 0; i < 0x20; i++ {
		set[i] = true
	}
	set[0x7f] = true
	for i := 0x80; i < 256; i++ {
		set[i] = true
	}
	return set
}

func nonAlnumSet() [256]bool {
	var set [256]bool
	for i := 0; i < 256; i++ {
		c := byte(i)
		alnum := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		set[i] = !alnum
	}
	return set
}

func extend(base [256]bool, extra string) [256]bool {
	out := base
	for i := 0; i < len(extra); i++ {
		out[extra[i]] = true
	}
	return out
}

func percentEncode(s string, set [256]bool) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if set[c] {
			sb.WriteByte('%')
			sb.WriteString(strings.ToUpper(hexByte(c)))
		} else {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func hexByte(b byte) string {
	const hex = "0123456789abcdef"
	return string([]byte{hex[b>>4], hex[b&0xf]})
}

// Encode applies e to s, used by the `encode()` helper function.
func (e Encoding) Encode(s string) string {
	switch e {
	case EncodeBase64:
		return base64.RawStdEncoding.EncodeToString([]byte(s))
	case EncodePercentSimple:
		return percentEncode(s, controlsSet)
	case EncodePercentQuery:
		return percentEncode(s, querySet)
	case EncodePercent:
		return percentEncode(s, defaultSet)
	case EncodePercentPath:
		return percentEncode(s, pathSegmentSet)
	case EncodePercentUserinfo:
		return percentEncode(s, userinfoSet)
	case EncodeNonAlphanumeric:
		return percentEncode(s, nonAlphanumeric)
	default:
		return s
	}
}
