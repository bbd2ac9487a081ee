// Package metrics implements the Prometheus-style text grammar used by
// configured nodes' /metrics endpoints, and the agent-side scraper that
// pulls it on a fixed cycle.
package metrics

import (
	"strconv"
	"strings"

	"github.com/ivy-net/Ivynet-sub000/internal/wire"
)

// ParseLine parses one grammar line:
//
//	sample := name [ '{' attr (',' attr)* '}' ] ws value
//	attr   := key '=' '"' value '"'
//	value  := decimal | exponential-decimal | integer
//
// Comments (#-prefixed) and blank lines return ok=false with no error;
// malformed samples also return ok=false — unparseable lines are dropped
// silently by the caller, never surfaced as an error.
func ParseLine(line string) (wire.Sample, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return wire.Sample{}, false
	}

	name, rest, ok := scanName(trimmed)
	if !ok || name == "" {
		return wire.Sample{}, false
	}

	var attrs map[string]string
	rest = strings.TrimLeft(rest, " \t")
	if strings.HasPrefix(rest, "{") {
		attrs, rest, ok = scanAttrs(rest)
		if !ok {
			return wire.Sample{}, false
		}
	}

	valueStr := strings.TrimSpace(rest)
	if valueStr == "" {
		return wire.Sample{}, false
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return wire.Sample{}, false
	}

	return wire.Sample{Name: name, Value: value, Attributes: attrs}, true
}

// ParseText parses a full /metrics document into samples, dropping
// unparseable lines.
func ParseText(doc string) []wire.Sample {
	lines := strings.Split(doc, "\n")
	samples := make([]wire.Sample, 0, len(lines))
	for _, line := range lines {
		if s, ok := ParseLine(line); ok {
			samples = append(samples, s)
		}
	}
	return samples
}

// scanName reads the metric name: everything up to the first whitespace,
// '{', or end of string.
func scanName(s string) (name string, rest string, ok bool) {
	i := 0
	for i < len(s) {
		c := s[i]
		if c == ' ' || c == '\t' || c == '{' {
			break
		}
		i++
	}
	if i == 0 {
		return "", s, false
	}
	return s[:i], s[i:], true
}

// scanAttrs parses `{key="value",key="value"}` and returns the remainder
// of the line after the closing brace.
func scanAttrs(s string) (map[string]string, string, bool) {
	if len(s) == 0 || s[0] != '{' {
		return nil, s, false
	}
	s = s[1:]

	attrs := make(map[string]string)
	for {
		s = strings.TrimLeft(s, " \t")
		closeIdx := strings.IndexByte(s, '}')
		eqIdx := strings.IndexByte(s, '=')
		if closeIdx == 0 {
			// empty attr set "{}"
			return attrs, s[1:], true
		}
		if eqIdx < 0 {
			return nil, s, false
		}

		key := strings.TrimSpace(s[:eqIdx])
		if key == "" {
			return nil, s, false
		}
		s = s[eqIdx+1:]
		s = strings.TrimLeft(s, " \t")
		if len(s) == 0 || s[0] != '"' {
			return nil, s, false
		}
		s = s[1:]

		endIdx := strings.IndexByte(s, '"')
		if endIdx < 0 {
			return nil, s, false
		}
		attrs[key] = s[:endIdx]
		s = s[endIdx+1:]
		s = strings.TrimLeft(s, " \t")

		if len(s) == 0 {
			return nil, s, false
		}
		switch s[0] {
		case ',':
			s = s[1:]
			continue
		case '}':
			return attrs, s[1:], true
		default:
			return nil, s, false
		}
	}
}
