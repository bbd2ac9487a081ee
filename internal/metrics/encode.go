package metrics

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ivy-net/Ivynet-sub000/internal/wire"
)

// EncodeLine renders a single sample back into the grammar's text form,
// with attributes in sorted key order so round-tripping is deterministic.
func EncodeLine(s wire.Sample) string {
	var b strings.Builder
	b.WriteString(s.Name)

	if len(s.Attributes) > 0 {
		keys := make([]string, 0, len(s.Attributes))
		for k := range s.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteString(`="`)
			b.WriteString(s.Attributes[k])
			b.WriteByte('"')
		}
		b.WriteByte('}')
	}

	b.WriteByte(' ')
	b.WriteString(strconv.FormatFloat(s.Value, 'g', -1, 64))
	return b.String()
}

// EncodeText renders a full sample set as a /metrics document.
func EncodeText(samples []wire.Sample) string {
	lines := make([]string, len(samples))
	for i, s := range samples {
		lines[i] = EncodeLine(s)
	}
	return strings.Join(lines, "\n")
}
