package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ivy-net/Ivynet-sub000/internal/wire"
)

func TestParseLine_WithAttributes(t *testing.T) {
	s, ok := ParseLine(`eigen_performance_score{avs="eigen-da",chain="mainnet"} 82.5`)
	require.True(t, ok)
	require.Equal(t, wire.Sample{
		Name:       "eigen_performance_score",
		Value:      82.5,
		Attributes: map[string]string{"avs": "eigen-da", "chain": "mainnet"},
	}, s)
}

func TestParseLine_NoAttributes(t *testing.T) {
	s, ok := ParseLine("node_up 1")
	require.True(t, ok)
	require.Equal(t, "node_up", s.Name)
	require.Equal(t, float64(1), s.Value)
	require.Empty(t, s.Attributes)
}

func TestParseLine_ExponentialDecimal(t *testing.T) {
	s, ok := ParseLine("metric_name 1.1447e+06")
	require.True(t, ok)
	require.Equal(t, 1144700.0, s.Value)
	require.Empty(t, s.Attributes)
}

func TestParseLine_CommentAndBlankDropped(t *testing.T) {
	_, ok := ParseLine("# this is a comment")
	require.False(t, ok)

	_, ok = ParseLine("   ")
	require.False(t, ok)
}

func TestParseLine_MalformedDropped(t *testing.T) {
	cases := []string{
		`bad{attr="unterminated 1`,
		`{no_name} 1`,
		`name{attr=novalue} 1`,
		`name{} `,
		`name`,
	}
	for _, line := range cases {
		_, ok := ParseLine(line)
		require.False(t, ok, "expected %q to be dropped", line)
	}
}

func TestParseText_SkipsUnparseableLines(t *testing.T) {
	doc := "good_metric 1\n# comment\n\nbad{ 2\nanother_good{a=\"b\"} 3.5\n"
	samples := ParseText(doc)
	require.Len(t, samples, 2)
	require.Equal(t, "good_metric", samples[0].Name)
	require.Equal(t, "another_good", samples[1].Name)
}

func TestEncodeLine_RoundTrip(t *testing.T) {
	original := wire.Sample{
		Name:       "sample_metric",
		Value:      3.25,
		Attributes: map[string]string{"z": "last", "a": "first"},
	}
	line := EncodeLine(original)
	parsed, ok := ParseLine(line)
	require.True(t, ok)
	require.Equal(t, original.Name, parsed.Name)
	require.Equal(t, original.Value, parsed.Value)
	require.Equal(t, original.Attributes, parsed.Attributes)
}

func TestEncodeLine_AttributeOrderDeterministic(t *testing.T) {
	s := wire.Sample{Name: "m", Value: 1, Attributes: map[string]string{"b": "2", "a": "1"}}
	require.Equal(t, `m{a="1",b="2"} 1`, EncodeLine(s))
}

func TestEncodeText_RoundTripsFullDocument(t *testing.T) {
	samples := []wire.Sample{
		{Name: "a", Value: 1},
		{Name: "b", Value: 2.5, Attributes: map[string]string{"x": "y"}},
	}
	doc := EncodeText(samples)
	parsed := ParseText(doc)
	require.Equal(t, samples, parsed)
}
