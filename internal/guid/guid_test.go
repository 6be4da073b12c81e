package guid

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NeverNull(t *testing.T) {
	seen := make(map[GUID]bool)
	for i := 0; i < 1000; i++ {
		g := New()
		assert.False(t, g.IsNull())
		assert.NotEqual(t, Null, g)
		assert.False(t, seen[g], "duplicate identifier issued")
		seen[g] = true
	}
}

func TestStringRoundTrip(t *testing.T) {
	for i := 0; i < 100; i++ {
		g := New()
		s := g.String()
		require.Len(t, s, EncodingLength)

		parsed, ok := Parse(s)
		require.True(t, ok)
		assert.Equal(t, g, parsed)
		assert.Equal(t, s, parsed.String())
	}
}

func TestParse_AcceptsHyphenatedAndUpperCase(t *testing.T) {
	g, ok := Parse("550E8400-E29B-41D4-A716-446655440000")
	require.True(t, ok)
	assert.Equal(t, "550e8400e29b41d4a716446655440000", g.String())
}

func TestParse_Malformed(t *testing.T) {
	cases := []string{
		"",
		"xyz",
		strings.Repeat("g", EncodingLength),
		strings.Repeat("a", EncodingLength-1),
		strings.Repeat("a", EncodingLength+1),
		"550e8400+e29b-41d4-a716-446655440000",
	}
	for _, s := range cases {
		g, ok := Parse(s)
		assert.False(t, ok, "input %q", s)
		assert.True(t, g.IsNull())
	}
}

func TestNullString(t *testing.T) {
	assert.Equal(t, strings.Repeat("0", EncodingLength), Null.String())
	assert.True(t, Null.IsNull())
}

func TestCompare(t *testing.T) {
	a := MustParse("00000000000000000000000000000001")
	b := MustParse("00000000000000000000000000000002")
	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 1, Compare(b, a))
	assert.Equal(t, 0, Compare(a, a))
}

func TestSeededGeneratorDeterministic(t *testing.T) {
	g1 := NewGenerator(42)
	g2 := NewGenerator(42)
	for i := 0; i < 10; i++ {
		assert.Equal(t, g1.New(), g2.New())
	}
	assert.NotEqual(t, NewGenerator(1).New(), NewGenerator(2).New())
}

func TestFixedGenerator(t *testing.T) {
	a := MustParse("0123456789abcdef0123456789abcdef")
	gen := NewFixedGenerator(a)
	assert.Equal(t, a, gen.New())
	assert.Panics(t, func() { gen.New() })
}

func TestTextMarshaling(t *testing.T) {
	g := New()
	data, err := json.Marshal(map[string]GUID{"id": g})
	require.NoError(t, err)
	assert.Contains(t, string(data), g.String())

	var out map[string]GUID
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, g, out["id"])

	var bad GUID
	assert.Error(t, bad.UnmarshalText([]byte("nope")))
}

func TestScanValue(t *testing.T) {
	g := New()
	v, err := g.Value()
	require.NoError(t, err)
	assert.Equal(t, g.String(), v)

	v, err = Null.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	var s GUID
	require.NoError(t, s.Scan(g.String()))
	assert.Equal(t, g, s)
	require.NoError(t, s.Scan([]byte(g.String())))
	assert.Equal(t, g, s)
	require.NoError(t, s.Scan(g.Bytes()))
	assert.Equal(t, g, s)
	require.NoError(t, s.Scan(nil))
	assert.True(t, s.IsNull())
	assert.Error(t, s.Scan(42))
}
