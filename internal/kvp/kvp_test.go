package kvp

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/numeric"
)

func sampleFrame() *Frame {
	f := NewFrame()
	f.Set("count", NewInt64(42))
	f.Set("ratio", NewDouble(0.25))
	f.Set("amount", NewNumeric(numeric.New(1250, 100)))
	f.Set("notes", NewString("hello"))
	f.Set("ref", NewGUID(guid.MustParse("0123456789abcdef0123456789abcdef")))
	f.Set("when", NewTimestamp(time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)))
	f.Set("blob", NewBinary([]byte{0, 1, 2, 255}))
	f.Set("tags", NewList(NewString("a"), NewInt64(7), NewList()))
	f.SetPath(NewString("deep"), "nested", "inner", "leaf")
	f.Set("empty", NewFrame())
	f.Set("odd/key%", NewString("escaped"))
	return f
}

func TestValueSealed(t *testing.T) {
	var _ Value = Int64(1)
	var _ Value = Double(1)
	var _ Value = Numeric{}
	var _ Value = String("")
	var _ Value = GUID{}
	var _ Value = Timestamp{}
	var _ Value = Binary(nil)
	var _ Value = List(nil)
	var _ Value = (*Frame)(nil)
}

func TestAccessorsReportMismatch(t *testing.T) {
	v := NewString("x")

	s, ok := AsString(v)
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = AsInt64(v)
	assert.False(t, ok)
	_, ok = AsFrame(v)
	assert.False(t, ok)
	_, ok = AsInt64(nil)
	assert.False(t, ok)
}

func TestConstructorsCopyPayload(t *testing.T) {
	raw := []byte{1, 2, 3}
	v := NewBinary(raw)
	raw[0] = 9

	b, ok := AsBinary(v)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, b)

	inner := NewFrame()
	inner.Set("k", NewInt64(1))
	wrapped := NewFrameValue(inner)
	inner.Set("k", NewInt64(2))

	got, _ := AsFrame(wrapped)
	n, _ := AsInt64(got.Get("k"))
	assert.Equal(t, int64(1), n)
}

func TestFrameSetGetDelete(t *testing.T) {
	f := NewFrame()
	assert.True(t, f.IsEmpty())
	assert.Nil(t, f.Get("missing"))

	f.Set("a", NewInt64(1))
	f.Set("a", NewInt64(2))
	n, _ := AsInt64(f.Get("a"))
	assert.Equal(t, int64(2), n)

	f.Set("a", nil)
	assert.Nil(t, f.Get("a"))
	assert.True(t, f.IsEmpty())

	f.Set("b", NewString("x"))
	f.Delete("b")
	assert.Equal(t, 0, f.Len())
}

func TestFrameReplaceReleasesPrior(t *testing.T) {
	f := NewFrame()
	child := NewFrame()
	child.Set("x", NewInt64(1))
	f.Set("c", child)

	f.Set("c", NewString("replaced"))
	assert.True(t, child.IsEmpty())

	// Storing a frame back at its own key must not clear it.
	again := NewFrame()
	again.Set("y", NewInt64(2))
	f.Set("d", again)
	f.Set("d", again)
	assert.Equal(t, 1, again.Len())
}

func TestFrameKeysAreNFCNormalised(t *testing.T) {
	f := NewFrame()
	f.Set("cafe\u0301", NewInt64(1))

	assert.NotNil(t, f.Get("caf\u00e9"))
	assert.Equal(t, []string{"caf\u00e9"}, f.Keys())
}

func TestFramePaths(t *testing.T) {
	f := NewFrame()
	f.SetPath(NewInt64(3), "a", "b", "c")

	n, ok := AsInt64(f.GetPath("a", "b", "c"))
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)
	assert.Nil(t, f.GetPath("a", "x", "c"))
	assert.Nil(t, f.GetPath())

	f.SetPath(nil, "a", "b", "c")
	assert.Nil(t, f.GetPath("a", "b", "c"))

	// Deleting through a missing path does not create frames.
	f.SetPath(nil, "q", "r")
	assert.Nil(t, f.Get("q"))

	sub := f.GetFrame("x", "y")
	sub.Set("z", NewString("v"))
	s, _ := AsString(f.GetPath("x", "y", "z"))
	assert.Equal(t, "v", s)
}

func TestForEachSortedAndShallow(t *testing.T) {
	f := NewFrame()
	f.Set("zebra", NewInt64(1))
	f.Set("apple", NewInt64(2))
	f.SetPath(NewInt64(3), "mango", "inner")

	var keys []string
	f.ForEach(func(key string, _ Value) { keys = append(keys, key) })
	assert.Equal(t, []string{"apple", "mango", "zebra"}, keys)
}

func TestCopyIsDeepAndEqual(t *testing.T) {
	f := sampleFrame()
	c := f.Copy()

	assert.Equal(t, 0, CompareFrames(f, c))

	c.SetPath(NewString("changed"), "nested", "inner", "leaf")
	s, _ := AsString(f.GetPath("nested", "inner", "leaf"))
	assert.Equal(t, "deep", s)
	assert.NotEqual(t, 0, CompareFrames(f, c))
}

func TestClearTwiceIsSafe(t *testing.T) {
	f := sampleFrame()
	nested, ok := AsFrame(f.Get("nested"))
	require.True(t, ok)

	f.Clear()
	assert.True(t, f.IsEmpty())
	assert.True(t, nested.IsEmpty())

	assert.NotPanics(t, func() { f.Clear() })
	assert.NotPanics(t, func() { (*Frame)(nil).Clear() })
}

func TestCompareTotalOrder(t *testing.T) {
	assert.Equal(t, 0, Compare(nil, nil))
	assert.Equal(t, -1, Compare(nil, NewInt64(0)))
	assert.Equal(t, 1, Compare(NewInt64(0), nil))

	// Tag order dominates payload.
	assert.Equal(t, -1, Compare(NewInt64(100), NewString("a")))

	assert.Equal(t, -1, Compare(NewInt64(1), NewInt64(2)))
	assert.Equal(t, 0, Compare(NewNumeric(numeric.New(1, 2)), NewNumeric(numeric.New(2, 4))))
	assert.Equal(t, 1, Compare(NewBinary([]byte{1, 2}), NewBinary([]byte{1, 1, 9})))
	assert.Equal(t, -1, Compare(NewList(NewInt64(1)), NewList(NewInt64(1), NewInt64(0))))
	assert.Equal(t, -1, Compare(NewDouble(math.NaN()), NewDouble(0)))

	a, b := NewFrame(), NewFrame()
	a.Set("k", NewInt64(1))
	b.Set("k", NewInt64(2))
	assert.Equal(t, -1, CompareFrames(a, b))
	assert.Equal(t, 1, CompareFrames(b, a))
	assert.Equal(t, -1, CompareFrames(nil, a))
	assert.Equal(t, 0, CompareFrames(nil, NewFrame()))

	// A frame missing a key present in the other is ordered consistently
	// in both directions.
	c := a.Copy()
	c.Set("m", NewInt64(0))
	assert.Equal(t, -1, CompareFrames(a, c))
	assert.Equal(t, 1, CompareFrames(c, a))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := sampleFrame()

	tree := Encode(f)
	count, ok := tree["count"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "int64", count["type"])
	assert.Equal(t, "42", count["value"])

	back, err := Decode(tree)
	require.NoError(t, err)
	assert.Equal(t, 0, CompareFrames(f, back))
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode(map[string]any{"x": "bare"})
	assert.Error(t, err)

	_, err = Decode(map[string]any{"x": map[string]any{"type": "bogus", "value": "1"}})
	assert.Error(t, err)

	_, err = Decode(map[string]any{"x": map[string]any{"type": "int64", "value": "nope"}})
	assert.Error(t, err)

	_, err = Decode(map[string]any{"x": map[string]any{"type": "guid", "value": "short"}})
	assert.Error(t, err)
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	f := sampleFrame()

	slots := Flatten(f)
	paths := make([]string, len(slots))
	for i, s := range slots {
		paths[i] = s.Path
	}
	assert.Contains(t, paths, "nested/inner/leaf")
	assert.Contains(t, paths, "tags/0")
	assert.Contains(t, paths, "tags/2")
	assert.Contains(t, paths, "odd%2Fkey%25")
	assert.Contains(t, paths, "empty")

	back, err := Unflatten(slots)
	require.NoError(t, err)
	assert.Equal(t, 0, CompareFrames(f, back))

	s, _ := AsString(back.Get("odd/key%"))
	assert.Equal(t, "escaped", s)
	empty, ok := AsFrame(back.Get("empty"))
	require.True(t, ok)
	assert.True(t, empty.IsEmpty())
}

func TestUnflattenAnyOrder(t *testing.T) {
	slots := Flatten(sampleFrame())
	reversed := make([]Slot, len(slots))
	for i, s := range slots {
		reversed[len(slots)-1-i] = s
	}

	back, err := Unflatten(reversed)
	require.NoError(t, err)
	assert.Equal(t, 0, CompareFrames(sampleFrame(), back))
}

func TestUnflattenOrphan(t *testing.T) {
	_, err := Unflatten([]Slot{{Path: "a/b", Value: NewInt64(1)}})
	assert.Error(t, err)

	_, err = Unflatten([]Slot{
		{Path: "a", Value: NewInt64(1)},
		{Path: "a/b", Value: NewInt64(2)},
	})
	assert.Error(t, err)
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"a/b", "c%"}, SplitPath("a%2Fb/c%25"))
}

func TestFlattenEmptyKeys(t *testing.T) {
	f := NewFrame()
	f.Set("", NewString("blank key"))
	inner := NewFrame()
	inner.Set("", NewInt64(7))
	f.Set("nested", inner)
	f.Set("%0", NewString("literal"))

	slots := Flatten(f)
	for _, s := range slots {
		assert.NotEmpty(t, s.Path)
	}

	back, err := Unflatten(slots)
	require.NoError(t, err)
	assert.Equal(t, 0, CompareFrames(f, back))

	s, _ := AsString(back.Get(""))
	assert.Equal(t, "blank key", s)
	s, _ = AsString(back.Get("%0"))
	assert.Equal(t, "literal", s)
	assert.Equal(t, []string{"nested", ""}, SplitPath("nested/%0"))
}

func TestFrameSetKeepsValueTakenFromPrior(t *testing.T) {
	f := NewFrame()
	outer := NewFrame()
	inner := NewFrame()
	inner.Set("x", NewInt64(1))
	outer.Set("inner", inner)
	outer.Set("other", NewString("dropped"))
	f.Set("k", outer)

	f.Set("k", inner)
	got, ok := AsFrame(f.Get("k"))
	require.True(t, ok)
	assert.Equal(t, 1, got.Len())
	assert.True(t, outer.IsEmpty())

	f.Set("l", List{NewString("a"), List{NewInt64(1), NewInt64(2)}})
	sub := f.Get("l").(List)[1]
	f.Set("l", sub)
	assert.Equal(t, 0, Compare(List{NewInt64(1), NewInt64(2)}, f.Get("l")))
}
