package kvp

import (
	"slices"

	"golang.org/x/text/unicode/norm"
)

// Frame is a mapping from string keys to Values. The zero value and a nil
// *Frame are both valid empty frames for reading; the map is allocated on
// the first Set.
type Frame struct {
	slots map[string]Value
}

// NewFrame returns an empty frame.
func NewFrame() *Frame {
	return &Frame{}
}

// Type implements Value.
func (f *Frame) Type() Type { return TypeFrame }

func (f *Frame) kvpValue() {}

// normKey NFC-normalises a key at the API boundary.
func normKey(key string) string {
	return norm.NFC.String(key)
}

// Len returns the number of direct children.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.slots)
}

// IsEmpty reports whether the frame has no children.
func (f *Frame) IsEmpty() bool {
	return f.Len() == 0
}

// Get returns the value stored at key, or nil.
func (f *Frame) Get(key string) Value {
	if f == nil || f.slots == nil {
		return nil
	}
	return f.slots[normKey(key)]
}

// Set stores v at key, taking ownership of v. Any prior value at key is
// released, except for v itself when v was taken from inside it. A nil v
// deletes the key.
func (f *Frame) Set(key string, v Value) {
	key = normKey(key)
	prior, had := f.slots[key]
	if v == nil {
		if had {
			delete(f.slots, key)
			release(prior)
		}
		return
	}
	if f.slots == nil {
		f.slots = make(map[string]Value)
	}
	f.slots[key] = v
	if had {
		releaseExcept(prior, v)
	}
}

// sameContainer reports whether a and b are the same frame or share the
// same list backing array.
func sameContainer(a, b Value) bool {
	switch x := a.(type) {
	case *Frame:
		y, ok := b.(*Frame)
		return ok && x == y
	case List:
		y, ok := b.(List)
		return ok && len(x) > 0 && len(y) > 0 && &x[0] == &y[0]
	}
	return false
}

// Delete removes key and releases its value.
func (f *Frame) Delete(key string) {
	f.Set(key, nil)
}

// SetPath stores v at the nested key path, creating intermediate frames as
// needed. A non-frame value found along the path is replaced by a new frame.
// A nil v deletes the leaf key.
func (f *Frame) SetPath(v Value, keys ...string) {
	if len(keys) == 0 {
		return
	}
	parent := f
	for _, k := range keys[:len(keys)-1] {
		child, ok := AsFrame(parent.Get(k))
		if !ok {
			if v == nil {
				return
			}
			child = NewFrame()
			parent.Set(k, child)
		}
		parent = child
	}
	parent.Set(keys[len(keys)-1], v)
}

// GetPath returns the value at the nested key path, or nil when any step is
// missing or not a frame.
func (f *Frame) GetPath(keys ...string) Value {
	if len(keys) == 0 {
		return nil
	}
	cur := f
	for _, k := range keys[:len(keys)-1] {
		child, ok := AsFrame(cur.Get(k))
		if !ok {
			return nil
		}
		cur = child
	}
	return cur.Get(keys[len(keys)-1])
}

// GetFrame returns the frame at the nested key path, creating it and any
// missing intermediates.
func (f *Frame) GetFrame(keys ...string) *Frame {
	cur := f
	for _, k := range keys {
		child, ok := AsFrame(cur.Get(k))
		if !ok {
			child = NewFrame()
			cur.Set(k, child)
		}
		cur = child
	}
	return cur
}

// Keys returns the direct child keys in sorted order.
func (f *Frame) Keys() []string {
	if f == nil {
		return nil
	}
	keys := make([]string, 0, len(f.slots))
	for k := range f.slots {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ForEach calls fn for each direct child in key order. Nested frames are not
// descended into; callers recurse explicitly.
func (f *Frame) ForEach(fn func(key string, v Value)) {
	for _, k := range f.Keys() {
		fn(k, f.slots[k])
	}
}

// Copy returns a deep copy. Copying a nil frame yields an empty frame.
func (f *Frame) Copy() *Frame {
	out := NewFrame()
	if f == nil || len(f.slots) == 0 {
		return out
	}
	out.slots = make(map[string]Value, len(f.slots))
	for k, v := range f.slots {
		out.slots[k] = Copy(v)
	}
	return out
}

// Clear releases every child recursively and leaves f empty. Clearing an
// already cleared frame is a no-op.
func (f *Frame) Clear() {
	if f == nil || f.slots == nil {
		return
	}
	release(f)
}

// CompareFrames orders frames by their sorted (key, value) sequences. A nil
// or empty frame sorts before any non-empty frame.
func CompareFrames(a, b *Frame) int {
	if a == b {
		return 0
	}
	ak, bk := a.Keys(), b.Keys()
	for i := 0; i < len(ak) && i < len(bk); i++ {
		if ak[i] != bk[i] {
			if ak[i] < bk[i] {
				return -1
			}
			return 1
		}
		if c := Compare(a.slots[ak[i]], b.slots[bk[i]]); c != 0 {
			return c
		}
	}
	switch {
	case len(ak) < len(bk):
		return -1
	case len(ak) > len(bk):
		return 1
	}
	return 0
}
