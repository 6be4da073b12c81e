package kvp

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// PathSep separates key segments in a slot path.
const PathSep = "/"

// emptySegment stands for the empty key. Escaping turns every literal "%"
// into "%25", so no escaped key can collide with it.
const emptySegment = "%0"

var (
	segmentEscaper   = strings.NewReplacer("%", "%25", "/", "%2F")
	segmentUnescaper = strings.NewReplacer("%2F", "/", "%25", "%")
)

func escapeSegment(key string) string {
	if key == "" {
		return emptySegment
	}
	return segmentEscaper.Replace(key)
}

func unescapeSegment(seg string) string {
	if seg == emptySegment {
		return ""
	}
	return segmentUnescaper.Replace(seg)
}

// Slot is one row of a flattened frame. Leaves carry their scalar value;
// frames and lists are emitted as empty container markers so that empty
// containers survive the round trip.
type Slot struct {
	Path  string
	Value Value
}

// Flatten walks f depth first in key order and returns one slot per node.
// Containers precede their children. List elements use their index as the
// path segment.
func Flatten(f *Frame) []Slot {
	var out []Slot
	flattenFrame(&out, "", f)
	return out
}

func flattenFrame(out *[]Slot, prefix string, f *Frame) {
	f.ForEach(func(key string, v Value) {
		flattenValue(out, joinPath(prefix, escapeSegment(key)), v)
	})
}

func flattenValue(out *[]Slot, path string, v Value) {
	switch x := v.(type) {
	case *Frame:
		*out = append(*out, Slot{Path: path, Value: NewFrame()})
		flattenFrame(out, path, x)
	case List:
		*out = append(*out, Slot{Path: path, Value: List{}})
		for i, e := range x {
			flattenValue(out, joinPath(path, strconv.Itoa(i)), e)
		}
	default:
		*out = append(*out, Slot{Path: path, Value: Copy(v)})
	}
}

func joinPath(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + PathSep + seg
}

// SplitPath splits a slot path into its unescaped segments.
func SplitPath(path string) []string {
	parts := strings.Split(path, PathSep)
	for i, p := range parts {
		parts[i] = unescapeSegment(p)
	}
	return parts
}

type slotNode struct {
	value    Value
	children map[string]*slotNode
}

// Unflatten rebuilds a frame from slots produced by Flatten. Slots may
// arrive in any order; a slot whose parent container is missing is an error.
func Unflatten(slots []Slot) (*Frame, error) {
	ordered := slices.Clone(slots)
	slices.SortStableFunc(ordered, func(a, b Slot) int {
		return strings.Count(a.Path, PathSep) - strings.Count(b.Path, PathSep)
	})

	root := &slotNode{value: NewFrame(), children: map[string]*slotNode{}}
	for _, s := range ordered {
		if s.Path == "" || s.Value == nil {
			return nil, fmt.Errorf("kvp: invalid slot %q", s.Path)
		}
		segs := strings.Split(s.Path, PathSep)
		parent := root
		for _, seg := range segs[:len(segs)-1] {
			child, ok := parent.children[seg]
			if !ok {
				return nil, fmt.Errorf("kvp: slot %q has no parent container", s.Path)
			}
			parent = child
		}
		leaf := segs[len(segs)-1]
		switch parent.value.(type) {
		case List:
			if _, err := strconv.Atoi(leaf); err != nil {
				return nil, fmt.Errorf("kvp: slot %q: list index %q", s.Path, leaf)
			}
		case *Frame:
		default:
			return nil, fmt.Errorf("kvp: slot %q: parent is a %s", s.Path, parent.value.Type())
		}
		node := &slotNode{value: s.Value}
		switch s.Value.(type) {
		case *Frame, List:
			node.children = map[string]*slotNode{}
		}
		parent.children[leaf] = node
	}

	f, _ := AsFrame(root.build())
	return f, nil
}

func (n *slotNode) build() Value {
	switch n.value.(type) {
	case *Frame:
		f := NewFrame()
		for seg, child := range n.children {
			f.Set(unescapeSegment(seg), child.build())
		}
		return f
	case List:
		idx := make([]int, 0, len(n.children))
		byIdx := make(map[int]*slotNode, len(n.children))
		for seg, child := range n.children {
			i, _ := strconv.Atoi(seg)
			idx = append(idx, i)
			byIdx[i] = child
		}
		slices.Sort(idx)
		out := make(List, 0, len(idx))
		for _, i := range idx {
			out = append(out, byIdx[i].build())
		}
		return out
	default:
		return Copy(n.value)
	}
}
