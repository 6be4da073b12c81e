package kvp

import (
	"bytes"
	"cmp"
	"strings"
	"time"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/numeric"
)

// Type tags a Value variant. The numeric order of the tags is the first key
// of the total order used by Compare.
type Type int

const (
	TypeInvalid Type = iota
	TypeInt64
	TypeDouble
	TypeNumeric
	TypeString
	TypeGUID
	TypeTimestamp
	TypeBinary
	TypeList
	TypeFrame
)

var typeNames = map[Type]string{
	TypeInt64:     "int64",
	TypeDouble:    "double",
	TypeNumeric:   "numeric",
	TypeString:    "string",
	TypeGUID:      "guid",
	TypeTimestamp: "timestamp",
	TypeBinary:    "binary",
	TypeList:      "list",
	TypeFrame:     "frame",
}

// String returns the stable name used in encoded forms.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "invalid"
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, bool) {
	for t, name := range typeNames {
		if name == s {
			return t, true
		}
	}
	return TypeInvalid, false
}

// Value is a sealed interface over the metadata variants.
type Value interface {
	Type() Type
	kvpValue()
}

// Int64 is a signed integer value.
type Int64 int64

// Double is a floating point value.
type Double float64

// Numeric is an exact rational value.
type Numeric numeric.Numeric

// String is a text value.
type String string

// GUID is an identifier value.
type GUID guid.GUID

// Timestamp is a point in time.
type Timestamp time.Time

// Binary is an opaque byte blob.
type Binary []byte

// List is an ordered list of values.
type List []Value

func (Int64) Type() Type     { return TypeInt64 }
func (Double) Type() Type    { return TypeDouble }
func (Numeric) Type() Type   { return TypeNumeric }
func (String) Type() Type    { return TypeString }
func (GUID) Type() Type      { return TypeGUID }
func (Timestamp) Type() Type { return TypeTimestamp }
func (Binary) Type() Type    { return TypeBinary }
func (List) Type() Type      { return TypeList }

func (Int64) kvpValue()     {}
func (Double) kvpValue()    {}
func (Numeric) kvpValue()   {}
func (String) kvpValue()    {}
func (GUID) kvpValue()      {}
func (Timestamp) kvpValue() {}
func (Binary) kvpValue()    {}
func (List) kvpValue()      {}

// NewInt64 creates an Int64 value.
func NewInt64(n int64) Value { return Int64(n) }

// NewDouble creates a Double value.
func NewDouble(f float64) Value { return Double(f) }

// NewNumeric creates a Numeric value.
func NewNumeric(n numeric.Numeric) Value { return Numeric(n) }

// NewString creates a String value.
func NewString(s string) Value { return String(s) }

// NewGUID creates a GUID value.
func NewGUID(g guid.GUID) Value { return GUID(g) }

// NewTimestamp creates a Timestamp value.
func NewTimestamp(t time.Time) Value { return Timestamp(t) }

// NewBinary creates a Binary value holding a copy of b.
func NewBinary(b []byte) Value {
	return Binary(bytes.Clone(b))
}

// NewList creates a List holding deep copies of vals.
func NewList(vals ...Value) Value {
	out := make(List, len(vals))
	for i, v := range vals {
		out[i] = Copy(v)
	}
	return out
}

// NewFrameValue wraps a deep copy of f as a Value.
func NewFrameValue(f *Frame) Value {
	return f.Copy()
}

// AsInt64 returns the payload of an Int64 value.
func AsInt64(v Value) (int64, bool) {
	x, ok := v.(Int64)
	return int64(x), ok
}

// AsDouble returns the payload of a Double value.
func AsDouble(v Value) (float64, bool) {
	x, ok := v.(Double)
	return float64(x), ok
}

// AsNumeric returns the payload of a Numeric value.
func AsNumeric(v Value) (numeric.Numeric, bool) {
	x, ok := v.(Numeric)
	return numeric.Numeric(x), ok
}

// AsString returns the payload of a String value.
func AsString(v Value) (string, bool) {
	x, ok := v.(String)
	return string(x), ok
}

// AsGUID returns the payload of a GUID value.
func AsGUID(v Value) (guid.GUID, bool) {
	x, ok := v.(GUID)
	return guid.GUID(x), ok
}

// AsTimestamp returns the payload of a Timestamp value.
func AsTimestamp(v Value) (time.Time, bool) {
	x, ok := v.(Timestamp)
	return time.Time(x), ok
}

// AsBinary returns the payload of a Binary value. The slice is shared with
// the value; callers must not modify it.
func AsBinary(v Value) ([]byte, bool) {
	x, ok := v.(Binary)
	return []byte(x), ok
}

// AsList returns the elements of a List value.
func AsList(v Value) (List, bool) {
	x, ok := v.(List)
	return x, ok
}

// AsFrame returns the frame held by a frame value.
func AsFrame(v Value) (*Frame, bool) {
	x, ok := v.(*Frame)
	return x, ok && x != nil
}

// Copy returns a deep copy of v. Copy(nil) is nil.
func Copy(v Value) Value {
	switch x := v.(type) {
	case nil:
		return nil
	case Binary:
		return Binary(bytes.Clone(x))
	case List:
		out := make(List, len(x))
		for i, e := range x {
			out[i] = Copy(e)
		}
		return out
	case *Frame:
		return x.Copy()
	default:
		return v
	}
}

// release drops the resources held by v. Only frames and lists hold
// anything worth releasing.
func release(v Value) {
	releaseExcept(v, nil)
}

// releaseExcept releases v but leaves keep, and everything below it,
// untouched when keep is a container nested inside v.
func releaseExcept(v, keep Value) {
	if keep != nil && sameContainer(v, keep) {
		return
	}
	switch x := v.(type) {
	case *Frame:
		if x == nil || x.slots == nil {
			return
		}
		slots := x.slots
		x.slots = nil
		for _, e := range slots {
			releaseExcept(e, keep)
		}
	case List:
		for i, e := range x {
			releaseExcept(e, keep)
			x[i] = nil
		}
	}
}

// Compare gives a total order over values: nil sorts first, then values are
// ordered by variant tag, then by payload.
func Compare(a, b Value) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if c := cmp.Compare(a.Type(), b.Type()); c != 0 {
		return c
	}

	switch x := a.(type) {
	case Int64:
		return cmp.Compare(x, b.(Int64))
	case Double:
		return cmp.Compare(x, b.(Double))
	case Numeric:
		return numeric.Compare(numeric.Numeric(x), numeric.Numeric(b.(Numeric)))
	case String:
		return strings.Compare(string(x), string(b.(String)))
	case GUID:
		return guid.Compare(guid.GUID(x), guid.GUID(b.(GUID)))
	case Timestamp:
		return time.Time(x).Compare(time.Time(b.(Timestamp)))
	case Binary:
		return bytes.Compare(x, b.(Binary))
	case List:
		return compareLists(x, b.(List))
	case *Frame:
		return CompareFrames(x, b.(*Frame))
	}
	return 0
}

func compareLists(a, b List) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}
