package sqlmap

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/numeric"
	"github.com/roach88/qofcore/internal/qof"
)

// ColType is the logical type of a column.
type ColType int

const (
	ColGUID ColType = iota + 1
	ColString
	ColInt
	ColUint
	ColNumeric
	ColTimestamp
	ColRef

	// ColDouble and ColBinary appear only in the slot table.
	ColDouble
	ColBinary
)

// Flag is a column constraint bit.
type Flag uint

const (
	NotNull Flag = 1 << iota
	PrimaryKey
	AutoIncrement
)

// Binding moves one column's value between an entity and its wire form.
// Wire values are one per SQL column: string, int64, float64, []byte or nil.
type Binding interface {
	Get(e qof.Entity) []any
	Set(book *qof.Book, e qof.Entity, raw []any) error
}

// Column describes one mapped field of an entity type.
type Column struct {
	Name    string
	Type    ColType
	Size    int
	Flags   Flag
	RefType string

	bind Binding
}

// Has reports whether all bits of f are set.
func (c Column) Has(f Flag) bool {
	return c.Flags&f == f
}

// SQLNames returns the SQL column names backing c. Numeric columns use two.
func (c Column) SQLNames() []string {
	if c.Type == ColNumeric {
		return []string{c.Name + "_num", c.Name + "_denom"}
	}
	return []string{c.Name}
}

// Values returns the wire values of c for e.
func (c Column) Values(e qof.Entity) []any {
	if c.bind == nil {
		panic(fmt.Sprintf("sqlmap: column %q has no binding", c.Name))
	}
	return c.bind.Get(e)
}

// Apply converts raw wire values and stores them into e.
func (c Column) Apply(book *qof.Book, e qof.Entity, raw []any) error {
	if c.bind == nil {
		panic(fmt.Sprintf("sqlmap: column %q has no binding", c.Name))
	}
	return c.bind.Set(book, e, raw)
}

// typed is the generic Binding behind every column constructor.
type typed[E qof.Entity] struct {
	name string
	get  func(E) []any
	set  func(*qof.Book, E, []any) error
}

func (b typed[E]) cast(e qof.Entity) E {
	x, ok := e.(E)
	if !ok {
		var want E
		panic(fmt.Sprintf("sqlmap: column %q bound to %T, applied to %T", b.name, want, e))
	}
	return x
}

func (b typed[E]) Get(e qof.Entity) []any {
	return b.get(b.cast(e))
}

func (b typed[E]) Set(book *qof.Book, e qof.Entity, raw []any) error {
	return b.set(book, b.cast(e), raw)
}

func wireErr(col string, err error) error {
	return fmt.Errorf("column %s: %w", col, err)
}

// GUIDCol maps a GUID field. The Null GUID is stored as NULL.
func GUIDCol[E qof.Entity](name string, flags Flag, get func(E) guid.GUID, set func(E, guid.GUID)) Column {
	return Column{Name: name, Type: ColGUID, Size: guid.EncodingLength, Flags: flags, bind: typed[E]{
		name: name,
		get: func(e E) []any {
			return []any{guidWire(get(e))}
		},
		set: func(_ *qof.Book, e E, raw []any) error {
			g, err := ToGUID(raw[0])
			if err != nil {
				return wireErr(name, err)
			}
			set(e, g)
			return nil
		},
	}}
}

// StringCol maps a string field. size 0 means unbounded.
func StringCol[E qof.Entity](name string, size int, flags Flag, get func(E) string, set func(E, string)) Column {
	return Column{Name: name, Type: ColString, Size: size, Flags: flags, bind: typed[E]{
		name: name,
		get: func(e E) []any {
			return []any{get(e)}
		},
		set: func(_ *qof.Book, e E, raw []any) error {
			set(e, ToString(raw[0]))
			return nil
		},
	}}
}

// IntCol maps an int64 field.
func IntCol[E qof.Entity](name string, flags Flag, get func(E) int64, set func(E, int64)) Column {
	return Column{Name: name, Type: ColInt, Flags: flags, bind: typed[E]{
		name: name,
		get: func(e E) []any {
			return []any{get(e)}
		},
		set: func(_ *qof.Book, e E, raw []any) error {
			n, err := ToInt64(raw[0])
			if err != nil {
				return wireErr(name, err)
			}
			set(e, n)
			return nil
		},
	}}
}

// UintCol maps a uint32 field.
func UintCol[E qof.Entity](name string, flags Flag, get func(E) uint32, set func(E, uint32)) Column {
	return Column{Name: name, Type: ColUint, Flags: flags, bind: typed[E]{
		name: name,
		get: func(e E) []any {
			return []any{int64(get(e))}
		},
		set: func(_ *qof.Book, e E, raw []any) error {
			n, err := ToInt64(raw[0])
			if err != nil {
				return wireErr(name, err)
			}
			if n < 0 || n > int64(^uint32(0)) {
				return wireErr(name, fmt.Errorf("%d out of uint32 range", n))
			}
			set(e, uint32(n))
			return nil
		},
	}}
}

// NumericCol maps a rational field onto <name>_num and <name>_denom.
func NumericCol[E qof.Entity](name string, flags Flag, get func(E) numeric.Numeric, set func(E, numeric.Numeric)) Column {
	return Column{Name: name, Type: ColNumeric, Flags: flags, bind: typed[E]{
		name: name,
		get: func(e E) []any {
			n := get(e)
			return []any{n.Num, n.Denom}
		},
		set: func(_ *qof.Book, e E, raw []any) error {
			if raw[0] == nil && raw[1] == nil {
				set(e, numeric.Zero)
				return nil
			}
			num, err := ToInt64(raw[0])
			if err != nil {
				return wireErr(name, err)
			}
			denom, err := ToInt64(raw[1])
			if err != nil {
				return wireErr(name, err)
			}
			if denom == 0 {
				return wireErr(name, ErrZeroDenominator)
			}
			set(e, numeric.New(num, denom))
			return nil
		},
	}}
}

// TimestampCol maps a time field. The zero time is stored as NULL.
func TimestampCol[E qof.Entity](name string, flags Flag, get func(E) time.Time, set func(E, time.Time)) Column {
	return Column{Name: name, Type: ColTimestamp, Flags: flags, bind: typed[E]{
		name: name,
		get: func(e E) []any {
			return []any{timeWire(get(e))}
		},
		set: func(_ *qof.Book, e E, raw []any) error {
			t, err := ToTime(raw[0])
			if err != nil {
				return wireErr(name, err)
			}
			set(e, t)
			return nil
		},
	}}
}

// ErrZeroDenominator is returned by a numeric column whose stored
// denominator is 0.
var ErrZeroDenominator = errors.New("zero denominator")

// ErrUnresolvedRef is returned by a reference column whose target is not
// registered in the book.
var ErrUnresolvedRef = errors.New("referenced entity not found")

// RefCol maps a reference to another entity, stored as the target's GUID.
// Loading resolves the GUID in the book's refType collection.
func RefCol[E, R qof.Entity](name, refType string, flags Flag, get func(E) R, set func(E, R)) Column {
	return Column{Name: name, Type: ColRef, Size: guid.EncodingLength, Flags: flags, RefType: refType, bind: typed[E]{
		name: name,
		get: func(e E) []any {
			r := get(e)
			if isNilEntity(r) {
				return []any{nil}
			}
			return []any{guidWire(r.Inst().GUID())}
		},
		set: func(book *qof.Book, e E, raw []any) error {
			g, err := ToGUID(raw[0])
			if err != nil {
				return wireErr(name, err)
			}
			var zero R
			if g.IsNull() {
				set(e, zero)
				return nil
			}
			found, ok := book.Lookup(refType, g)
			if !ok {
				return wireErr(name, fmt.Errorf("%w: %s %s", ErrUnresolvedRef, refType, g))
			}
			r, ok := found.(R)
			if !ok {
				panic(fmt.Sprintf("sqlmap: column %q expects %T, registry holds %T", name, zero, found))
			}
			set(e, r)
			return nil
		},
	}}
}

func isNilEntity(e qof.Entity) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
