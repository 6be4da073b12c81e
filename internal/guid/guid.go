// Package guid provides the 128-bit globally unique identifiers used as the
// primary key of every entity.
//
// A GUID is a fixed 16-byte value. Its canonical text form is 32 lowercase
// hex characters without separators. The all-zero value is the null
// identifier and never names a live entity.
package guid

import (
	"bytes"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"strings"
)

// Size is the width of a GUID in bytes.
const Size = 16

// EncodingLength is the length of the canonical hex encoding.
const EncodingLength = 2 * Size

// GUID is a 128-bit identifier. Equality and ordering are byte-wise.
type GUID [Size]byte

// Null is the distinguished "no entity" identifier.
var Null GUID

// New returns a fresh identifier from the default generator.
// The result is never Null.
func New() GUID {
	return Default().New()
}

// IsNull reports whether g is the null identifier.
func (g GUID) IsNull() bool {
	return g == Null
}

// String returns the 32-character lowercase hex encoding.
func (g GUID) String() string {
	return hex.EncodeToString(g[:])
}

// Bytes returns a copy of the raw identifier bytes.
func (g GUID) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, g[:])
	return b
}

// Compare orders two identifiers byte-wise, returning -1, 0 or +1.
func Compare(a, b GUID) int {
	return bytes.Compare(a[:], b[:])
}

// Parse decodes the hex encoding produced by String. The hyphenated RFC 4122
// layout and upper-case digits are accepted as well. Malformed input returns
// false and the null identifier.
func Parse(s string) (GUID, bool) {
	var g GUID
	if len(s) == 36 {
		if s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
			return Null, false
		}
		s = strings.ReplaceAll(s, "-", "")
	}
	if len(s) != EncodingLength {
		return Null, false
	}
	if _, err := hex.Decode(g[:], []byte(s)); err != nil {
		return Null, false
	}
	return g, true
}

// MustParse is like Parse but panics on malformed input. Intended for
// tests and constant tables.
func MustParse(s string) GUID {
	g, ok := Parse(s)
	if !ok {
		panic(fmt.Sprintf("guid: malformed identifier %q", s))
	}
	return g
}

// FromBytes builds a GUID from a 16-byte slice.
func FromBytes(b []byte) (GUID, bool) {
	var g GUID
	if len(b) != Size {
		return Null, false
	}
	copy(g[:], b)
	return g, true
}

// MarshalText implements encoding.TextMarshaler.
func (g GUID) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *GUID) UnmarshalText(text []byte) error {
	parsed, ok := Parse(string(text))
	if !ok {
		return fmt.Errorf("guid: malformed identifier %q", string(text))
	}
	*g = parsed
	return nil
}

// Value implements driver.Valuer. GUIDs are stored in their hex form;
// the null identifier is stored as SQL NULL.
func (g GUID) Value() (driver.Value, error) {
	if g.IsNull() {
		return nil, nil
	}
	return g.String(), nil
}

// Scan implements sql.Scanner.
func (g *GUID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*g = Null
		return nil
	case string:
		return g.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == Size {
			copy(g[:], v)
			return nil
		}
		return g.UnmarshalText(v)
	default:
		return fmt.Errorf("guid: cannot scan %T", src)
	}
}
