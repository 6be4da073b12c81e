package kvp

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/numeric"
)

// Tagged-tree keys.
const (
	tagType  = "type"
	tagValue = "value"
)

// Encode converts a frame into a tree of maps, slices and strings suitable
// for YAML, JSON or protobuf Struct transport. Each value becomes
// {"type": <name>, "value": <payload>}. Scalars are carried as strings so
// int64 precision survives transports that only know float64.
func Encode(f *Frame) map[string]any {
	out := make(map[string]any, f.Len())
	f.ForEach(func(key string, v Value) {
		out[key] = EncodeValue(v)
	})
	return out
}

// EncodeValue converts one value into its tagged form.
func EncodeValue(v Value) map[string]any {
	var payload any
	switch x := v.(type) {
	case Int64:
		payload = strconv.FormatInt(int64(x), 10)
	case Double:
		payload = strconv.FormatFloat(float64(x), 'g', -1, 64)
	case Numeric:
		payload = numeric.Numeric(x).String()
	case String:
		payload = string(x)
	case GUID:
		payload = guid.GUID(x).String()
	case Timestamp:
		payload = time.Time(x).UTC().Format(time.RFC3339Nano)
	case Binary:
		payload = base64.StdEncoding.EncodeToString(x)
	case List:
		elems := make([]any, len(x))
		for i, e := range x {
			elems[i] = EncodeValue(e)
		}
		payload = elems
	case *Frame:
		payload = Encode(x)
	}
	return map[string]any{tagType: v.Type().String(), tagValue: payload}
}

// Decode rebuilds a frame from the tagged tree produced by Encode.
func Decode(tree map[string]any) (*Frame, error) {
	f := NewFrame()
	for key, raw := range tree {
		v, err := DecodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("kvp: decode %q: %w", key, err)
		}
		f.Set(key, v)
	}
	return f, nil
}

// DecodeValue rebuilds one value from its tagged form.
func DecodeValue(raw any) (Value, error) {
	node, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected tagged map, got %T", raw)
	}
	name, _ := node[tagType].(string)
	typ, ok := ParseType(name)
	if !ok {
		return nil, fmt.Errorf("unknown value type %q", name)
	}
	payload := node[tagValue]

	switch typ {
	case TypeList:
		elems, ok := payload.([]any)
		if !ok && payload != nil {
			return nil, fmt.Errorf("list payload is %T", payload)
		}
		out := make(List, 0, len(elems))
		for i, e := range elems {
			v, err := DecodeValue(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, v)
		}
		return out, nil
	case TypeFrame:
		children, ok := payload.(map[string]any)
		if !ok && payload != nil {
			return nil, fmt.Errorf("frame payload is %T", payload)
		}
		return Decode(children)
	}

	s, ok := payload.(string)
	if !ok {
		return nil, fmt.Errorf("%s payload is %T, want string", typ, payload)
	}
	return ParseScalar(typ, s)
}

// ParseScalar decodes the string form of a scalar variant.
func ParseScalar(typ Type, s string) (Value, error) {
	switch typ {
	case TypeInt64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return Int64(n), nil
	case TypeDouble:
		d, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return Double(d), nil
	case TypeNumeric:
		n, err := numeric.Parse(s)
		if err != nil {
			return nil, err
		}
		return Numeric(n), nil
	case TypeString:
		return String(s), nil
	case TypeGUID:
		g, ok := guid.Parse(s)
		if !ok {
			return nil, fmt.Errorf("malformed guid %q", s)
		}
		return GUID(g), nil
	case TypeTimestamp:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, err
		}
		return Timestamp(t), nil
	case TypeBinary:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, err
		}
		return Binary(b), nil
	}
	return nil, fmt.Errorf("%s is not a scalar type", typ)
}
