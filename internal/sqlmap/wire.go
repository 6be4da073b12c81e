package sqlmap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/qofcore/internal/guid"
)

// TimeLayout is the textual timestamp form written to the database. It
// sorts lexically in time order and is accepted by PostgreSQL timestamp
// columns.
const TimeLayout = "2006-01-02 15:04:05.000000"

const parseLayout = "2006-01-02 15:04:05.999999999"

func guidWire(g guid.GUID) any {
	if g.IsNull() {
		return nil
	}
	return g.String()
}

func timeWire(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(TimeLayout)
}

// ToString converts a scanned value to a string. NULL is "".
func ToString(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.UTC().Format(TimeLayout)
	}
	return fmt.Sprint(raw)
}

// ToInt64 converts a scanned value to an int64. NULL is 0.
func ToInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string, []byte:
		return strconv.ParseInt(strings.TrimSpace(ToString(v)), 10, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to int64", raw)
}

// ToFloat64 converts a scanned value to a float64. NULL is 0.
func ToFloat64(raw any) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string, []byte:
		return strconv.ParseFloat(strings.TrimSpace(ToString(v)), 64)
	}
	return 0, fmt.Errorf("cannot convert %T to float64", raw)
}

// ToTime converts a scanned value to a UTC time. NULL is the zero time.
func ToTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v.UTC(), nil
	case string, []byte:
		s := strings.TrimSpace(ToString(v))
		if s == "" {
			return time.Time{}, nil
		}
		if t, err := time.Parse(parseLayout, s); err == nil {
			return t.UTC(), nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to time", raw)
}

// ToGUID converts a scanned value to a GUID. NULL is guid.Null.
func ToGUID(raw any) (guid.GUID, error) {
	switch v := raw.(type) {
	case nil:
		return guid.Null, nil
	case guid.GUID:
		return v, nil
	case string, []byte:
		s := ToString(v)
		if s == "" {
			return guid.Null, nil
		}
		if b, ok := v.([]byte); ok && len(b) == guid.Size {
			if g, ok := guid.FromBytes(b); ok {
				return g, nil
			}
		}
		g, ok := guid.Parse(s)
		if !ok {
			return guid.Null, fmt.Errorf("malformed guid %q", s)
		}
		return g, nil
	}
	return guid.Null, fmt.Errorf("cannot convert %T to guid", raw)
}

// ToBytes converts a scanned value to a byte slice. NULL is nil.
func ToBytes(raw any) []byte {
	switch v := raw.(type) {
	case nil:
		return nil
	case []byte:
		return append([]byte(nil), v...)
	case string:
		return []byte(v)
	}
	return nil
}
