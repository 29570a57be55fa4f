package events

import (
	"time"

	"github.com/spf13/cast"
)

// Data is the open payload of an event. Accessors never panic and return the
// zero value when a field is missing or cannot be converted.
type Data map[string]any

// Has reports whether key is present.
func (d Data) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// String returns the field as a string.
func (d Data) String(key string) string {
	s, err := cast.ToStringE(d[key])
	if err != nil {
		return ""
	}
	return s
}

// StringOr returns the field as a string, or fallback when it is missing or empty.
func (d Data) StringOr(key, fallback string) string {
	if s := d.String(key); s != "" {
		return s
	}
	return fallback
}

// Int returns the field as an int.
func (d Data) Int(key string) int {
	i, err := cast.ToIntE(d[key])
	if err != nil {
		return 0
	}
	return i
}

// Float returns the field as a float64.
func (d Data) Float(key string) float64 {
	f, err := cast.ToFloat64E(d[key])
	if err != nil {
		return 0
	}
	return f
}

// Bool returns the field as a bool.
func (d Data) Bool(key string) bool {
	b, err := cast.ToBoolE(d[key])
	if err != nil {
		return false
	}
	return b
}

// Time returns the field as a time, accepting RFC3339 strings and unix seconds.
func (d Data) Time(key string) (time.Time, bool) {
	return parseTime(d[key])
}

// Map returns a nested object field.
func (d Data) Map(key string) Data {
	switch v := d[key].(type) {
	case nil, string:
		return nil
	case Data:
		return v
	}
	m, err := cast.ToStringMapE(d[key])
	if err != nil {
		return nil
	}
	return Data(m)
}

// epochMillisThreshold separates unix seconds from unix milliseconds.
const epochMillisThreshold = 1e12

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, !t.IsZero()
	case string:
		if t == "" {
			return time.Time{}, false
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, !parsed.IsZero()
		}
	case bool:
		return time.Time{}, false
	case float64, float32, int, int64, int32, uint, uint64, uint32:
		n, err := cast.ToInt64E(t)
		if err != nil || n <= 0 {
			return time.Time{}, false
		}
		if n > epochMillisThreshold {
			return time.UnixMilli(n), true
		}
		return time.Unix(n, 0), true
	}
	parsed, err := cast.ToTimeE(v)
	if err != nil || parsed.IsZero() {
		return time.Time{}, false
	}
	return parsed, true
}
