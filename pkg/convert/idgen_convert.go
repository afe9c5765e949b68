// Package convert holds lenient conversion helpers used by request parsing
// and the console.
package convert

import (
	"time"

	"github.com/spf13/cast"
)

// TryConvert converts v to the type of def and returns def when v is nil or
// cannot be converted.
func TryConvert[T any](v any, def T) T {
	if v == nil {
		return def
	}
	if matched, ok := v.(T); ok {
		return matched
	}

	var (
		out any
		err error
	)
	switch any(def).(type) {
	case string:
		out, err = cast.ToStringE(v)
	case bool:
		out, err = cast.ToBoolE(v)
	case int:
		out, err = cast.ToIntE(v)
	case int32:
		out, err = cast.ToInt32E(v)
	case int64:
		out, err = cast.ToInt64E(v)
	case uint8:
		out, err = cast.ToUint8E(v)
	case uint64:
		out, err = cast.ToUint64E(v)
	case float64:
		out, err = cast.ToFloat64E(v)
	case time.Duration:
		out, err = cast.ToDurationE(v)
	case time.Time:
		out, err = cast.ToTimeE(v)
	case []string:
		out, err = cast.ToStringSliceE(v)
	default:
		return def
	}
	if err != nil {
		return def
	}
	return out.(T)
}

// ToUnixTime returns t as Unix seconds, or milliseconds when millis is set.
// Times before 1970 come back negative.
func ToUnixTime(t time.Time, millis bool) int64 {
	if millis {
		return t.UnixMilli()
	}
	return t.Unix()
}

// FromUnixMillis returns the UTC time for a Unix millisecond timestamp.
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
