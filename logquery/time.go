package logquery

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/kartikbazzad/bunbase/bunlog/query"
)

// RecordTime extracts the timestamp of a record. Strings are parsed in any
// layout cast understands (RFC 3339 among them); numbers are Unix
// milliseconds.
func RecordTime(record query.Value) (time.Time, bool) {
	v, ok := record.Get(TimestampKey)
	if !ok {
		return time.Time{}, false
	}
	switch v.Kind() {
	case query.KindString:
		s, _ := v.AsString()
		t, err := cast.ToTimeE(s)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case query.KindNumber:
		n, _ := v.AsNumber()
		return time.UnixMilli(int64(n)), true
	}
	return time.Time{}, false
}

// ParseTime reads a time bound. It accepts absolute times such as
// "2024-05-01T10:00:00Z" or "2024-05-01", and durations such as "90m" or
// "24h", which are taken relative to now, in the past. The empty string
// is the zero time.
func ParseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := cast.ToTimeE(s); err == nil {
		return t, nil
	}
	d, err := cast.ToDurationE(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("logquery: cannot parse time %q", s)
	}
	return now.Add(-d.Abs()), nil
}
