// Package logquery selects, orders and pages structured log records.
//
// A LogQuery combines a query.Node predicate with the conventional log
// filters (level allow-list, time window, message search) and the
// ordering, offset and limit applied to the result list. Records are
// query.Values, normally objects with "level", "message" and "timestamp"
// keys as produced by transport.Entry.
package logquery

import (
	"regexp"
	"strings"
	"time"

	"github.com/kartikbazzad/bunbase/bunlog/query"
)

// Well-known record keys.
const (
	LevelKey     = "level"
	MessageKey   = "message"
	TimestampKey = "timestamp"
)

// DefaultOrderBy is the sort key used when OrderBy is empty.
const DefaultOrderBy = TimestampKey

// LogQuery describes which records to return and in what order.
// The zero value matches every record and keeps input order.
type LogQuery struct {
	// Filter is the record predicate; nil matches all records.
	Filter query.Node

	Order   Order
	OrderBy string // dotted path, DefaultOrderBy when empty

	Start int // records skipped after sorting
	Limit int // 0 = no limit

	// From and Until bound the record timestamp, inclusive. Zero values
	// leave that side open.
	From  time.Time
	Until time.Time

	Levels []string
	Search *regexp.Regexp
	Fields []string
}

// New returns a query that matches everything.
func New() *LogQuery {
	return &LogQuery{OrderBy: DefaultOrderBy}
}

// Recent returns the query a log viewer starts from: the last day up to
// now, newest first, at most 50 records.
func Recent(now time.Time) *LogQuery {
	return &LogQuery{
		Order:   OrderDescending,
		OrderBy: DefaultOrderBy,
		Limit:   50,
		From:    now.Add(-24 * time.Hour),
		Until:   now,
	}
}

func (q *LogQuery) WithFilter(n query.Node) *LogQuery {
	q.Filter = n
	return q
}

// SortBy orders results on the dotted path.
func (q *LogQuery) SortBy(path string, order Order) *LogQuery {
	q.OrderBy = path
	q.Order = order
	return q
}

func (q *LogQuery) WithLimit(n int) *LogQuery {
	q.Limit = n
	return q
}

func (q *LogQuery) WithStart(n int) *LogQuery {
	q.Start = n
	return q
}

// Since keeps records at or after t.
func (q *LogQuery) Since(t time.Time) *LogQuery {
	q.From = t
	return q
}

// Between keeps records with from <= timestamp <= until.
func (q *LogQuery) Between(from, until time.Time) *LogQuery {
	q.From = from
	q.Until = until
	return q
}

// WithLevels keeps records whose level is one of levels, ignoring case.
func (q *LogQuery) WithLevels(levels ...string) *LogQuery {
	q.Levels = append([]string(nil), levels...)
	return q
}

// WithSearch keeps records whose message matches re.
func (q *LogQuery) WithSearch(re *regexp.Regexp) *LogQuery {
	q.Search = re
	return q
}

// WithFields projects results onto the given dotted paths.
func (q *LogQuery) WithFields(fields ...string) *LogQuery {
	q.Fields = append([]string(nil), fields...)
	return q
}

func (q *LogQuery) orderBy() string {
	if q.OrderBy == "" {
		return DefaultOrderBy
	}
	return q.OrderBy
}

// Matches reports whether record passes every filter of q.
func (q *LogQuery) Matches(record query.Value) bool {
	if q == nil {
		return true
	}
	if len(q.Levels) > 0 && !q.levelAllowed(record) {
		return false
	}
	if !q.From.IsZero() || !q.Until.IsZero() {
		ts, ok := RecordTime(record)
		if !ok {
			return false
		}
		if !q.From.IsZero() && ts.Before(q.From) {
			return false
		}
		if !q.Until.IsZero() && ts.After(q.Until) {
			return false
		}
	}
	if q.Search != nil {
		msg, _ := record.Get(MessageKey)
		s, ok := msg.AsString()
		if !ok || !q.Search.MatchString(s) {
			return false
		}
	}
	return query.Evaluate(q.Filter, record)
}

func (q *LogQuery) levelAllowed(record query.Value) bool {
	v, _ := record.Get(LevelKey)
	level, ok := v.AsString()
	if !ok {
		return false
	}
	for _, l := range q.Levels {
		if strings.EqualFold(l, level) {
			return true
		}
	}
	return false
}

// Apply filters records, sorts the survivors when an order is set, skips
// Start records, truncates to Limit and projects onto Fields. The input
// slice and its records are left untouched.
func (q *LogQuery) Apply(records []query.Value) []query.Value {
	if q == nil {
		return append([]query.Value(nil), records...)
	}

	out := make([]query.Value, 0, len(records))
	for _, r := range records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}

	if q.Order != OrderUnspecified {
		sortRecords(out, query.ParsePath(q.orderBy()), q.Order)
	}

	if q.Start > 0 {
		if q.Start >= len(out) {
			out = out[:0]
		} else {
			out = out[q.Start:]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	if len(q.Fields) > 0 {
		for i, r := range out {
			out[i] = q.Project(r)
		}
	}
	return out
}

// Project returns an object holding only the configured fields, keyed by
// their dotted path. Fields missing from record are left out. Without
// Fields the record is returned as is.
func (q *LogQuery) Project(record query.Value) query.Value {
	if q == nil || len(q.Fields) == 0 {
		return record
	}
	members := make([]query.Member, 0, len(q.Fields))
	for _, f := range q.Fields {
		if v, ok := query.Resolve(record, f); ok {
			members = append(members, query.Member{Key: f, Value: v})
		}
	}
	return query.Object(members...)
}
