package logquery

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kartikbazzad/bunbase/bunlog/query"
)

// Spec is the serialized form of a LogQuery, as sent to the query
// endpoint or stored in a file:
//
//	{"filter": {"level": {"$in": ["error", "warn"]}},
//	 "order": "desc", "limit": 20, "from": "1h"}
type Spec struct {
	Filter  query.Value `json:"filter" yaml:"filter"`
	Order   string      `json:"order,omitempty" yaml:"order,omitempty"`
	OrderBy string      `json:"order_by,omitempty" yaml:"order_by,omitempty"`
	Limit   int         `json:"limit,omitempty" yaml:"limit,omitempty"`
	Start   int         `json:"start,omitempty" yaml:"start,omitempty"`
	From    string      `json:"from,omitempty" yaml:"from,omitempty"`
	Until   string      `json:"until,omitempty" yaml:"until,omitempty"`
	Levels  []string    `json:"levels,omitempty" yaml:"levels,omitempty"`
	Search  string      `json:"search,omitempty" yaml:"search,omitempty"`
	Fields  []string    `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Build validates s and turns it into a LogQuery. A null or absent filter
// matches everything. Relative times are resolved against time.Now.
func (s Spec) Build() (*LogQuery, error) {
	return s.BuildAt(time.Now())
}

// BuildAt is Build with an explicit clock for relative times.
func (s Spec) BuildAt(now time.Time) (*LogQuery, error) {
	return s.BuildWith(now, query.Decode)
}

// BuildWith is BuildAt with the filter decoded by decode, e.g. through a
// cache of decoded documents.
func (s Spec) BuildWith(now time.Time, decode func(query.Value) (query.Node, error)) (*LogQuery, error) {
	q := New()

	if !s.Filter.IsNull() {
		n, err := decode(s.Filter)
		if err != nil {
			return nil, err
		}
		q.Filter = n
	}

	order, err := ParseOrder(s.Order)
	if err != nil {
		return nil, err
	}
	q.Order = order
	if s.OrderBy != "" {
		q.OrderBy = s.OrderBy
	}

	if s.Limit < 0 || s.Start < 0 {
		return nil, fmt.Errorf("logquery: limit and start must not be negative")
	}
	q.Limit = s.Limit
	q.Start = s.Start

	if q.From, err = ParseTime(s.From, now); err != nil {
		return nil, err
	}
	if q.Until, err = ParseTime(s.Until, now); err != nil {
		return nil, err
	}
	if !q.From.IsZero() && !q.Until.IsZero() && q.Until.Before(q.From) {
		return nil, fmt.Errorf("logquery: until %s is before from %s", q.Until.Format(time.RFC3339), q.From.Format(time.RFC3339))
	}

	if s.Search != "" {
		re, err := regexp.Compile(s.Search)
		if err != nil {
			return nil, fmt.Errorf("logquery: search: %w", err)
		}
		q.Search = re
	}
	if len(s.Levels) > 0 {
		q.WithLevels(s.Levels...)
	}
	if len(s.Fields) > 0 {
		q.WithFields(s.Fields...)
	}
	return q, nil
}

// ToSpec renders q back into its serialized form. Time bounds are written
// as RFC 3339 timestamps.
func (q *LogQuery) ToSpec() (Spec, error) {
	s := Spec{
		Order:  q.Order.String(),
		Limit:  q.Limit,
		Start:  q.Start,
		Levels: q.Levels,
		Fields: q.Fields,
	}
	if q.OrderBy != DefaultOrderBy {
		s.OrderBy = q.OrderBy
	}
	if q.Filter != nil {
		doc, err := query.Encode(q.Filter)
		if err != nil {
			return Spec{}, err
		}
		s.Filter = doc
	}
	if !q.From.IsZero() {
		s.From = q.From.Format(time.RFC3339Nano)
	}
	if !q.Until.IsZero() {
		s.Until = q.Until.Format(time.RFC3339Nano)
	}
	if q.Search != nil {
		s.Search = q.Search.String()
	}
	return s, nil
}
