package logquery

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kartikbazzad/bunbase/bunlog/query"
)

// Order is the sort direction of a result list.
type Order int

const (
	OrderUnspecified Order = iota
	OrderAscending
	OrderDescending
)

func (o Order) String() string {
	switch o {
	case OrderAscending:
		return "asc"
	case OrderDescending:
		return "desc"
	default:
		return ""
	}
}

// ParseOrder accepts "asc", "ascending", "desc" and "descending" in any
// case. The empty string is OrderUnspecified.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return OrderUnspecified, nil
	case "asc", "ascending":
		return OrderAscending, nil
	case "desc", "descending":
		return OrderDescending, nil
	}
	return OrderUnspecified, fmt.Errorf("logquery: unknown order %q", s)
}

func (o Order) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Order) UnmarshalText(text []byte) error {
	v, err := ParseOrder(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

type sortKey struct {
	v     query.Value
	found bool
}

// sortRecords stably orders records on the value at path. Comparable
// values follow order; records whose key is missing come last, and values
// of different kinds are grouped by kind, both regardless of direction.
func sortRecords(records []query.Value, path query.Path, order Order) {
	keys := make([]sortKey, len(records))
	idx := make([]int, len(records))
	for i, r := range records {
		v, ok := path.Resolve(r)
		keys[i] = sortKey{v: v, found: ok}
		idx[i] = i
	}

	slices.SortStableFunc(idx, func(a, b int) int {
		return compareKeys(keys[a], keys[b], order)
	})

	sorted := make([]query.Value, len(records))
	for i, j := range idx {
		sorted[i] = records[j]
	}
	copy(records, sorted)
}

func compareKeys(a, b sortKey, order Order) int {
	switch {
	case !a.found && !b.found:
		return 0
	case !a.found:
		return 1
	case !b.found:
		return -1
	}
	if a.v.Kind() != b.v.Kind() {
		return int(a.v.Kind()) - int(b.v.Kind())
	}
	c, ok := query.Compare(a.v, b.v)
	if !ok {
		return 0
	}
	if order == OrderDescending {
		return -c
	}
	return c
}
