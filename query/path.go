package query

import (
	"strconv"
	"strings"
)

// Path is a dotted field path split into its segments.
type Path struct {
	raw      string
	segments []string
}

// ParsePath splits a dotted path such as "user.address.city" on '.'.
// Every segment is kept verbatim, including empty ones.
func ParsePath(path string) Path {
	return Path{raw: path, segments: strings.Split(path, ".")}
}

func (p Path) String() string { return p.raw }

// Segments returns a copy of the path segments.
func (p Path) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

// Resolve walks the path from root. See the package-level Resolve.
func (p Path) Resolve(root Value) (Value, bool) {
	cur := root
	for _, seg := range p.segments {
		next, ok := step(cur, seg)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// Resolve looks up a dotted path in root.
//
// Each segment is matched against the current value: an object looks the
// segment up as a key, an array accepts a segment that parses as a
// non-negative decimal integer within bounds. Any other combination is
// "not found" and resolution stops at the first missing segment.
//
// Arrays are never traversed implicitly: "items.price" does not match the
// price of any element of items, only "items.0.price" addresses one.
func Resolve(root Value, path string) (Value, bool) {
	return ParsePath(path).Resolve(root)
}

func step(cur Value, seg string) (Value, bool) {
	switch cur.kind {
	case KindObject:
		return cur.Get(seg)
	case KindArray:
		idx, err := strconv.ParseUint(seg, 10, 0)
		if err != nil || idx >= uint64(len(cur.arr)) {
			return Value{}, false
		}
		return cur.arr[idx], true
	default:
		return Value{}, false
	}
}
