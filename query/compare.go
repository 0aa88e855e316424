package query

import (
	"cmp"
	"strings"
)

// Compare orders two values of the same scalar kind and returns -1, 0 or 1.
// Numbers compare numerically (NaN first), strings byte-wise and booleans
// with false < true. ok is false when the kinds differ or are not ordered
// (null, array, object).
func Compare(a, b Value) (c int, ok bool) {
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case KindNumber:
		return compareNumbers(a.n, b.n), true
	case KindString:
		return strings.Compare(a.s, b.s), true
	case KindBool:
		return compareBools(a.b, b.b), true
	default:
		return 0, false
	}
}

func compareNumbers(a, b float64) int {
	return cmp.Compare(a, b)
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
