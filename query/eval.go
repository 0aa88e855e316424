package query

// Evaluate reports whether root satisfies n. A nil node matches everything.
//
// Evaluate is pure and safe for concurrent use; And and Or stop at the
// first child that decides the result.
func Evaluate(n Node, root Value) bool {
	switch e := n.(type) {
	case nil:
		return true
	case *FieldNode:
		v, found := e.compiled().Resolve(root)
		return e.Op.Apply(v, found)
	case *AndNode:
		if len(e.Children) == 0 {
			return true
		}
		for _, c := range e.Children {
			if !Evaluate(c, root) {
				return false
			}
		}
		return true
	case *OrNode:
		if len(e.Children) == 0 {
			return false
		}
		for _, c := range e.Children {
			if Evaluate(c, root) {
				return true
			}
		}
		return false
	case *NotNode:
		return !Evaluate(e.Child, root)
	default:
		return false
	}
}

// Filter returns the values that satisfy n, in their original order.
func Filter(n Node, values []Value) []Value {
	out := make([]Value, 0, len(values))
	for _, v := range values {
		if Evaluate(n, v) {
			out = append(out, v)
		}
	}
	return out
}
