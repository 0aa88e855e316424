package query

// Field builds a leaf predicate testing the value at the dotted path.
func Field(path string, op Operator) Node {
	return &FieldNode{Path: path, Op: op, path: ParsePath(path)}
}

// And builds a conjunction. And() with no children matches everything.
func And(children ...Node) Node {
	return &AndNode{Children: cloneNodes(children)}
}

// Or builds a disjunction. Or() with no children matches nothing.
func Or(children ...Node) Node {
	return &OrNode{Children: cloneNodes(children)}
}

// Not builds a negation.
func Not(child Node) Node {
	return &NotNode{Child: child}
}

// AllOf builds a conjunction of ops all applied to the field at path,
// the tree form of {"path": {"$and": [...]}}.
func AllOf(path string, ops ...Operator) Node {
	return &AndNode{Children: fieldNodes(path, ops)}
}

// AnyOf builds a disjunction of ops applied to the field at path, the
// tree form of {"path": {"$or": [...]}}.
func AnyOf(path string, ops ...Operator) Node {
	return &OrNode{Children: fieldNodes(path, ops)}
}

func fieldNodes(path string, ops []Operator) []Node {
	compiled := ParsePath(path)
	out := make([]Node, len(ops))
	for i, op := range ops {
		out[i] = &FieldNode{Path: path, Op: op, path: compiled}
	}
	return out
}

func cloneNodes(children []Node) []Node {
	out := make([]Node, len(children))
	copy(out, children)
	return out
}

// The operator constructors below accept any Go value that FromGo can
// convert, or a Value. They panic on anything else, the same way
// regexp.MustCompile does for a bad pattern literal.

// Eq matches a field equal to v.
func Eq(v any) Operator {
	return Operator{kind: OpEq, operand: MustFromGo(v)}
}

// Ne matches a field of the same kind as v with a different value.
func Ne(v any) Operator {
	return Operator{kind: OpNe, operand: MustFromGo(v)}
}

// Gt matches a field ordered after v.
func Gt(v any) Operator {
	return Operator{kind: OpGt, operand: MustFromGo(v)}
}

// Gte matches a field ordered after or equal to v.
func Gte(v any) Operator {
	return Operator{kind: OpGte, operand: MustFromGo(v)}
}

// Lt matches a field ordered before v.
func Lt(v any) Operator {
	return Operator{kind: OpLt, operand: MustFromGo(v)}
}

// Lte matches a field ordered before or equal to v.
func Lte(v any) Operator {
	return Operator{kind: OpLte, operand: MustFromGo(v)}
}

// In matches when the field equals one of vs.
func In(vs ...any) Operator {
	return Operator{kind: OpIn, set: valuesOf(vs)}
}

// Nin matches when the field equals none of vs, or is missing.
func Nin(vs ...any) Operator {
	return Operator{kind: OpNin, set: valuesOf(vs)}
}

// Exists matches when the presence of the field equals want.
func Exists(want bool) Operator {
	return Operator{kind: OpExists, want: want}
}

func valuesOf(vs []any) []Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = MustFromGo(v)
	}
	return out
}
