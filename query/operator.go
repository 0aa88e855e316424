package query

import "fmt"

// OpKind enumerates the comparison, membership and existence operators.
type OpKind uint8

const (
	OpEq OpKind = iota + 1
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNin
	OpExists
)

var opKeywords = map[OpKind]string{
	OpEq:     "$eq",
	OpNe:     "$ne",
	OpGt:     "$gt",
	OpGte:    "$gte",
	OpLt:     "$lt",
	OpLte:    "$lte",
	OpIn:     "$in",
	OpNin:    "$nin",
	OpExists: "$exists",
}

// String returns the declarative keyword of the operator, e.g. "$gte".
func (k OpKind) String() string {
	if s, ok := opKeywords[k]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", uint8(k))
}

// ParseOpKind maps a declarative keyword such as "$in" to its OpKind.
func ParseOpKind(keyword string) (OpKind, bool) {
	for k, s := range opKeywords {
		if s == keyword {
			return k, true
		}
	}
	return 0, false
}

// Operator is a test bound to its operand, applied to a resolved field.
// Build one with Eq, Ne, Gt, Gte, Lt, Lte, In, Nin or Exists.
type Operator struct {
	kind    OpKind
	operand Value
	set     []Value
	want    bool
}

// Kind returns which operator o is.
func (o Operator) Kind() OpKind { return o.kind }

// Operand returns the comparison operand of Eq/Ne/Gt/Gte/Lt/Lte.
func (o Operator) Operand() Value { return o.operand }

// Set returns a copy of the operand set of In/Nin.
func (o Operator) Set() []Value {
	out := make([]Value, len(o.set))
	copy(out, o.set)
	return out
}

// Want returns the expected existence of an Exists operator.
func (o Operator) Want() bool { return o.want }

// Payload returns the operand in its declarative form: the operand value,
// an array for In/Nin or a bool for Exists.
func (o Operator) Payload() Value {
	switch o.kind {
	case OpIn, OpNin:
		return Array(o.set...)
	case OpExists:
		return Bool(o.want)
	default:
		return o.operand
	}
}

func (o Operator) String() string {
	return o.kind.String() + " " + o.Payload().String()
}

// Apply evaluates the operator against a resolved field value; found is
// false when the path did not resolve.
//
// A missing field satisfies only Exists(false), Ne and Nin. Comparisons
// between different kinds are always false, Ne included, so queries stay
// total over arbitrary data.
func (o Operator) Apply(v Value, found bool) bool {
	if o.kind == OpExists {
		return found == o.want
	}
	if !found {
		return o.kind == OpNe || o.kind == OpNin
	}

	switch o.kind {
	case OpEq:
		return Equal(v, o.operand)
	case OpNe:
		return v.kind == o.operand.kind && !Equal(v, o.operand)
	case OpGt, OpGte, OpLt, OpLte:
		c, ok := Compare(v, o.operand)
		if !ok {
			return false
		}
		switch o.kind {
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		default:
			return c <= 0
		}
	case OpIn:
		return o.contains(v)
	case OpNin:
		return !o.contains(v)
	}
	return false
}

func (o Operator) contains(v Value) bool {
	for _, e := range o.set {
		if Equal(v, e) {
			return true
		}
	}
	return false
}

func (o Operator) equal(other Operator) bool {
	if o.kind != other.kind || o.want != other.want || !Equal(o.operand, other.operand) {
		return false
	}
	if len(o.set) != len(other.set) {
		return false
	}
	for i := range o.set {
		if !Equal(o.set[i], other.set[i]) {
			return false
		}
	}
	return true
}
