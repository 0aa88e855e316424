package query

import (
	"fmt"
	"strings"
)

// Encode renders a tree in the canonical declarative form accepted by
// Decode: {"$and": [...]}, {"$or": [...]}, {"$not": {...}} and
// {"path": {"$op": operand}}. For a non-nil n, Decode(Encode(n)) is
// structurally equal to n.
//
// Trees that the document form cannot express are rejected: a field path
// beginning with '$', an ordering operator whose operand is not a number,
// string or bool, or $and, $or and $not nested more than MaxDepth levels.
func Encode(n Node) (Value, error) {
	return encode(n, 0)
}

func encode(n Node, depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, fmt.Errorf("query: tree nesting exceeds %d levels", MaxDepth)
	}
	switch e := n.(type) {
	case nil:
		return Object(), nil
	case *FieldNode:
		if strings.HasPrefix(e.Path, "$") {
			return Value{}, fmt.Errorf("query: field path %q cannot be encoded", e.Path)
		}
		if e.Op.kind == 0 {
			return Value{}, fmt.Errorf("query: field %q has no operator", e.Path)
		}
		switch e.Op.kind {
		case OpGt, OpGte, OpLt, OpLte:
			if !orderable(e.Op.operand) {
				return Value{}, fmt.Errorf("query: %s operand on %q is %s", e.Op.kind, e.Path, e.Op.operand.Kind())
			}
		}
		return Object(Member{Key: e.Path, Value: Object(Member{Key: e.Op.kind.String(), Value: e.Op.Payload()})}), nil
	case *AndNode:
		return encodeList("$and", e.Children, depth)
	case *OrNode:
		return encodeList("$or", e.Children, depth)
	case *NotNode:
		child, err := encode(e.Child, depth+1)
		if err != nil {
			return Value{}, err
		}
		return Object(Member{Key: "$not", Value: child}), nil
	}
	return Value{}, fmt.Errorf("query: cannot encode node %T", n)
}

func encodeList(keyword string, children []Node, depth int) (Value, error) {
	docs := make([]Value, 0, len(children))
	for _, c := range children {
		doc, err := encode(c, depth+1)
		if err != nil {
			return Value{}, err
		}
		docs = append(docs, doc)
	}
	return Object(Member{Key: keyword, Value: Array(docs...)}), nil
}

// EncodeJSON is Encode followed by JSON marshaling.
func EncodeJSON(n Node) ([]byte, error) {
	doc, err := Encode(n)
	if err != nil {
		return nil, err
	}
	return doc.MarshalJSON()
}
