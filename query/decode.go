package query

import (
	"strconv"
	"strings"
)

// MaxDepth bounds the nesting of $and, $or and $not in a decoded document.
const MaxDepth = 64

// Decode converts a declarative document into a query tree.
//
// The document is an object. "$and" and "$or" take an array of
// sub-documents, "$not" takes one sub-document. Any other key is a dotted
// field path whose value is an object of operator keywords:
//
//	{"user.age": {"$gte": 18}, "tags": {"$in": ["a", "b"]}}
//
// Inside a field mapping, "$and" and "$or" take an array of operator
// objects that all apply to the same field, and may nest:
//
//	{"user.age": {"$and": [{"$gt": 18}, {"$or": [{"$lt": 30}, {"$gt": 50}]}]}}
//
// These decode to AndNode and OrNode over FieldNodes sharing the path.
//
// Several keys at one level, whether sibling predicates or several
// operators on one field, form an implicit $and in document order. The
// empty document {} matches everything. There is no implicit $eq: a
// field mapped to a scalar is rejected.
//
// Decoding is all-or-nothing; the first problem found is returned as a
// *DecodeError.
func Decode(doc Value) (Node, error) {
	return decodeDocument(doc, "", 0)
}

// DecodeJSON parses data as JSON and decodes it.
func DecodeJSON(data []byte) (Node, error) {
	doc, err := ParseJSON(data)
	if err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}
	return Decode(doc)
}

// DecodeYAML parses data as a YAML document and decodes it.
func DecodeYAML(data []byte) (Node, error) {
	doc, err := ParseYAML(data)
	if err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}
	return Decode(doc)
}

// Parse decodes a document held in plain Go maps, as produced by
// encoding/json. Keys are visited in sorted order.
func Parse(doc map[string]any) (Node, error) {
	v, err := FromGo(doc)
	if err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}
	return Decode(v)
}

func decodeDocument(doc Value, at string, depth int) (Node, error) {
	if depth > MaxDepth {
		return nil, decodeErrorf(at, "", "nesting exceeds %d levels", MaxDepth)
	}
	if doc.Kind() != KindObject {
		return nil, decodeErrorf(at, "", "expected object, got %s", doc.Kind())
	}

	members := doc.Members()
	if len(members) == 0 {
		return &AndNode{Children: []Node{}}, nil
	}
	nodes := make([]Node, 0, len(members))
	for _, m := range members {
		n, err := decodeKey(m.Key, m.Value, at, depth)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return &AndNode{Children: nodes}, nil
}

func decodeKey(key string, val Value, at string, depth int) (Node, error) {
	here := joinPath(at, key)
	switch key {
	case "$and", "$or":
		if val.Kind() != KindArray {
			return nil, decodeErrorf(at, key, "expected array, got %s", val.Kind())
		}
		children := make([]Node, 0, val.Len())
		for i, sub := range val.Elements() {
			child, err := decodeDocument(sub, here+"["+strconv.Itoa(i)+"]", depth+1)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if key == "$and" {
			return &AndNode{Children: children}, nil
		}
		return &OrNode{Children: children}, nil
	case "$not":
		child, err := decodeDocument(val, here, depth+1)
		if err != nil {
			return nil, err
		}
		return &NotNode{Child: child}, nil
	}

	if strings.HasPrefix(key, "$") {
		return nil, decodeErrorf(at, key, "unknown logical operator")
	}
	return decodeField(key, val, at, depth)
}

func decodeField(path string, spec Value, at string, depth int) (Node, error) {
	if spec.Kind() != KindObject {
		return nil, decodeErrorf(at, path, "expected operator object, got %s", spec.Kind())
	}
	if spec.Len() == 0 {
		return nil, decodeErrorf(at, path, "empty operator object")
	}
	return decodeFieldOps(path, ParsePath(path), spec, joinPath(at, path), depth)
}

// decodeFieldOps decodes an operator object applied to one field. at is
// the error location of spec.
func decodeFieldOps(path string, compiled Path, spec Value, at string, depth int) (Node, error) {
	if depth > MaxDepth {
		return nil, decodeErrorf(at, "", "nesting exceeds %d levels", MaxDepth)
	}
	members := spec.Members()
	nodes := make([]Node, 0, len(members))
	for _, m := range members {
		if m.Key == "$and" || m.Key == "$or" {
			n, err := decodeFieldLogic(path, compiled, m.Key, m.Value, at, depth)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
			continue
		}
		op, err := decodeOperator(m.Key, m.Value, at)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &FieldNode{Path: path, Op: op, path: compiled})
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return &AndNode{Children: nodes}, nil
}

func decodeFieldLogic(path string, compiled Path, keyword string, val Value, at string, depth int) (Node, error) {
	if val.Kind() != KindArray {
		return nil, decodeErrorf(at, keyword, "expected array of operator objects, got %s", val.Kind())
	}
	children := make([]Node, 0, val.Len())
	for i, sub := range val.Elements() {
		here := at + "." + keyword + "[" + strconv.Itoa(i) + "]"
		if sub.Kind() != KindObject {
			return nil, decodeErrorf(here, "", "expected operator object, got %s", sub.Kind())
		}
		if sub.Len() == 0 {
			return nil, decodeErrorf(here, "", "empty operator object")
		}
		child, err := decodeFieldOps(path, compiled, sub, here, depth+1)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if keyword == "$and" {
		return &AndNode{Children: children}, nil
	}
	return &OrNode{Children: children}, nil
}

func decodeOperator(keyword string, payload Value, at string) (Operator, error) {
	kind, ok := ParseOpKind(keyword)
	if !ok {
		return Operator{}, decodeErrorf(at, keyword, "unknown operator")
	}

	switch kind {
	case OpEq, OpNe:
		return Operator{kind: kind, operand: payload}, nil
	case OpGt, OpGte, OpLt, OpLte:
		if !orderable(payload) {
			return Operator{}, decodeErrorf(at, keyword, "operand must be a number, string or bool, got %s", payload.Kind())
		}
		return Operator{kind: kind, operand: payload}, nil
	case OpIn, OpNin:
		if payload.Kind() != KindArray {
			return Operator{}, decodeErrorf(at, keyword, "operand must be an array, got %s", payload.Kind())
		}
		return Operator{kind: kind, set: payload.Elements()}, nil
	case OpExists:
		if payload.Kind() != KindBool {
			return Operator{}, decodeErrorf(at, keyword, "operand must be a bool, got %s", payload.Kind())
		}
		want, _ := payload.AsBool()
		return Operator{kind: kind, want: want}, nil
	}
	return Operator{}, decodeErrorf(at, keyword, "unsupported operator")
}

func orderable(v Value) bool {
	switch v.Kind() {
	case KindNumber, KindString, KindBool:
		return true
	}
	return false
}

func joinPath(at, key string) string {
	if at == "" {
		return key
	}
	return at + "." + key
}
