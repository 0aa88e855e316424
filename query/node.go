// Package query implements a predicate language over JSON-like values.
//
// A query is a tree of Nodes: FieldNode leaves test the value found at a
// dotted path with an Operator, and AndNode, OrNode and NotNode combine
// child predicates. Trees are built either with the builder functions
//
//	q := query.And(
//	    query.Field("user.age", query.Gt(18)),
//	    query.Or(
//	        query.Field("user.status", query.Eq("active")),
//	        query.Field("user.role", query.Eq("admin")),
//	    ),
//	)
//
// or decoded from the declarative document form
//
//	{"$and": [{"user.age": {"$gt": 18}},
//	          {"$or": [{"user.status": {"$eq": "active"}},
//	                   {"user.role": {"$eq": "admin"}}]}]}
//
// and evaluated with Evaluate. Evaluation never fails: missing fields and
// kind mismatches are ordinary non-matches.
package query

// Node is a node of the query tree. The set of implementations is closed:
// *FieldNode, *AndNode, *OrNode and *NotNode.
type Node interface {
	node()
}

// FieldNode tests the value at Path with Op.
type FieldNode struct {
	Path string
	Op   Operator

	path Path
}

func (*FieldNode) node() {}

// AndNode is true when every child is true. With no children it is true.
type AndNode struct {
	Children []Node
}

func (*AndNode) node() {}

// OrNode is true when any child is true. With no children it is false.
type OrNode struct {
	Children []Node
}

func (*OrNode) node() {}

// NotNode negates Child.
type NotNode struct {
	Child Node
}

func (*NotNode) node() {}

func (n *FieldNode) compiled() Path {
	if n.path.segments == nil {
		return ParsePath(n.Path)
	}
	return n.path
}

// EqualNodes reports whether two trees have the same shape, paths and
// operators.
func EqualNodes(a, b Node) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case *FieldNode:
		y, ok := b.(*FieldNode)
		return ok && x.Path == y.Path && x.Op.equal(y.Op)
	case *AndNode:
		y, ok := b.(*AndNode)
		return ok && equalChildren(x.Children, y.Children)
	case *OrNode:
		y, ok := b.(*OrNode)
		return ok && equalChildren(x.Children, y.Children)
	case *NotNode:
		y, ok := b.(*NotNode)
		return ok && EqualNodes(x.Child, y.Child)
	}
	return false
}

func equalChildren(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !EqualNodes(a[i], b[i]) {
			return false
		}
	}
	return true
}
