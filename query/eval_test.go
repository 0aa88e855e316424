package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleTree() Node {
	return And(
		Field("user.age", Gt(18)),
		Or(
			Field("user.status", Eq("active")),
			Field("user.role", Eq("admin")),
		),
	)
}

func exampleInputs(t *testing.T) []struct {
	doc  Value
	want bool
} {
	t.Helper()
	parse := func(s string) Value {
		v, err := ParseJSON([]byte(s))
		require.NoError(t, err)
		return v
	}
	return []struct {
		doc  Value
		want bool
	}{
		{parse(`{"user":{"age":25,"status":"active"}}`), true},
		{parse(`{"user":{"age":30,"role":"admin"}}`), true},
		{parse(`{"user":{"age":15,"status":"inactive"}}`), false},
	}
}

func TestEvaluateBuilderExample(t *testing.T) {
	q := exampleTree()
	for _, tc := range exampleInputs(t) {
		assert.Equal(t, tc.want, Evaluate(q, tc.doc), tc.doc.String())
	}
}

func TestEvaluateDecodedExampleAgreesWithBuilder(t *testing.T) {
	decoded, err := DecodeJSON([]byte(`{"$and":[{"user.age":{"$gt":18}},{"$or":[{"user.status":{"$eq":"active"}},{"user.role":{"$eq":"admin"}}]}]}`))
	require.NoError(t, err)

	built := exampleTree()
	assert.True(t, EqualNodes(built, decoded))
	for _, tc := range exampleInputs(t) {
		assert.Equal(t, Evaluate(built, tc.doc), Evaluate(decoded, tc.doc))
		assert.Equal(t, tc.want, Evaluate(decoded, tc.doc))
	}
}

func TestEmptyCombinators(t *testing.T) {
	doc := Object(M("x", 1))

	assert.True(t, Evaluate(And(), doc), "empty and")
	assert.False(t, Evaluate(Or(), doc), "empty or")
	assert.False(t, Evaluate(Not(And()), doc))
	assert.True(t, Evaluate(Not(Or()), doc))

	// A hand-built node with a nil slice behaves the same.
	assert.True(t, Evaluate(&AndNode{}, doc))
	assert.False(t, Evaluate(&OrNode{}, doc))
}

func TestNilNodeMatchesEverything(t *testing.T) {
	assert.True(t, Evaluate(nil, Null()))
	assert.True(t, Evaluate(nil, Object(M("a", 1))))
}

func TestAbsentFieldSemantics(t *testing.T) {
	doc := Object(M("y", 5))

	cases := []struct {
		name string
		op   Operator
		want bool
	}{
		{"eq", Eq(5), false},
		{"ne", Ne(5), true},
		{"gt", Gt(5), false},
		{"gte", Gte(5), false},
		{"lt", Lt(5), false},
		{"lte", Lte(5), false},
		{"in", In(5, 6), false},
		{"nin", Nin(5, 6), true},
		{"exists true", Exists(true), false},
		{"exists false", Exists(false), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(Field("x", tc.op), doc))
		})
	}
}

func TestKindMismatchIsFalse(t *testing.T) {
	doc := Object(M("x", "hello"))

	for _, op := range []Operator{Eq(5), Ne(5), Gt(5), Gte(5), Lt(5), Lte(5)} {
		assert.False(t, Evaluate(Field("x", op), doc), op.String())
	}
	assert.False(t, Evaluate(Field("x", In(5, true)), doc))
	assert.True(t, Evaluate(Field("x", Nin(5, true)), doc))
}

func TestOrderingOperators(t *testing.T) {
	cases := []struct {
		name  string
		value any
		op    Operator
		want  bool
	}{
		{"number gt", 10, Gt(9.5), true},
		{"number gt equal", 10, Gt(10), false},
		{"number gte equal", 10, Gte(10), true},
		{"number lt", -1, Lt(0), true},
		{"number lte", 3, Lte(2), false},
		{"string gt", "banana", Gt("apple"), true},
		{"string bytewise", "Zebra", Lt("apple"), true},
		{"bool false lt true", false, Lt(true), true},
		{"bool true gt false", true, Gt(false), true},
		{"bool gte self", true, Gte(true), true},
		{"null never ordered", nil, Gte(nil), false},
		{"array never ordered", []any{1}, Lte([]any{1}), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := Object(M("v", tc.value))
			assert.Equal(t, tc.want, Evaluate(Field("v", tc.op), doc))
		})
	}
}

func TestEqualityIsDeep(t *testing.T) {
	doc, err := ParseJSON([]byte(`{"tags":["a","b"],"meta":{"k":1,"j":null},"n":null}`))
	require.NoError(t, err)

	assert.True(t, Evaluate(Field("tags", Eq([]any{"a", "b"})), doc))
	assert.False(t, Evaluate(Field("tags", Eq([]any{"b", "a"})), doc))
	assert.True(t, Evaluate(Field("meta", Eq(Object(M("j", nil), M("k", 1)))), doc), "key order is irrelevant")
	assert.True(t, Evaluate(Field("n", Eq(nil)), doc))
	assert.True(t, Evaluate(Field("tags", Ne([]any{"a"})), doc))
}

func TestMembership(t *testing.T) {
	doc := Object(M("status", "active"), M("code", 404))

	assert.True(t, Evaluate(Field("status", In("active", "pending")), doc))
	assert.False(t, Evaluate(Field("status", In("closed")), doc))
	assert.True(t, Evaluate(Field("code", In(200, 404)), doc))
	assert.False(t, Evaluate(Field("code", In("404")), doc), "no cross-kind coercion")
	assert.True(t, Evaluate(Field("code", Nin("404")), doc))
	assert.False(t, Evaluate(Field("code", In()), doc))
	assert.True(t, Evaluate(Field("code", Nin()), doc))
}

func TestNotIsNegation(t *testing.T) {
	docs := []Value{
		Null(),
		Object(),
		Object(M("x", 1)),
		Object(M("x", "1")),
		Object(M("x", Object(M("y", true)))),
	}
	trees := []Node{
		Field("x", Eq(1)),
		Field("x", Ne(1)),
		Field("x.y", Exists(true)),
		And(Field("x", Gte(0)), Field("x", Lte(5))),
		Or(),
		And(),
	}
	for _, tree := range trees {
		for _, doc := range docs {
			assert.Equal(t, !Evaluate(tree, doc), Evaluate(Not(tree), doc))
		}
	}
}

func TestAndOrMatchAllAny(t *testing.T) {
	doc := Object(M("a", 1), M("b", 2))
	children := []Node{
		Field("a", Eq(1)),
		Field("b", Eq(3)),
		Field("c", Exists(false)),
	}

	all, some := true, false
	for _, c := range children {
		r := Evaluate(c, doc)
		all = all && r
		some = some || r
	}
	assert.Equal(t, all, Evaluate(And(children...), doc))
	assert.Equal(t, some, Evaluate(Or(children...), doc))
}

func TestFilterKeepsOrder(t *testing.T) {
	values := []Value{
		Object(M("n", 3)),
		Object(M("n", 1)),
		Object(M("n", 2)),
	}
	got := Filter(Field("n", Gte(2)), values)
	require.Len(t, got, 2)
	assert.True(t, Equal(values[0], got[0]))
	assert.True(t, Equal(values[2], got[1]))
}

func TestBuilderPanicsOnUnsupportedOperand(t *testing.T) {
	assert.Panics(t, func() { Eq(make(chan int)) })
}
