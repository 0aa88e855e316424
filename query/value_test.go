package query

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

func TestObjectKeepsInsertionOrder(t *testing.T) {
	v := Object(M("z", 1), M("a", 2), M("m", 3), M("a", 4))

	assert.Equal(t, []string{"z", "a", "m"}, v.Keys())
	got, ok := v.Get("a")
	require.True(t, ok)
	n, _ := got.AsNumber()
	assert.Equal(t, 4.0, n)
}

func TestJSONPreservesKeyOrder(t *testing.T) {
	src := `{"b":1,"a":{"y":true,"x":null},"c":[1,"two",2.5]}`
	v, err := ParseJSON([]byte(src))
	require.NoError(t, err)

	out, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, src, string(out))
}

func TestParseJSONRejectsTrailingData(t *testing.T) {
	var v Value
	assert.Error(t, v.UnmarshalJSON([]byte(`{} {}`)))
	_, err := ParseJSON([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestMarshalJSONRejectsNaN(t *testing.T) {
	_, err := Number(math.NaN()).MarshalJSON()
	assert.Error(t, err)
}

func TestYAMLPreservesKeyOrder(t *testing.T) {
	v, err := ParseYAML([]byte("b: 1\na:\n  - x\n  - 2\n  - ~\nc: yes\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a", "c"}, v.Keys())
	a, _ := v.Get("a")
	assert.True(t, Equal(Array(String("x"), Number(2), Null()), a))

	out, err := yaml.Marshal(v)
	require.NoError(t, err)
	back, err := ParseYAML(out)
	require.NoError(t, err)
	assert.True(t, Equal(v, back))
	assert.Equal(t, v.Keys(), back.Keys())
}

func TestYAMLAliases(t *testing.T) {
	v, err := ParseYAML([]byte("adult: &adult {$gte: 18}\nage: *adult\n"))
	require.NoError(t, err)
	adult, _ := v.Get("adult")
	age, _ := v.Get("age")
	assert.True(t, Equal(adult, age))
}

func TestYAMLAliasExpansionIsBounded(t *testing.T) {
	// Each level holds ten aliases of the one before, so the document
	// below would expand to over ten million values.
	var b strings.Builder
	b.WriteString("l0: &l0 [" + strings.TrimSuffix(strings.Repeat("x, ", 10), ", ") + "]\n")
	for i := 1; i <= 7; i++ {
		ref := fmt.Sprintf("*l%d, ", i-1)
		fmt.Fprintf(&b, "l%d: &l%d [%s]\n", i, i, strings.TrimSuffix(strings.Repeat(ref, 10), ", "))
	}

	_, err := ParseYAML([]byte(b.String()))
	require.ErrorIs(t, err, ErrYAMLAliasExpansion)

	_, err = DecodeYAML([]byte(b.String()))
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestMsgpackRoundTrip(t *testing.T) {
	v, err := ParseJSON([]byte(`{"n":3,"f":-1.25,"s":"x","b":false,"z":null,"arr":[1,[2]],"o":{"k":"v"}}`))
	require.NoError(t, err)

	data, err := msgpack.Marshal(v)
	require.NoError(t, err)

	var back Value
	require.NoError(t, msgpack.Unmarshal(data, &back))
	assert.True(t, Equal(v, back))
	assert.Equal(t, v.Keys(), back.Keys())
}

func TestFromGo(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	type point struct{ X int }

	cases := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null()},
		{"int8", int8(-3), Number(-3)},
		{"uint64", uint64(7), Number(7)},
		{"float32", float32(0.5), Number(0.5)},
		{"time", ts, String("2024-01-02T03:04:05.000000000Z")},
		{"typed slice", []string{"a", "b"}, Array(String("a"), String("b"))},
		{"typed map", map[string]int{"b": 2, "a": 1}, Object(M("a", 1), M("b", 2))},
		{"pointer", &[]int{1}, Array(Number(1))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FromGo(tc.in)
			require.NoError(t, err)
			assert.True(t, Equal(tc.want, got), got.String())
		})
	}

	_, err := FromGo(point{X: 1})
	assert.Error(t, err)
	_, err = FromGo(map[int]string{1: "a"})
	assert.Error(t, err)
}

func TestToGo(t *testing.T) {
	v := Object(M("a", []any{1, "x", nil}), M("b", true))
	assert.Equal(t, map[string]any{"a": []any{1.0, "x", nil}, "b": true}, v.ToGo())
}

func TestEqualKinds(t *testing.T) {
	assert.True(t, Equal(Null(), Null()))
	assert.False(t, Equal(Null(), Bool(false)))
	assert.False(t, Equal(Number(0), String("0")))
	assert.True(t, Equal(Number(math.NaN()), Number(math.NaN())))
	assert.False(t, Equal(Array(Number(1)), Array(Number(1), Number(2))))
	assert.False(t, Equal(Object(M("a", 1)), Object(M("b", 1))))
}

func TestCompare(t *testing.T) {
	c, ok := Compare(Number(1), Number(2))
	assert.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = Compare(Number(math.NaN()), Number(math.Inf(-1)))
	assert.True(t, ok)
	assert.Equal(t, -1, c, "NaN sorts first")

	_, ok = Compare(Number(1), String("1"))
	assert.False(t, ok)
	_, ok = Compare(Null(), Null())
	assert.False(t, ok)
}
