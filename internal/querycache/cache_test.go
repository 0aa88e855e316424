package querycache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/bunbase/bunlog/query"
)

func doc(t *testing.T, s string) query.Value {
	t.Helper()
	v, err := query.ParseJSON([]byte(s))
	require.NoError(t, err)
	return v
}

func TestDecodeHitsAndMisses(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	a := doc(t, `{"level":{"$eq":"error"}}`)
	n1, err := c.Decode(a)
	require.NoError(t, err)
	n2, err := c.Decode(doc(t, `{ "level" : { "$eq" : "error" } }`))
	require.NoError(t, err)
	assert.Same(t, n1.(*query.FieldNode), n2.(*query.FieldNode), "same document text shares the tree")

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.True(t, query.EqualNodes(query.Field("level", query.Eq("error")), n1))
}

func TestDecodeErrorsAreNotCached(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)

	bad := doc(t, `{"x":{"$near":1}}`)
	for i := 0; i < 2; i++ {
		_, err := c.Decode(bad)
		var de *query.DecodeError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "$near", de.Key)
	}
	assert.Equal(t, 0, c.Len())
	_, misses := c.Stats()
	assert.Equal(t, uint64(2), misses)
}

func TestEviction(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)
	for _, s := range []string{`{"a":{"$exists":true}}`, `{"b":{"$exists":true}}`, `{"c":{"$exists":true}}`} {
		_, err := c.Decode(doc(t, s))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestDisabled(t *testing.T) {
	c, err := New(0)
	require.NoError(t, err)
	n, err := c.Decode(doc(t, `{}`))
	require.NoError(t, err)
	assert.True(t, query.Evaluate(n, query.Null()))
	assert.Equal(t, 0, c.Len())
}
