// Package querycache memoizes decoded query documents.
package querycache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kartikbazzad/bunbase/bunlog/query"
)

// Cache maps the JSON text of a query document to its decoded tree.
// Query trees are immutable, so a cached tree is shared by all callers.
// Documents that fail to decode are not cached.
type Cache struct {
	lru    *lru.Cache[string, query.Node]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New returns a cache holding at most size trees. A size of 0 disables
// caching.
func New(size int) (*Cache, error) {
	c := &Cache{}
	if size > 0 {
		l, err := lru.New[string, query.Node](size)
		if err != nil {
			return nil, err
		}
		c.lru = l
	}
	return c, nil
}

// Decode returns the tree for doc, decoding it on a miss.
func (c *Cache) Decode(doc query.Value) (query.Node, error) {
	if c.lru == nil {
		c.misses.Add(1)
		return query.Decode(doc)
	}
	key := doc.String()
	if n, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return n, nil
	}
	c.misses.Add(1)
	n, err := query.Decode(doc)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, n)
	return n, nil
}

// Stats reports cache hits and misses since creation.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

func (c *Cache) Purge() {
	if c.lru != nil {
		c.lru.Purge()
	}
}
