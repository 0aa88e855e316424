package transport

import (
	"context"
	"sync"

	"github.com/kartikbazzad/bunbase/bunlog/logquery"
	"github.com/kartikbazzad/bunbase/bunlog/query"
)

// MemoryTransport keeps entries in memory and answers queries over them.
// With a positive capacity the oldest entries are evicted first.
type MemoryTransport struct {
	mu      sync.RWMutex
	records []query.Value
	// head is the index of the oldest record once a bounded store is full.
	head     int
	capacity int
	closed   bool
}

// NewMemoryTransport returns an empty store. A capacity of 0 or less
// keeps every entry.
func NewMemoryTransport(capacity int) *MemoryTransport {
	return &MemoryTransport{capacity: capacity}
}

func (m *MemoryTransport) Log(e Entry) {
	m.LogBatch([]Entry{e})
}

func (m *MemoryTransport) LogBatch(entries []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, e := range entries {
		if m.capacity <= 0 || len(m.records) < m.capacity {
			m.records = append(m.records, e.Value())
			continue
		}
		m.records[m.head] = e.Value()
		m.head = (m.head + 1) % m.capacity
	}
}

// ordered returns the records oldest first. The caller holds m.mu.
func (m *MemoryTransport) ordered() []query.Value {
	if m.head == 0 {
		return m.records
	}
	out := make([]query.Value, 0, len(m.records))
	out = append(out, m.records[m.head:]...)
	return append(out, m.records[:m.head]...)
}

// Query applies q to the stored records in logging order.
func (m *MemoryTransport) Query(ctx context.Context, q *logquery.LogQuery) ([]query.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return q.Apply(m.ordered()), nil
}

// Records returns a snapshot of everything stored.
func (m *MemoryTransport) Records() []query.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]query.Value(nil), m.ordered()...)
}

func (m *MemoryTransport) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryTransport) Reset() {
	m.mu.Lock()
	m.records = nil
	m.head = 0
	m.mu.Unlock()
}

// Close stops accepting entries. Stored records stay queryable.
func (m *MemoryTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
