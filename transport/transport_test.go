package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kartikbazzad/bunbase/bunlog/logquery"
	"github.com/kartikbazzad/bunbase/bunlog/query"
)

func TestMain(m *testing.M) {
	// ants starts its default pool at init.
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func entry(i int, level string) Entry {
	return Entry{
		Level:   level,
		Message: "msg",
		Time:    t0.Add(time.Duration(i) * time.Second),
		Meta:    query.Object(query.M("n", i)),
	}
}

func seqs(t *testing.T, records []query.Value) []int {
	t.Helper()
	out := make([]int, 0, len(records))
	for _, r := range records {
		v, ok := r.Get("n")
		require.True(t, ok, r.String())
		n, _ := v.AsNumber()
		out = append(out, int(n))
	}
	return out
}

// recorder counts deliveries and can be told to fail flushes.
type recorder struct {
	mu       sync.Mutex
	entries  []Entry
	batches  []int
	flushes  int
	closed   bool
	flushErr error
}

func (r *recorder) Log(e Entry) { r.LogBatch([]Entry{e}) }

func (r *recorder) LogBatch(entries []Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
	r.batches = append(r.batches, len(entries))
}

func (r *recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return r.flushErr
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func TestEntryValueRoundTrip(t *testing.T) {
	e := Entry{
		Level:   "warn",
		Message: "disk at 91%",
		Time:    t0.Add(1500 * time.Millisecond),
		Meta:    query.Object(query.M("host", "a1"), query.M("level", "shadowed")),
	}
	v := e.Value()
	assert.Equal(t, []string{"level", "message", "timestamp", "host"}, v.Keys())

	back, err := EntryFromValue(v)
	require.NoError(t, err)
	assert.Equal(t, e.Level, back.Level)
	assert.Equal(t, e.Message, back.Message)
	assert.True(t, e.Time.Equal(back.Time))
	assert.Equal(t, []string{"host"}, back.Meta.Keys())

	_, err = EntryFromValue(query.String("x"))
	assert.Error(t, err)
	_, err = EntryFromValue(query.Object(query.M("level", 3)))
	assert.Error(t, err)
}

func TestMemoryTransportQuery(t *testing.T) {
	m := NewMemoryTransport(0)
	for i := 0; i < 5; i++ {
		m.Log(entry(i, []string{"info", "error"}[i%2]))
	}

	q := logquery.New().
		WithFilter(query.Field("level", query.Eq("info"))).
		SortBy("timestamp", logquery.OrderDescending).
		WithLimit(2)
	got, err := m.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2}, seqs(t, got))
}

func TestMemoryTransportCapacity(t *testing.T) {
	m := NewMemoryTransport(3)
	for i := 0; i < 5; i++ {
		m.Log(entry(i, "info"))
	}
	assert.Equal(t, []int{2, 3, 4}, seqs(t, m.Records()))

	m.LogBatch([]Entry{entry(5, "info"), entry(6, "warn")})
	assert.Equal(t, []int{4, 5, 6}, seqs(t, m.Records()))
	got, err := m.Query(context.Background(), logquery.New().WithLevels("info"))
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, seqs(t, got))

	// A full store reuses its slots instead of growing.
	slots := cap(m.records)
	for i := 7; i < 1000; i++ {
		m.Log(entry(i, "info"))
	}
	assert.Equal(t, []int{997, 998, 999}, seqs(t, m.Records()))
	assert.Equal(t, slots, cap(m.records))

	m.Reset()
	m.Log(entry(1, "info"))
	assert.Equal(t, []int{1}, seqs(t, m.Records()))

	require.NoError(t, m.Close())
	m.Log(entry(9, "info"))
	assert.Equal(t, 3, m.Len())
}

func TestWriterTransportFormats(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterTransport(&buf, FormatMessage)
	w.Log(Entry{Level: "info", Message: "one"})
	w.LogBatch([]Entry{{Message: "two"}, {Message: "three"}})
	assert.Equal(t, "one\ntwo\nthree\n", buf.String())

	buf.Reset()
	w = NewWriterTransport(&buf, FormatJSON)
	w.Log(Entry{Level: "info", Message: "hi", Time: t0})
	assert.Equal(t, `{"level":"info","message":"hi","timestamp":"2024-06-01T08:00:00.000000000Z"}`+"\n", buf.String())

	buf.Reset()
	w = NewWriterTransport(&buf, FormatText)
	w.Log(Entry{Level: "warn", Message: "careful", Time: t0, Meta: query.Object(query.M("k", 1))})
	assert.Equal(t, "2024-06-01T08:00:00Z WARN careful {\"k\":1}\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestWriterTransportReportsErrorsOnFlush(t *testing.T) {
	w := NewWriterTransport(failingWriter{}, FormatJSON)
	w.Log(Entry{Message: "lost"})

	err := w.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.NoError(t, w.Flush(), "error is reported once")
}

func TestWriterTransportFlushesBufferedWriter(t *testing.T) {
	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	w := NewWriterTransport(bw, FormatMessage)
	w.Log(Entry{Message: "buffered"})
	assert.Equal(t, 0, out.Len())
	require.NoError(t, w.Flush())
	assert.Equal(t, "buffered\n", out.String())
}

func TestTransportWriterSplitsLines(t *testing.T) {
	m := NewMemoryTransport(0)
	w := NewTransportWriter(m, "")

	n, err := w.Write([]byte("first\nsecond\r\nthi"))
	require.NoError(t, err)
	assert.Equal(t, 17, n)
	_, err = w.Write([]byte("rd"))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len(), "partial line is held")

	require.NoError(t, w.Flush())
	records := m.Records()
	require.Len(t, records, 3)
	var msgs []string
	for _, r := range records {
		e, err := EntryFromValue(r)
		require.NoError(t, err)
		assert.Equal(t, DefaultWriterLevel, e.Level)
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"first", "second", "third"}, msgs)

	_, _ = w.Write([]byte("tail"))
	require.NoError(t, w.Close())
	assert.Equal(t, 4, m.Len())
	_, err = w.Write([]byte("x\n"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWriterAdapterPair(t *testing.T) {
	// A TransportWriter feeding a WriterTransport reproduces the lines.
	var out bytes.Buffer
	sink := NewWriterTransport(&out, FormatMessage)
	w := NewTransportWriter(sink, "debug")
	_, err := w.Write([]byte("a\nb\nc"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "a\nb\nc\n", out.String())
}

func TestLevelFilter(t *testing.T) {
	m := NewMemoryTransport(0)
	f, err := NewLevelFilter(m, "warn")
	require.NoError(t, err)

	f.Log(Entry{Level: "error"})
	f.Log(Entry{Level: "WARN"})
	f.Log(Entry{Level: "info"})
	f.LogBatch([]Entry{{Level: "debug"}, {Level: "custom"}})
	assert.Equal(t, 3, m.Len())

	_, err = NewLevelFilter(m, "loud")
	assert.Error(t, err)
}

func TestHelpersOnPlainTransport(t *testing.T) {
	var plain plainTransport
	LogBatch(&plain, []Entry{{}, {}})
	assert.Equal(t, 2, plain.n)
	assert.NoError(t, Flush(&plain))
	assert.NoError(t, Close(&plain))
	_, err := Query(context.Background(), &plain, nil)
	assert.ErrorIs(t, err, ErrNotQueryable)
}

type plainTransport struct{ n int }

func (p *plainTransport) Log(Entry) { p.n++ }
