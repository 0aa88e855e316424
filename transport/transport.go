// Package transport moves structured log entries from producers to sinks.
//
// A Transport accepts entries one at a time. Optional interfaces add batch
// delivery (BatchLogger), synchronous flushing (Flusher), querying of
// stored entries (Querier) and teardown (io.Closer). Wrappers such as
// BatchTransport, ThreadedTransport, Fanout and LevelFilter compose over
// any Transport and forward the optional interfaces they find.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kartikbazzad/bunbase/bunlog/logquery"
	"github.com/kartikbazzad/bunbase/bunlog/query"
)

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport: closed")
	// ErrNotQueryable is returned by Query when no sink can answer it.
	ErrNotQueryable = errors.New("transport: not queryable")
)

// Transport accepts log entries. Log has no error result; sinks report
// delivery failures on their logger and from the next Flush.
type Transport interface {
	Log(e Entry)
}

// BatchLogger is implemented by transports that deliver several entries
// more cheaply than one at a time.
type BatchLogger interface {
	LogBatch(entries []Entry)
}

// Flusher is implemented by transports that buffer. Flush blocks until
// every entry logged before the call has reached the sink.
type Flusher interface {
	Flush() error
}

// Querier is implemented by transports that can read back what they
// stored.
type Querier interface {
	Query(ctx context.Context, q *logquery.LogQuery) ([]query.Value, error)
}

// Entry is one structured log record.
type Entry struct {
	Level   string
	Message string
	Time    time.Time
	// Meta holds additional fields; it is an object or null.
	Meta query.Value
}

// NewEntry builds an entry stamped with the current time.
func NewEntry(level, message string, meta ...query.Member) Entry {
	e := Entry{Level: level, Message: message, Time: time.Now()}
	if len(meta) > 0 {
		e.Meta = query.Object(meta...)
	}
	return e
}

// Value renders the entry as the record queries run against:
// {"level", "message", "timestamp", ...meta}. Meta keys that collide with
// the three fixed keys are dropped.
func (e Entry) Value() query.Value {
	members := make([]query.Member, 0, 3+e.Meta.Len())
	members = append(members,
		query.Member{Key: logquery.LevelKey, Value: query.String(e.Level)},
		query.Member{Key: logquery.MessageKey, Value: query.String(e.Message)},
	)
	if !e.Time.IsZero() {
		members = append(members, query.Member{
			Key:   logquery.TimestampKey,
			Value: query.String(e.Time.UTC().Format(query.TimeLayout)),
		})
	}
	for _, m := range e.Meta.Members() {
		switch m.Key {
		case logquery.LevelKey, logquery.MessageKey, logquery.TimestampKey:
			continue
		}
		members = append(members, m)
	}
	return query.Object(members...)
}

// EntryFromValue is the inverse of Entry.Value.
func EntryFromValue(v query.Value) (Entry, error) {
	if v.Kind() != query.KindObject {
		return Entry{}, fmt.Errorf("transport: record is %s, want object", v.Kind())
	}

	var e Entry
	var meta []query.Member
	for _, m := range v.Members() {
		switch m.Key {
		case logquery.LevelKey:
			s, ok := m.Value.AsString()
			if !ok {
				return Entry{}, fmt.Errorf("transport: level is %s, want string", m.Value.Kind())
			}
			e.Level = s
		case logquery.MessageKey:
			s, ok := m.Value.AsString()
			if !ok {
				return Entry{}, fmt.Errorf("transport: message is %s, want string", m.Value.Kind())
			}
			e.Message = s
		case logquery.TimestampKey:
			ts, ok := logquery.RecordTime(v)
			if !ok {
				return Entry{}, fmt.Errorf("transport: bad timestamp %s", m.Value)
			}
			e.Time = ts
		default:
			meta = append(meta, m)
		}
	}
	if len(meta) > 0 {
		e.Meta = query.Object(meta...)
	}
	return e, nil
}

// LogBatch delivers entries through t's BatchLogger if it has one and one
// by one otherwise.
func LogBatch(t Transport, entries []Entry) {
	if len(entries) == 0 {
		return
	}
	if b, ok := t.(BatchLogger); ok {
		b.LogBatch(entries)
		return
	}
	for _, e := range entries {
		t.Log(e)
	}
}

// Flush flushes t if it buffers.
func Flush(t Transport) error {
	if f, ok := t.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// Query runs q against t, or returns ErrNotQueryable.
func Query(ctx context.Context, t Transport, q *logquery.LogQuery) ([]query.Value, error) {
	if qr, ok := t.(Querier); ok {
		return qr.Query(ctx, q)
	}
	return nil, ErrNotQueryable
}

// Close closes t if it holds resources.
func Close(t Transport) error {
	if c, ok := t.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
