package transport

import (
	"bytes"
	"sync"
	"time"
)

// DefaultWriterLevel is the level TransportWriter gives its entries.
const DefaultWriterLevel = "info"

// TransportWriter is an io.Writer that turns each written line into an
// entry on a Transport. It lets code that only knows io.Writer, such as
// log.Logger or a subprocess's stderr, feed a transport. A trailing
// partial line is held until it is completed or until Flush or Close.
type TransportWriter struct {
	mu      sync.Mutex
	t       Transport
	level   string
	pending []byte
	closed  bool
}

// NewTransportWriter writes lines to t at level; an empty level means
// DefaultWriterLevel.
func NewTransportWriter(t Transport, level string) *TransportWriter {
	if level == "" {
		level = DefaultWriterLevel
	}
	return &TransportWriter{t: t, level: level}
}

func (w *TransportWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}

	w.pending = append(w.pending, p...)
	var entries []Entry
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		entries = append(entries, w.entry(w.pending[:i]))
		w.pending = w.pending[i+1:]
	}
	if len(w.pending) == 0 {
		w.pending = nil
	}
	LogBatch(w.t, entries)
	return len(p), nil
}

func (w *TransportWriter) entry(line []byte) Entry {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return Entry{Level: w.level, Message: string(line), Time: time.Now()}
}

// Flush logs any partial line and flushes the transport.
func (w *TransportWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushPending()
	return Flush(w.t)
}

func (w *TransportWriter) flushPending() {
	if len(w.pending) > 0 {
		w.t.Log(w.entry(w.pending))
		w.pending = nil
	}
}

// Close flushes. It does not close the transport.
func (w *TransportWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.flushPending()
	return Flush(w.t)
}
