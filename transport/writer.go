package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Format selects how WriterTransport renders an entry.
type Format int

const (
	// FormatJSON writes one JSON record per line.
	FormatJSON Format = iota
	// FormatMessage writes only the message, one per line.
	FormatMessage
	// FormatText writes "<time> <LEVEL> <message> <meta>" lines.
	FormatText
)

// ParseFormat maps "json", "message" and "text" to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "message":
		return FormatMessage, nil
	case "text":
		return FormatText, nil
	}
	return 0, fmt.Errorf("transport: unknown format %q", s)
}

// WriterTransport writes entries to an io.Writer. Write failures are
// logged and returned by the next Flush. Flush also flushes the writer
// when it has a Flush method, as bufio.Writer does.
type WriterTransport struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	err    error
	buf    bytes.Buffer
	logger *slog.Logger
}

func NewWriterTransport(w io.Writer, format Format) *WriterTransport {
	return &WriterTransport{w: w, format: format, logger: slog.Default()}
}

// WithLogger sets the logger write failures are reported on.
func (t *WriterTransport) WithLogger(l *slog.Logger) *WriterTransport {
	t.logger = l
	return t
}

func (t *WriterTransport) Log(e Entry) {
	t.LogBatch([]Entry{e})
}

func (t *WriterTransport) LogBatch(entries []Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf.Reset()
	for _, e := range entries {
		if err := t.render(&t.buf, e); err != nil {
			t.fail(fmt.Errorf("transport: render entry: %w", err))
		}
	}
	if t.buf.Len() == 0 {
		return
	}
	if _, err := t.w.Write(t.buf.Bytes()); err != nil {
		t.fail(fmt.Errorf("transport: write: %w", err))
	}
}

func (t *WriterTransport) render(buf *bytes.Buffer, e Entry) error {
	switch t.format {
	case FormatMessage:
		buf.WriteString(e.Message)
	case FormatText:
		ts := e.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		fmt.Fprintf(buf, "%s %s %s", ts.UTC().Format(time.RFC3339Nano), strings.ToUpper(e.Level), e.Message)
		if e.Meta.Len() > 0 {
			buf.WriteByte(' ')
			buf.WriteString(e.Meta.String())
		}
	default:
		data, err := e.Value().MarshalJSON()
		if err != nil {
			return err
		}
		buf.Write(data)
	}
	buf.WriteByte('\n')
	return nil
}

func (t *WriterTransport) fail(err error) {
	t.logger.Error("log write failed", "error", err)
	t.err = errors.Join(t.err, err)
}

// Flush returns and clears any write error since the last Flush, then
// flushes the writer.
func (t *WriterTransport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.err
	t.err = nil
	if f, ok := t.w.(interface{ Flush() error }); ok {
		if ferr := f.Flush(); ferr != nil {
			err = errors.Join(err, fmt.Errorf("transport: flush: %w", ferr))
		}
	}
	return err
}
