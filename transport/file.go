package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/kartikbazzad/bunbase/bunlog/logquery"
	"github.com/kartikbazzad/bunbase/bunlog/query"
)

// FileTransport appends JSON-lines records to a file. A path ending in
// ".zst" is zstd-compressed; every Flush ends a zstd frame so the file is
// readable up to that point. Query reads the file back.
type FileTransport struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	buf    *bufio.Writer
	zw     *zstd.Encoder
	zopen  bool
	err    error
	closed bool
	log    *slog.Logger
}

// OpenFile opens or creates path for appending.
func OpenFile(path string, logger *slog.Logger) (*FileTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("transport: create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transport: open log file: %w", err)
	}

	t := &FileTransport{path: path, file: f, log: logger}
	if isZstd(path) {
		zw, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("transport: create zstd encoder: %w", err)
		}
		t.zw = zw
	}
	t.buf = bufio.NewWriter(f)
	return t, nil
}

func isZstd(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

func (t *FileTransport) Path() string { return t.path }

func (t *FileTransport) Log(e Entry) {
	t.LogBatch([]Entry{e})
}

func (t *FileTransport) LogBatch(entries []Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	w := t.writer()
	for _, e := range entries {
		data, err := e.Value().MarshalJSON()
		if err != nil {
			t.fail(fmt.Errorf("transport: encode entry: %w", err))
			continue
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			t.fail(fmt.Errorf("transport: write %s: %w", t.path, err))
			return
		}
	}
}

// writer returns the stream records go to, starting a zstd frame if
// needed.
func (t *FileTransport) writer() io.Writer {
	if t.zw == nil {
		return t.buf
	}
	if !t.zopen {
		t.zw.Reset(t.buf)
		t.zopen = true
	}
	return t.zw
}

func (t *FileTransport) fail(err error) {
	t.log.Error("log file write failed", "path", t.path, "error", err)
	t.err = errors.Join(t.err, err)
}

// Flush writes buffered records to the file and syncs it. It returns any
// write error seen since the previous Flush.
func (t *FileTransport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	return t.flushLocked()
}

func (t *FileTransport) flushLocked() error {
	err := t.err
	t.err = nil
	if t.zopen {
		if zerr := t.zw.Close(); zerr != nil {
			err = errors.Join(err, fmt.Errorf("transport: finish zstd frame: %w", zerr))
		}
		t.zopen = false
	}
	if ferr := t.buf.Flush(); ferr != nil {
		err = errors.Join(err, fmt.Errorf("transport: flush %s: %w", t.path, ferr))
	}
	if serr := t.file.Sync(); serr != nil {
		err = errors.Join(err, fmt.Errorf("transport: sync %s: %w", t.path, serr))
	}
	return err
}

// Query flushes and scans the file, applying q to every record.
func (t *FileTransport) Query(ctx context.Context, q *logquery.LogQuery) ([]query.Value, error) {
	t.mu.Lock()
	if !t.closed {
		if err := t.flushLocked(); err != nil {
			t.mu.Unlock()
			return nil, err
		}
	}
	t.mu.Unlock()

	records, err := ReadFile(ctx, t.path)
	if err != nil {
		return nil, err
	}
	return q.Apply(records), nil
}

func (t *FileTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	err := t.flushLocked()
	if cerr := t.file.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("transport: close %s: %w", t.path, cerr))
	}
	return err
}

// ReadFile loads every record of a JSON-lines log file, decompressing
// ".zst" files.
func ReadFile(ctx context.Context, path string) ([]query.Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if isZstd(path) {
		zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("transport: create zstd decoder: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	records, err := ReadRecords(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("transport: %s: %w", path, err)
	}
	return records, nil
}

// ReadRecords parses JSON-lines records from r. Blank lines are skipped.
func ReadRecords(ctx context.Context, r io.Reader) ([]query.Value, error) {
	var records []query.Value
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		v, err := query.ParseJSON(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return records, nil
}
