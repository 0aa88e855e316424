package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kartikbazzad/bunbase/bunlog/logquery"
	"github.com/kartikbazzad/bunbase/bunlog/query"
)

type opKind int

const (
	opLog opKind = iota
	opFlush
	opQuery
	opClose
)

type threadedOp struct {
	kind  opKind
	entry Entry
	ctx   context.Context
	q     *logquery.LogQuery
	done  chan threadedResult
}

type threadedResult struct {
	records []query.Value
	err     error
}

// ThreadedTransport hands every operation to one background goroutine, so
// callers never wait on the wrapped transport's I/O when logging. The
// queue is unbounded and Log never blocks. Flush, Query and Close run on
// the goroutine in order with the logs queued before them and block the
// caller until they complete.
type ThreadedTransport struct {
	inner Transport
	log   *slog.Logger

	mu     sync.Mutex
	queue  []threadedOp
	closed bool
	wake   chan struct{}
	exited chan struct{}
}

// NewThreadedTransport starts the worker goroutine serving inner. Close
// stops it.
func NewThreadedTransport(inner Transport, logger *slog.Logger) *ThreadedTransport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &ThreadedTransport{
		inner:  inner,
		log:    logger,
		wake:   make(chan struct{}, 1),
		exited: make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *ThreadedTransport) Log(e Entry) {
	if !t.enqueue(threadedOp{kind: opLog, entry: e}) {
		t.log.Debug("threaded transport closed, dropping entry", "level", e.Level)
	}
}

// LogBatch queues entries as one unit.
func (t *ThreadedTransport) LogBatch(entries []Entry) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	for _, e := range entries {
		t.queue = append(t.queue, threadedOp{kind: opLog, entry: e})
	}
	t.mu.Unlock()
	t.signal()
}

// Flush waits until everything queued before it has been delivered and
// the wrapped transport flushed.
func (t *ThreadedTransport) Flush() error {
	res, err := t.call(context.Background(), threadedOp{kind: opFlush})
	if err != nil {
		return err
	}
	return res.err
}

// Query runs after everything queued before it has been delivered. If
// ctx ends first Query returns ctx.Err(); the worker still completes it.
func (t *ThreadedTransport) Query(ctx context.Context, q *logquery.LogQuery) ([]query.Value, error) {
	res, err := t.call(ctx, threadedOp{kind: opQuery, ctx: ctx, q: q})
	if err != nil {
		return nil, err
	}
	return res.records, res.err
}

// Close delivers the queue, flushes and closes the wrapped transport, and
// stops the goroutine.
func (t *ThreadedTransport) Close() error {
	op := threadedOp{kind: opClose, done: make(chan threadedResult, 1)}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		<-t.exited
		return nil
	}
	t.closed = true
	t.queue = append(t.queue, op)
	t.mu.Unlock()
	t.signal()

	res := <-op.done
	<-t.exited
	return res.err
}

func (t *ThreadedTransport) call(ctx context.Context, op threadedOp) (threadedResult, error) {
	if err := ctx.Err(); err != nil {
		return threadedResult{}, err
	}
	op.done = make(chan threadedResult, 1)
	if !t.enqueue(op) {
		return threadedResult{}, ErrClosed
	}
	select {
	case res := <-op.done:
		return res, nil
	case <-ctx.Done():
		return threadedResult{}, ctx.Err()
	}
}

func (t *ThreadedTransport) enqueue(op threadedOp) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.queue = append(t.queue, op)
	t.mu.Unlock()
	t.signal()
	return true
}

func (t *ThreadedTransport) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *ThreadedTransport) run() {
	defer close(t.exited)
	for range t.wake {
		for {
			t.mu.Lock()
			ops := t.queue
			t.queue = nil
			t.mu.Unlock()
			if len(ops) == 0 {
				break
			}
			if t.exec(ops) {
				return
			}
		}
	}
}

// exec runs ops in order, delivering runs of consecutive logs as one
// batch. It reports whether a close op was executed.
func (t *ThreadedTransport) exec(ops []threadedOp) bool {
	var pending []Entry
	deliver := func() {
		LogBatch(t.inner, pending)
		pending = nil
	}

	for _, op := range ops {
		if op.kind == opLog {
			pending = append(pending, op.entry)
			continue
		}
		deliver()
		switch op.kind {
		case opFlush:
			op.done <- threadedResult{err: Flush(t.inner)}
		case opQuery:
			records, err := Query(op.ctx, t.inner, op.q)
			op.done <- threadedResult{records: records, err: err}
		case opClose:
			op.done <- threadedResult{err: errors.Join(Flush(t.inner), Close(t.inner))}
			return true
		}
	}
	deliver()
	return false
}
