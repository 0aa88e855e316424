package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kartikbazzad/bunbase/bunlog/logquery"
	"github.com/kartikbazzad/bunbase/bunlog/query"
)

// BatchConfig controls when a BatchTransport delivers.
type BatchConfig struct {
	// MaxBatchSize delivers as soon as this many entries are queued.
	MaxBatchSize int
	// MaxBatchTime delivers whatever is queued at this interval.
	MaxBatchTime time.Duration
	// FlushOnClose delivers queued entries on Close instead of dropping
	// them.
	FlushOnClose bool
	Logger       *slog.Logger
}

// DefaultBatchConfig delivers every 100 entries or 500ms and flushes on
// Close.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxBatchSize: 100,
		MaxBatchTime: 500 * time.Millisecond,
		FlushOnClose: true,
	}
}

type batchRequest struct {
	entry    Entry
	response chan error // non-nil for flush requests
}

// BatchTransport queues entries and hands them to the wrapped transport in
// batches. A single goroutine collects requests and delivers when the
// batch is full, when the batch timer fires, on Flush and on Close.
type BatchTransport struct {
	inner    Transport
	cfg      BatchConfig
	requests chan batchRequest
	mu       sync.Mutex
	stopped  bool
	stopChan chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	closeErr error
	log      *slog.Logger
}

// NewBatchTransport starts the batching goroutine. Zero config fields take
// the DefaultBatchConfig values, except FlushOnClose.
func NewBatchTransport(inner Transport, cfg BatchConfig) *BatchTransport {
	def := DefaultBatchConfig()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.MaxBatchTime <= 0 {
		cfg.MaxBatchTime = def.MaxBatchTime
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	bt := &BatchTransport{
		inner:    inner,
		cfg:      cfg,
		requests: make(chan batchRequest, cfg.MaxBatchSize*4),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		log:      cfg.Logger,
	}
	bt.wg.Add(1)
	go bt.run()
	return bt
}

// Log queues e. It blocks only while the request queue is full. Entries
// logged after Close are dropped.
func (bt *BatchTransport) Log(e Entry) {
	if bt.isStopped() {
		bt.log.Debug("batch transport closed, dropping entry", "level", e.Level)
		return
	}
	select {
	case bt.requests <- batchRequest{entry: e}:
	case <-bt.stopChan:
	}
}

// Flush delivers everything queued before the call and flushes the
// wrapped transport.
func (bt *BatchTransport) Flush() error {
	if bt.isStopped() {
		return ErrClosed
	}
	req := batchRequest{response: make(chan error, 1)}
	select {
	case bt.requests <- req:
	case <-bt.stopChan:
		return ErrClosed
	}
	select {
	case err := <-req.response:
		return err
	case <-bt.done:
		return ErrClosed
	}
}

// Query flushes, then queries the wrapped transport.
func (bt *BatchTransport) Query(ctx context.Context, q *logquery.LogQuery) ([]query.Value, error) {
	if err := bt.Flush(); err != nil {
		return nil, err
	}
	return Query(ctx, bt.inner, q)
}

// Close stops the goroutine, delivering queued entries first when
// FlushOnClose is set, and closes the wrapped transport.
func (bt *BatchTransport) Close() error {
	bt.mu.Lock()
	if bt.stopped {
		bt.mu.Unlock()
		return nil
	}
	bt.stopped = true
	bt.mu.Unlock()

	close(bt.stopChan)
	bt.wg.Wait()
	return errors.Join(bt.closeErr, Close(bt.inner))
}

func (bt *BatchTransport) isStopped() bool {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.stopped
}

func (bt *BatchTransport) run() {
	defer bt.wg.Done()
	defer close(bt.done)

	var batch []Entry
	timer := time.NewTimer(bt.cfg.MaxBatchTime)
	defer timer.Stop()

	handle := func(req batchRequest) {
		if req.response == nil {
			batch = append(batch, req.entry)
			if len(batch) >= bt.cfg.MaxBatchSize {
				bt.deliver(batch)
				batch = nil
				timer.Reset(bt.cfg.MaxBatchTime)
			}
			return
		}
		bt.deliver(batch)
		batch = nil
		req.response <- Flush(bt.inner)
	}

	for {
		select {
		case req := <-bt.requests:
			handle(req)

		case <-timer.C:
			bt.deliver(batch)
			batch = nil
			timer.Reset(bt.cfg.MaxBatchTime)

		case <-bt.stopChan:
			// Requests that won the race with Close are still queued.
		drain:
			for {
				select {
				case req := <-bt.requests:
					if req.response != nil {
						req.response <- ErrClosed
						continue
					}
					batch = append(batch, req.entry)
				default:
					break drain
				}
			}
			if !bt.cfg.FlushOnClose {
				if len(batch) > 0 {
					bt.log.Warn("batch transport closed, dropping queued entries", "count", len(batch))
				}
				return
			}
			bt.deliver(batch)
			bt.closeErr = Flush(bt.inner)
			return
		}
	}
}

func (bt *BatchTransport) deliver(batch []Entry) {
	if len(batch) == 0 {
		return
	}
	LogBatch(bt.inner, batch)
}
