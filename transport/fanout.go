package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kartikbazzad/bunbase/bunlog/logquery"
	"github.com/kartikbazzad/bunbase/bunlog/query"
)

// Fanout delivers every entry to several transports. Log and LogBatch go
// to each child in order on the caller's goroutine; Flush, Query and
// Close run the children in parallel on a worker pool.
type Fanout struct {
	children []Transport
	pool     *ants.Pool
	log      *slog.Logger
}

// NewFanout returns a transport that writes to every child in parallel.
func NewFanout(logger *slog.Logger, children ...Transport) (*Fanout, error) {
	if logger == nil {
		logger = slog.Default()
	}
	size := len(children)
	if size == 0 {
		size = 1
	}
	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(p interface{}) {
		logger.Error("fanout worker panic", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("transport: create fanout pool: %w", err)
	}
	return &Fanout{children: children, pool: pool, log: logger}, nil
}

func (f *Fanout) Log(e Entry) {
	for _, c := range f.children {
		c.Log(e)
	}
}

func (f *Fanout) LogBatch(entries []Entry) {
	for _, c := range f.children {
		LogBatch(c, entries)
	}
}

func (f *Fanout) Flush() error {
	return f.each(Flush)
}

// Close closes every child and releases the pool.
func (f *Fanout) Close() error {
	if f.pool.IsClosed() {
		return nil
	}
	err := f.each(Close)
	if rerr := f.pool.ReleaseTimeout(5 * time.Second); rerr != nil {
		f.log.Warn("fanout pool release timed out", "error", rerr)
	}
	return err
}

// Query asks every queryable child and applies q to the merged results.
// Children are asked for enough unprojected records to cover q's page.
func (f *Fanout) Query(ctx context.Context, q *logquery.LogQuery) ([]query.Value, error) {
	var sub logquery.LogQuery
	if q != nil {
		sub = *q
	}
	sub.Fields = nil
	sub.Start = 0
	if sub.Limit > 0 {
		sub.Limit += q.Start
	}

	var (
		mu      sync.Mutex
		merged  []query.Value
		queried int
	)
	err := f.each(func(c Transport) error {
		if _, ok := c.(Querier); !ok {
			return nil
		}
		records, err := Query(ctx, c, &sub)
		mu.Lock()
		defer mu.Unlock()
		queried++
		merged = append(merged, records...)
		return err
	})
	if err != nil {
		return nil, err
	}
	if queried == 0 {
		return nil, ErrNotQueryable
	}
	return q.Apply(merged), nil
}

// each runs fn on every child in parallel and joins the errors.
func (f *Fanout) each(fn func(Transport) error) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, c := range f.children {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := fn(c); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}
		if err := f.pool.Submit(task); err != nil {
			// Pool closed or saturated; run inline.
			task()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}
