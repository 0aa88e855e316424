package transport

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kartikbazzad/bunbase/bunlog/logquery"
	"github.com/kartikbazzad/bunbase/bunlog/query"
)

// Metrics holds the Prometheus collectors shared by instrumented
// transports.
type Metrics struct {
	entries     *prometheus.CounterVec
	flushErrors *prometheus.CounterVec
	batchSize   *prometheus.HistogramVec
}

// NewMetrics registers the transport collectors on reg. A nil reg uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		entries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bunlog_entries_total",
				Help: "Total number of log entries accepted by a transport",
			},
			[]string{"transport", "level"},
		),
		flushErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bunlog_flush_errors_total",
				Help: "Total number of failed transport flushes",
			},
			[]string{"transport"},
		),
		batchSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bunlog_batch_size",
				Help:    "Number of entries per delivered batch",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"transport"},
		),
	}
}

// Instrumented counts what flows through a transport.
type Instrumented struct {
	inner   Transport
	name    string
	metrics *Metrics
}

// Instrument wraps inner, labelling its metrics with name.
func Instrument(inner Transport, name string, m *Metrics) *Instrumented {
	return &Instrumented{inner: inner, name: name, metrics: m}
}

func (t *Instrumented) Log(e Entry) {
	t.count(e)
	t.inner.Log(e)
}

func (t *Instrumented) LogBatch(entries []Entry) {
	for _, e := range entries {
		t.count(e)
	}
	t.metrics.batchSize.WithLabelValues(t.name).Observe(float64(len(entries)))
	LogBatch(t.inner, entries)
}

func (t *Instrumented) count(e Entry) {
	level := e.Level
	if level == "" {
		level = "unknown"
	}
	t.metrics.entries.WithLabelValues(t.name, level).Inc()
}

func (t *Instrumented) Flush() error {
	err := Flush(t.inner)
	if err != nil {
		t.metrics.flushErrors.WithLabelValues(t.name).Inc()
	}
	return err
}

func (t *Instrumented) Close() error { return Close(t.inner) }

func (t *Instrumented) Query(ctx context.Context, q *logquery.LogQuery) ([]query.Value, error) {
	return Query(ctx, t.inner, q)
}
