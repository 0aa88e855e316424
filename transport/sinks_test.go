package transport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kartikbazzad/bunbase/bunlog/logquery"
	"github.com/kartikbazzad/bunbase/bunlog/query"
)

func TestFileTransport(t *testing.T) {
	for _, name := range []string{"app.log", "app.log.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "logs", name)
			ft, err := OpenFile(path, nil)
			require.NoError(t, err)

			for i := 0; i < 3; i++ {
				ft.Log(entry(i, "info"))
			}
			require.NoError(t, ft.Flush())
			ft.LogBatch([]Entry{entry(3, "error"), entry(4, "info")})

			got, err := ft.Query(context.Background(), logquery.New().WithLevels("info").SortBy("n", logquery.OrderDescending))
			require.NoError(t, err)
			assert.Equal(t, []int{4, 2, 1, 0}, seqs(t, got))
			require.NoError(t, ft.Close())

			// Reopening appends.
			ft, err = OpenFile(path, nil)
			require.NoError(t, err)
			ft.Log(entry(5, "info"))
			require.NoError(t, ft.Close())

			records, err := ReadFile(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, seqs(t, records))

			if strings.HasSuffix(name, ".zst") {
				raw, err := os.ReadFile(path)
				require.NoError(t, err)
				assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, raw[:4], "zstd frame magic")
			}
		})
	}
}

func TestFileTransportClosed(t *testing.T) {
	ft, err := OpenFile(filepath.Join(t.TempDir(), "x.log"), nil)
	require.NoError(t, err)
	require.NoError(t, ft.Close())
	assert.ErrorIs(t, ft.Flush(), ErrClosed)
	assert.NoError(t, ft.Close())
}

func TestSQLiteTransport(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "logs.db"), nil)
	require.NoError(t, err)
	defer st.Close()

	levels := []string{"info", "ERROR", "warn", "info", "error"}
	for i, l := range levels {
		st.Log(entry(i, l))
	}
	st.LogBatch([]Entry{entry(5, "debug"), entry(6, "info")})
	require.NoError(t, st.Flush())

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	q := logquery.New().
		WithLevels("error", "info").
		Between(t0.Add(time.Second), t0.Add(5*time.Second)).
		WithFilter(query.Field("n", query.Ne(3)))
	got, err := st.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, seqs(t, got))

	all, err := st.Query(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, all, 7)
	assert.Equal(t, []string{"level", "message", "timestamp", "n"}, all[0].Keys())
}

func TestInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	rec := &recorder{}
	it := Instrument(rec, "mem", metrics)

	it.Log(Entry{Level: "info"})
	it.Log(Entry{Level: "info"})
	it.LogBatch([]Entry{{Level: "error"}, {}})
	require.NoError(t, it.Flush())

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.entries.WithLabelValues("mem", "info")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.entries.WithLabelValues("mem", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.entries.WithLabelValues("mem", "unknown")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.flushErrors.WithLabelValues("mem")))

	rec.flushErr = assert.AnError
	assert.Error(t, it.Flush())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.flushErrors.WithLabelValues("mem")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.batchSize))
}

func TestFanout(t *testing.T) {
	a := NewMemoryTransport(0)
	b := NewMemoryTransport(0)
	rec := &recorder{}
	f, err := NewFanout(nil, a, b, rec)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		f.Log(entry(i, "info"))
	}
	f.LogBatch([]Entry{entry(4, "info")})
	require.NoError(t, f.Flush())
	assert.Equal(t, 5, a.Len())
	assert.Equal(t, 5, b.Len())
	assert.Equal(t, 5, rec.count())

	q := logquery.New().SortBy("n", logquery.OrderDescending).WithStart(1).WithLimit(3).WithFields("n")
	got, err := f.Query(context.Background(), q)
	require.NoError(t, err)
	// Both memory children hold every entry, so the merged page repeats.
	assert.Equal(t, []int{4, 3, 3}, seqs(t, got))

	rec.flushErr = assert.AnError
	assert.ErrorIs(t, f.Flush(), assert.AnError)

	require.NoError(t, f.Close())
	assert.True(t, rec.closed)
	assert.NoError(t, f.Close())
}

func TestFanoutNotQueryable(t *testing.T) {
	f, err := NewFanout(nil, &recorder{})
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Query(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotQueryable)
}

func TestZapCore(t *testing.T) {
	m := NewMemoryTransport(0)
	logger := zap.New(NewZapCore(m, zapcore.InfoLevel)).Named("api").With(zap.String("svc", "auth"))

	logger.Debug("hidden")
	logger.Info("login", zap.Int("uid", 7))
	logger.Error("boom")
	require.NoError(t, logger.Sync())

	records := m.Records()
	require.Len(t, records, 2)

	e, err := EntryFromValue(records[0])
	require.NoError(t, err)
	assert.Equal(t, "info", e.Level)
	assert.Equal(t, "login", e.Message)
	assert.Equal(t, []string{"logger", "svc", "uid"}, e.Meta.Keys())

	got, err := m.Query(context.Background(), logquery.New().WithFilter(query.Field("svc", query.Eq("auth"))).WithLevels("error"))
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestZapTransport(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	zt := NewZapTransport(zap.New(core))

	zt.Log(Entry{Level: "warn", Message: "slow", Time: t0, Meta: query.Object(query.M("ms", 900))})
	zt.Log(Entry{Level: "silly", Message: "noise"})
	zt.Log(Entry{Level: "http", Message: "GET /"})

	all := logs.All()
	require.Len(t, all, 3)
	assert.Equal(t, zapcore.WarnLevel, all[0].Level)
	assert.True(t, t0.Equal(all[0].Time))
	assert.Equal(t, map[string]any{"ms": 900.0}, all[0].ContextMap())
	assert.Equal(t, zapcore.DebugLevel, all[1].Level)
	assert.Equal(t, zapcore.InfoLevel, all[2].Level)
	assert.NoError(t, zt.Flush())
}
