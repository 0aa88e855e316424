package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/kartikbazzad/bunbase/bunlog/logquery"
	"github.com/kartikbazzad/bunbase/bunlog/query"
)

// Levels are the npm severities, most severe first.
var Levels = []string{"error", "warn", "info", "http", "verbose", "debug", "silly"}

// Severity returns the rank of level in Levels, ignoring case.
func Severity(level string) (int, bool) {
	for i, l := range Levels {
		if strings.EqualFold(l, level) {
			return i, true
		}
	}
	return 0, false
}

// LevelFilter drops entries less severe than its threshold. Entries with
// a level outside Levels pass through.
type LevelFilter struct {
	inner     Transport
	threshold int
}

// NewLevelFilter keeps entries at level or above, e.g. "warn" keeps warn
// and error.
func NewLevelFilter(inner Transport, level string) (*LevelFilter, error) {
	sev, ok := Severity(level)
	if !ok {
		return nil, fmt.Errorf("transport: unknown level %q", level)
	}
	return &LevelFilter{inner: inner, threshold: sev}, nil
}

func (f *LevelFilter) Enabled(level string) bool {
	s, ok := Severity(level)
	return !ok || s <= f.threshold
}

func (f *LevelFilter) Log(e Entry) {
	if f.Enabled(e.Level) {
		f.inner.Log(e)
	}
}

func (f *LevelFilter) LogBatch(entries []Entry) {
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f.Enabled(e.Level) {
			kept = append(kept, e)
		}
	}
	LogBatch(f.inner, kept)
}

func (f *LevelFilter) Flush() error { return Flush(f.inner) }
func (f *LevelFilter) Close() error { return Close(f.inner) }

func (f *LevelFilter) Query(ctx context.Context, q *logquery.LogQuery) ([]query.Value, error) {
	return Query(ctx, f.inner, q)
}
