package transport

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/kartikbazzad/bunbase/bunlog/logquery"
	"github.com/kartikbazzad/bunbase/bunlog/query"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS log_entries (
	seq    INTEGER PRIMARY KEY AUTOINCREMENT,
	id     TEXT NOT NULL UNIQUE,
	ts     INTEGER NOT NULL,
	level  TEXT NOT NULL,
	record BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS log_entries_ts ON log_entries(ts);
CREATE INDEX IF NOT EXISTS log_entries_level ON log_entries(level);
`

// SQLiteTransport stores entries in a SQLite database as MessagePack
// records. Queries push the time window and level list down to SQL and
// evaluate the rest of the LogQuery in memory.
type SQLiteTransport struct {
	db  *sql.DB
	log *slog.Logger

	mu  sync.Mutex
	err error
}

// OpenSQLite opens or creates the database at path. Use ":memory:" for a
// private in-memory database.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("transport: open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("transport: create schema: %w", err)
	}
	return &SQLiteTransport{db: db, log: logger}, nil
}

func (t *SQLiteTransport) Log(e Entry) {
	t.LogBatch([]Entry{e})
}

// LogBatch inserts entries in one transaction.
func (t *SQLiteTransport) LogBatch(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	if err := t.insert(context.Background(), entries); err != nil {
		t.log.Error("sqlite log insert failed", "count", len(entries), "error", err)
		t.mu.Lock()
		t.err = errors.Join(t.err, err)
		t.mu.Unlock()
	}
}

func (t *SQLiteTransport) insert(ctx context.Context, entries []Entry) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transport: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO log_entries (id, ts, level, record) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("transport: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		blob, err := msgpack.Marshal(e.Value())
		if err != nil {
			return fmt.Errorf("transport: encode entry: %w", err)
		}
		var ts int64
		if !e.Time.IsZero() {
			ts = e.Time.UnixNano()
		}
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), ts, strings.ToLower(e.Level), blob); err != nil {
			return fmt.Errorf("transport: insert entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transport: commit: %w", err)
	}
	return nil
}

// Flush reports insert failures since the previous Flush. Inserts are
// synchronous, so there is nothing to write.
func (t *SQLiteTransport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.err
	t.err = nil
	return err
}

// Query selects candidate rows by time and level in insertion order and
// applies q to them.
func (t *SQLiteTransport) Query(ctx context.Context, q *logquery.LogQuery) ([]query.Value, error) {
	var (
		where []string
		args  []any
	)
	if q != nil {
		if !q.From.IsZero() {
			where = append(where, "ts >= ?")
			args = append(args, q.From.UnixNano())
		}
		if !q.Until.IsZero() {
			where = append(where, "ts <= ?")
			args = append(args, q.Until.UnixNano())
		}
		if len(q.Levels) > 0 {
			marks := make([]string, len(q.Levels))
			for i, l := range q.Levels {
				marks[i] = "?"
				args = append(args, strings.ToLower(l))
			}
			where = append(where, "level IN ("+strings.Join(marks, ", ")+")")
		}
	}

	stmt := "SELECT record FROM log_entries"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY seq"

	rows, err := t.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("transport: query: %w", err)
	}
	defer rows.Close()

	var records []query.Value
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("transport: scan: %w", err)
		}
		var v query.Value
		if err := msgpack.Unmarshal(blob, &v); err != nil {
			return nil, fmt.Errorf("transport: decode record: %w", err)
		}
		records = append(records, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transport: query rows: %w", err)
	}
	return q.Apply(records), nil
}

// Count returns the number of stored entries.
func (t *SQLiteTransport) Count(ctx context.Context) (int, error) {
	var n int
	if err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM log_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("transport: count: %w", err)
	}
	return n, nil
}

func (t *SQLiteTransport) Close() error {
	return t.db.Close()
}
