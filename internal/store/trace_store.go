// Package store provides the trace persistence collaborator: durable storage
// for lifecycle traces keyed by the five lifecycle buckets
// (active/completed/blocked/invalid/archived), backed by SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cogman/internal/logging"
	"cogman/internal/trace"
)

// Buckets are the valid persistence buckets, one per terminal-ish lifecycle
// grouping. Order matters: Load with an empty bucket searches in this order.
var Buckets = []string{"active", "completed", "blocked", "invalid", "archived"}

// ErrTraceNotFound is returned by Load/Move/Delete when no row matches.
var ErrTraceNotFound = errors.New("store: trace not found")

// ValidBucket reports whether name is one of the five buckets.
func ValidBucket(name string) bool {
	for _, b := range Buckets {
		if b == name {
			return true
		}
	}
	return false
}

// TraceStore persists traces in a single SQLite table with a bucket column.
// Thread-safe; writers serialize on the mutex and the connection pool is
// pinned to one connection the way the rest of our SQLite usage is.
type TraceStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the trace database at path, creating parent directories
// and the schema as needed. Pass ":memory:" for tests.
func Open(path string) (*TraceStore, error) {
	log := logging.Get(logging.CategoryStore)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debugw("failed to set busy_timeout", "error", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debugw("failed to set journal_mode=WAL", "error", err)
	}

	s := &TraceStore{db: db, dbPath: path}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}

	log.Infow("trace store opened", "path", path)
	return s, nil
}

func (s *TraceStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS traces (
		trace_id      TEXT NOT NULL,
		bucket        TEXT NOT NULL,
		state         TEXT NOT NULL,
		created_at    DATETIME NOT NULL,
		closed_at     DATETIME,
		origin        TEXT NOT NULL,
		context       TEXT NOT NULL,
		lifecycle_log TEXT NOT NULL,
		saved_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (trace_id, bucket)
	);

	CREATE INDEX IF NOT EXISTS idx_traces_bucket ON traces(bucket);
	CREATE INDEX IF NOT EXISTS idx_traces_created ON traces(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save writes a trace into a bucket, replacing any previous row for the same
// (trace_id, bucket) pair.
func (s *TraceStore) Save(t trace.Trace, bucket string) error {
	if !ValidBucket(bucket) {
		return fmt.Errorf("store: invalid trace bucket %q", bucket)
	}

	originJSON, err := json.Marshal(t.Origin)
	if err != nil {
		return fmt.Errorf("store: marshal origin: %w", err)
	}
	contextJSON, err := json.Marshal(t.Context)
	if err != nil {
		return fmt.Errorf("store: marshal context: %w", err)
	}
	logJSON, err := json.Marshal(t.Log)
	if err != nil {
		return fmt.Errorf("store: marshal lifecycle log: %w", err)
	}

	var closedAt any
	if t.ClosedAt != nil {
		closedAt = t.ClosedAt.UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO traces
		(trace_id, bucket, state, created_at, closed_at, origin, context, lifecycle_log)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, bucket, string(t.State), t.CreatedAt.UTC(), closedAt,
		string(originJSON), string(contextJSON), string(logJSON),
	)
	if err != nil {
		return fmt.Errorf("store: save trace %s: %w", t.ID, err)
	}

	logging.Get(logging.CategoryStore).Debugw("trace saved", "trace_id", t.ID, "bucket", bucket)
	return nil
}

// Load retrieves a trace by id. With an empty bucket every bucket is
// searched in canonical order; otherwise only the named bucket.
func (s *TraceStore) Load(id, bucket string) (trace.Trace, error) {
	buckets := Buckets
	if bucket != "" {
		if !ValidBucket(bucket) {
			return trace.Trace{}, fmt.Errorf("store: invalid trace bucket %q", bucket)
		}
		buckets = []string{bucket}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range buckets {
		t, err := s.loadFrom(id, b)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrTraceNotFound) {
			return trace.Trace{}, err
		}
	}
	return trace.Trace{}, fmt.Errorf("%w: %s", ErrTraceNotFound, id)
}

func (s *TraceStore) loadFrom(id, bucket string) (trace.Trace, error) {
	row := s.db.QueryRow(`
		SELECT state, created_at, closed_at, origin, context, lifecycle_log
		FROM traces WHERE trace_id = ? AND bucket = ?`, id, bucket)

	var (
		state, originJSON, ctxJSON, lifecycleJSON string

		createdAt time.Time
		closedAt  sql.NullTime
	)
	if err := row.Scan(&state, &createdAt, &closedAt, &originJSON, &ctxJSON, &lifecycleJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return trace.Trace{}, ErrTraceNotFound
		}
		return trace.Trace{}, fmt.Errorf("store: load trace %s: %w", id, err)
	}

	t := trace.Trace{
		ID:        id,
		State:     trace.State(state),
		CreatedAt: createdAt,
	}
	if closedAt.Valid {
		ts := closedAt.Time
		t.ClosedAt = &ts
	}
	if err := json.Unmarshal([]byte(originJSON), &t.Origin); err != nil {
		return trace.Trace{}, fmt.Errorf("store: decode origin for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(ctxJSON), &t.Context); err != nil {
		return trace.Trace{}, fmt.Errorf("store: decode context for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(lifecycleJSON), &t.Log); err != nil {
		return trace.Trace{}, fmt.Errorf("store: decode lifecycle log for %s: %w", id, err)
	}
	return t, nil
}

// List returns trace ids in a bucket, newest first. limit <= 0 lists all.
func (s *TraceStore) List(bucket string, limit int) ([]string, error) {
	if !ValidBucket(bucket) {
		return nil, fmt.Errorf("store: invalid trace bucket %q", bucket)
	}

	query := `SELECT trace_id FROM traces WHERE bucket = ? ORDER BY created_at DESC`
	args := []any{bucket}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list bucket %s: %w", bucket, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Move relocates a trace between buckets atomically.
func (s *TraceStore) Move(id, from, to string) error {
	if !ValidBucket(from) || !ValidBucket(to) {
		return fmt.Errorf("store: invalid trace bucket %q -> %q", from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin move: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE OR REPLACE traces SET bucket = ? WHERE trace_id = ? AND bucket = ?`, to, id, from)
	if err != nil {
		return fmt.Errorf("store: move trace %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s in %s", ErrTraceNotFound, id, from)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit move: %w", err)
	}

	logging.Get(logging.CategoryStore).Debugw("trace moved", "trace_id", id, "from", from, "to", to)
	return nil
}

// Delete removes a trace from a bucket.
func (s *TraceStore) Delete(id, bucket string) error {
	if !ValidBucket(bucket) {
		return fmt.Errorf("store: invalid trace bucket %q", bucket)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM traces WHERE trace_id = ? AND bucket = ?`, id, bucket)
	if err != nil {
		return fmt.Errorf("store: delete trace %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s in %s", ErrTraceNotFound, id, bucket)
	}
	return nil
}

// Close releases the underlying database.
func (s *TraceStore) Close() error {
	return s.db.Close()
}
