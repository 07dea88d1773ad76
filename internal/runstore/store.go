// Package runstore keeps a queryable history of race outcomes in SQLite.
package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by Get for an unknown trace ID.
var ErrRunNotFound = errors.New("runstore: run not found")

// Run is one recorded race outcome. Generated content is not stored and
// Prompt is expected to be a redacted preview.
type Run struct {
	TraceID           string    `json:"trace_id"`
	RequestID         string    `json:"request_id,omitempty"`
	Prompt            string    `json:"prompt,omitempty"`
	Kind              string    `json:"kind"`
	Reason            string    `json:"reason,omitempty"`
	Error             string    `json:"error,omitempty"`
	ElapsedMS         int64     `json:"elapsed_ms"`
	ProducerCancelled bool      `json:"producer_cancelled"`
	Path              string    `json:"path"`
	Model             string    `json:"model,omitempty"`
	OutputTokens      int       `json:"output_tokens,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Stats aggregates the stored runs.
type Stats struct {
	Total             int            `json:"total"`
	ByKind            map[string]int `json:"by_kind"`
	ProducerCancelled int            `json:"producer_cancelled"`
	AvgElapsedMS      float64        `json:"avg_elapsed_ms"`
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	trace_id           TEXT PRIMARY KEY,
	request_id         TEXT NOT NULL DEFAULT '',
	prompt             TEXT NOT NULL DEFAULT '',
	kind               TEXT NOT NULL,
	reason             TEXT NOT NULL DEFAULT '',
	error              TEXT NOT NULL DEFAULT '',
	elapsed_ms         INTEGER NOT NULL,
	producer_cancelled INTEGER NOT NULL DEFAULT 0,
	path               TEXT NOT NULL DEFAULT '',
	model              TEXT NOT NULL DEFAULT '',
	output_tokens      INTEGER NOT NULL DEFAULT 0,
	created_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS runs_kind ON runs(kind);
`

// Store is a SQLite-backed run history. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" keeps it in memory.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("runstore: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runstore: open: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Save inserts or replaces the run keyed by its trace ID.
func (s *Store) Save(ctx context.Context, r Run) error {
	if r.TraceID == "" {
		return errors.New("runstore: trace id is required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(trace_id, request_id, prompt, kind, reason, error, elapsed_ms, producer_cancelled, path, model, output_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TraceID, r.RequestID, r.Prompt, r.Kind, r.Reason, r.Error, r.ElapsedMS,
		boolToInt(r.ProducerCancelled), r.Path, r.Model, r.OutputTokens, r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("runstore: save %s: %w", r.TraceID, err)
	}
	return nil
}

const selectRun = `SELECT trace_id, request_id, prompt, kind, reason, error, elapsed_ms, producer_cancelled, path, model, output_tokens, created_at FROM runs`

// Get returns the run with the given trace ID.
func (s *Store) Get(ctx context.Context, traceID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE trace_id = ?`, traceID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, traceID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("runstore: get %s: %w", traceID, err)
	}
	return r, nil
}

// List returns the most recent runs, newest first. A kind filters by outcome
// kind; limit <= 0 means 20.
func (s *Store) List(ctx context.Context, kind string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := selectRun
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("runstore: list: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("runstore: scan: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("runstore: list: %w", err)
	}
	return runs, nil
}

// Stats counts runs per outcome kind.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByKind: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM runs GROUP BY kind`)
	if err != nil {
		return st, fmt.Errorf("runstore: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return st, fmt.Errorf("runstore: stats: %w", err)
		}
		st.ByKind[kind] = n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("runstore: stats: %w", err)
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(producer_cancelled), 0), AVG(elapsed_ms) FROM runs`,
	).Scan(&st.ProducerCancelled, &avg)
	if err != nil {
		return st, fmt.Errorf("runstore: stats: %w", err)
	}
	st.AvgElapsedMS = avg.Float64
	return st, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var cancelled int
	var created int64
	err := sc.Scan(&r.TraceID, &r.RequestID, &r.Prompt, &r.Kind, &r.Reason, &r.Error, &r.ElapsedMS,
		&cancelled, &r.Path, &r.Model, &r.OutputTokens, &created)
	if err != nil {
		return Run{}, err
	}
	r.ProducerCancelled = cancelled != 0
	r.CreatedAt = time.UnixMilli(created)
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
