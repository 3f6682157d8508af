// Package journal keeps a sqlite history of toggle writes. It is informational only,
// the managed file stays the source of truth for the current state.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/umputun/kftoggle/pkg/domain"
)

//go:embed schema.sql
var schema string

// Journal records transitions in sqlite
type Journal struct {
	db *sqlx.DB
}

type transitionRow struct {
	ID         int64         `db:"id"`
	RecordedAt time.Time     `db:"recorded_at"`
	Path       string        `db:"path"`
	FromValue  sql.NullInt64 `db:"from_value"`
	ToValue    int64         `db:"to_value"`
}

// New opens (or creates) the journal database at the given file path
func New(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty journal path")
	}

	db, err := sqlx.Open("sqlite", "file:"+path+"?mode=rwc&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record stores a transition
func (j *Journal) Record(ctx context.Context, t domain.Transition) error {
	from := sql.NullInt64{}
	if t.From != nil {
		from = sql.NullInt64{Int64: int64(*t.From), Valid: true}
	}

	query := `INSERT INTO transitions (recorded_at, path, from_value, to_value) VALUES (?, ?, ?, ?)`
	if _, err := j.db.ExecContext(ctx, query, t.At.UTC(), t.Path, from, int64(t.To)); err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// Recent returns up to limit latest transitions, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.Transition, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows []transitionRow
	query := `SELECT id, recorded_at, path, from_value, to_value FROM transitions ORDER BY id DESC LIMIT ?`
	if err := j.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("get recent transitions: %w", err)
	}

	res := make([]domain.Transition, 0, len(rows))
	for _, r := range rows {
		tr := domain.Transition{At: r.RecordedAt, Path: r.Path, To: domain.State(r.ToValue)}
		if r.FromValue.Valid {
			from := domain.State(r.FromValue.Int64)
			tr.From = &from
		}
		res = append(res, tr)
	}
	return res, nil
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}
