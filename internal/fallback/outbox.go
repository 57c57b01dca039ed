// Package fallback keeps writes that could not reach MongoDB in a local
// SQLite outbox and replays them once the primary store is reachable again.
package fallback

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS outbox (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT    NOT NULL,
	document   BLOB    NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0,
	last_error TEXT    NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS outbox_created_at ON outbox (created_at);
`

type Entry struct {
	ID         int64
	Collection string
	Document   []byte
	Attempts   int
	LastError  string
	CreatedAt  time.Time
}

type Stats struct {
	Pending  int64      `json:"pending"`
	OldestAt *time.Time `json:"oldest_at,omitempty"`
	Failing  int64      `json:"failing"`
}

type Outbox struct {
	db *sql.DB
}

// Open creates (or reuses) the outbox database at path.
func Open(path string) (*Outbox, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create outbox dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open outbox: %w", err)
	}
	// single writer keeps SQLite away from SQLITE_BUSY
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create outbox schema: %w", err)
	}

	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

func (o *Outbox) Enqueue(ctx context.Context, collection string, document []byte) (int64, error) {
	res, err := o.db.ExecContext(ctx,
		`INSERT INTO outbox (collection, document, created_at) VALUES (?, ?, ?)`,
		collection, document, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue into outbox: %w", err)
	}
	return res.LastInsertId()
}

// Oldest returns up to limit entries in insertion order.
func (o *Outbox) Oldest(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT id, collection, document, attempts, last_error, created_at
		   FROM outbox ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Collection, &e.Document, &e.Attempts, &e.LastError, &created); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (o *Outbox) Delete(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id)
	return err
}

func (o *Outbox) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := o.db.ExecContext(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`, reason, id)
	return err
}

func (o *Outbox) Stats(ctx context.Context) (Stats, error) {
	var (
		stats  Stats
		oldest sql.NullInt64
	)
	err := o.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(created_at), COALESCE(SUM(CASE WHEN attempts > 0 THEN 1 ELSE 0 END), 0) FROM outbox`,
	).Scan(&stats.Pending, &oldest, &stats.Failing)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read outbox stats: %w", err)
	}
	if oldest.Valid {
		t := time.UnixMilli(oldest.Int64)
		stats.OldestAt = &t
	}
	return stats, nil
}
