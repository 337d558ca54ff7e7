package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// index persists cache entries. Recency is tracked with a monotonically
// increasing tick so ordering stays stable even when two accesses share a
// wall-clock timestamp.
type index struct {
	db *sql.DB
}

const nextTick = `(SELECT COALESCE(MAX(tick), 0) + 1 FROM cache_entries)`

func openIndex(path string) (*index, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open cache index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	ix := &index{db: db}
	if err := ix.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate cache index: %w", err)
	}
	return ix, nil
}

func (ix *index) migrate() error {
	_, err := ix.db.Exec(`
CREATE TABLE IF NOT EXISTS cache_entries (
  uri TEXT PRIMARY KEY,
  file TEXT NOT NULL,
  size_bytes INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  last_access INTEGER NOT NULL,
  tick INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS cache_entries_tick ON cache_entries(tick);
`)
	return err
}

func (ix *index) close() error {
	if ix.db == nil {
		return nil
	}
	return ix.db.Close()
}

func (ix *index) get(ctx context.Context, uri string) (Entry, bool, error) {
	var (
		e               Entry
		created, access int64
	)
	err := ix.db.QueryRowContext(ctx, `
SELECT uri, file, size_bytes, created_at, last_access FROM cache_entries WHERE uri=?;
`, uri).Scan(&e.URI, &e.Path, &e.Size, &created, &access)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup cache entry: %w", err)
	}
	e.CreatedAt = time.Unix(0, created)
	e.LastAccess = time.Unix(0, access)
	return e, true, nil
}

func (ix *index) put(ctx context.Context, e Entry) error {
	_, err := ix.db.ExecContext(ctx, `
INSERT INTO cache_entries(uri, file, size_bytes, created_at, last_access, tick)
VALUES(?, ?, ?, ?, ?, `+nextTick+`)
ON CONFLICT(uri) DO UPDATE SET
  file=excluded.file,
  size_bytes=excluded.size_bytes,
  created_at=excluded.created_at,
  last_access=excluded.last_access,
  tick=excluded.tick;
`, e.URI, e.Path, e.Size, e.CreatedAt.UnixNano(), e.LastAccess.UnixNano())
	if err != nil {
		return fmt.Errorf("record cache entry: %w", err)
	}
	return nil
}

func (ix *index) touch(ctx context.Context, uri string, at time.Time) error {
	_, err := ix.db.ExecContext(ctx, `UPDATE cache_entries SET last_access=?, tick=`+nextTick+` WHERE uri=?;`,
		at.UnixNano(), uri)
	if err != nil {
		return fmt.Errorf("touch cache entry: %w", err)
	}
	return nil
}

func (ix *index) delete(ctx context.Context, uri string) error {
	if _, err := ix.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE uri=?;`, uri); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (ix *index) deleteAll(ctx context.Context) error {
	if _, err := ix.db.ExecContext(ctx, `DELETE FROM cache_entries;`); err != nil {
		return fmt.Errorf("clear cache index: %w", err)
	}
	return nil
}

// list returns entries least recently used first.
func (ix *index) list(ctx context.Context) ([]Entry, error) {
	rows, err := ix.db.QueryContext(ctx, `
SELECT uri, file, size_bytes, created_at, last_access FROM cache_entries ORDER BY tick ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e               Entry
			created, access int64
		)
		if err := rows.Scan(&e.URI, &e.Path, &e.Size, &created, &access); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(0, created)
		e.LastAccess = time.Unix(0, access)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (ix *index) totals(ctx context.Context) (int64, int, error) {
	var (
		total int64
		count int
	)
	err := ix.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes), 0), COUNT(*) FROM cache_entries;`).Scan(&total, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("sum cache entries: %w", err)
	}
	return total, count, nil
}
