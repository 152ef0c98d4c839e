package dimcache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists cache entries in a local session file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the session cache database.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "dimcache: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "dimcache: exec %s", pragma)
		}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS dim_cache (
		key       TEXT PRIMARY KEY,
		payload   TEXT NOT NULL,
		cached_at DATETIME NOT NULL
	)`); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "dimcache: migrate")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	var payload string
	var cachedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, cached_at FROM dim_cache WHERE key = ?`, key,
	).Scan(&payload, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "dimcache: get %s", key)
	}
	return &Entry{Timestamp: cachedAt, Data: []byte(payload)}, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dim_cache (key, payload, cached_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at`,
		key, string(e.Data), e.Timestamp,
	)
	if err != nil {
		return eris.Wrapf(err, "dimcache: set %s", key)
	}
	return nil
}

// Close closes the session file.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
