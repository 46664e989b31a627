package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
    key      TEXT PRIMARY KEY,
    payload  BLOB NOT NULL,
    saved_at INTEGER NOT NULL
);
`

// Store is the sqlite-backed Cache. A single store serves all prefixes for
// an origin; writes are last-writer-wins snapshots.
type Store struct {
	db *sql.DB
}

// Open opens or creates the cache database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save implements Cache.
func (s *Store) Save(key string, value any) error {
	if s.db == nil {
		return ErrClosed
	}
	payload, err := seal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO entries (key, payload, saved_at) VALUES (?, ?, strftime('%s','now'))
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		key, payload,
	)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Load implements Cache.
func (s *Store) Load(key string, validity time.Duration, out any) (bool, error) {
	if s.db == nil {
		return false, ErrClosed
	}
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM entries WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cache entry: %w", err)
	}
	if !open(payload, validity, out) {
		// Lazy expiry: stale and corrupt entries are removed on read.
		if err := s.Delete(key); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Delete implements Cache.
func (s *Store) Delete(key string) error {
	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.Exec(`DELETE FROM entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
