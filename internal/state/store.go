// Package state persists the daemon's small amount of crash-relevant state,
// currently the replace journal.
//
// Entries live in named buckets of a SQLite database opened through
// modernc.org/sqlite (pure Go), so the daemon cross-compiles for embedded
// targets without a C toolchain.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var (
	ErrNotFound      = errors.New("key not found")
	ErrBucketMissing = errors.New("bucket does not exist")
	ErrStoreClosed   = errors.New("store is closed")
)

// Store is the bucketed key-value surface used by journal accessors.
type Store interface {
	EnsureBucket(name string) error
	PutJSON(bucket, key string, v any) error
	List(bucket string) (map[string][]byte, error)
	Delete(bucket, key string) error
	Close() error
}

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// Options configures the SQLite store.
type Options struct {
	Path    string // database file, or ":memory:"
	WALMode bool
}

// DefaultOptions returns the options used by the daemon.
func DefaultOptions(path string) Options {
	return Options{Path: path, WALMode: true}
}

const schema = `
CREATE TABLE IF NOT EXISTS buckets (
	name TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	bucket TEXT NOT NULL REFERENCES buckets(name),
	key TEXT NOT NULL,
	value BLOB NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (bucket, key)
);`

// NewSQLiteStore opens (creating if needed) the database at opts.Path.
func NewSQLiteStore(opts Options) (*SQLiteStore, error) {
	memory := opts.Path == ":memory:"
	dsn := opts.Path
	if opts.WALMode && !memory {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// EnsureBucket creates a bucket unless it already exists.
func (s *SQLiteStore) EnsureBucket(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := s.db.Exec("INSERT OR IGNORE INTO buckets (name, created_at) VALUES (?, ?)", name, time.Now().UTC())
	return err
}

// PutJSON stores v, encoded as JSON, under bucket/key. The bucket must exist.
func (s *SQLiteStore) PutJSON(bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", bucket, key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	var one int
	err = s.db.QueryRow("SELECT 1 FROM buckets WHERE name = ?", bucket).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBucketMissing
	}
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO entries (bucket, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(bucket, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, bucket, key, data, time.Now().UTC())
	return err
}

// Delete removes bucket/key, returning ErrNotFound if it is absent.
func (s *SQLiteStore) Delete(bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.Exec("DELETE FROM entries WHERE bucket = ? AND key = ?", bucket, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns the raw values of every key in bucket.
func (s *SQLiteStore) List(bucket string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query("SELECT key, value FROM entries WHERE bucket = ?", bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}

// Close closes the database. Further calls return ErrStoreClosed.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
