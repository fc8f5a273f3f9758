package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dshills/docsync/internal/locator"
)

const schema = `
CREATE TABLE IF NOT EXISTS locator_paths (
	kind TEXT NOT NULL,
	key TEXT NOT NULL,
	position INTEGER NOT NULL,
	path TEXT NOT NULL,
	PRIMARY KEY (kind, key, position)
)`

// SQLiteStore is a Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// A second connection to ":memory:" would see a different database.
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an open database and creates the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, p locator.Partition, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT path FROM locator_paths WHERE kind = ? AND key = ? ORDER BY position ASC",
		p.String(), key,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get cached paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan cached path: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, p locator.Partition, key string, paths []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM locator_paths WHERE kind = ? AND key = ?",
		p.String(), key,
	); err != nil {
		return fmt.Errorf("failed to clear cached paths: %w", err)
	}

	for i, path := range paths {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO locator_paths (kind, key, position, path) VALUES (?, ?, ?, ?)",
			p.String(), key, i, path,
		); err != nil {
			return fmt.Errorf("failed to record cached path: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cached paths: %w", err)
	}
	return nil
}

// Keys implements Store.
func (s *SQLiteStore) Keys(ctx context.Context, p locator.Partition) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT key FROM locator_paths WHERE kind = ? ORDER BY key ASC",
		p.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan cache key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
