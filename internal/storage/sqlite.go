// Package storage persists synced calendar and mail state in SQLite:
// normalized summaries as JSON payloads with indexed scalar columns,
// plus sync cursors and OAuth tokens.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn     *sql.DB
	path     string
	inMemory bool
}

// Config for database initialization.
type Config struct {
	Path     string // path to the database file
	InMemory bool   // in-memory database, for tests
}

// Open opens or creates the database and applies pragmas.
func Open(cfg Config) (*DB, error) {
	var dsn string
	if cfg.InMemory {
		dsn = ":memory:?cache=shared"
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		dsn = cfg.Path
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite serializes writes; a single connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: cfg.Path, inMemory: cfg.InMemory}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB for direct access.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Transaction executes fn inside a transaction, rolling back on error.
func (db *DB) Transaction(fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
