package storage

import (
	"database/sql"
	"time"

	"github.com/meridian-hq/meridian/internal/core"
)

// CursorStore persists one sync cursor or watermark per provider stream.
type CursorStore struct {
	db *DB
}

// NewCursorStore creates a cursor store.
func NewCursorStore(db *DB) *CursorStore {
	return &CursorStore{db: db}
}

// Get returns the stored cursor for a provider, or core.ErrCursorNotFound.
func (s *CursorStore) Get(provider string) (string, error) {
	var cursor string
	err := s.db.conn.QueryRow(`
		SELECT cursor FROM sync_state WHERE provider = ?
	`, provider).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", core.ErrCursorNotFound
	}
	if err != nil {
		return "", err
	}
	return cursor, nil
}

// Save stores or replaces the cursor for a provider.
func (s *CursorStore) Save(provider, cursor string) error {
	_, err := s.db.conn.Exec(`
		INSERT INTO sync_state (provider, cursor, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (provider) DO UPDATE SET
		    cursor = excluded.cursor,
		    updated_at = excluded.updated_at
	`, provider, cursor, time.Now().UTC())
	return err
}

// Clear drops the cursor for a provider, forcing the next sync to run
// from scratch.
func (s *CursorStore) Clear(provider string) error {
	_, err := s.db.conn.Exec(`DELETE FROM sync_state WHERE provider = ?`, provider)
	return err
}
