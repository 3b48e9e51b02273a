package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/meridian-hq/meridian/internal/core"
)

// TokenStore persists OAuth tokens, one per provider.
type TokenStore struct {
	db *DB
}

// NewTokenStore creates a token store.
func NewTokenStore(db *DB) *TokenStore {
	return &TokenStore{db: db}
}

// Get returns the stored token for a provider, or core.ErrNotConnected
// when the account was never authorized.
func (s *TokenStore) Get(provider string) (*oauth2.Token, error) {
	var payload []byte
	err := s.db.conn.QueryRow(`
		SELECT token FROM tokens WHERE provider = ?
	`, provider).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotConnected
	}
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(payload, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

// Save stores or replaces the token for a provider.
func (s *TokenStore) Save(provider string, tok *oauth2.Token) error {
	payload, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	_, err = s.db.conn.Exec(`
		INSERT INTO tokens (provider, token, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (provider) DO UPDATE SET
		    token = excluded.token,
		    updated_at = excluded.updated_at
	`, provider, payload, time.Now().UTC())
	return err
}

// Delete removes the stored token for a provider.
func (s *TokenStore) Delete(provider string) error {
	_, err := s.db.conn.Exec(`DELETE FROM tokens WHERE provider = ?`, provider)
	return err
}
