package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meridian-hq/meridian/internal/core"
)

// ThreadStore persists synced thread summaries.
type ThreadStore struct {
	db *DB
}

// NewThreadStore creates a thread store.
func NewThreadStore(db *DB) *ThreadStore {
	return &ThreadStore{db: db}
}

// UpsertMany writes a batch of summaries in one transaction.
func (s *ThreadStore) UpsertMany(threads []core.ThreadSummary) error {
	if len(threads) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.db.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO threads (
			    thread_id, subject, unread, last_updated, payload, stored_at
			) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (thread_id) DO UPDATE SET
			    subject = excluded.subject,
			    unread = excluded.unread,
			    last_updated = excluded.last_updated,
			    payload = excluded.payload,
			    stored_at = excluded.stored_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range threads {
			payload, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("marshal thread %s: %w", t.ID, err)
			}
			if _, err := stmt.Exec(
				t.ID, t.Subject, t.Unread, t.LastUpdated.UTC(), payload, now,
			); err != nil {
				return fmt.Errorf("upsert thread %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// Get returns one stored summary.
func (s *ThreadStore) Get(threadID string) (core.ThreadSummary, error) {
	var payload []byte
	err := s.db.conn.QueryRow(`
		SELECT payload FROM threads WHERE thread_id = ?
	`, threadID).Scan(&payload)
	if err == sql.ErrNoRows {
		return core.ThreadSummary{}, core.ErrThreadNotFound
	}
	if err != nil {
		return core.ThreadSummary{}, err
	}
	return decodeThread(payload)
}

// Recent returns the most recently updated summaries, newest first.
func (s *ThreadStore) Recent(limit int) ([]core.ThreadSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.conn.Query(`
		SELECT payload FROM threads
		ORDER BY last_updated DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []core.ThreadSummary
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		t, err := decodeThread(payload)
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// Delete removes one summary. Deleting an absent row is not an error.
func (s *ThreadStore) Delete(threadID string) error {
	_, err := s.db.conn.Exec(`DELETE FROM threads WHERE thread_id = ?`, threadID)
	return err
}

// Count returns the number of stored summaries.
func (s *ThreadStore) Count() (int, error) {
	var n int
	err := s.db.conn.QueryRow(`SELECT COUNT(*) FROM threads`).Scan(&n)
	return n, err
}

func decodeThread(payload []byte) (core.ThreadSummary, error) {
	var t core.ThreadSummary
	if err := json.Unmarshal(payload, &t); err != nil {
		return core.ThreadSummary{}, fmt.Errorf("decode thread payload: %w", err)
	}
	return t, nil
}
