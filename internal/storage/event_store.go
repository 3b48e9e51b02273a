package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meridian-hq/meridian/internal/core"
)

// EventStore persists synced event summaries.
type EventStore struct {
	db *DB
}

// NewEventStore creates an event store.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

// UpsertMany writes a batch of summaries in one transaction. Either the
// whole batch lands or none of it does.
func (s *EventStore) UpsertMany(events []core.EventSummary) error {
	if len(events) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.db.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO events (
			    event_id, calendar_id, title, start_time, end_time,
			    all_day, status, last_updated, payload, stored_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (calendar_id, event_id) DO UPDATE SET
			    title = excluded.title,
			    start_time = excluded.start_time,
			    end_time = excluded.end_time,
			    all_day = excluded.all_day,
			    status = excluded.status,
			    last_updated = excluded.last_updated,
			    payload = excluded.payload,
			    stored_at = excluded.stored_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ev := range events {
			payload, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("marshal event %s: %w", ev.ID, err)
			}
			if _, err := stmt.Exec(
				ev.ID, ev.CalendarID, ev.Title, ev.Start.UTC(), ev.End.UTC(),
				ev.AllDay, ev.Status, ev.LastUpdated.UTC(), payload, now,
			); err != nil {
				return fmt.Errorf("upsert event %s: %w", ev.ID, err)
			}
		}
		return nil
	})
}

// Get returns one stored summary.
func (s *EventStore) Get(calendarID, eventID string) (core.EventSummary, error) {
	var payload []byte
	err := s.db.conn.QueryRow(`
		SELECT payload FROM events WHERE calendar_id = ? AND event_id = ?
	`, calendarID, eventID).Scan(&payload)
	if err == sql.ErrNoRows {
		return core.EventSummary{}, core.ErrEventNotFound
	}
	if err != nil {
		return core.EventSummary{}, err
	}
	return decodeEvent(payload)
}

// Between returns stored summaries overlapping [start, end), ordered by
// start time.
func (s *EventStore) Between(start, end time.Time) ([]core.EventSummary, error) {
	rows, err := s.db.conn.Query(`
		SELECT payload FROM events
		WHERE end_time > ? AND start_time < ?
		ORDER BY start_time
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []core.EventSummary
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		ev, err := decodeEvent(payload)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Delete removes one summary. Deleting an absent row is not an error.
func (s *EventStore) Delete(calendarID, eventID string) error {
	_, err := s.db.conn.Exec(`
		DELETE FROM events WHERE calendar_id = ? AND event_id = ?
	`, calendarID, eventID)
	return err
}

// DeleteCalendar drops every stored summary for one calendar.
func (s *EventStore) DeleteCalendar(calendarID string) error {
	_, err := s.db.conn.Exec(`DELETE FROM events WHERE calendar_id = ?`, calendarID)
	return err
}

// Count returns the number of stored summaries.
func (s *EventStore) Count() (int, error) {
	var n int
	err := s.db.conn.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

func decodeEvent(payload []byte) (core.EventSummary, error) {
	var ev core.EventSummary
	if err := json.Unmarshal(payload, &ev); err != nil {
		return core.EventSummary{}, fmt.Errorf("decode event payload: %w", err)
	}
	return ev, nil
}
