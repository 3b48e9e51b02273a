package storage

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/meridian-hq/meridian/internal/core"
)

// testDB creates an in-memory database for testing
func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

func testEvent(id string, start time.Time) core.EventSummary {
	return core.EventSummary{
		ID:          id,
		CalendarID:  "primary",
		Title:       "event " + id,
		Start:       start,
		End:         start.Add(time.Hour),
		LastUpdated: start,
		Status:      "confirmed",
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestEventStoreUpsertAndGet(t *testing.T) {
	db := testDB(t)
	store := NewEventStore(db)
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	if err := store.UpsertMany([]core.EventSummary{testEvent("e1", start)}); err != nil {
		t.Fatalf("UpsertMany: %v", err)
	}

	got, err := store.Get("primary", "e1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "event e1" || !got.Start.Equal(start) {
		t.Errorf("got %+v", got)
	}

	// Upsert replaces.
	updated := testEvent("e1", start)
	updated.Title = "renamed"
	if err := store.UpsertMany([]core.EventSummary{updated}); err != nil {
		t.Fatalf("UpsertMany update: %v", err)
	}
	got, _ = store.Get("primary", "e1")
	if got.Title != "renamed" {
		t.Errorf("title = %q, want renamed", got.Title)
	}
	if n, _ := store.Count(); n != 1 {
		t.Errorf("count = %d, want 1 after upsert", n)
	}
}

func TestEventStoreGetMissing(t *testing.T) {
	store := NewEventStore(testDB(t))
	if _, err := store.Get("primary", "nope"); !errors.Is(err, core.ErrEventNotFound) {
		t.Fatalf("err = %v, want ErrEventNotFound", err)
	}
}

func TestEventStoreBetween(t *testing.T) {
	db := testDB(t)
	store := NewEventStore(db)
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	events := []core.EventSummary{
		testEvent("early", day.Add(8*time.Hour)),
		testEvent("late", day.Add(20*time.Hour)),
		testEvent("tomorrow", day.AddDate(0, 0, 1).Add(9*time.Hour)),
	}
	if err := store.UpsertMany(events); err != nil {
		t.Fatalf("UpsertMany: %v", err)
	}

	got, err := store.Between(day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Between: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2 inside the day", len(got))
	}
	if got[0].ID != "early" || got[1].ID != "late" {
		t.Errorf("order = %s, %s, want start-time ascending", got[0].ID, got[1].ID)
	}
}

func TestEventStoreDelete(t *testing.T) {
	db := testDB(t)
	store := NewEventStore(db)
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	store.UpsertMany([]core.EventSummary{testEvent("e1", start)})
	if err := store.Delete("primary", "e1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get("primary", "e1"); !errors.Is(err, core.ErrEventNotFound) {
		t.Error("event still present after delete")
	}
	// Deleting again is a no-op.
	if err := store.Delete("primary", "e1"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestThreadStoreRoundTrip(t *testing.T) {
	db := testDB(t)
	store := NewThreadStore(db)
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	threads := []core.ThreadSummary{
		{ID: "t1", Subject: "older", LastUpdated: base, Unread: true},
		{ID: "t2", Subject: "newer", LastUpdated: base.Add(time.Hour)},
	}
	if err := store.UpsertMany(threads); err != nil {
		t.Fatalf("UpsertMany: %v", err)
	}

	got, err := store.Get("t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Unread || got.Subject != "older" {
		t.Errorf("got %+v", got)
	}

	recent, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "t2" {
		t.Errorf("recent = %+v, want newest first", recent)
	}
}

func TestThreadStoreGetMissing(t *testing.T) {
	store := NewThreadStore(testDB(t))
	if _, err := store.Get("nope"); !errors.Is(err, core.ErrThreadNotFound) {
		t.Fatalf("err = %v, want ErrThreadNotFound", err)
	}
}

func TestCursorStoreRoundTrip(t *testing.T) {
	store := NewCursorStore(testDB(t))

	if _, err := store.Get("google-calendar"); !errors.Is(err, core.ErrCursorNotFound) {
		t.Fatalf("err = %v, want ErrCursorNotFound before save", err)
	}

	if err := store.Save("google-calendar", "token-1"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Get("google-calendar")
	if err != nil || got != "token-1" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	// Save replaces.
	store.Save("google-calendar", "token-2")
	got, _ = store.Get("google-calendar")
	if got != "token-2" {
		t.Errorf("cursor = %q, want token-2", got)
	}

	if err := store.Clear("google-calendar"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := store.Get("google-calendar"); !errors.Is(err, core.ErrCursorNotFound) {
		t.Error("cursor still present after clear")
	}
}

func TestTokenStoreRoundTrip(t *testing.T) {
	store := NewTokenStore(testDB(t))

	if _, err := store.Get("google"); !errors.Is(err, core.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected before save", err)
	}

	tok := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Save("google", tok); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get("google")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AccessToken != "access" || got.RefreshToken != "refresh" {
		t.Errorf("got %+v", got)
	}

	if err := store.Delete("google"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get("google"); !errors.Is(err, core.ErrNotConnected) {
		t.Error("token still present after delete")
	}
}

func TestTransactionRollsBack(t *testing.T) {
	db := testDB(t)
	store := NewEventStore(db)

	boom := errors.New("boom")
	err := db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO events (calendar_id, event_id, title, start_time, end_time, payload, stored_at)
			 VALUES ('primary', 'e1', 't', '2025-06-02T09:00:00Z', '2025-06-02T10:00:00Z', '{}', '2025-06-02T09:00:00Z')`,
		); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transaction error = %v, want boom", err)
	}
	if n, _ := store.Count(); n != 0 {
		t.Errorf("count = %d, want 0 after rollback", n)
	}
}
