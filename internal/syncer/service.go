// Package syncer drives full and incremental provider syncs and lands
// the results in local storage. Cursors advance only after a run has
// been fully persisted, so a failed run replays rather than losing data.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-hq/meridian/internal/core"
	"github.com/meridian-hq/meridian/internal/logging"
	"github.com/meridian-hq/meridian/internal/providers/gcal"
)

// Cursor keys, one stream per provider surface.
const (
	ProviderCalendar = "google-calendar"
	ProviderMail     = "google-mail"
)

// Sync modes reported in results.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// CalendarSource is the calendar read surface the service syncs from.
type CalendarSource interface {
	FullSync(ctx context.Context, calendarID string, opts gcal.ListOptions) (core.Page[core.EventSummary], error)
	IncrementalSync(ctx context.Context, calendarID, syncToken string, opts gcal.ListOptions) (core.Page[core.EventSummary], error)
}

// MailSource is the mail read surface the service syncs from.
type MailSource interface {
	FullSync(ctx context.Context, filter *core.ThreadFilter, limit int) (core.Page[core.ThreadSummary], error)
	IncrementalSync(ctx context.Context, watermark string) (core.Page[core.ThreadSummary], error)
}

// EventSink persists synced event summaries.
type EventSink interface {
	UpsertMany(events []core.EventSummary) error
	Delete(calendarID, eventID string) error
}

// ThreadSink persists synced thread summaries.
type ThreadSink interface {
	UpsertMany(threads []core.ThreadSummary) error
}

// CursorStore persists sync cursors between runs.
type CursorStore interface {
	Get(provider string) (string, error)
	Save(provider, cursor string) error
	Clear(provider string) error
}

// Config tunes the service.
type Config struct {
	CalendarID string
	MailLimit  int
}

func (c Config) withDefaults() Config {
	if c.CalendarID == "" {
		c.CalendarID = "primary"
	}
	if c.MailLimit <= 0 {
		c.MailLimit = 500
	}
	return c
}

// Result describes one completed sync run.
type Result struct {
	RunID    string        `json:"run_id"`
	Provider string        `json:"provider"`
	Mode     string        `json:"mode"`
	Synced   int           `json:"synced"`
	Removed  int           `json:"removed"`
	Cursor   string        `json:"cursor,omitempty"`
	Took     time.Duration `json:"took"`
}

// Service orchestrates provider syncs.
type Service struct {
	calendars CalendarSource
	mail      MailSource
	events    EventSink
	threads   ThreadSink
	cursors   CursorStore
	cfg       Config
	log       *logging.Logger
}

// New builds a Service. Either source may be nil when that provider is
// not connected; log may be nil.
func New(calendars CalendarSource, mail MailSource, events EventSink, threads ThreadSink, cursors CursorStore, cfg Config, log *logging.Logger) *Service {
	if log == nil {
		log = logging.Named("syncer")
	}
	return &Service{
		calendars: calendars,
		mail:      mail,
		events:    events,
		threads:   threads,
		cursors:   cursors,
		cfg:       cfg.withDefaults(),
		log:       log,
	}
}

// SyncCalendar runs one calendar sync: incremental when a stored sync
// token exists, full otherwise. An expired token is logged and the run
// transparently restarts as a full sync.
func (s *Service) SyncCalendar(ctx context.Context) (*Result, error) {
	if s.calendars == nil {
		return nil, fmt.Errorf("calendar sync: %w", core.ErrNotConnected)
	}
	started := time.Now()
	result := &Result{
		RunID:    uuid.NewString(),
		Provider: ProviderCalendar,
	}
	// Cancelled events must flow through sync so deletions reach the
	// local store.
	opts := gcal.ListOptions{IncludeCancelled: true}

	token, err := s.cursors.Get(ProviderCalendar)
	if err != nil && !errors.Is(err, core.ErrCursorNotFound) {
		return nil, fmt.Errorf("load calendar cursor: %w", err)
	}

	var page core.Page[core.EventSummary]
	if token != "" {
		result.Mode = ModeIncremental
		page, err = s.calendars.IncrementalSync(ctx, s.cfg.CalendarID, token, opts)
		if errors.Is(err, core.ErrSyncTokenExpired) {
			s.log.Warn("calendar sync token expired, falling back to full sync")
			if clearErr := s.cursors.Clear(ProviderCalendar); clearErr != nil {
				return nil, fmt.Errorf("clear expired cursor: %w", clearErr)
			}
			token = ""
		} else if err != nil {
			return nil, err
		}
	}
	if token == "" {
		result.Mode = ModeFull
		page, err = s.calendars.FullSync(ctx, s.cfg.CalendarID, opts)
		if err != nil {
			return nil, err
		}
	}

	var upserts []core.EventSummary
	for _, ev := range page.Items {
		if ev.Status == "cancelled" {
			if err := s.events.Delete(ev.CalendarID, ev.ID); err != nil {
				return nil, fmt.Errorf("remove cancelled event %s: %w", ev.ID, err)
			}
			result.Removed++
			continue
		}
		upserts = append(upserts, ev)
	}
	if err := s.events.UpsertMany(upserts); err != nil {
		return nil, fmt.Errorf("store events: %w", err)
	}
	result.Synced = len(upserts)

	if page.NextSyncToken != "" {
		if err := s.cursors.Save(ProviderCalendar, page.NextSyncToken); err != nil {
			return nil, fmt.Errorf("save calendar cursor: %w", err)
		}
		result.Cursor = page.NextSyncToken
	}

	result.Took = time.Since(started)
	s.log.WithFields(
		logging.Field{Key: "run", Value: result.RunID},
		logging.Field{Key: "mode", Value: result.Mode},
		logging.Field{Key: "synced", Value: result.Synced},
		logging.Field{Key: "removed", Value: result.Removed},
	).Info("calendar sync complete")
	return result, nil
}

// SyncMail runs one mail sync: incremental from the stored history
// watermark when one exists, full otherwise. An aged-out watermark is
// logged and the run transparently restarts as a full sync.
func (s *Service) SyncMail(ctx context.Context) (*Result, error) {
	if s.mail == nil {
		return nil, fmt.Errorf("mail sync: %w", core.ErrNotConnected)
	}
	started := time.Now()
	result := &Result{
		RunID:    uuid.NewString(),
		Provider: ProviderMail,
	}

	watermark, err := s.cursors.Get(ProviderMail)
	if err != nil && !errors.Is(err, core.ErrCursorNotFound) {
		return nil, fmt.Errorf("load mail cursor: %w", err)
	}

	var page core.Page[core.ThreadSummary]
	if watermark != "" {
		result.Mode = ModeIncremental
		page, err = s.mail.IncrementalSync(ctx, watermark)
		if errors.Is(err, core.ErrSyncTokenExpired) {
			s.log.Warn("mail history watermark expired, falling back to full sync")
			if clearErr := s.cursors.Clear(ProviderMail); clearErr != nil {
				return nil, fmt.Errorf("clear expired cursor: %w", clearErr)
			}
			watermark = ""
		} else if err != nil {
			return nil, err
		}
	}
	if watermark == "" {
		result.Mode = ModeFull
		page, err = s.mail.FullSync(ctx, nil, s.cfg.MailLimit)
		if err != nil {
			return nil, err
		}
	}

	if err := s.threads.UpsertMany(page.Items); err != nil {
		return nil, fmt.Errorf("store threads: %w", err)
	}
	result.Synced = len(page.Items)

	if page.NextSyncToken != "" {
		if err := s.cursors.Save(ProviderMail, page.NextSyncToken); err != nil {
			return nil, fmt.Errorf("save mail cursor: %w", err)
		}
		result.Cursor = page.NextSyncToken
	}

	result.Took = time.Since(started)
	s.log.WithFields(
		logging.Field{Key: "run", Value: result.RunID},
		logging.Field{Key: "mode", Value: result.Mode},
		logging.Field{Key: "synced", Value: result.Synced},
	).Info("mail sync complete")
	return result, nil
}

// SyncAll runs both providers, skipping any that is not connected.
func (s *Service) SyncAll(ctx context.Context) ([]*Result, error) {
	var results []*Result
	if s.calendars != nil {
		r, err := s.SyncCalendar(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	if s.mail != nil {
		r, err := s.SyncMail(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}
