package gcal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/meridian-hq/meridian/internal/core"
	"github.com/meridian-hq/meridian/internal/cursor"
	"github.com/meridian-hq/meridian/internal/logging"
	"github.com/meridian-hq/meridian/internal/normalize"
	"github.com/meridian-hq/meridian/internal/transport"
)

const maxPageSize = 100

// Config tunes the reader. Zero values fall back to sensible defaults.
type Config struct {
	// DefaultCalendarID is used when a call passes no calendar. Defaults
	// to "primary".
	DefaultCalendarID string

	// PageSize caps how many events a single page requests.
	PageSize int64
}

func (c Config) withDefaults() Config {
	if c.DefaultCalendarID == "" {
		c.DefaultCalendarID = "primary"
	}
	if c.PageSize <= 0 || c.PageSize > maxPageSize {
		c.PageSize = maxPageSize
	}
	return c
}

// ListOptions shape a listing or sync call.
type ListOptions struct {
	IncludeCancelled bool
	Expand           core.ExpandMode
	Filter           *core.EventFilter
}

// Reader exposes read-side calendar operations: windowed listing,
// full and incremental sync, and single-event lookup.
type Reader struct {
	api  API
	exec *transport.Executor
	norm *normalize.Normalizer
	cfg  Config
	log  *logging.Logger
}

// NewReader builds a Reader. exec, norm and log may be nil, in which
// case defaults are used.
func NewReader(api API, exec *transport.Executor, norm *normalize.Normalizer, cfg Config, log *logging.Logger) *Reader {
	if exec == nil {
		exec = transport.NewExecutor(transport.DefaultRetryConfig(), nil, nil)
	}
	if norm == nil {
		norm = normalize.New(nil, nil)
	}
	if log == nil {
		log = logging.Named("gcal")
	}
	return &Reader{api: api, exec: exec, norm: norm, cfg: cfg.withDefaults(), log: log}
}

// listPage fetches one raw page with retries applied.
func (r *Reader) listPage(ctx context.Context, p ListParams) (*EventsPage, error) {
	var page *EventsPage
	err := r.exec.Do(ctx, func() error {
		var opErr error
		page, opErr = r.api.ListEvents(ctx, p)
		return opErr
	})
	return page, err
}

// ListCalendars returns every calendar the account can read.
func (r *Reader) ListCalendars(ctx context.Context) ([]core.CalendarRef, error) {
	var refs []core.CalendarRef
	pageToken := ""
	for {
		var resp *calendar.CalendarList
		err := r.exec.Do(ctx, func() error {
			var opErr error
			resp, opErr = r.api.ListCalendars(ctx, pageToken)
			return opErr
		})
		if err != nil {
			return nil, fmt.Errorf("list calendars: %w", err)
		}
		for _, entry := range resp.Items {
			if entry == nil || entry.Id == "" {
				continue
			}
			refs = append(refs, normalize.CalendarRef(entry))
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return refs, nil
}

// GetEvent fetches and normalizes a single event.
func (r *Reader) GetEvent(ctx context.Context, calendarID, eventID string) (core.Event, error) {
	if calendarID == "" {
		calendarID = r.cfg.DefaultCalendarID
	}
	var raw *calendar.Event
	err := r.exec.Do(ctx, func() error {
		var opErr error
		raw, opErr = r.api.GetEvent(ctx, calendarID, eventID)
		return opErr
	})
	if err != nil {
		if transport.StatusCode(err) == http.StatusNotFound {
			return core.Event{}, fmt.Errorf("event %s: %w", eventID, core.ErrEventNotFound)
		}
		return core.Event{}, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return r.norm.Event(raw, calendarID, ""), nil
}

// ListEvents lists events across the given calendars inside [start, end),
// collection-major: every page of one calendar is drained before the next
// calendar begins. The returned cursor resumes exactly where the limit
// cut the traversal off.
func (r *Reader) ListEvents(ctx context.Context, start, end time.Time, calendarIDs []string, opts ListOptions, limit int, cursorToken string) (core.Page[core.EventSummary], error) {
	if len(calendarIDs) == 0 {
		calendarIDs = []string{r.cfg.DefaultCalendarID}
	}
	if limit <= 0 {
		limit = 50
	}

	cur := cursor.Decode(cursorToken)
	if cur.CollectionIndex >= len(calendarIDs) {
		cur = cursor.Start
	}

	singleEvents := opts.Expand == core.ExpandInstances

	var (
		items     []core.EventSummary
		nextToken string
	)

	idx := cur.CollectionIndex
	pageToken := cur.PageToken

collections:
	for ; idx < len(calendarIDs); idx++ {
		calID := calendarIDs[idx]
		for {
			remaining := int64(limit - len(items))
			if remaining <= 0 {
				break collections
			}
			pageSize := remaining
			if pageSize > r.cfg.PageSize {
				pageSize = r.cfg.PageSize
			}

			page, err := r.listPage(ctx, ListParams{
				CalendarID:   calID,
				PageToken:    pageToken,
				TimeMin:      start,
				TimeMax:      end,
				MaxResults:   pageSize,
				SingleEvents: singleEvents,
				OrderByStart: singleEvents,
				Query:        buildQuery(opts.Filter),
			})
			if err != nil {
				return core.Page[core.EventSummary]{}, fmt.Errorf("list events %s: %w", calID, err)
			}

			for _, raw := range page.Items {
				s, ok := r.summarize(raw, calID, opts.IncludeCancelled)
				if !ok {
					continue
				}
				items = append(items, s)
			}

			pageToken = page.NextPageToken
			if len(items) >= limit {
				if pageToken != "" {
					nextToken = cursor.Encode(idx, pageToken)
				} else if idx+1 < len(calendarIDs) {
					nextToken = cursor.Encode(idx+1, "")
				}
				break collections
			}
			if pageToken == "" {
				break
			}
		}
		pageToken = ""
	}

	items = applyFilter(items, opts.Filter)
	return core.Page[core.EventSummary]{
		Items:      items,
		NextCursor: nextToken,
		Total:      len(items),
	}, nil
}

// FindBetween returns full event records inside the window, recurring
// series expanded into instances. Individual lookups that fail are
// skipped rather than failing the whole window.
func (r *Reader) FindBetween(ctx context.Context, start, end time.Time, calendarID string, filter *core.EventFilter, limit int) ([]core.Event, error) {
	if calendarID == "" {
		calendarID = r.cfg.DefaultCalendarID
	}
	page, err := r.ListEvents(ctx, start, end, []string{calendarID}, ListOptions{
		Expand: core.ExpandInstances,
		Filter: filter,
	}, limit, "")
	if err != nil {
		return nil, err
	}
	events := make([]core.Event, 0, len(page.Items))
	for _, s := range page.Items {
		ev, err := r.GetEvent(ctx, s.CalendarID, s.ID)
		if err != nil {
			r.log.Debug("skipping event %s: %v", s.ID, err)
			continue
		}
		if filter != nil && filter.AttendeeContains != "" && !attendeeMatch(ev, filter.AttendeeContains) {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// FullSync walks every page of the calendar and returns the complete
// summary set plus the sync token for subsequent incremental calls.
func (r *Reader) FullSync(ctx context.Context, calendarID string, opts ListOptions) (core.Page[core.EventSummary], error) {
	if calendarID == "" {
		calendarID = r.cfg.DefaultCalendarID
	}
	// Cancelled events only arrive when the provider is asked for them;
	// without ShowDeleted a fallback full sync could never purge local
	// rows for events cancelled in the meantime.
	return r.drainPages(ctx, calendarID, opts, ListParams{
		CalendarID:  calendarID,
		MaxResults:  r.cfg.PageSize,
		ShowDeleted: opts.IncludeCancelled,
	})
}

// IncrementalSync returns only the events changed since the given sync
// token. A provider-expired token surfaces as core.ErrSyncTokenExpired so
// the caller can fall back to a full sync.
func (r *Reader) IncrementalSync(ctx context.Context, calendarID, syncToken string, opts ListOptions) (core.Page[core.EventSummary], error) {
	if syncToken == "" {
		return core.Page[core.EventSummary]{}, fmt.Errorf("incremental sync: %w: empty sync token", core.ErrInvalidInput)
	}
	if calendarID == "" {
		calendarID = r.cfg.DefaultCalendarID
	}
	// Deleted events must stay visible so callers can drop them from
	// any local store.
	return r.drainPages(ctx, calendarID, opts, ListParams{
		CalendarID:  calendarID,
		SyncToken:   syncToken,
		MaxResults:  r.cfg.PageSize,
		ShowDeleted: true,
	})
}

// drainPages exhausts a paged listing. The provider only attaches a
// sync token to the final page, so partial traversals never yield one.
func (r *Reader) drainPages(ctx context.Context, calendarID string, opts ListOptions, base ListParams) (core.Page[core.EventSummary], error) {
	var (
		items     []core.EventSummary
		syncToken string
	)
	params := base
	for {
		page, err := r.listPage(ctx, params)
		if err != nil {
			if transport.StatusCode(err) == http.StatusGone {
				return core.Page[core.EventSummary]{}, fmt.Errorf("sync %s: %w", calendarID, core.ErrSyncTokenExpired)
			}
			return core.Page[core.EventSummary]{}, fmt.Errorf("sync %s: %w", calendarID, err)
		}
		for _, raw := range page.Items {
			s, ok := r.summarize(raw, calendarID, opts.IncludeCancelled)
			if !ok {
				continue
			}
			items = append(items, s)
		}
		syncToken = page.NextSyncToken
		if page.NextPageToken == "" {
			break
		}
		params.PageToken = page.NextPageToken
		// Later pages continue from the page token alone.
		params.SyncToken = ""
	}
	items = applyFilter(items, opts.Filter)
	return core.Page[core.EventSummary]{
		Items:         items,
		NextSyncToken: syncToken,
		Total:         len(items),
	}, nil
}

// summarize normalizes one raw record, reporting whether it should be
// kept. Records without an id cannot be keyed and are dropped.
func (r *Reader) summarize(raw *calendar.Event, calendarID string, includeCancelled bool) (core.EventSummary, bool) {
	if raw == nil || raw.Id == "" {
		r.log.Debug("skipping event record without id in %s", calendarID)
		return core.EventSummary{}, false
	}
	if !includeCancelled && raw.Status == "cancelled" {
		return core.EventSummary{}, false
	}
	return r.norm.EventSummary(raw, calendarID, ""), true
}

// buildQuery maps the free-text part of a filter onto the provider's
// q parameter. Structured predicates are matched locally instead.
func buildQuery(f *core.EventFilter) string {
	if f == nil {
		return ""
	}
	return strings.TrimSpace(f.FreeText)
}

// applyFilter evaluates the structured predicates the provider cannot.
func applyFilter(items []core.EventSummary, f *core.EventFilter) []core.EventSummary {
	if f == nil || (f.TitleContains == "" && f.HasConference == nil) {
		return items
	}
	kept := items[:0]
	for _, s := range items {
		if f.TitleContains != "" && !strings.Contains(strings.ToLower(s.Title), strings.ToLower(f.TitleContains)) {
			continue
		}
		if f.HasConference != nil && s.HasConference != *f.HasConference {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

func attendeeMatch(ev core.Event, needle string) bool {
	needle = strings.ToLower(needle)
	for _, a := range ev.Attendees {
		if strings.Contains(strings.ToLower(a.Email), needle) ||
			strings.Contains(strings.ToLower(a.Name), needle) {
			return true
		}
	}
	return false
}
