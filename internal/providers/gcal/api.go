// Package gcal is the Google Calendar adapter: windowed listing across
// calendars with a composite cursor, and full/incremental change sync.
package gcal

import (
	"context"
	"time"

	"google.golang.org/api/calendar/v3"
)

// ListParams describes one events.list page request.
type ListParams struct {
	CalendarID string

	// PageToken and SyncToken are mutually exclusive continuations: a page
	// token continues a traversal, a sync token starts an incremental feed.
	PageToken string
	SyncToken string

	TimeMin      time.Time
	TimeMax      time.Time
	MaxResults   int64
	SingleEvents bool
	OrderByStart bool
	Query        string
	ShowDeleted  bool
}

// EventsPage is the raw structured response of one page request.
type EventsPage struct {
	Items         []*calendar.Event
	NextPageToken string
	NextSyncToken string
}

// API is the transport surface the reader and writer depend on. Tests
// substitute fakes; production uses the wrapped Calendar service.
type API interface {
	ListEvents(ctx context.Context, p ListParams) (*EventsPage, error)
	GetEvent(ctx context.Context, calendarID, eventID string) (*calendar.Event, error)
	ListCalendars(ctx context.Context, pageToken string) (*calendar.CalendarList, error)
	InsertEvent(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, ev *calendar.Event) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// serviceAPI implements API over a real Calendar service.
type serviceAPI struct {
	svc *calendar.Service
}

// NewAPI wraps a Calendar service.
func NewAPI(svc *calendar.Service) API {
	return &serviceAPI{svc: svc}
}

func (a *serviceAPI) ListEvents(ctx context.Context, p ListParams) (*EventsPage, error) {
	call := a.svc.Events.List(p.CalendarID).
		Context(ctx).
		ShowDeleted(p.ShowDeleted).
		SingleEvents(p.SingleEvents)

	if p.MaxResults > 0 {
		call = call.MaxResults(p.MaxResults)
	}
	if p.SyncToken != "" {
		call = call.SyncToken(p.SyncToken)
	}
	if p.PageToken != "" {
		call = call.PageToken(p.PageToken)
	}
	if !p.TimeMin.IsZero() {
		call = call.TimeMin(p.TimeMin.UTC().Format(time.RFC3339))
	}
	if !p.TimeMax.IsZero() {
		call = call.TimeMax(p.TimeMax.UTC().Format(time.RFC3339))
	}
	if p.Query != "" {
		call = call.Q(p.Query)
	}
	if p.OrderByStart {
		call = call.OrderBy("startTime")
	}

	resp, err := call.Do()
	if err != nil {
		return nil, err
	}
	return &EventsPage{
		Items:         resp.Items,
		NextPageToken: resp.NextPageToken,
		NextSyncToken: resp.NextSyncToken,
	}, nil
}

func (a *serviceAPI) GetEvent(ctx context.Context, calendarID, eventID string) (*calendar.Event, error) {
	return a.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
}

func (a *serviceAPI) ListCalendars(ctx context.Context, pageToken string) (*calendar.CalendarList, error) {
	call := a.svc.CalendarList.List().
		Context(ctx).
		MinAccessRole("reader").
		MaxResults(250)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func (a *serviceAPI) InsertEvent(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error) {
	return a.svc.Events.Insert(calendarID, ev).Context(ctx).SendUpdates("all").Do()
}

func (a *serviceAPI) UpdateEvent(ctx context.Context, calendarID, eventID string, ev *calendar.Event) (*calendar.Event, error) {
	return a.svc.Events.Update(calendarID, eventID, ev).Context(ctx).SendUpdates("all").Do()
}

func (a *serviceAPI) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return a.svc.Events.Delete(calendarID, eventID).Context(ctx).SendUpdates("all").Do()
}
