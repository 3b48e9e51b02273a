package gcal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"

	"github.com/meridian-hq/meridian/internal/core"
	"github.com/meridian-hq/meridian/internal/logging"
	"github.com/meridian-hq/meridian/internal/normalize"
	"github.com/meridian-hq/meridian/internal/recurrence"
	"github.com/meridian-hq/meridian/internal/transport"
)

// Writer performs mutating calendar operations.
type Writer struct {
	api  API
	exec *transport.Executor
	norm *normalize.Normalizer
	cfg  Config
	log  *logging.Logger
}

// NewWriter builds a Writer. exec, norm and log may be nil.
func NewWriter(api API, exec *transport.Executor, norm *normalize.Normalizer, cfg Config, log *logging.Logger) *Writer {
	if exec == nil {
		exec = transport.NewExecutor(transport.DefaultRetryConfig(), nil, nil)
	}
	if norm == nil {
		norm = normalize.New(nil, nil)
	}
	if log == nil {
		log = logging.Named("gcal")
	}
	return &Writer{api: api, exec: exec, norm: norm, cfg: cfg.withDefaults(), log: log}
}

// UpdateEventRequest carries a partial update; nil fields stay untouched.
type UpdateEventRequest struct {
	Title       *string
	Description *string
	Location    *string
	Start       *time.Time
	End         *time.Time
	AllDay      *bool
	Attendees   *[]core.Attendee
	Recurrence  *core.Recurrence
}

// CreateEvent inserts a new event and returns its normalized form.
func (w *Writer) CreateEvent(ctx context.Context, calendarID string, req core.NewEvent) (core.Event, error) {
	if calendarID == "" {
		calendarID = w.cfg.DefaultCalendarID
	}
	if req.Title == "" {
		return core.Event{}, fmt.Errorf("create event: %w: title", core.ErrMissingRequired)
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return core.Event{}, fmt.Errorf("create event: %w: start and end", core.ErrMissingRequired)
	}
	if !req.End.After(req.Start) && !req.AllDay {
		return core.Event{}, fmt.Errorf("create event: %w: end must be after start", core.ErrInvalidInput)
	}

	body := buildEventBody(req)
	if req.HasConference {
		body.ConferenceData = &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{
					Type: "hangoutsMeet",
				},
			},
		}
	}

	var created *calendar.Event
	err := w.exec.Do(ctx, func() error {
		var opErr error
		created, opErr = w.api.InsertEvent(ctx, calendarID, body)
		return opErr
	})
	if err != nil {
		return core.Event{}, fmt.Errorf("insert event: %w", err)
	}
	w.log.Info("created event %s in %s", created.Id, calendarID)
	return w.norm.Event(created, calendarID, ""), nil
}

// UpdateEvent applies a partial update on top of the current remote state.
func (w *Writer) UpdateEvent(ctx context.Context, calendarID, eventID string, req UpdateEventRequest) (core.Event, error) {
	if calendarID == "" {
		calendarID = w.cfg.DefaultCalendarID
	}
	var existing *calendar.Event
	err := w.exec.Do(ctx, func() error {
		var opErr error
		existing, opErr = w.api.GetEvent(ctx, calendarID, eventID)
		return opErr
	})
	if err != nil {
		if transport.StatusCode(err) == http.StatusNotFound {
			return core.Event{}, fmt.Errorf("event %s: %w", eventID, core.ErrEventNotFound)
		}
		return core.Event{}, fmt.Errorf("get event %s: %w", eventID, err)
	}

	applyUpdate(existing, req)

	var updated *calendar.Event
	err = w.exec.Do(ctx, func() error {
		var opErr error
		updated, opErr = w.api.UpdateEvent(ctx, calendarID, eventID, existing)
		return opErr
	})
	if err != nil {
		return core.Event{}, fmt.Errorf("update event %s: %w", eventID, err)
	}
	w.log.Info("updated event %s in %s", eventID, calendarID)
	return w.norm.Event(updated, calendarID, ""), nil
}

// DeleteEvent removes an event. A missing event maps to
// core.ErrEventNotFound.
func (w *Writer) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if calendarID == "" {
		calendarID = w.cfg.DefaultCalendarID
	}
	err := w.exec.Do(ctx, func() error {
		return w.api.DeleteEvent(ctx, calendarID, eventID)
	})
	if err != nil {
		switch transport.StatusCode(err) {
		case http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("event %s: %w", eventID, core.ErrEventNotFound)
		}
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	w.log.Info("deleted event %s from %s", eventID, calendarID)
	return nil
}

// buildEventBody maps a NewEvent onto the wire shape. All-day events use
// date-only boundaries; the provider treats End.Date as exclusive, which
// matches the half-open interval convention used everywhere else here.
func buildEventBody(req core.NewEvent) *calendar.Event {
	body := &calendar.Event{
		Summary:     req.Title,
		Description: req.Description,
		Location:    req.Location,
	}
	if req.AllDay {
		body.Start = &calendar.EventDateTime{Date: req.Start.Format("2006-01-02")}
		body.End = &calendar.EventDateTime{Date: req.End.Format("2006-01-02")}
	} else {
		body.Start = &calendar.EventDateTime{
			DateTime: req.Start.Format(time.RFC3339),
			TimeZone: req.TimeZone,
		}
		body.End = &calendar.EventDateTime{
			DateTime: req.End.Format(time.RFC3339),
			TimeZone: req.TimeZone,
		}
	}
	for _, a := range req.Attendees {
		if a.Email == "" {
			continue
		}
		body.Attendees = append(body.Attendees, &calendar.EventAttendee{
			Email:       a.Email,
			DisplayName: a.Name,
			Optional:    a.Optional,
		})
	}
	if req.Recurrence != nil {
		if line := recurrence.Build(req.Recurrence); line != "" {
			body.Recurrence = []string{line}
		}
	}
	if len(req.Reminders) > 0 {
		overrides := make([]*calendar.EventReminder, 0, len(req.Reminders))
		for _, rem := range req.Reminders {
			method := rem.Method
			if method == "" {
				method = "popup"
			}
			overrides = append(overrides, &calendar.EventReminder{
				Method:  method,
				Minutes: int64(rem.MinutesBeforeStart),
			})
		}
		body.Reminders = &calendar.EventReminders{
			UseDefault:      false,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		}
	}
	return body
}

func applyUpdate(ev *calendar.Event, req UpdateEventRequest) {
	if req.Title != nil {
		ev.Summary = *req.Title
	}
	if req.Description != nil {
		ev.Description = *req.Description
	}
	if req.Location != nil {
		ev.Location = *req.Location
	}

	allDay := ev.Start != nil && ev.Start.Date != ""
	if req.AllDay != nil {
		allDay = *req.AllDay
	}
	if req.Start != nil {
		ev.Start = eventDateTime(*req.Start, allDay)
	}
	if req.End != nil {
		ev.End = eventDateTime(*req.End, allDay)
	}
	if req.Attendees != nil {
		ev.Attendees = nil
		for _, a := range *req.Attendees {
			if a.Email == "" {
				continue
			}
			ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{
				Email:       a.Email,
				DisplayName: a.Name,
				Optional:    a.Optional,
			})
		}
	}
	if req.Recurrence != nil {
		if line := recurrence.Build(req.Recurrence); line != "" {
			ev.Recurrence = []string{line}
		} else {
			ev.Recurrence = nil
		}
	}
}

func eventDateTime(t time.Time, allDay bool) *calendar.EventDateTime {
	if allDay {
		return &calendar.EventDateTime{Date: t.Format("2006-01-02")}
	}
	return &calendar.EventDateTime{DateTime: t.Format(time.RFC3339)}
}
