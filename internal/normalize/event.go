package normalize

import (
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/meridian-hq/meridian/internal/core"
	"github.com/meridian-hq/meridian/internal/recurrence"
)

// CalendarRef converts a calendarList item.
func CalendarRef(raw *calendar.CalendarListEntry) core.CalendarRef {
	return core.CalendarRef{
		ID:        raw.Id,
		Name:      raw.Summary,
		TimeZone:  raw.TimeZone,
		IsPrimary: raw.Primary,
	}
}

// EventSummary converts an events.list item into the canonical read-model
// row. Works for masters (singleEvents=false) and instances
// (singleEvents=true) alike.
func (n *Normalizer) EventSummary(raw *calendar.Event, calendarID, calendarTZ string) core.EventSummary {
	interval, _ := n.ResolveTimes(raw, calendarTZ)
	rec := recurrence.ParseList(raw.Recurrence)
	isInstance := raw.RecurringEventId != ""

	var seriesID string
	switch {
	case isInstance:
		seriesID = raw.RecurringEventId
	case rec != nil:
		seriesID = raw.Id
	}

	s := core.EventSummary{
		ID:                raw.Id,
		CalendarID:        calendarID,
		Title:             raw.Summary,
		Start:             interval.Start,
		End:               interval.End,
		AllDay:            interval.AllDay,
		LastUpdated:       n.parseUpdated(raw.Updated),
		IsRecurringSeries: rec != nil && !isInstance,
		SeriesID:          seriesID,
		HasConference:     hasConference(raw),
		Status:            raw.Status,
	}
	if s.IsRecurringSeries {
		s.Recurrence = rec
	}
	return s
}

// Event converts an events.get payload into the full canonical record.
func (n *Normalizer) Event(raw *calendar.Event, calendarID, calendarTZ string) core.Event {
	interval, tz := n.ResolveTimes(raw, calendarTZ)

	return core.Event{
		ID:            raw.Id,
		CalendarID:    calendarID,
		Title:         raw.Summary,
		Start:         interval.Start,
		End:           interval.End,
		AllDay:        interval.AllDay,
		TimeZone:      tz,
		Location:      raw.Location,
		Description:   raw.Description,
		Attendees:     n.attendees(raw.Attendees),
		Reminders:     n.reminders(raw.Reminders),
		LastUpdated:   n.parseUpdated(raw.Updated),
		HasConference: hasConference(raw),
		Recurrence:    recurrence.ParseList(raw.Recurrence),
		SeriesID:      raw.RecurringEventId,
		Status:        raw.Status,
	}
}

func (n *Normalizer) attendees(raw []*calendar.EventAttendee) []core.Attendee {
	if len(raw) == 0 {
		return nil
	}
	out := make([]core.Attendee, 0, len(raw))
	for _, a := range raw {
		if a == nil || a.Email == "" {
			n.log.Debug("skipping attendee without email")
			continue
		}
		out = append(out, core.Attendee{
			Email:          a.Email,
			Name:           a.DisplayName,
			Optional:       a.Optional,
			ResponseStatus: a.ResponseStatus,
		})
	}
	return out
}

// reminders converts override reminders. useDefault=true yields nil so the
// caller can infer calendar defaults.
func (n *Normalizer) reminders(raw *calendar.EventReminders) []core.Reminder {
	if raw == nil || raw.UseDefault || len(raw.Overrides) == 0 {
		return nil
	}
	out := make([]core.Reminder, 0, len(raw.Overrides))
	for _, r := range raw.Overrides {
		if r == nil {
			continue
		}
		out = append(out, core.Reminder{
			MinutesBeforeStart: int(r.Minutes),
			Method:             r.Method,
		})
	}
	return out
}

func (n *Normalizer) parseUpdated(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		n.log.WithField("updated", s).Debug("unparseable updated timestamp")
		return time.Time{}
	}
	return t
}

func hasConference(raw *calendar.Event) bool {
	return raw.HangoutLink != "" || raw.ConferenceData != nil
}
