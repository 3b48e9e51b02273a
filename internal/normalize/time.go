// Package normalize is the strict parse boundary between raw Google API
// payloads and the canonical types in core. Nothing outside this package
// touches provider wire shapes for entity content.
package normalize

import (
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/meridian-hq/meridian/internal/core"
	"github.com/meridian-hq/meridian/internal/logging"
	"github.com/meridian-hq/meridian/internal/transport"
)

// Normalizer converts raw provider payloads into canonical entities.
// Fallback values for malformed records are derived from the injected clock
// so anomaly handling stays deterministic under test.
type Normalizer struct {
	clock transport.Clock
	log   *logging.Logger
}

// New creates a Normalizer. clock and log may be nil.
func New(clock transport.Clock, log *logging.Logger) *Normalizer {
	if clock == nil {
		clock = transport.SystemClock{}
	}
	if log == nil {
		log = logging.Named("normalize")
	}
	return &Normalizer{clock: clock, log: log}
}

// ResolveTimes converts a Google event's start/end objects into a canonical
// TimeInterval plus the canonical zone name (start zone, else end zone, else
// the calendar default).
//
// All-day events (date only on both sides) become a one-day interval
// [midnight, next midnight) in the resolved zone; the provider's explicit
// end date is ignored, so a multi-day all-day span is represented by its
// start date alone. Timed events parse as RFC3339; an instant without an
// offset is localized by its declared zone, falling back to UTC. Malformed
// shapes fall back to [now, now+1h) with a warning tagged by event id.
func (n *Normalizer) ResolveTimes(raw *calendar.Event, calendarTZ string) (core.TimeInterval, string) {
	var start, end *calendar.EventDateTime
	if raw != nil {
		start = raw.Start
		end = raw.End
	}
	if start == nil {
		start = &calendar.EventDateTime{}
	}
	if end == nil {
		end = &calendar.EventDateTime{}
	}

	startTZ := firstNonEmpty(start.TimeZone, calendarTZ)
	endTZ := firstNonEmpty(end.TimeZone, calendarTZ)
	canonicalTZ := firstNonEmpty(startTZ, endTZ)

	// Timed event: at least one side carries a dateTime.
	if start.DateTime != "" || end.DateTime != "" {
		s := n.parseInstant(start.DateTime, startTZ)
		e := n.parseInstant(end.DateTime, endTZ)
		if s.IsZero() || e.IsZero() {
			n.log.WithField("event_id", eventID(raw)).Warn("event start/end missing or unparseable, substituting defaults")
			now := n.clock.Now()
			if s.IsZero() {
				s = now
			}
			if e.IsZero() {
				e = s.Add(time.Hour)
			}
		}
		if !e.After(s) {
			n.log.WithField("event_id", eventID(raw)).Warn("event end does not follow start, substituting 1h duration")
			e = s.Add(time.Hour)
		}
		return core.TimeInterval{Start: s, End: e, AllDay: false}, canonicalTZ
	}

	// All-day event: date on both sides.
	if start.Date != "" && end.Date != "" {
		return n.allDayInterval(start.Date, startTZ, eventID(raw)), canonicalTZ
	}

	// Unknown shape.
	n.log.WithField("event_id", eventID(raw)).Warn("event has unknown start/end shape, substituting defaults")
	now := n.clock.Now()
	return core.TimeInterval{Start: now, End: now.Add(time.Hour)}, canonicalTZ
}

// allDayInterval builds [midnight, next midnight) in tzName for a
// "YYYY-MM-DD" date string.
func (n *Normalizer) allDayInterval(date, tzName, id string) core.TimeInterval {
	loc := n.loadLocation(tzName)
	d, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		n.log.WithFields(
			logging.Field{Key: "event_id", Value: id},
			logging.Field{Key: "date", Value: date},
		).Warn("all-day date unparseable, substituting today")
		now := n.clock.Now().In(loc)
		d = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	}
	return core.TimeInterval{
		Start:  d,
		End:    d.AddDate(0, 0, 1),
		AllDay: true,
	}
}

// parseInstant parses an RFC3339 string. A value without an offset is
// localized using tzName, falling back to UTC. Returns zero on failure.
func (n *Normalizer) parseInstant(s, tzName string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	// No offset present; interpret in the declared zone.
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, n.loadLocation(tzName)); err == nil {
		return t
	}
	n.log.WithField("value", s).Warn("rfc3339 parse failed")
	return time.Time{}
}

func (n *Normalizer) loadLocation(tzName string) *time.Location {
	if tzName == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		n.log.WithField("tz", tzName).Debug("unknown time zone, falling back to UTC")
		return time.UTC
	}
	return loc
}

func eventID(raw *calendar.Event) string {
	if raw == nil {
		return ""
	}
	return raw.Id
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
