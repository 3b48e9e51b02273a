// Package core defines the provider-agnostic calendar and email types.
// Every other package operates on these canonical values; raw provider
// payloads never escape the normalization boundary.
package core

import (
	"time"
)

// -----------------------------------------------------------------------------
// Paging
// -----------------------------------------------------------------------------

// Page is a single page of results from a lister or a sync run.
//
// A page is either a windowed page (NextCursor carries the continuation) or a
// sync page (NextSyncToken carries the provider's change watermark) - never
// both at once.
type Page[T any] struct {
	Items []T `json:"items"`

	// NextCursor is an opaque continuation token. Empty means no more data.
	NextCursor string `json:"next_cursor,omitempty"`

	// NextSyncToken is the provider's change-tracking checkpoint, present
	// only on sync-mode responses.
	NextSyncToken string `json:"next_sync_token,omitempty"`

	// Total is the count across all pages when the provider can report it
	// cheaply; zero means unknown.
	Total int `json:"total,omitempty"`
}

// -----------------------------------------------------------------------------
// Calendar
// -----------------------------------------------------------------------------

// CalendarRef identifies a user-visible calendar container.
type CalendarRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TimeZone  string `json:"time_zone,omitempty"` // IANA zone, e.g. "America/Denver"
	IsPrimary bool   `json:"is_primary"`
}

// Recurrence is an RFC 5545-inspired recurrence rule.
//
// Count and Until are alternative termination conditions; a rule may set
// neither (unbounded) but by convention not both. Zero values mean unset.
type Recurrence struct {
	Freq       string    `json:"freq"` // DAILY | WEEKLY | MONTHLY | YEARLY
	Interval   int       `json:"interval"`
	ByWeekday  []string  `json:"byweekday,omitempty"`  // MO TU WE TH FR SA SU
	ByMonthday []int     `json:"bymonthday,omitempty"` // e.g. [1, 15, -1]
	Count      int       `json:"count,omitempty"`
	Until      time.Time `json:"until,omitempty"`
	TZID       string    `json:"tzid,omitempty"`
}

// TimeInterval is a canonical timezone-aware interval.
//
// For AllDay intervals, Start is midnight in the governing zone and End is
// exactly the following midnight (exclusive).
type TimeInterval struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`
}

// Attendee is an event participant.
type Attendee struct {
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	Optional       bool   `json:"optional,omitempty"`
	ResponseStatus string `json:"response_status,omitempty"` // accepted, declined, tentative, needsAction
}

// Reminder is a relative event reminder.
type Reminder struct {
	MinutesBeforeStart int    `json:"minutes_before_start"`
	Method             string `json:"method,omitempty"` // popup, email
}

// EventSummary is the lightweight read-model row for list views and sync
// results. Produced fresh on every normalization pass and replaced wholesale
// by upsert, never mutated in place.
type EventSummary struct {
	ID                string      `json:"id"`
	CalendarID        string      `json:"calendar_id"`
	Title             string      `json:"title"`
	Start             time.Time   `json:"start"`
	End               time.Time   `json:"end"`
	AllDay            bool        `json:"all_day"`
	LastUpdated       time.Time   `json:"last_updated,omitempty"`
	IsRecurringSeries bool        `json:"is_recurring_series"`
	SeriesID          string      `json:"series_id,omitempty"`
	Recurrence        *Recurrence `json:"recurrence,omitempty"`
	HasConference     bool        `json:"has_conference"`
	Status            string      `json:"status,omitempty"` // confirmed, tentative, cancelled
}

// Event is the full canonical event record. For an instance of a recurring
// series, SeriesID references the master.
type Event struct {
	ID            string      `json:"id"`
	CalendarID    string      `json:"calendar_id"`
	Title         string      `json:"title"`
	Start         time.Time   `json:"start"`
	End           time.Time   `json:"end"`
	AllDay        bool        `json:"all_day"`
	TimeZone      string      `json:"time_zone,omitempty"` // zone the event is defined in
	Location      string      `json:"location,omitempty"`
	Description   string      `json:"description,omitempty"`
	Attendees     []Attendee  `json:"attendees,omitempty"`
	Reminders     []Reminder  `json:"reminders,omitempty"`
	LastUpdated   time.Time   `json:"last_updated,omitempty"`
	HasConference bool        `json:"has_conference"`
	Recurrence    *Recurrence `json:"recurrence,omitempty"`
	SeriesID      string      `json:"series_id,omitempty"`
	Status        string      `json:"status,omitempty"`
}

// NewEvent is the input for creating an event, one-off or recurring.
type NewEvent struct {
	Title         string      `json:"title"`
	Start         time.Time   `json:"start"`
	End           time.Time   `json:"end"`
	AllDay        bool        `json:"all_day"`
	TimeZone      string      `json:"time_zone,omitempty"`
	Location      string      `json:"location,omitempty"`
	Description   string      `json:"description,omitempty"`
	Attendees     []Attendee  `json:"attendees,omitempty"`
	Reminders     []Reminder  `json:"reminders,omitempty"`
	HasConference bool        `json:"has_conference,omitempty"`
	Recurrence    *Recurrence `json:"recurrence,omitempty"`
}

// -----------------------------------------------------------------------------
// Email
// -----------------------------------------------------------------------------

// EmailAddress is an address with an optional display name.
type EmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// AttachmentMeta describes an attachment without its binary content.
type AttachmentMeta struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	ContentID string `json:"content_id,omitempty"` // for inline images (cid:...)
}

// Message is one message inside a thread. Bodies are optional so listings
// can stay lightweight.
type Message struct {
	ID             string           `json:"id"`
	ThreadID       string           `json:"thread_id"`
	Subject        string           `json:"subject"`
	From           EmailAddress     `json:"from"`
	To             []EmailAddress   `json:"to,omitempty"`
	Cc             []EmailAddress   `json:"cc,omitempty"`
	Bcc            []EmailAddress   `json:"bcc,omitempty"`
	Snippet        string           `json:"snippet,omitempty"`
	BodyText       string           `json:"body_text,omitempty"`
	BodyHTML       string           `json:"body_html,omitempty"`
	InternalTS     time.Time        `json:"internal_ts"`
	Labels         []string         `json:"labels,omitempty"`
	HasAttachments bool             `json:"has_attachments"`
	Attachments    []AttachmentMeta `json:"attachments,omitempty"`
}

// ThreadSummary is the lightweight row for thread list views and triage.
type ThreadSummary struct {
	ID           string         `json:"id"`
	Subject      string         `json:"subject"`
	LastUpdated  time.Time      `json:"last_updated"`
	MessageIDs   []string       `json:"message_ids,omitempty"`
	Participants []EmailAddress `json:"participants,omitempty"`
	Snippet      string         `json:"snippet,omitempty"`
	Labels       []string       `json:"labels,omitempty"`
	Unread       bool           `json:"unread"`
}

// Thread is a full conversation, messages oldest to newest.
type Thread struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	LastUpdated time.Time `json:"last_updated"`
	Labels      []string  `json:"labels,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
}
