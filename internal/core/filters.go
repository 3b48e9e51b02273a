package core

import "time"

// ExpandMode controls how recurring series appear in windowed listings:
// "none" returns series masters, "instances" returns concrete occurrences.
type ExpandMode string

const (
	ExpandNone      ExpandMode = "none"
	ExpandInstances ExpandMode = "instances"
)

// EventFilter holds optional structured filters that adapters translate into
// provider queries. HasConference is a derived flag the provider cannot
// express natively; adapters apply it as a post-filter.
type EventFilter struct {
	TitleContains    string `json:"title_contains,omitempty"`
	AttendeeContains string `json:"attendee_contains,omitempty"`
	HasConference    *bool  `json:"has_conference,omitempty"`
	FreeText         string `json:"free_text,omitempty"` // raw provider syntax escape hatch
}

// ThreadFilter holds optional structured filters for thread listings.
// Tri-state booleans: nil means "don't care".
type ThreadFilter struct {
	Unread          *bool      `json:"unread,omitempty"`
	Starred         *bool      `json:"starred,omitempty"`
	FromContains    string     `json:"from_contains,omitempty"`
	ToContains      string     `json:"to_contains,omitempty"`
	SubjectContains string     `json:"subject_contains,omitempty"`
	LabelIn         []string   `json:"label_in,omitempty"` // match any of these labels
	HasAttachment   *bool      `json:"has_attachment,omitempty"`
	After           *time.Time `json:"after,omitempty"`  // inclusive
	Before          *time.Time `json:"before,omitempty"` // exclusive
	FreeText        string     `json:"free_text,omitempty"`
}

// Bool is a helper for building tri-state filter fields.
func Bool(v bool) *bool { return &v }
