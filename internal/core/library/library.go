// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package library owns a user's tracked-series list: the LibraryEntry
aggregate that anchors a reader to a series before or after that series has
even been resolved in the catalogue, by keying functionally on
(user_id, source_url) rather than requiring a Series row up front.

Read-progress mutation itself — last_read_chapter, XP, streaks — belongs to
the sibling internal/core/progress package; this package owns the entry's
identity, status, and catalogue metadata only.
*/
package library

import "time"

// # Domain Enums

// Status is the reader's relationship to a tracked series.
type Status string

const (
	StatusReading   Status = "reading"
	StatusCompleted Status = "completed"
	StatusPlanning  Status = "planning"
	StatusDropped   Status = "dropped"
	StatusPaused    Status = "paused"
)

// IsValid reports whether s is a recognised [Status] value.
func (s Status) IsValid() bool {
	switch s {
	case StatusReading, StatusCompleted, StatusPlanning, StatusDropped, StatusPaused:
		return true
	}
	return false
}

// MetadataStatus tracks whether an entry has been reconciled against the
// catalogue yet.
type MetadataStatus string

const (
	// MetadataStatusPending means the entry has not yet been matched to a
	// Series/SeriesSource; import/add just recorded the raw source_url.
	MetadataStatusPending MetadataStatus = "pending"
	// MetadataStatusEnriched means series_id has been resolved.
	MetadataStatusEnriched MetadataStatus = "enriched"
	// MetadataStatusUnavailable means enrichment failed non-fatally and will
	// be retried periodically.
	MetadataStatusUnavailable MetadataStatus = "unavailable"
	// MetadataStatusFailed means enrichment failed outright; retry-metadata
	// re-attempts resolution from this state and moves the entry to
	// enriched or unavailable.
	MetadataStatusFailed MetadataStatus = "failed"
)

// # Field Identifiers

const (
	FieldSourceURL  = "source_url"
	FieldStatus     = "status"
	FieldUserRating = "user_rating"
)

// Entry is one series a user tracks.
type Entry struct {
	ID                        string         `json:"id"`
	UserID                    string         `json:"user_id"`
	SeriesID                  *string        `json:"series_id,omitempty"`
	SourceURL                 string         `json:"source_url"`
	SourceName                string         `json:"source_name"`
	Status                    Status         `json:"status"`
	LastReadChapter           string         `json:"last_read_chapter"` // canonical decimal string; "0" if unread
	LastReadAt                *time.Time     `json:"last_read_at,omitempty"`
	UserRating                *int           `json:"user_rating,omitempty"`
	PreferredSource           *string        `json:"preferred_source,omitempty"`
	MetadataStatus            MetadataStatus `json:"metadata_status"`
	SeriesCompletionXPGranted bool           `json:"series_completion_xp_granted"`
	CreatedAt                 time.Time      `json:"created_at"`
	UpdatedAt                 time.Time      `json:"updated_at"`
	DeletedAt                 *time.Time     `json:"-"`
}

// Filter narrows ListByUser results.
type Filter struct {
	Status Status // empty = all statuses
}
