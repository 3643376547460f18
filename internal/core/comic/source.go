// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comic

import "time"

// SyncPriority controls how aggressively the Source-Poll Worker schedules a
// SeriesSource for re-checking.
type SyncPriority string

const (
	SyncPriorityHot  SyncPriority = "HOT"
	SyncPriorityWarm SyncPriority = "WARM"
	SyncPriorityCold SyncPriority = "COLD"
)

// SourceStatus tracks the health of a SeriesSource as observed by recent polls.
type SourceStatus string

const (
	SourceStatusActive   SourceStatus = "active"
	SourceStatusBroken   SourceStatus = "broken"
	SourceStatusInactive SourceStatus = "inactive"
)

// SeriesSource attaches an external provider (e.g. a scanlation aggregator)
// to a Series as a chapter-supplying source. A series can have many
// SeriesSource rows, one per provider it is tracked on.
type SeriesSource struct {
	ID                 string       `json:"id"`
	ComicID            string       `json:"comic_id"`
	SourceName         string       `json:"source_name"`
	SourceID           string       `json:"source_id"` // opaque identifier scoped to SourceName
	SourceURL          string       `json:"source_url"`
	SyncPriority       SyncPriority `json:"sync_priority"`
	SourceStatus       SourceStatus `json:"source_status"`
	FailureCount       int          `json:"failure_count"`
	LastCheckedAt      *time.Time   `json:"last_checked_at,omitempty"`
	LastSuccessAt      *time.Time   `json:"last_success_at,omitempty"`
	NextCheckAt        *time.Time   `json:"next_check_at,omitempty"`
	SourceChapterCount int          `json:"source_chapter_count"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

const (
	FieldSourceName   = "source_name"
	FieldSourceID     = "source_id"
	FieldSourceURL    = "source_url"
	FieldSyncPriority = "sync_priority"
)
