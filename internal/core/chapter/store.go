// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package chapter

import (
	"context"
	"time"
)

// # Chapter Data Access

// Repository defines the data access contract for logical chapters.
type Repository interface {
	// ListByComic returns chapters for a series ordered by chapter_number,
	// paginated.
	ListByComic(context context.Context, seriesID string, limit, offset int) ([]*Chapter, int, error)

	// FindByID returns a chapter by its own id.
	FindByID(context context.Context, id string) (*Chapter, error)

	// FindByIdentity returns the chapter uniquely identified by
	// (series_id, chapter_number), the natural key ingestion reconciles on.
	FindByIdentity(context context.Context, seriesID, chapterNumber string) (*Chapter, error)

	// FindBySlug returns the chapter uniquely identified by
	// (series_id, chapter_slug), the key a reader's progress update supplies
	// when it has no numeric chapter_number in hand (an extra/special chapter).
	FindBySlug(context context.Context, seriesID, chapterSlug string) (*Chapter, error)

	// ListUpToNumber returns every numbered chapter of seriesID with
	// 1 <= chapter_number <= maxNumber, the range the Progress Engine bulk-
	// marks as read when a reader jumps ahead several chapters at once.
	ListUpToNumber(context context.Context, seriesID string, maxNumber float64) ([]*Chapter, error)

	// Create persists a new logical chapter.
	Create(context context.Context, chapter *Chapter) error

	// Update persists changes to an existing chapter's metadata (title,
	// slug, published_at). Never reassigns chapter_number or first_detected_at.
	Update(context context.Context, chapter *Chapter) error

	// SoftDelete marks a chapter as deleted without physical row removal.
	SoftDelete(context context.Context, id string) error

	// FindNextAfter returns the chapter immediately following number within
	// seriesID, the lowest chapter_number strictly greater than number. Used
	// by gap-recovery ingestion to read the successor's detected_at so the
	// newly-discovered chapter can be back-dated ahead of it.
	FindNextAfter(context context.Context, seriesID string, number float64) (*Chapter, error)
}

// # Chapter-Source Data Access

// SourceRepository defines the data access contract for per-provider
// chapter availability records.
type SourceRepository interface {
	// FindByIdentity returns the ChapterSource uniquely identified by
	// (series_source_id, chapter_id), the key re-ingestion reconciles on.
	FindByIdentity(context context.Context, seriesSourceID, chapterID string) (*ChapterSource, error)

	// ListByChapter returns every provider record attached to a chapter.
	ListByChapter(context context.Context, chapterID string) ([]*ChapterSource, error)

	// Create persists a new ChapterSource.
	Create(context context.Context, source *ChapterSource) error

	// Update persists changes to an existing ChapterSource's metadata.
	// Never rewrites detected_at except via UpdateDetectedAt (gap recovery).
	Update(context context.Context, source *ChapterSource) error

	// UpdateDetectedAt rewrites detected_at directly, used exclusively by
	// gap-recovery reordering.
	UpdateDetectedAt(context context.Context, id string, detectedAt time.Time) error
}

// # Feed Entry Data Access

// FeedRepository defines the data access contract for the reader-facing
// activity feed rows derived from chapter ingestion.
type FeedRepository interface {
	// FindByIdentity returns the FeedEntry uniquely identified by
	// (series_id, chapter_number).
	FindByIdentity(context context.Context, seriesID, chapterNumber string) (*FeedEntry, error)

	// Create persists a new FeedEntry.
	Create(context context.Context, entry *FeedEntry) error

	// AppendSource appends a FeedSourceRef to an existing FeedEntry's
	// Sources list and bumps last_updated_at, unless the source is already
	// present.
	AppendSource(context context.Context, id string, ref FeedSourceRef) error

	// ListRecent returns feed entries ordered by last_updated_at descending,
	// cursor-paginated for the activity feed endpoint.
	ListRecent(context context.Context, limit int, before time.Time) ([]*FeedEntry, error)

	// PruneOlderThan deletes feed entries whose last_updated_at is before
	// cutoff, returning how many rows were removed. Only the Cleanup
	// Scheduler calls this.
	PruneOlderThan(context context.Context, cutoff time.Time) (int64, error)
}
