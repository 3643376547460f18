// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comic

import (
	"context"
	"time"
)

// SeriesSourceRepository defines the data access contract for attaching
// external providers to a series and tracking their poll health.
type SeriesSourceRepository interface {
	// ListByComic returns every SeriesSource attached to a series.
	ListByComic(context context.Context, comicID string) ([]*SeriesSource, error)

	// FindByID returns a single SeriesSource by its own id.
	FindByID(context context.Context, id string) (*SeriesSource, error)

	// FindBySourceIdentity looks up the SeriesSource uniquely identified by
	// (sourceName, sourceID) — the natural key a poll worker has in hand.
	FindBySourceIdentity(context context.Context, sourceName, sourceID string) (*SeriesSource, error)

	// FindBySourceURL looks up the SeriesSource by its raw source_url, the
	// key a freshly-added LibraryEntry has in hand before any source-side
	// identifier has been resolved.
	FindBySourceURL(context context.Context, sourceURL string) (*SeriesSource, error)

	// Attach inserts a new SeriesSource. Returns apperr.Conflict if the
	// (source_name, source_id) pair is already attached to any series.
	Attach(context context.Context, source *SeriesSource) error

	// ListBySourceName returns the attachments bound to one provider,
	// paginated, with the total count. Backs the provider-catalog admin
	// surface's attachments listing.
	ListBySourceName(context context.Context, sourceName string, limit, offset int) ([]*SeriesSource, int, error)

	// ListDue returns SeriesSource rows whose next_check_at has elapsed,
	// ordered by sync_priority then next_check_at, bounded by limit. Used by
	// the poll worker's claim loop.
	ListDue(context context.Context, limit int) ([]*SeriesSource, error)

	// RecordCheckResult updates poll bookkeeping after an attempt: always
	// bumps last_checked_at and next_check_at; on success also clears
	// failure_count, sets last_success_at, and may raise source_status back
	// to active; on failure increments failure_count and may flip
	// source_status to broken.
	RecordCheckResult(context context.Context, id string, success bool, nextCheckAt time.Time) error

	// SetPriority updates the sync_priority tier, e.g. promoted to HOT after
	// a chapter is detected.
	SetPriority(context context.Context, id string, priority SyncPriority) error

	// SetStatusAndNextCheck forces source_status directly, bypassing the
	// failure_count threshold RecordCheckResult uses. Used when the poll
	// worker itself decides the status, e.g. forcing broken on a sustained
	// circuit-open cooldown or inactive on a ProviderNotImplemented error.
	SetStatusAndNextCheck(context context.Context, id string, status SourceStatus, nextCheckAt time.Time) error

	// ScheduleNextCheck sets next_check_at without touching last_success_at
	// or failure_count. Used by the scheduler's sync-scheduling pass, which
	// reschedules a source whether or not this round's job was actually
	// enqueued — unlike RecordCheckResult, it carries no claim about
	// whether a poll happened.
	ScheduleNextCheck(context context.Context, id string, nextCheckAt time.Time) error

	// IncrementChapterCount bumps source_chapter_count, called once per
	// newly-detected ChapterSource.
	IncrementChapterCount(context context.Context, id string, delta int) error
}
