// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package chapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/pkg/uuid"
)

// # Service Layer

// Service orchestrates chapter identity reconciliation: turning one
// provider's raw listing entry into a logical Chapter, a ChapterSource
// availability record, and a reader-facing FeedEntry.
//
// Service itself does not own locking, queue dispatch, or gap-recovery
// scheduling — those belong to the worker that calls it one ingest job at a
// time under its own distributed lock. Service only guarantees that each of
// its methods is an idempotent upsert.
type Service struct {
	chapterRepo Repository
	sourceRepo  SourceRepository
	feedRepo    FeedRepository
	logger      *slog.Logger
}

// NewService constructs a new [Service] with its required repositories.
func NewService(chapterRepo Repository, sourceRepo SourceRepository, feedRepo FeedRepository, logger *slog.Logger) *Service {
	return &Service{chapterRepo: chapterRepo, sourceRepo: sourceRepo, feedRepo: feedRepo, logger: logger}
}

// # Reader-Facing Lookups

// ListChapters returns the paginated chapter list for a series.
func (service *Service) ListChapters(context context.Context, seriesID string, limit, offset int) ([]*Chapter, int, error) {
	return service.chapterRepo.ListByComic(context, seriesID, limit, offset)
}

// GetChapter fetches a single chapter by id.
func (service *Service) GetChapter(context context.Context, id string) (*Chapter, error) {
	return service.chapterRepo.FindByID(context, id)
}

// FindChapterBySlug fetches a single chapter by its (series_id,
// chapter_slug) identity, used by the Progress Engine when a reader's
// client supplies a slug instead of a numeric chapter_number.
func (service *Service) FindChapterBySlug(context context.Context, seriesID, chapterSlug string) (*Chapter, error) {
	return service.chapterRepo.FindBySlug(context, seriesID, chapterSlug)
}

// ListUpToNumber returns every numbered chapter of seriesID with
// 1 <= chapter_number <= maxNumber, used by the Progress Engine to resolve
// which logical chapters a bulk "mark read" advance actually covers.
func (service *Service) ListUpToNumber(context context.Context, seriesID string, maxNumber float64) ([]*Chapter, error) {
	return service.chapterRepo.ListUpToNumber(context, seriesID, maxNumber)
}

// FindByIdentity resolves the logical chapter uniquely identified by
// (seriesID, chapterNumber), used by the chapter-ingest worker's gap
// detection to check whether a preceding integer chapter
// already exists.
func (service *Service) FindByIdentity(context context.Context, seriesID, chapterNumber string) (*Chapter, error) {
	return service.chapterRepo.FindByIdentity(context, seriesID, chapterNumber)
}

// FindNextAfter returns the next existing numbered chapter after number
// within seriesID, used by gap-recovery ingestion to read the successor's
// detected_at so a newly-recovered chapter can be back-dated ahead of it.
func (service *Service) FindNextAfter(context context.Context, seriesID string, number float64) (*Chapter, error) {
	return service.chapterRepo.FindNextAfter(context, seriesID, number)
}

// # Ingestion Primitives

// IngestResult reports what UpsertChapter did, so callers can decide
// whether to emit chapter_detected or schedule gap recovery.
type IngestResult struct {
	Chapter *Chapter
	Created bool
}

/*
UpsertChapter reconciles one normalized chapter label into the logical
Chapter row for (seriesID, identityKey(normalized.Number)).

Parameters:
  - context: context.Context
  - seriesID: string (UUID)
  - normalized: Normalized (output of [Normalize])
  - title: string
  - publishedAt: *time.Time

Returns:
  - IngestResult: the resolved Chapter and whether it was newly created
  - error: persistence errors
*/
func (service *Service) UpsertChapter(context context.Context, seriesID string, normalized Normalized, title string, publishedAt *time.Time) (IngestResult, error) {
	number := IdentityKey(normalized.Number)

	existing, err := service.chapterRepo.FindByIdentity(context, seriesID, number)
	if err == nil {
		if title != "" && existing.ChapterTitle == "" {
			existing.ChapterTitle = title
			if err := service.chapterRepo.Update(context, existing); err != nil {
				return IngestResult{}, err
			}
		}
		return IngestResult{Chapter: existing, Created: false}, nil
	}
	if !isNotFound(err) {
		return IngestResult{}, err
	}

	now := time.Now()
	created := &Chapter{
		ID:              uuid.New(),
		SeriesID:        seriesID,
		ChapterNumber:   number,
		ChapterSlug:     normalized.Slug,
		ChapterTitle:    title,
		PublishedAt:     publishedAt,
		FirstDetectedAt: now,
	}
	if err := service.chapterRepo.Create(context, created); err != nil {
		return IngestResult{}, err
	}

	service.logger.Info("chapter_detected",
		slog.String("series_id", seriesID), slog.String("chapter_number", number))
	return IngestResult{Chapter: created, Created: true}, nil
}

// SourceUpsertResult reports what UpsertChapterSource did.
type SourceUpsertResult struct {
	Source  *ChapterSource
	Created bool
}

/*
UpsertChapterSource reconciles one provider's availability record for a
chapter. detectedAt is supplied by the caller: "now" on ordinary ingestion,
or previous.detected_at - 1ms while replaying a gap-recovery batch, so the
worker controls detected_at ordering, not this method.

Parameters:
  - context: context.Context
  - seriesSourceID: string (UUID)
  - chapterID: string (UUID)
  - sourceName: string
  - sourceChapterURL: string
  - sourceChapterID: string
  - sourcePublishedAt: *time.Time
  - detectedAt: time.Time

Returns:
  - SourceUpsertResult: the resolved ChapterSource and whether newly created
  - error: persistence errors
*/
func (service *Service) UpsertChapterSource(
	context context.Context,
	seriesSourceID, chapterID, sourceName, sourceChapterURL, sourceChapterID string,
	sourcePublishedAt *time.Time,
	detectedAt time.Time,
) (SourceUpsertResult, error) {
	existing, err := service.sourceRepo.FindByIdentity(context, seriesSourceID, chapterID)
	if err == nil {
		existing.SourceChapterURL = sourceChapterURL
		existing.SourcePublishedAt = sourcePublishedAt
		existing.IsAvailable = true
		if err := service.sourceRepo.Update(context, existing); err != nil {
			return SourceUpsertResult{}, err
		}
		return SourceUpsertResult{Source: existing, Created: false}, nil
	}
	if !isNotFound(err) {
		return SourceUpsertResult{}, err
	}

	created := &ChapterSource{
		ID:                uuid.New(),
		ChapterID:         chapterID,
		SeriesSourceID:    seriesSourceID,
		SourceName:        sourceName,
		SourceChapterURL:  sourceChapterURL,
		SourceChapterID:   sourceChapterID,
		SourcePublishedAt: sourcePublishedAt,
		DetectedAt:        detectedAt,
		IsAvailable:       true,
	}
	if err := service.sourceRepo.Create(context, created); err != nil {
		return SourceUpsertResult{}, err
	}

	service.logger.Info("chapter_source_added",
		slog.String("chapter_id", chapterID), slog.String("source_name", sourceName))
	return SourceUpsertResult{Source: created, Created: true}, nil
}

/*
UpsertFeedEntry reconciles the reader-facing feed row for (seriesID,
chapterNumber), appending ref to its Sources list if the entry already
exists.

Parameters:
  - context: context.Context
  - seriesID: string (UUID)
  - chapterID: string (UUID)
  - chapterNumber: string
  - ref: FeedSourceRef

Returns:
  - error: persistence errors
*/
func (service *Service) UpsertFeedEntry(context context.Context, seriesID, chapterID, chapterNumber string, ref FeedSourceRef) error {
	existing, err := service.feedRepo.FindByIdentity(context, seriesID, chapterNumber)
	if err == nil {
		return service.feedRepo.AppendSource(context, existing.ID, ref)
	}
	if !isNotFound(err) {
		return err
	}

	entry := &FeedEntry{
		ID:                uuid.New(),
		SeriesID:          seriesID,
		ChapterNumber:     chapterNumber,
		LogicalChapterID:  chapterID,
		Sources:           []FeedSourceRef{ref},
		FirstDiscoveredAt: ref.DiscoveredAt,
		LastUpdatedAt:     ref.DiscoveredAt,
	}
	return service.feedRepo.Create(context, entry)
}

// ListRecentFeed returns the activity feed, cursor-paginated by
// last_updated_at.
func (service *Service) ListRecentFeed(context context.Context, limit int, before time.Time) ([]*FeedEntry, error) {
	return service.feedRepo.ListRecent(context, limit, before)
}

// PruneFeedEntries removes feed entries last updated before cutoff, the
// Cleanup Scheduler's retention pass over this table.
func (service *Service) PruneFeedEntries(context context.Context, cutoff time.Time) (int64, error) {
	return service.feedRepo.PruneOlderThan(context, cutoff)
}

// isNotFound reports whether err is the NOT_FOUND [apperr.AppError], the
// expected "no existing row" signal from FindByIdentity lookups.
func isNotFound(err error) bool {
	appErr := apperr.As(err)
	return appErr != nil && appErr.Code == "NOT_FOUND"
}
