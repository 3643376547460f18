// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comic

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/taibuivan/mangatrack/internal/platform/validate"
	"github.com/taibuivan/mangatrack/pkg/slug"
	"github.com/taibuivan/mangatrack/pkg/uuid"
)

// # Service Layer

// Service orchestrates the business logic for the comic catalogue.
// It acts as the primary entry point for managing content metadata.
type Service struct {
	comicRepo  ComicRepository
	sourceRepo SeriesSourceRepository
	logger     *slog.Logger

	// allowedSourceHosts gates which hostnames POST /sources may target,
	// preventing the crawl pipeline from being pointed at arbitrary URLs.
	// nil/empty disables the check (local dev default).
	allowedSourceHosts map[string]bool
}

// NewService constructs a new [Service] with its required repositories.
func NewService(comicRepo ComicRepository, sourceRepo SeriesSourceRepository, allowedSourceHosts []string, logger *slog.Logger) *Service {
	hosts := make(map[string]bool, len(allowedSourceHosts))
	for _, h := range allowedSourceHosts {
		hosts[h] = true
	}
	return &Service{
		comicRepo:          comicRepo,
		sourceRepo:         sourceRepo,
		allowedSourceHosts: hosts,
		logger:             logger,
	}
}

// # Comic Lookups

/*
ListComics retrieves a paginated and filtered collection of comics.

Description: This method orchestrates the discovery phase of the catalogue.
It passes filter criteria directly to the repository layer for efficient
database-level filtering and sorting.

Parameters:
  - context: context.Context
  - filter: Filter (Criteria for status, tags, search, etc.)
  - limit: int (Max records to return)
  - offset: int (Pagination cursor)

Returns:
  - []*Comic: Slice of matching publication records
  - int: Total count of records matching the filter (for pagination metadata)
  - error: System or repository level errors
*/
func (service *Service) ListComics(context context.Context, filter Filter, limit, offset int) ([]*Comic, int, error) {
	return service.comicRepo.List(context, filter, limit, offset)
}

/*
GetComic fetches a single publication record by UUID or SEO Slug.

Description: The service intelligently determines the lookup strategy.
If the identifier matches the UUID format, it performs a primary key
lookup; otherwise, it resolves via the unique URL slug.

Parameters:
  - context: context.Context
  - identifier: string (UUID or Slug)

Returns:
  - *Comic: The hydrated domain entity
  - error: ErrNotFound if no match is found
*/
func (service *Service) GetComic(context context.Context, identifier string) (*Comic, error) {

	// Identity format detection
	if isUUID(identifier) {
		return service.comicRepo.FindByID(context, identifier)
	}

	// Slug resolution
	return service.comicRepo.FindBySlug(context, identifier)
}

// # Comic Management

/*
CreateComic initialises a new publication record in the system.

Description: Performs deep business validation on the metadata,
generates a stable UUID v7 identity, and creates SEO-friendly
slugs before persisting to the repository.

Parameters:
  - context: context.Context
  - comic: *Comic (The entity to be persisted)

Returns:
  - error: Validation or persistence errors
*/
func (service *Service) CreateComic(context context.Context, comic *Comic) error {

	// Business attribute validation
	validator := &validate.Validator{}
	validator.Required(FieldTitle, comic.Title).MaxLen(FieldTitle, comic.Title, 500)

	// Lifecycle state validation
	validator.Required(FieldStatus, string(comic.Status)).OneOf(FieldStatus, string(comic.Status),
		string(StatusOngoing),
		string(StatusCompleted),
		string(StatusHiatus),
		string(StatusCancelled),
	)

	// Audience rating audit
	validator.Required(FieldContentRating, string(comic.ContentRating)).OneOf(FieldContentRating, string(comic.ContentRating),
		string(ContentRatingSafe),
		string(ContentRatingSuggestive),
		string(ContentRatingExplicit),
	)

	// Identity & Slug generation
	if comic.ID == "" {
		comic.ID = uuid.New()
	}

	// Slug generation
	if comic.Slug == "" {
		comic.Slug = slug.From(comic.Title)
	}

	// Return validation errors if any constraints failed
	if err := validator.Err(); err != nil {
		return err
	}

	// Persistence via Repository
	if err := service.comicRepo.Create(context, comic); err != nil {
		return err
	}

	service.logger.Info("comic_created",
		slog.String("comic_id", comic.ID),
		slog.String("title", comic.Title),
	)

	return nil
}

/*
UpdateComic applies modifications to an existing publication.

Description: Supports partial updates. Non-empty fields in the
input entity will overwrite existing values. Enforces business
rules on the updated attributes.

Parameters:
  - context: context.Context
  - c: *Comic (Updated attributes)

Returns:
  - error: Validation or persistence errors
*/
func (service *Service) UpdateComic(context context.Context, comic *Comic) error {

	// Integrity validation for updated fields
	validator := &validate.Validator{}

	// Business attribute validation
	if comic.Title != "" {
		validator.MaxLen(FieldTitle, comic.Title, 500)
	}

	// Slug generation
	if comic.Slug != "" {
		validator.Slug(FieldSlug, comic.Slug)
	}

	// Lifecycle state validation
	if comic.Status != "" {
		validator.OneOf(FieldStatus, string(comic.Status),
			string(StatusOngoing),
			string(StatusCompleted),
			string(StatusHiatus),
			string(StatusCancelled),
		)
	}

	// Return validation errors if any constraints failed
	if err := validator.Err(); err != nil {
		return err
	}

	// Execute storage update
	if err := service.comicRepo.Update(context, comic); err != nil {
		return err
	}

	service.logger.Info("comic_updated", slog.String("comic_id", comic.ID))

	return nil
}

/*
DeleteComic removes a comic from active discovery.

Description: Implements soft-delete logic. The record remains
in the database but its visibility status is flipped to hidden.

Parameters:
  - context: context.Context
  - id: string (UUID)

Returns:
  - error: Persistence error if removal fails
*/
func (service *Service) DeleteComic(context context.Context, id string) error {
	if err := service.comicRepo.SoftDelete(context, id); err != nil {
		return err
	}

	service.logger.Warn("comic_deleted", slog.String("comic_id", id))

	return nil
}

// # Source Attachment

/*
AttachSource registers a new external provider for a series. The target
host must be on the allow-list the service was constructed with; this is
the boundary that keeps the crawl pipeline from being pointed at arbitrary
URLs by a client-supplied source_url.

Parameters:
  - context: context.Context
  - comicID: string (UUID)
  - sourceName: string
  - sourceID: string (opaque identifier scoped to sourceName)
  - sourceURL: string

Returns:
  - *SeriesSource: The attached record, seeded WARM/active with an
    immediate next_check_at
  - error: ValidationError if the host isn't allow-listed; Conflict if
    already attached
*/
func (service *Service) AttachSource(context context.Context, comicID, sourceName, sourceID, sourceURL string) (*SeriesSource, error) {
	validator := &validate.Validator{}
	validator.Required(FieldSourceName, sourceName)
	validator.Required(FieldSourceID, sourceID)
	validator.Required(FieldSourceURL, sourceURL).URL(FieldSourceURL, sourceURL)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	if len(service.allowedSourceHosts) > 0 {
		host, err := hostOf(sourceURL)
		if err != nil || !service.allowedSourceHosts[host] {
			return nil, validate.RequiredError(FieldSourceURL, "host is not on the allow-list")
		}
	}

	if _, err := service.comicRepo.FindByID(context, comicID); err != nil {
		return nil, err
	}

	source := &SeriesSource{
		ID:           uuid.New(),
		ComicID:      comicID,
		SourceName:   sourceName,
		SourceID:     sourceID,
		SourceURL:    sourceURL,
		SyncPriority: SyncPriorityWarm,
		SourceStatus: SourceStatusActive,
	}
	if err := service.sourceRepo.Attach(context, source); err != nil {
		return nil, err
	}

	service.logger.Info("series_source_attached",
		slog.String("comic_id", comicID), slog.String("source_name", sourceName))
	return source, nil
}

// # Ingestion Tiering

/*
Follow adjusts a series' follow counters on a library add/remove. It is a
thin pass-through to the repository: the library package owns deciding
when a follow/unfollow actually happened (e.g. first LibraryEntry for a
series vs. a duplicate), this method only applies the resulting delta.

Parameters:
  - context: context.Context
  - id: string (UUID)
  - delta: int64 (+1 or -1)

Returns:
  - error: Persistence errors
*/
func (service *Service) Follow(context context.Context, id string, delta int64) error {
	return service.comicRepo.IncrementFollowCount(context, id, delta)
}

/*
AdvanceLastChapterAt bumps a series' last_chapter_at, the freshness signal
the activity scorer reads, whenever a newly-ingested chapter's detected_at
is more recent than the current value. It is a thin pass-through to the
repository's CAS-style update: the Chapter Ingest Worker calls this once
per chapter, gap-recovery replays included, without worrying about
ordering since the repository itself rejects an older timestamp.

Parameters:
  - context: context.Context
  - id: string (UUID)
  - detectedAt: time.Time

Returns:
  - error: Persistence errors
*/
func (service *Service) AdvanceLastChapterAt(context context.Context, id string, detectedAt time.Time) error {
	return service.comicRepo.UpdateLastChapterAtIfNewer(context, id, detectedAt)
}

/*
ApplyActivityScore persists a recomputed catalog tier. Called by the
activity scorer (internal/core/feed) after it aggregates ActivityEvent
weights with time decay; this method only writes the result.

Parameters:
  - context: context.Context
  - id: string (UUID)
  - tier: CatalogTier
  - reason: string
  - score: float64
  - lastActivityAt: *time.Time
  - lastChapterAt: *time.Time

Returns:
  - error: Persistence errors
*/
func (service *Service) ApplyActivityScore(context context.Context, id string, tier CatalogTier, reason string, score float64, lastActivityAt, lastChapterAt *time.Time) error {
	if err := service.comicRepo.UpdateActivity(context, id, tier, reason, score, lastActivityAt, lastChapterAt); err != nil {
		return err
	}
	service.logger.Info("comic_tier_refreshed",
		slog.String("comic_id", id), slog.String("tier", string(tier)), slog.String("reason", reason))
	return nil
}

/*
ListStaleTierA returns Tier A comics inactive since before cutoff, for the
scheduler's hard-demotion sweep (A to B after 90 days, unless seeded).

Parameters:
  - context: context.Context
  - cutoff: time.Time
  - limit: int

Returns:
  - []*Comic: stale Tier A comics
  - error: Database retrieval failures
*/
func (service *Service) ListStaleTierA(context context.Context, cutoff time.Time, limit int) ([]*Comic, error) {
	return service.comicRepo.ListStaleTierA(context, cutoff, limit)
}

/*
DecayActivityScores applies the weekly inactivity decay across the
catalogue in bulk. Called by the scheduler's tier-maintenance sub-step.

Parameters:
  - context: context.Context
  - cutoff: time.Time
  - decay: float64

Returns:
  - int64: comics affected
  - error: Persistence errors
*/
func (service *Service) DecayActivityScores(context context.Context, cutoff time.Time, decay float64) (int64, error) {
	return service.comicRepo.DecayActivityScores(context, cutoff, decay)
}

// # Internal Helpers

// isUUID returns true if the string matches the standard UUID length.
func isUUID(s string) bool {
	return len(s) == 36
}

// hostOf extracts the hostname from an absolute URL for allow-list checks.
func hostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return parsed.Hostname(), nil
}
