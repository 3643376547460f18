// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package library

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/validate"
	"github.com/taibuivan/mangatrack/pkg/uuid"
)

// # Series-Side Dependencies

// SeriesResolver looks up the SeriesSource already attached for a raw
// source_url, letting Add resolve series_id immediately when the crawl
// pipeline has already discovered that source; a narrow seam so this
// package never imports internal/core/comic directly.
type SeriesResolver interface {
	FindSeriesIDBySourceURL(ctx context.Context, sourceURL string) (seriesID string, found bool, err error)
}

// FollowAdjuster applies a Series.total_follows/follow_count delta. It is a
// thin pass-through to internal/core/comic.Service.Follow: this package
// decides *when* a follow/unfollow happened, comic.Service only applies the
// resulting delta (see comic/service_comic.go's Follow doc comment).
type FollowAdjuster interface {
	Follow(ctx context.Context, seriesID string, delta int64) error
}

// CompletionAwarder grants the one-time series-completion XP bonus when a
// status change sets Status to "completed". A thin pass-through to
// internal/core/progress.Service: this package only decides *when* a
// completion happened, progress.Service owns the one-way
// series_completion_xp_granted gate and the XP award itself.
type CompletionAwarder interface {
	AwardSeriesCompletion(ctx context.Context, userID, entryID string) error
}

// StatusGuard enforces the status-change rate limit (5/min) and the
// rapid-toggle bot heuristic (>3 toggles/5min on the same entry) before
// UpdateStatus persists. A thin pass-through to internal/core/progress.Service,
// which owns the trust-layer dependency this package never imports directly.
type StatusGuard interface {
	GuardStatusChange(ctx context.Context, userID, entryID string) error
}

// # Service Layer

// Service orchestrates library-entry lifecycle: add/restore, status
// mutation, bulk status updates, removal, and metadata retry. Read-progress
// mutation (last_read_chapter, XP) belongs to internal/core/progress.
type Service struct {
	repo       Repository
	resolver   SeriesResolver
	follow     FollowAdjuster
	completion CompletionAwarder
	guard      StatusGuard
	logger     *slog.Logger
}

// NewService constructs a new [Service] with its dependencies. completion
// and guard may be nil (e.g. in tests exercising unrelated paths, or while
// internal/core/progress.Service is still being constructed — see
// SetProgressHooks); their hooks are simply skipped when nil.
func NewService(repo Repository, resolver SeriesResolver, follow FollowAdjuster, completion CompletionAwarder, guard StatusGuard, logger *slog.Logger) *Service {
	return &Service{repo: repo, resolver: resolver, follow: follow, completion: completion, guard: guard, logger: logger}
}

/*
SetProgressHooks wires the completion/guard dependencies after construction,
since internal/core/progress.Service itself depends on this Service (as
EntryLookup) and the two cannot be constructed in a single expression.
cmd/api/main.go calls this once, immediately after constructing both.
*/
func (service *Service) SetProgressHooks(completion CompletionAwarder, guard StatusGuard) {
	service.completion = completion
	service.guard = guard
}

// ListLibrary returns a user's tracked series, filtered and paginated.
func (service *Service) ListLibrary(ctx context.Context, userID string, filter Filter, limit, offset int) ([]*Entry, int, error) {
	return service.repo.ListByUser(ctx, userID, filter, limit, offset)
}

// GetEntry fetches a single entry, scoped to its owner.
func (service *Service) GetEntry(ctx context.Context, userID, id string) (*Entry, error) {
	return service.repo.FindByID(ctx, userID, id)
}

/*
Add tracks a new series for userID by source_url, or restores a
previously-removed entry for the same (user_id, source_url) pair.

If a SeriesSource is already known for sourceURL, the entry is created
already "enriched" and the series' follow counters are bumped immediately;
otherwise it is created "pending" and left for periodic re-enrichment
(ListStalePendingMetadata) to resolve later — adding a follow only once
series_id actually becomes known keeps total_follows (clamped at zero,
counted once per entry) from double-counting a pending-then-enriched entry.

Parameters:
  - ctx: context.Context
  - userID: string (UUID)
  - sourceURL: string
  - sourceName: string

Returns:
  - *Entry: the created or restored entry
  - error: validation, conflict, or persistence errors
*/
func (service *Service) Add(ctx context.Context, userID, sourceURL, sourceName string) (*Entry, error) {
	if err := (&validate.Validator{}).Required(FieldSourceURL, sourceURL).URL(FieldSourceURL, sourceURL).Err(); err != nil {
		return nil, err
	}

	existing, err := service.repo.FindByUserAndSource(ctx, userID, sourceURL)
	if err == nil {
		if existing.DeletedAt == nil {
			return nil, apperr.Conflict("series already tracked")
		}
		return service.restore(ctx, existing)
	}
	if appErr := apperr.As(err); appErr == nil || appErr.Code != "NOT_FOUND" {
		return nil, err
	}

	entry := &Entry{
		ID:              uuid.New(),
		UserID:          userID,
		SourceURL:       sourceURL,
		SourceName:      sourceName,
		Status:          StatusReading,
		MetadataStatus:  MetadataStatusPending,
		LastReadChapter: "0",
	}

	if seriesID, found, resolveErr := service.resolveSeries(ctx, sourceURL); resolveErr == nil && found {
		entry.SeriesID = &seriesID
		entry.MetadataStatus = MetadataStatusEnriched
	}

	if err := service.repo.Create(ctx, entry); err != nil {
		return nil, err
	}

	if entry.SeriesID != nil {
		if err := service.follow.Follow(ctx, *entry.SeriesID, 1); err != nil {
			service.logger.Error("library_follow_increment_failed", slog.String("series_id", *entry.SeriesID), slog.Any("error", err))
		}
	}

	return entry, nil
}

func (service *Service) restore(ctx context.Context, entry *Entry) (*Entry, error) {
	entry.Status = StatusReading
	entry.MetadataStatus = MetadataStatusPending
	if seriesID, found, err := service.resolveSeries(ctx, entry.SourceURL); err == nil && found {
		entry.SeriesID = &seriesID
		entry.MetadataStatus = MetadataStatusEnriched
	}

	if err := service.repo.Restore(ctx, entry); err != nil {
		return nil, err
	}
	if entry.SeriesID != nil {
		if err := service.follow.Follow(ctx, *entry.SeriesID, 1); err != nil {
			service.logger.Error("library_follow_increment_failed", slog.String("series_id", *entry.SeriesID), slog.Any("error", err))
		}
	}
	return entry, nil
}

func (service *Service) resolveSeries(ctx context.Context, sourceURL string) (string, bool, error) {
	if service.resolver == nil {
		return "", false, nil
	}
	return service.resolver.FindSeriesIDBySourceURL(ctx, sourceURL)
}

/*
UpdateStatus changes status, user_rating, and/or preferred_source on an
existing entry.

Parameters:
  - ctx: context.Context
  - userID: string
  - id: string
  - status: Status
  - userRating: *int (1..10, optional)
  - preferredSource: *string (optional)

Returns:
  - error: validation, not-found, or persistence errors
*/
func (service *Service) UpdateStatus(ctx context.Context, userID, id string, status Status, userRating *int, preferredSource *string) error {
	validator := (&validate.Validator{}).OneOf(FieldStatus, string(status),
		string(StatusReading), string(StatusCompleted), string(StatusPlanning), string(StatusDropped), string(StatusPaused))
	if userRating != nil {
		validator.Range(FieldUserRating, *userRating, 1, 10)
	}
	if err := validator.Err(); err != nil {
		return err
	}

	if service.guard != nil {
		if err := service.guard.GuardStatusChange(ctx, userID, id); err != nil {
			return err
		}
	}

	if err := service.repo.UpdateStatus(ctx, userID, id, status, userRating, preferredSource); err != nil {
		return err
	}

	if status == StatusCompleted && service.completion != nil {
		if err := service.completion.AwardSeriesCompletion(ctx, userID, id); err != nil {
			service.logger.Error("library_series_completion_award_failed", slog.String("entry_id", id), slog.Any("error", err))
		}
	}
	return nil
}

// BulkUpdateStatus applies status to every entry id owned by userID.
func (service *Service) BulkUpdateStatus(ctx context.Context, userID string, ids []string, status Status) (int, error) {
	if !status.IsValid() {
		return 0, validate.RequiredError(FieldStatus, "Must be a valid status")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return service.repo.BulkUpdateStatus(ctx, userID, ids, status)
}

/*
Remove soft-deletes an entry and, if it carried a resolved series_id,
releases its follow count. Floor-clamping to zero is enforced at the
storage layer (comic.IncrementFollowCount), not here.
*/
func (service *Service) Remove(ctx context.Context, userID, id string) error {
	entry, err := service.repo.FindByID(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := service.repo.SoftDelete(ctx, userID, id); err != nil {
		return err
	}
	if entry.SeriesID != nil {
		if err := service.follow.Follow(ctx, *entry.SeriesID, -1); err != nil {
			service.logger.Error("library_follow_decrement_failed", slog.String("series_id", *entry.SeriesID), slog.Any("error", err))
		}
	}
	return nil
}

/*
RetryMetadata re-attempts series resolution for an entry stuck in
"unavailable" or "failed" metadata_status. A successful resolution also
applies the one-time follow increment, matching Add's semantics.
*/
func (service *Service) RetryMetadata(ctx context.Context, userID, id string) (*Entry, error) {
	entry, err := service.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if entry.MetadataStatus == MetadataStatusEnriched {
		return entry, nil
	}

	seriesID, found, err := service.resolveSeries(ctx, entry.SourceURL)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := service.repo.UpdateMetadataStatus(ctx, id, MetadataStatusUnavailable, nil); err != nil {
			return nil, err
		}
		entry.MetadataStatus = MetadataStatusUnavailable
		return entry, nil
	}

	if err := service.repo.UpdateMetadataStatus(ctx, id, MetadataStatusEnriched, &seriesID); err != nil {
		return nil, err
	}
	entry.SeriesID = &seriesID
	entry.MetadataStatus = MetadataStatusEnriched

	if err := service.follow.Follow(ctx, seriesID, 1); err != nil {
		service.logger.Error("library_follow_increment_failed", slog.String("series_id", seriesID), slog.Any("error", err))
	}
	return entry, nil
}

// ReenrichStale is called by the scheduler's periodic sweep to retry
// resolution for entries left pending/unavailable.
func (service *Service) ReenrichStale(ctx context.Context, limit int) (int, error) {
	entries, err := service.repo.ListStalePendingMetadata(ctx, limit)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, entry := range entries {
		seriesID, found, err := service.resolveSeries(ctx, entry.SourceURL)
		if err != nil || !found {
			continue
		}
		if err := service.repo.UpdateMetadataStatus(ctx, entry.ID, MetadataStatusEnriched, &seriesID); err != nil {
			continue
		}
		if err := service.follow.Follow(ctx, seriesID, 1); err != nil {
			service.logger.Error("library_follow_increment_failed", slog.String("series_id", seriesID), slog.Any("error", err))
		}
		resolved++
	}
	return resolved, nil
}

// # Progress-Facing Helpers
//
// These thin pass-throughs exist so internal/core/progress and
// internal/crawl/fanoutworker never need to depend on Repository directly;
// this package still owns the entry row, it just delegates the "is this an
// advance" arithmetic itself down to the storage layer.

// AdvanceLastRead sets an entry's last_read_chapter/last_read_at, a no-op
// if chapterNumber does not numerically exceed the entry's current value.
func (service *Service) AdvanceLastRead(ctx context.Context, userID, id, chapterNumber string, readAt time.Time) (bool, error) {
	return service.repo.UpdateLastReadIfAdvancing(ctx, userID, id, chapterNumber, readAt)
}

// MarkSeriesCompletionXPGranted flips the one-way completion-XP flag,
// returning false if it had already been granted.
func (service *Service) MarkSeriesCompletionXPGranted(ctx context.Context, id string) (bool, error) {
	return service.repo.MarkSeriesCompletionXPGranted(ctx, id)
}

// ListFollowerUserIDs returns every user tracking seriesID, the set a
// chapter fan-out invalidates feed caches for.
func (service *Service) ListFollowerUserIDs(ctx context.Context, seriesID string) ([]string, error) {
	return service.repo.ListUserIDsBySeries(ctx, seriesID)
}

// PruneHardDeletable hard-deletes entries soft-deleted more than retention
// ago, part of the Cleanup Scheduler's retention sweep. It bypasses the
// soft-delete convention deliberately: ListHardDeletable/HardDelete are the
// only repository methods allowed to see/remove rows past deleted_at.
func (service *Service) PruneHardDeletable(ctx context.Context, retention time.Duration, limit int) (int, error) {
	cutoff := time.Now().Add(-retention)
	entries, err := service.repo.ListHardDeletable(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, entry := range entries {
		if err := service.repo.HardDelete(ctx, entry.ID); err != nil {
			service.logger.Error("library_hard_delete_failed", slog.String("entry_id", entry.ID), slog.Any("error", err))
			continue
		}
		pruned++
	}
	return pruned, nil
}

// ImportEntry is one line of a POST /library/import request body: a
// source_url plus whatever identifying metadata
// the source gave the client, used only for de-duplication within the
// batch.
type ImportEntry struct {
	SourceURL  string
	ExternalID string
	Title      string
}

// ImportResult tallies what an Import call did with each submitted line.
type ImportResult struct {
	Imported int
	Skipped  int
}

/*
Import bulk-adds up to 500 entries in one call (POST /library/import),
de-duplicating by source_url/external_id/title both
within the batch and against entries already tracked, and adding the rest
one at a time through the same [Add] path a single POST /library would
take — so a bulk import produces byte-identical entries to the equivalent
sequence of individual adds, just without 500 round trips.

Import runs as a synchronous pass over the batch rather than a dedicated
import queue and DLQ-tracked job row: at a 500-entry cap, scheduling a job
and polling for its completion buys no correctness that calling Add in a
loop doesn't already have, and it avoids standing up a whole second worker
type whose only caller is this one endpoint.

Parameters:
  - ctx: context.Context
  - userID: string (UUID)
  - source: string (the provider the entries were exported from, carried
    through as sourceName on each created entry)
  - entries: []ImportEntry (≤500)

Returns:
  - ImportResult: counts of entries actually created vs skipped as
    duplicates or already-tracked
  - error: validation errors; persistence errors from the first entry that
    fails to create for a reason other than "already tracked"
*/
func (service *Service) Import(ctx context.Context, userID, source string, entries []ImportEntry) (ImportResult, error) {
	if err := (&validate.Validator{}).Required("source", source).Err(); err != nil {
		return ImportResult{}, err
	}
	if len(entries) > 500 {
		return ImportResult{}, apperr.ValidationError("Validation failed", apperr.FieldError{
			Field: "entries", Message: "at most 500 entries per import",
		})
	}

	result := ImportResult{}
	seen := make(map[string]bool, len(entries))

	for _, line := range entries {
		key := dedupeKey(line)
		if key == "" || seen[key] {
			result.Skipped++
			continue
		}
		seen[key] = true

		if _, err := service.repo.FindByUserAndSource(ctx, userID, line.SourceURL); err == nil {
			result.Skipped++
			continue
		}

		if _, err := service.Add(ctx, userID, line.SourceURL, source); err != nil {
			if appErr := apperr.As(err); appErr != nil && appErr.Code == "CONFLICT" {
				result.Skipped++
				continue
			}
			return result, err
		}
		result.Imported++
	}

	return result, nil
}

// dedupeKey picks the strongest identifier an ImportEntry carries, in
// preference order url > external_id > title, so two lines referring to
// the same series by different fields still collide.
func dedupeKey(line ImportEntry) string {
	switch {
	case line.SourceURL != "":
		return "url:" + line.SourceURL
	case line.ExternalID != "":
		return "ext:" + line.ExternalID
	case line.Title != "":
		return "title:" + line.Title
	default:
		return ""
	}
}
