// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/mangatrack/internal/core/chapter"
	"github.com/taibuivan/mangatrack/internal/core/comic"
	"github.com/taibuivan/mangatrack/internal/core/userstats"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/config"
	"github.com/taibuivan/mangatrack/internal/platform/kvs"
	"github.com/taibuivan/mangatrack/pkg/cursor"
)

// weeklyDecay is the activity_score points subtracted per week of
// inactivity, applied in bulk by RunTierMaintenance.
const weeklyDecay = 5.0

// tierMaintenanceBatch bounds how many stale Tier A comics one
// RunTierMaintenance pass demotes, so a scheduler tick stays bounded.
const tierMaintenanceBatch = 500

// SeriesActivity is the narrow slice of comic.Service this package depends
// on: reading and writing a series' activity/tier signal, never the full
// catalogue surface.
type SeriesActivity interface {
	GetComic(ctx context.Context, identifier string) (*comic.Comic, error)
	ApplyActivityScore(ctx context.Context, id string, tier comic.CatalogTier, reason string, score float64, lastActivityAt, lastChapterAt *time.Time) error
	ListStaleTierA(ctx context.Context, cutoff time.Time, limit int) ([]*comic.Comic, error)
	DecayActivityScores(ctx context.Context, cutoff time.Time, decay float64) (int64, error)
}

// Service implements the activity-score/catalog-tier engine and the
// reader-facing activity feed.
type Service struct {
	activity ActivityRepository
	userFeed UserFeedRepository
	series   SeriesActivity
	stats    *userstats.Service
	store    kvs.Store
	cfg      config.Config
	logger   *slog.Logger
}

// NewService constructs a new feed [Service].
func NewService(activity ActivityRepository, userFeed UserFeedRepository, series SeriesActivity, stats *userstats.Service, store kvs.Store, cfg config.Config, logger *slog.Logger) *Service {
	return &Service{
		activity: activity,
		userFeed: userFeed,
		series:   series,
		stats:    stats,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// # Recording Activity Signals

/*
RecordChapterRead implements [progress.ActivityRecorder]: called once per
progress-update request (never per chapter in a bulk advancement), so a
reader catching up on fifty chapters contributes one read signal, not fifty.

Parameters:
  - ctx: context.Context
  - userID: string
  - seriesID: string

Returns:
  - error: persistence failures; never returned to the progress update
    itself, which logs and swallows it (see [ActivityRecorder] doc)
*/
func (service *Service) RecordChapterRead(ctx context.Context, userID, seriesID string) error {
	return service.record(ctx, &ActivityEvent{SeriesID: seriesID, UserID: userID, EventType: EventChapterRead})
}

// RecordChapterDetected records that a new logical chapter was reconciled
// for a series, called once per chapter by the ingest worker.
func (service *Service) RecordChapterDetected(ctx context.Context, seriesID, chapterID string) error {
	return service.record(ctx, &ActivityEvent{SeriesID: seriesID, ChapterID: chapterID, EventType: EventChapterDetected})
}

// RecordChapterSourceAdded records that an additional provider started
// serving an already-known chapter.
func (service *Service) RecordChapterSourceAdded(ctx context.Context, seriesID, chapterID, sourceName string) error {
	return service.record(ctx, &ActivityEvent{SeriesID: seriesID, ChapterID: chapterID, SourceName: sourceName, EventType: EventChapterSourceAdded})
}

// RecordSearchImpression records that a reader's search missed the
// catalogue and had to fall back to an external lookup.
func (service *Service) RecordSearchImpression(ctx context.Context, seriesID string) error {
	return service.record(ctx, &ActivityEvent{SeriesID: seriesID, EventType: EventSearchImpression})
}

// RecordSeriesFollowed records a reader adding a series to their library.
func (service *Service) RecordSeriesFollowed(ctx context.Context, userID, seriesID string) error {
	return service.record(ctx, &ActivityEvent{SeriesID: seriesID, UserID: userID, EventType: EventSeriesFollowed})
}

// record persists the event and immediately refreshes the series' decayed
// activity_score/tier from it. A series lookup failure (e.g. a stale
// seriesID from a race with a delete) is logged, not propagated: the
// activity log write itself already succeeded and is the source of truth.
func (service *Service) record(ctx context.Context, event *ActivityEvent) error {
	event.Weight = event.EventType.Weight()
	if err := service.activity.Create(ctx, event); err != nil {
		return fmt.Errorf("feed: record %s: %w", event.EventType, err)
	}

	series, err := service.series.GetComic(ctx, event.SeriesID)
	if err != nil {
		service.logger.Warn("activity_series_lookup_failed",
			slog.String("series_id", event.SeriesID), slog.String("event_type", string(event.EventType)))
		return nil
	}

	now := time.Now().UTC()
	score := series.ActivityScore + event.Weight
	lastChapterAt := series.LastChapterAt
	if event.EventType == EventChapterDetected {
		lastChapterAt = &now
	}

	tier, reason := classifyTier(score, series.TotalFollows, lastChapterAt, now)
	if err := service.series.ApplyActivityScore(ctx, series.ID, tier, reason, score, &now, lastChapterAt); err != nil {
		return fmt.Errorf("feed: apply activity score: %w", err)
	}
	return nil
}

// # Tier Maintenance

/*
RunTierMaintenance applies the weekly decay in bulk and then demotes to
Tier B any Tier A series that has gone stale (no activity in
cfg.ActivityTierADecayDays days, below the Tier A thresholds on its own
merit). Invoked once per Master Scheduler tick, never per-series.

Parameters:
  - ctx: context.Context

Returns:
  - error: persistence failures from either sub-step
*/
func (service *Service) RunTierMaintenance(ctx context.Context) error {
	decayCutoff := time.Now().UTC().AddDate(0, 0, -7)
	decayed, err := service.series.DecayActivityScores(ctx, decayCutoff, weeklyDecay)
	if err != nil {
		return fmt.Errorf("feed: decay activity scores: %w", err)
	}
	if decayed > 0 {
		service.logger.Info("activity_scores_decayed", slog.Int64("count", decayed))
	}

	demoteCutoff := time.Now().UTC().AddDate(0, 0, -service.cfg.ActivityTierADecayDays)
	stale, err := service.series.ListStaleTierA(ctx, demoteCutoff, tierMaintenanceBatch)
	if err != nil {
		return fmt.Errorf("feed: list stale tier A: %w", err)
	}

	for _, series := range stale {
		tier, _ := classifyTier(series.ActivityScore, series.TotalFollows, series.LastChapterAt, time.Now().UTC())
		if tier == comic.CatalogTierA {
			// Still qualifies on its own merit (e.g. a high follow count);
			// only last_activity_at was stale. Leave it at A.
			continue
		}
		// Hard demotion is a single step, A to B, whatever lower tier the
		// thresholds alone would give.
		if err := service.series.ApplyActivityScore(ctx, series.ID, comic.CatalogTierB, ReasonHardDemotion, series.ActivityScore, series.LastActivityAt, series.LastChapterAt); err != nil {
			return fmt.Errorf("feed: demote series %s: %w", series.ID, err)
		}
	}
	if len(stale) > 0 {
		service.logger.Info("tier_a_hard_demotions", slog.Int("count", len(stale)))
	}
	return nil
}

// classifyTier mirrors the CASE logic in the DecayActivityScores SQL: a
// series is Tier A if it shipped a chapter within the last 30 days or clears
// either the score or follow threshold; Tier B if it clears a lower pair of
// thresholds; otherwise Tier C.
func classifyTier(score float64, totalFollows int64, lastChapterAt *time.Time, now time.Time) (comic.CatalogTier, string) {
	const tierARecentChapterDays = 30
	const tierAScoreThreshold = 5000
	const tierAFollowThreshold = 10
	const tierBScoreThreshold = 1000
	const tierBFollowThreshold = 1

	recentChapter := lastChapterAt != nil && now.Sub(*lastChapterAt) <= tierARecentChapterDays*24*time.Hour

	switch {
	case recentChapter:
		return comic.CatalogTierA, ReasonRecentChapter
	case score >= tierAScoreThreshold:
		return comic.CatalogTierA, ReasonScoreThreshold
	case totalFollows >= tierAFollowThreshold:
		return comic.CatalogTierA, ReasonFollowThreshold
	case score >= tierBScoreThreshold || totalFollows >= tierBFollowThreshold:
		return comic.CatalogTierB, ReasonScoreThreshold
	default:
		return comic.CatalogTierC, ReasonDefaultLowActivity
	}
}

// # Reader-Facing Feed

// FeedFilter selects which entries GetUserFeed returns.
type FeedFilter string

const (
	FilterAll    FeedFilter = "all"
	FilterUnread FeedFilter = "unread"
)

// FeedPage is one page of a user's activity feed.
type FeedPage struct {
	Entries    []*chapter.FeedEntry `json:"entries"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

/*
GetUserFeed returns one page of userID's tracked-series activity, newest
first, cached in the KVS for cfg.FeedCacheTTLSeconds and keyed by a per-user
version so a chapter ingest or follow can invalidate it without waiting out
the TTL.

Parameters:
  - ctx: context.Context
  - userID: string
  - filter: FeedFilter (all or unread)
  - cursorStr: string (opaque pagination cursor; "" for the first page)
  - limit: int

Returns:
  - *FeedPage: the page of entries plus a cursor for the next page
  - error: ValidationError on a malformed cursor, persistence errors otherwise
*/
func (service *Service) GetUserFeed(ctx context.Context, userID string, filter FeedFilter, cursorStr string, limit int) (*FeedPage, error) {
	version := service.feedVersion(ctx, userID)
	cacheKey := fmt.Sprintf("feed:act:%s:v%d:%s:%s:%d", userID, version, filter, cursorStr, limit)

	if cached, err := service.store.Get(ctx, cacheKey); err == nil && cached != "" {
		var page FeedPage
		if unmarshalErr := json.Unmarshal([]byte(cached), &page); unmarshalErr == nil {
			return &page, nil
		}
	}

	var beforeUpdatedAt *time.Time
	var beforeID string
	if cursorStr != "" {
		decoded, err := cursor.Decode(cursorStr)
		if err != nil {
			return nil, apperr.ValidationError("Invalid pagination cursor")
		}
		beforeUpdatedAt = &decoded.Timestamp
		beforeID = decoded.ID
	}

	var sinceSeenAt *time.Time
	onlyUnread := filter == FilterUnread
	if onlyUnread {
		stats, err := service.stats.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		sinceSeenAt = stats.FeedLastSeenAt
	}

	entries, err := service.userFeed.ListForUser(ctx, userID, onlyUnread, sinceSeenAt, beforeUpdatedAt, beforeID, limit)
	if err != nil {
		return nil, err
	}

	page := &FeedPage{Entries: entries}
	if len(entries) == limit {
		last := entries[len(entries)-1]
		page.NextCursor = cursor.Encode(cursor.Cursor{Timestamp: last.LastUpdatedAt, ID: last.ID})
	}

	if body, err := json.Marshal(page); err == nil {
		ttl := time.Duration(service.cfg.FeedCacheTTLSeconds) * time.Second
		_ = service.store.Set(ctx, cacheKey, string(body), ttl)
	}

	return page, nil
}

// InvalidateUserFeed bumps userID's feed version, so the next GetUserFeed
// call misses the cache. Called by the fan-out worker once per follower
// after a chapter is ingested, and by library.Service on follow/unfollow.
func (service *Service) InvalidateUserFeed(ctx context.Context, userID string) error {
	_, err := service.store.Incr(ctx, feedVersionKey(userID))
	return err
}

// MarkSeen advances userID's feed-read watermark, ignored if seenAt is not
// after the current value (a replayed or out-of-order client request can
// never rewind it).
func (service *Service) MarkSeen(ctx context.Context, userID string, seenAt time.Time) error {
	return service.stats.MarkFeedSeen(ctx, userID, seenAt)
}

func (service *Service) feedVersion(ctx context.Context, userID string) int64 {
	value, err := service.store.Get(ctx, feedVersionKey(userID))
	if err != nil || value == "" {
		return 0
	}
	var version int64
	if _, scanErr := fmt.Sscanf(value, "%d", &version); scanErr != nil {
		return 0
	}
	return version
}

func feedVersionKey(userID string) string {
	return fmt.Sprintf("feed:v:%s", userID)
}
