// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/mangatrack/internal/core/chapter"
	"github.com/taibuivan/mangatrack/internal/core/comic"
	"github.com/taibuivan/mangatrack/internal/core/userstats"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/config"
	"github.com/taibuivan/mangatrack/internal/platform/kvs"
)

// # Fakes

type fakeActivityRepo struct {
	events []*ActivityEvent
}

func (f *fakeActivityRepo) Create(ctx context.Context, event *ActivityEvent) error {
	event.ID = fmt.Sprintf("event-%d", len(f.events))
	f.events = append(f.events, event)
	return nil
}

type fakeUserFeedRepo struct {
	entries []*chapter.FeedEntry
}

func (f *fakeUserFeedRepo) ListForUser(ctx context.Context, userID string, onlyUnread bool, sinceSeenAt *time.Time, beforeUpdatedAt *time.Time, beforeID string, limit int) ([]*chapter.FeedEntry, error) {
	var out []*chapter.FeedEntry
	for _, e := range f.entries {
		if onlyUnread && sinceSeenAt != nil && !e.LastUpdatedAt.After(*sinceSeenAt) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeSeries struct {
	comics map[string]*comic.Comic
}

func newFakeSeries() *fakeSeries {
	return &fakeSeries{comics: map[string]*comic.Comic{}}
}

func (f *fakeSeries) GetComic(ctx context.Context, identifier string) (*comic.Comic, error) {
	if c, ok := f.comics[identifier]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, apperr.NotFound("comic")
}

func (f *fakeSeries) ApplyActivityScore(ctx context.Context, id string, tier comic.CatalogTier, reason string, score float64, lastActivityAt, lastChapterAt *time.Time) error {
	c := f.comics[id]
	c.CatalogTier = tier
	c.TierReason = reason
	c.ActivityScore = score
	c.LastActivityAt = lastActivityAt
	c.LastChapterAt = lastChapterAt
	return nil
}

func (f *fakeSeries) ListStaleTierA(ctx context.Context, cutoff time.Time, limit int) ([]*comic.Comic, error) {
	var out []*comic.Comic
	for _, c := range f.comics {
		if c.CatalogTier == comic.CatalogTierA && c.LastActivityAt != nil && c.LastActivityAt.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSeries) DecayActivityScores(ctx context.Context, cutoff time.Time, decay float64) (int64, error) {
	var affected int64
	for _, c := range f.comics {
		if c.LastActivityAt != nil && c.LastActivityAt.Before(cutoff) {
			c.ActivityScore -= decay
			if c.ActivityScore < 0 {
				c.ActivityScore = 0
			}
			affected++
		}
	}
	return affected, nil
}

// fakeStatsRepo is a minimal userstats.Repository stub: this package only
// ever calls Get (via GetOrCreate) and MarkFeedSeen (via
// UpdateFeedLastSeenAtIfNewer).
type fakeStatsRepo struct {
	stats map[string]*userstats.Stats
}

func newFakeStatsRepo() *fakeStatsRepo {
	return &fakeStatsRepo{stats: map[string]*userstats.Stats{}}
}

func (f *fakeStatsRepo) GetOrCreate(ctx context.Context, userID string) (*userstats.Stats, error) {
	if s, ok := f.stats[userID]; ok {
		copied := *s
		return &copied, nil
	}
	s := &userstats.Stats{UserID: userID, Level: 1, TrustScore: 1.0}
	f.stats[userID] = s
	copied := *s
	return &copied, nil
}

func (f *fakeStatsRepo) ApplyReadAward(ctx context.Context, userID string, xpDelta int64, newLevel, streakDays, longestStreak int, chaptersReadDelta int64, readAt time.Time) error {
	return nil
}

func (f *fakeStatsRepo) AdjustTrustScore(ctx context.Context, userID string, delta float64) (float64, error) {
	return 1.0, nil
}

func (f *fakeStatsRepo) UpdateFeedLastSeenAtIfNewer(ctx context.Context, userID string, seenAt time.Time) error {
	s, ok := f.stats[userID]
	if !ok {
		s = &userstats.Stats{UserID: userID, Level: 1, TrustScore: 1.0}
		f.stats[userID] = s
	}
	if s.FeedLastSeenAt == nil || s.FeedLastSeenAt.Before(seenAt) {
		s.FeedLastSeenAt = &seenAt
	}
	return nil
}

func (f *fakeStatsRepo) ReconcileChaptersRead(ctx context.Context, limit int) (int64, error) {
	return 0, nil
}

func (f *fakeStatsRepo) RolloverSeason(ctx context.Context, newSeason string) (int64, error) {
	return 0, nil
}

func (f *fakeStatsRepo) ListBelowMaxTrust(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *fakeActivityRepo, *fakeUserFeedRepo, *fakeSeries) {
	t.Helper()
	activityRepo := &fakeActivityRepo{}
	userFeedRepo := &fakeUserFeedRepo{}
	series := newFakeSeries()
	stats := userstats.NewService(newFakeStatsRepo())
	store := kvs.NewTestStore(t)
	cfg := config.Config{FeedCacheTTLSeconds: 60, ActivityTierADecayDays: 90}
	svc := NewService(activityRepo, userFeedRepo, series, stats, store, cfg, discardLogger())
	return svc, activityRepo, userFeedRepo, series
}

// # Classification

func TestClassifyTier_RecentChapterWinsOverLowScore(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-24 * time.Hour)
	tier, reason := classifyTier(0, 0, &recent, now)
	require.Equal(t, comic.CatalogTierA, tier)
	require.Equal(t, ReasonRecentChapter, reason)
}

func TestClassifyTier_HighScoreIsTierAWithoutRecentChapter(t *testing.T) {
	now := time.Now().UTC()
	stale := now.AddDate(0, 0, -100)
	tier, reason := classifyTier(6000, 0, &stale, now)
	require.Equal(t, comic.CatalogTierA, tier)
	require.Equal(t, ReasonScoreThreshold, reason)
}

func TestClassifyTier_HighFollowsIsTierA(t *testing.T) {
	now := time.Now().UTC()
	tier, _ := classifyTier(0, 50, nil, now)
	require.Equal(t, comic.CatalogTierA, tier)
}

func TestClassifyTier_MidRangeIsTierB(t *testing.T) {
	now := time.Now().UTC()
	tier, _ := classifyTier(1500, 0, nil, now)
	require.Equal(t, comic.CatalogTierB, tier)
}

func TestClassifyTier_LowActivityIsTierC(t *testing.T) {
	now := time.Now().UTC()
	tier, reason := classifyTier(0, 0, nil, now)
	require.Equal(t, comic.CatalogTierC, tier)
	require.Equal(t, ReasonDefaultLowActivity, reason)
}

// # Recording

func TestRecordChapterRead_WritesEventAndBumpsScore(t *testing.T) {
	svc, activityRepo, _, series := newTestService(t)
	ctx := context.Background()

	series.comics["series-1"] = &comic.Comic{ID: "series-1", CatalogTier: comic.CatalogTierC}

	require.NoError(t, svc.RecordChapterRead(ctx, "user-1", "series-1"))

	require.Len(t, activityRepo.events, 1)
	require.Equal(t, EventChapterRead, activityRepo.events[0].EventType)
	require.Equal(t, EventChapterRead.Weight(), series.comics["series-1"].ActivityScore)
}

func TestRecordSeriesFollowed_UnknownSeriesDoesNotFailTheWrite(t *testing.T) {
	svc, activityRepo, _, _ := newTestService(t)
	ctx := context.Background()

	err := svc.RecordSeriesFollowed(ctx, "user-1", "missing-series")
	require.NoError(t, err)
	require.Len(t, activityRepo.events, 1)
}

// # Tier Maintenance

func TestRunTierMaintenance_DecaysThenDemotesStaleTierA(t *testing.T) {
	svc, _, _, series := newTestService(t)
	ctx := context.Background()

	stale := time.Now().UTC().AddDate(0, 0, -120)
	series.comics["series-1"] = &comic.Comic{
		ID: "series-1", CatalogTier: comic.CatalogTierA,
		ActivityScore: 10, LastActivityAt: &stale,
	}

	require.NoError(t, svc.RunTierMaintenance(ctx))

	require.Equal(t, comic.CatalogTierB, series.comics["series-1"].CatalogTier)
	require.Equal(t, ReasonHardDemotion, series.comics["series-1"].TierReason)
}

func TestRunTierMaintenance_LeavesStillQualifyingTierAAlone(t *testing.T) {
	svc, _, _, series := newTestService(t)
	ctx := context.Background()

	stale := time.Now().UTC().AddDate(0, 0, -120)
	series.comics["series-1"] = &comic.Comic{
		ID: "series-1", CatalogTier: comic.CatalogTierA,
		ActivityScore: 6000, TotalFollows: 20, LastActivityAt: &stale,
	}

	require.NoError(t, svc.RunTierMaintenance(ctx))

	require.Equal(t, comic.CatalogTierA, series.comics["series-1"].CatalogTier)
}

// # User Feed

func TestInvalidateUserFeed_ChangesTheCacheKeyVersion(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	v0 := svc.feedVersion(ctx, "user-1")
	require.NoError(t, svc.InvalidateUserFeed(ctx, "user-1"))
	v1 := svc.feedVersion(ctx, "user-1")
	require.Greater(t, v1, v0)
}

func TestGetUserFeed_CachesSecondCallUntilInvalidated(t *testing.T) {
	svc, _, userFeedRepo, _ := newTestService(t)
	ctx := context.Background()

	userFeedRepo.entries = []*chapter.FeedEntry{
		{ID: "fe-1", SeriesID: "series-1", LastUpdatedAt: time.Now().UTC()},
	}

	page1, err := svc.GetUserFeed(ctx, "user-1", FilterAll, "", 10)
	require.NoError(t, err)
	require.Len(t, page1.Entries, 1)

	userFeedRepo.entries = nil // repo now empty, cached page should still be served

	page2, err := svc.GetUserFeed(ctx, "user-1", FilterAll, "", 10)
	require.NoError(t, err)
	require.Len(t, page2.Entries, 1)

	require.NoError(t, svc.InvalidateUserFeed(ctx, "user-1"))

	page3, err := svc.GetUserFeed(ctx, "user-1", FilterAll, "", 10)
	require.NoError(t, err)
	require.Empty(t, page3.Entries)
}

func TestMarkSeen_IgnoresStaleWatermark(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	later := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.MarkSeen(ctx, "user-1", later))

	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.MarkSeen(ctx, "user-1", earlier))

	stats, err := svc.stats.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, stats.FeedLastSeenAt)
	require.True(t, later.Equal(*stats.FeedLastSeenAt))
}
