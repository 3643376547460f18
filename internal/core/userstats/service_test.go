// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package userstats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	stats map[string]*Stats
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{stats: map[string]*Stats{}}
}

func (f *fakeRepo) GetOrCreate(ctx context.Context, userID string) (*Stats, error) {
	if s, ok := f.stats[userID]; ok {
		copied := *s
		return &copied, nil
	}
	s := &Stats{UserID: userID, Level: 1, TrustScore: 1.0, CurrentSeason: "default"}
	f.stats[userID] = s
	copied := *s
	return &copied, nil
}

func (f *fakeRepo) ApplyReadAward(ctx context.Context, userID string, xpDelta int64, newLevel, streakDays, longestStreak int, chaptersReadDelta int64, readAt time.Time) error {
	s := f.stats[userID]
	s.XP += xpDelta
	s.SeasonXP += xpDelta
	s.Level = newLevel
	s.StreakDays = streakDays
	s.LongestStreak = longestStreak
	s.ChaptersRead += chaptersReadDelta
	s.LastReadAt = &readAt
	return nil
}

func (f *fakeRepo) AdjustTrustScore(ctx context.Context, userID string, delta float64) (float64, error) {
	s := f.stats[userID]
	s.TrustScore += delta
	if s.TrustScore > 1.0 {
		s.TrustScore = 1.0
	}
	if s.TrustScore < 0.0 {
		s.TrustScore = 0.0
	}
	return s.TrustScore, nil
}

func (f *fakeRepo) UpdateFeedLastSeenAtIfNewer(ctx context.Context, userID string, seenAt time.Time) error {
	s := f.stats[userID]
	if s.FeedLastSeenAt == nil || s.FeedLastSeenAt.Before(seenAt) {
		s.FeedLastSeenAt = &seenAt
	}
	return nil
}

func (f *fakeRepo) RolloverSeason(ctx context.Context, newSeason string) (int64, error) {
	for _, s := range f.stats {
		s.SeasonXP = 0
		s.CurrentSeason = newSeason
	}
	return int64(len(f.stats)), nil
}

func (f *fakeRepo) ReconcileChaptersRead(ctx context.Context, limit int) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) ListBelowMaxTrust(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	for id, s := range f.stats {
		if s.TrustScore < 1.0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func TestAwardRead_FirstReadStartsStreakAtOne(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo)

	stats, err := service.AwardRead(context.Background(), "user-1", 1, 1, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, stats.StreakDays)
	require.Equal(t, 1, stats.LongestStreak)
	require.EqualValues(t, 1, stats.XP)
}

func TestAwardRead_ConsecutiveDayIncrementsStreak(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo)

	_, err := service.AwardRead(context.Background(), "user-1", 1, 1, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	stats, err := service.AwardRead(context.Background(), "user-1", 1, 1, time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, stats.StreakDays)
	require.Equal(t, 2, stats.LongestStreak)
	// 1 XP on day one, then 1 XP + the streak bonus for extending to day two.
	require.EqualValues(t, 2+StreakBonusXP, stats.XP)
}

func TestAwardRead_SameDaySecondReadDoesNotBumpStreak(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo)

	_, err := service.AwardRead(context.Background(), "user-1", 1, 1, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	stats, err := service.AwardRead(context.Background(), "user-1", 1, 1, time.Date(2026, 1, 1, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, stats.StreakDays)
	require.EqualValues(t, 2, stats.XP)
}

func TestAwardRead_GapResetsStreakButPreservesLongest(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo)

	_, err := service.AwardRead(context.Background(), "user-1", 1, 1, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = service.AwardRead(context.Background(), "user-1", 1, 1, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	stats, err := service.AwardRead(context.Background(), "user-1", 1, 1, time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, stats.StreakDays)
	require.Equal(t, 2, stats.LongestStreak)
}

func TestAdjustTrust_ClampsToUnitInterval(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo)
	ctx := context.Background()

	_, err := repo.GetOrCreate(ctx, "user-1")
	require.NoError(t, err)

	score, err := service.AdjustTrust(ctx, "user-1", -5.0)
	require.NoError(t, err)
	require.Equal(t, 0.0, score)

	score, err = service.AdjustTrust(ctx, "user-1", 5.0)
	require.NoError(t, err)
	require.Equal(t, 1.0, score)
}

func TestMarkFeedSeen_IgnoresStaleWatermark(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo)
	ctx := context.Background()

	_, err := repo.GetOrCreate(ctx, "user-1")
	require.NoError(t, err)

	later := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, service.MarkFeedSeen(ctx, "user-1", later))

	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, service.MarkFeedSeen(ctx, "user-1", earlier))

	require.True(t, repo.stats["user-1"].FeedLastSeenAt.Equal(later))
}

func TestLevelForXP_MonotonicAndStartsAtOne(t *testing.T) {
	require.Equal(t, 1, LevelForXP(0))
	require.Equal(t, 1, LevelForXP(50))
	prev := LevelForXP(0)
	for _, xp := range []int64{100, 500, 1000, 5000} {
		level := LevelForXP(xp)
		require.GreaterOrEqual(t, level, prev)
		prev = level
	}
}

func TestEffectiveXP_FloorsProductWithTrust(t *testing.T) {
	require.EqualValues(t, 50, EffectiveXP(100, 0.5))
	require.EqualValues(t, 99, EffectiveXP(100, 0.999))
}
