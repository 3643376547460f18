// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package userstats

import (
	"context"
	"time"
)

// Service wraps [Repository] with the streak/level arithmetic that depends
// on comparing calendar days and a non-linear XP curve — logic that does
// not belong in SQL.
type Service struct {
	repo Repository
}

// NewService constructs a new [Service].
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a user's stats, creating the row on first access.
func (service *Service) Get(ctx context.Context, userID string) (*Stats, error) {
	return service.repo.GetOrCreate(ctx, userID)
}

/*
AwardRead applies one XP-bearing progress update: computes the reading
streak against the previous last_read_at, recomputes level from the new XP
total, and persists everything atomically.

Parameters:
  - ctx: context.Context
  - userID: string
  - xpDelta: int64 (XP_PER_CHAPTER, plus XP_SERIES_COMPLETED when applicable)
  - chaptersReadDelta: int64
  - readAt: time.Time

Returns:
  - *Stats: the stats row after the award
  - error: persistence errors
*/
func (service *Service) AwardRead(ctx context.Context, userID string, xpDelta, chaptersReadDelta int64, readAt time.Time) (*Stats, error) {
	previous, err := service.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	streakDays := computeStreak(previous.LastReadAt, previous.StreakDays, readAt)
	longestStreak := previous.LongestStreak
	if streakDays > longestStreak {
		longestStreak = streakDays
	}

	// Extending the streak to a new consecutive day earns the additive
	// streak bonus on top of the base award.
	award := xpDelta
	if xpDelta > 0 && streakDays > previous.StreakDays && streakDays > 1 {
		award += StreakBonusXP
	}

	newLevel := LevelForXP(previous.XP + award)

	if err := service.repo.ApplyReadAward(ctx, userID, award, newLevel, streakDays, longestStreak, chaptersReadDelta, readAt); err != nil {
		return nil, err
	}
	return service.repo.GetOrCreate(ctx, userID)
}

// computeStreak derives the new streak_days value: unchanged for a second
// read on the same calendar day, +1 for a read on the very next calendar
// day, reset to 1 otherwise (including the very first read).
func computeStreak(lastReadAt *time.Time, previousStreak int, readAt time.Time) int {
	if lastReadAt == nil {
		return 1
	}

	previousDay := lastReadAt.UTC().Truncate(24 * time.Hour)
	currentDay := readAt.UTC().Truncate(24 * time.Hour)
	dayDelta := int(currentDay.Sub(previousDay).Hours() / 24)

	switch {
	case dayDelta == 0:
		if previousStreak == 0 {
			return 1
		}
		return previousStreak
	case dayDelta == 1:
		return previousStreak + 1
	default:
		return 1
	}
}

// AdjustTrust applies a trust-score delta (positive for decay restoration,
// negative for a recorded violation), clamped to [0,1].
func (service *Service) AdjustTrust(ctx context.Context, userID string, delta float64) (float64, error) {
	return service.repo.AdjustTrustScore(ctx, userID, delta)
}

// MarkFeedSeen advances a user's feed watermark, ignored if seenAt is not
// strictly after the current watermark.
func (service *Service) MarkFeedSeen(ctx context.Context, userID string, seenAt time.Time) error {
	return service.repo.UpdateFeedLastSeenAtIfNewer(ctx, userID, seenAt)
}

// RolloverSeason resets every user's season_xp at a season boundary.
func (service *Service) RolloverSeason(ctx context.Context, newSeason string) (int64, error) {
	return service.repo.RolloverSeason(ctx, newSeason)
}

// ReconcileChaptersRead rewrites drifted chapters_read counters from the
// derived per-user read counts, called periodically by the Cleanup
// Scheduler. The derived count is authoritative.
func (service *Service) ReconcileChaptersRead(ctx context.Context, limit int) (int64, error) {
	return service.repo.ReconcileChaptersRead(ctx, limit)
}

// DecayTrust restores trustDecayPerDay to every user below maximum trust,
// called once per day by the Cleanup Scheduler.
func (service *Service) DecayTrust(ctx context.Context, trustDecayPerDay float64, limit int) (int, error) {
	userIDs, err := service.repo.ListBelowMaxTrust(ctx, limit)
	if err != nil {
		return 0, err
	}
	for _, userID := range userIDs {
		if _, err := service.repo.AdjustTrustScore(ctx, userID, trustDecayPerDay); err != nil {
			return 0, err
		}
	}
	return len(userIDs), nil
}
