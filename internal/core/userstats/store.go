// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package userstats

import (
	"context"
	"time"
)

// Repository defines the data access contract for users.stats.
type Repository interface {
	// GetOrCreate returns a user's stats row, creating a zero-value row on
	// first access (registration does not pre-populate this table).
	GetOrCreate(ctx context.Context, userID string) (*Stats, error)

	// ApplyReadAward persists the result of one XP-bearing progress update:
	// bumps xp and season_xp by xpDelta, sets level/streak_days/
	// longest_streak to the caller-computed values, increments
	// chapters_read by chaptersReadDelta, and sets last_read_at to readAt.
	// Streak arithmetic and the level curve are computed by the caller
	// (userstats.Service) against the previously-read Stats, not derived in
	// SQL, since they depend on comparing calendar days and a non-linear
	// curve.
	ApplyReadAward(ctx context.Context, userID string, xpDelta int64, newLevel, streakDays, longestStreak int, chaptersReadDelta int64, readAt time.Time) error

	// AdjustTrustScore adds delta to trust_score, clamped to [0,1], and
	// returns the resulting value.
	AdjustTrustScore(ctx context.Context, userID string, delta float64) (float64, error)

	// UpdateFeedLastSeenAtIfNewer sets feed_last_seen_at to seenAt only if
	// it is currently unset or strictly earlier (watermark semantics:
	// a client replaying a stale "mark seen" can never rewind the
	// watermark).
	UpdateFeedLastSeenAtIfNewer(ctx context.Context, userID string, seenAt time.Time) error

	// RolloverSeason resets season_xp to zero for every user and sets
	// current_season to newSeason, returning the number of rows reset.
	// Called once by the Cleanup Scheduler at a season boundary.
	RolloverSeason(ctx context.Context, newSeason string) (int64, error)

	// ListBelowMaxTrust returns userIDs whose trust_score is below 1.0, the
	// candidate set for the periodic trust-decay sweep.
	ListBelowMaxTrust(ctx context.Context, limit int) ([]string, error)

	// ReconcileChaptersRead rewrites chapters_read to the derived count of
	// is_read rows for up to limit drifted users, returning how many rows
	// were corrected. The derived count is authoritative; the incremental
	// counter maintained by ApplyReadAward can drift under replayed or
	// partially-failed updates.
	ReconcileChaptersRead(ctx context.Context, limit int) (int64, error)
}
