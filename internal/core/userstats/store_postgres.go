// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package userstats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taibuivan/mangatrack/internal/platform/database/schema"
	"github.com/taibuivan/mangatrack/internal/platform/dberr"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed [Repository].
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

var statsColumns = fmt.Sprintf(
	"%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s",
	schema.UserStats.UserID,
	schema.UserStats.XP,
	schema.UserStats.Level,
	schema.UserStats.StreakDays,
	schema.UserStats.LongestStreak,
	schema.UserStats.LastReadAt,
	schema.UserStats.ChaptersRead,
	schema.UserStats.TrustScore,
	schema.UserStats.SeasonXP,
	schema.UserStats.CurrentSeason,
	schema.UserStats.FeedLastSeenAt,
	schema.UserStats.UpdatedAt,
)

func scanStats(row pgx.Row) (*Stats, error) {
	stats := &Stats{}
	err := row.Scan(
		&stats.UserID, &stats.XP, &stats.Level, &stats.StreakDays, &stats.LongestStreak,
		&stats.LastReadAt, &stats.ChaptersRead, &stats.TrustScore, &stats.SeasonXP,
		&stats.CurrentSeason, &stats.FeedLastSeenAt, &stats.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (repository *repository) GetOrCreate(ctx context.Context, userID string) (*Stats, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", statsColumns, schema.UserStats.Table, schema.UserStats.UserID)

	stats, err := scanStats(repository.pool.QueryRow(ctx, query, userID))
	if err == nil {
		return stats, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: failed to find user stats: %w", err)
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, 0, 1, 0, 0, 1.0, 'default')
		ON CONFLICT (%s) DO NOTHING
	`,
		schema.UserStats.Table,
		schema.UserStats.UserID, schema.UserStats.XP, schema.UserStats.Level,
		schema.UserStats.StreakDays, schema.UserStats.LongestStreak, schema.UserStats.TrustScore,
		schema.UserStats.CurrentSeason,
		schema.UserStats.UserID,
	)
	if _, err := repository.pool.Exec(ctx, insert, userID); err != nil {
		return nil, dberr.Wrap(err, "create user stats")
	}

	stats, err = scanStats(repository.pool.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load user stats after creation: %w", err)
	}
	return stats, nil
}

func (repository *repository) ApplyReadAward(ctx context.Context, userID string, xpDelta int64, newLevel, streakDays, longestStreak int, chaptersReadDelta int64, readAt time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			%s = %s + $2,
			%s = %s + $2,
			%s = $3,
			%s = $4,
			%s = $5,
			%s = %s + $6,
			%s = $7,
			%s = NOW()
		WHERE %s = $1
	`,
		schema.UserStats.Table,
		schema.UserStats.XP, schema.UserStats.XP,
		schema.UserStats.SeasonXP, schema.UserStats.SeasonXP,
		schema.UserStats.Level,
		schema.UserStats.StreakDays,
		schema.UserStats.LongestStreak,
		schema.UserStats.ChaptersRead, schema.UserStats.ChaptersRead,
		schema.UserStats.LastReadAt,
		schema.UserStats.UpdatedAt,
		schema.UserStats.UserID,
	)

	_, err := repository.pool.Exec(ctx, query, userID, xpDelta, newLevel, streakDays, longestStreak, chaptersReadDelta, readAt)
	if err != nil {
		return dberr.Wrap(err, "apply read award")
	}
	return nil
}

func (repository *repository) AdjustTrustScore(ctx context.Context, userID string, delta float64) (float64, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET %s = GREATEST(0.0, LEAST(1.0, %s + $2)), %s = NOW()
		WHERE %s = $1
		RETURNING %s
	`,
		schema.UserStats.Table,
		schema.UserStats.TrustScore, schema.UserStats.TrustScore,
		schema.UserStats.UpdatedAt,
		schema.UserStats.UserID,
		schema.UserStats.TrustScore,
	)

	var trustScore float64
	if err := repository.pool.QueryRow(ctx, query, userID, delta).Scan(&trustScore); err != nil {
		return 0, fmt.Errorf("postgres: failed to adjust trust score: %w", err)
	}
	return trustScore, nil
}

func (repository *repository) UpdateFeedLastSeenAtIfNewer(ctx context.Context, userID string, seenAt time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $2, %s = NOW()
		WHERE %s = $1 AND (%s IS NULL OR %s < $2)
	`,
		schema.UserStats.Table,
		schema.UserStats.FeedLastSeenAt,
		schema.UserStats.UpdatedAt,
		schema.UserStats.UserID,
		schema.UserStats.FeedLastSeenAt, schema.UserStats.FeedLastSeenAt,
	)

	_, err := repository.pool.Exec(ctx, query, userID, seenAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to update feed watermark: %w", err)
	}
	return nil
}

func (repository *repository) RolloverSeason(ctx context.Context, newSeason string) (int64, error) {
	// Only rows still on an older season reset, so repeated calls with the
	// same season label are no-ops and the rollover is safe to run every
	// scheduler tick.
	query := fmt.Sprintf("UPDATE %s SET %s = 0, %s = $1, %s = NOW() WHERE %s IS DISTINCT FROM $1",
		schema.UserStats.Table, schema.UserStats.SeasonXP, schema.UserStats.CurrentSeason,
		schema.UserStats.UpdatedAt, schema.UserStats.CurrentSeason)

	result, err := repository.pool.Exec(ctx, query, newSeason)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to roll over season: %w", err)
	}
	return result.RowsAffected(), nil
}

func (repository *repository) ReconcileChaptersRead(ctx context.Context, limit int) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s AS stats
		SET %s = derived.actual, %s = NOW()
		FROM (
			SELECT stats.%s AS userid, count(reads.%s) AS actual
			FROM %s AS stats
			LEFT JOIN %s AS reads
				ON reads.%s = stats.%s AND reads.%s = TRUE
			GROUP BY stats.%s
		) AS derived
		WHERE stats.%s = derived.userid
			AND stats.%s <> derived.actual
			AND stats.%s IN (
				SELECT %s FROM %s LIMIT $1
			)
	`,
		schema.UserStats.Table,
		schema.UserStats.ChaptersRead, schema.UserStats.UpdatedAt,
		schema.UserStats.UserID, schema.CoreUserRead.ChapterID,
		schema.UserStats.Table,
		schema.CoreUserRead.Table,
		schema.CoreUserRead.UserID, schema.UserStats.UserID, schema.CoreUserRead.IsRead,
		schema.UserStats.UserID,
		schema.UserStats.UserID,
		schema.UserStats.ChaptersRead,
		schema.UserStats.UserID,
		schema.UserStats.UserID, schema.UserStats.Table,
	)

	result, err := repository.pool.Exec(ctx, query, limit)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to reconcile chapters_read: %w", err)
	}
	return result.RowsAffected(), nil
}

func (repository *repository) ListBelowMaxTrust(ctx context.Context, limit int) ([]string, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s < 1.0 LIMIT $1",
		schema.UserStats.UserID, schema.UserStats.Table, schema.UserStats.TrustScore)

	rows, err := repository.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list users below max trust: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
