// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/mangatrack/internal/core/chapter"
	"github.com/taibuivan/mangatrack/internal/platform/database/schema"
	"github.com/taibuivan/mangatrack/internal/platform/dberr"
	"github.com/taibuivan/mangatrack/pkg/uuid"
)

// # Activity Event Repository

type activityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository constructs a PostgreSQL-backed [ActivityRepository].
func NewActivityRepository(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepository{pool: pool}
}

func (repository *activityRepository) Create(context context.Context, event *ActivityEvent) error {
	if event.ID == "" {
		event.ID = uuid.New()
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())",
		schema.SystemActivityEvent.Table,
		schema.SystemActivityEvent.ID,
		schema.SystemActivityEvent.SeriesID,
		schema.SystemActivityEvent.ChapterID,
		schema.SystemActivityEvent.UserID,
		schema.SystemActivityEvent.SourceName,
		schema.SystemActivityEvent.EventType,
		schema.SystemActivityEvent.Weight,
		schema.SystemActivityEvent.CreatedAt,
	)

	_, err := repository.pool.Exec(context, query,
		event.ID, nullable(event.SeriesID), nullable(event.ChapterID), nullable(event.UserID),
		nullable(event.SourceName), string(event.EventType), event.Weight,
	)
	if err != nil {
		return dberr.Wrap(err, "create activity event")
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// # User Feed Repository

type userFeedRepository struct {
	pool *pgxpool.Pool
}

// NewUserFeedRepository constructs a PostgreSQL-backed [UserFeedRepository].
func NewUserFeedRepository(pool *pgxpool.Pool) UserFeedRepository {
	return &userFeedRepository{pool: pool}
}

/*
ListForUser joins feed.entry against library.entry to answer "what's new
in this reader's library", the query behind `GET /api/v1/feed/activity`.

It deliberately does not live in internal/core/chapter: that package owns
FeedEntry's identity and upsert semantics, not the cross-domain question of
which entries a given user should see.
*/
func (repository *userFeedRepository) ListForUser(context context.Context, userID string, onlyUnread bool, sinceSeenAt *time.Time, beforeUpdatedAt *time.Time, beforeID string, limit int) ([]*chapter.FeedEntry, error) {
	var builder strings.Builder
	args := []any{userID}
	argID := 2

	builder.WriteString(fmt.Sprintf(`
		SELECT fe.%s, fe.%s, fe.%s, fe.%s, fe.%s, fe.%s, fe.%s
		FROM %s fe
		JOIN %s le ON le.%s = fe.%s
		WHERE le.%s = $1 AND le.%s IS NULL
	`,
		schema.FeedEntry.ID, schema.FeedEntry.SeriesID, schema.FeedEntry.ChapterNumber,
		schema.FeedEntry.LogicalChapterID, schema.FeedEntry.Sources,
		schema.FeedEntry.FirstDiscoveredAt, schema.FeedEntry.LastUpdatedAt,
		schema.FeedEntry.Table,
		schema.LibraryEntry.Table, schema.LibraryEntry.SeriesID, schema.FeedEntry.SeriesID,
		schema.LibraryEntry.UserID, schema.LibraryEntry.DeletedAt,
	))

	if onlyUnread && sinceSeenAt != nil {
		builder.WriteString(fmt.Sprintf(" AND fe.%s > $%d", schema.FeedEntry.LastUpdatedAt, argID))
		args = append(args, *sinceSeenAt)
		argID++
	}

	if beforeUpdatedAt != nil && beforeID != "" {
		builder.WriteString(fmt.Sprintf(
			" AND (fe.%s, fe.%s) < ($%d, $%d)",
			schema.FeedEntry.LastUpdatedAt, schema.FeedEntry.ID, argID, argID+1,
		))
		args = append(args, *beforeUpdatedAt, beforeID)
		argID += 2
	}

	builder.WriteString(fmt.Sprintf(" ORDER BY fe.%s DESC, fe.%s DESC LIMIT $%d", schema.FeedEntry.LastUpdatedAt, schema.FeedEntry.ID, argID))
	args = append(args, limit)

	rows, err := repository.pool.Query(context, builder.String(), args...)
	if err != nil {
		return nil, dberr.Wrap(err, "list user feed")
	}
	defer rows.Close()

	var entries []*chapter.FeedEntry
	for rows.Next() {
		entry := &chapter.FeedEntry{}
		var sourcesJSON []byte
		if err := rows.Scan(
			&entry.ID, &entry.SeriesID, &entry.ChapterNumber, &entry.LogicalChapterID,
			&sourcesJSON, &entry.FirstDiscoveredAt, &entry.LastUpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan user feed entry: %w", err)
		}
		if err := json.Unmarshal(sourcesJSON, &entry.Sources); err != nil {
			return nil, fmt.Errorf("postgres: failed to unmarshal user feed entry sources: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
