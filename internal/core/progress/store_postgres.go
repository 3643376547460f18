// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package progress

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

type readRepository struct {
	pool *pgxpool.Pool
}

// NewReadRepository constructs a PostgreSQL-backed [ReadRepository].
func NewReadRepository(pool *pgxpool.Pool) ReadRepository {
	return &readRepository{pool: pool}
}

func (repository *readRepository) BulkMarkRead(ctx context.Context, userID string, chapterIDs []string, readAt, updatedAt time.Time, deviceID, sourceUsedID *string) error {
	if len(chapterIDs) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, TRUE, $3, $4, $5, $6)
		ON CONFLICT (%s, %s) DO UPDATE SET
			%s = TRUE, %s = $3, %s = $4, %s = $5, %s = $6
		WHERE %s.%s <= $3
	`,
		schema.CoreUserRead.Table,
		schema.CoreUserRead.UserID, schema.CoreUserRead.ChapterID, schema.CoreUserRead.IsRead,
		schema.CoreUserRead.UpdatedAt, schema.CoreUserRead.ReadAt, schema.CoreUserRead.DeviceID,
		schema.CoreUserRead.SourceUsedID,
		schema.CoreUserRead.UserID, schema.CoreUserRead.ChapterID,
		schema.CoreUserRead.IsRead, schema.CoreUserRead.UpdatedAt, schema.CoreUserRead.ReadAt,
		schema.CoreUserRead.DeviceID, schema.CoreUserRead.SourceUsedID,
		schema.CoreUserRead.Table, schema.CoreUserRead.UpdatedAt,
	)

	batch := &pgx.Batch{}
	for _, chapterID := range chapterIDs {
		batch.Queue(query, userID, chapterID, updatedAt, readAt, deviceID, sourceUsedID)
	}

	results := repository.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range chapterIDs {
		if _, err := results.Exec(); err != nil {
			return dberr.Wrap(err, "bulk mark chapters read")
		}
	}
	return nil
}

func (repository *readRepository) IsRead(ctx context.Context, userID, chapterID string) (bool, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s = $2",
		schema.CoreUserRead.IsRead, schema.CoreUserRead.Table,
		schema.CoreUserRead.UserID, schema.CoreUserRead.ChapterID)

	var isRead bool
	err := repository.pool.QueryRow(ctx, query, userID, chapterID).Scan(&isRead)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("postgres: failed to check chapter read state: %w", err)
	}
	return isRead, nil
}
