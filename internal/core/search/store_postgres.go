// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/database/schema"
	"github.com/taibuivan/mangatrack/internal/platform/dberr"
)

// postgresRepository implements [Repository] using pgx.
type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgreSQL-backed [Repository].
func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

var queryStatsColumns = fmt.Sprintf(
	"%s, %s, %s, %s, %s, %s",
	schema.SystemQueryStats.QueryKey,
	schema.SystemQueryStats.TotalSearches,
	schema.SystemQueryStats.LastEnqueuedAt,
	schema.SystemQueryStats.LastDeferredAt,
	schema.SystemQueryStats.CreatedAt,
	schema.SystemQueryStats.UpdatedAt,
)

func scanQueryStats(row pgx.Row) (*QueryStats, error) {
	stats := &QueryStats{}
	err := row.Scan(
		&stats.QueryKey,
		&stats.TotalSearches,
		&stats.LastEnqueuedAt,
		&stats.LastDeferredAt,
		&stats.CreatedAt,
		&stats.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *postgresRepository) FindByKey(ctx context.Context, normalizedKey string) (*QueryStats, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		queryStatsColumns, schema.SystemQueryStats.Table, schema.SystemQueryStats.QueryKey)

	stats, err := scanQueryStats(r.pool.QueryRow(ctx, query, normalizedKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("query_stats")
		}
		return nil, fmt.Errorf("postgres: failed to find query stats: %w", err)
	}
	return stats, nil
}

func (r *postgresRepository) RecordSearch(ctx context.Context, normalizedKey string) (*QueryStats, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s)
		VALUES ($1, 1, NOW(), NOW())
		ON CONFLICT (%s) DO UPDATE SET %s = %s.%s + 1, %s = NOW()
		RETURNING %s
	`,
		schema.SystemQueryStats.Table,
		schema.SystemQueryStats.QueryKey, schema.SystemQueryStats.TotalSearches,
		schema.SystemQueryStats.CreatedAt, schema.SystemQueryStats.UpdatedAt,
		schema.SystemQueryStats.QueryKey,
		schema.SystemQueryStats.TotalSearches, schema.SystemQueryStats.Table, schema.SystemQueryStats.TotalSearches,
		schema.SystemQueryStats.UpdatedAt,
		queryStatsColumns,
	)

	stats, err := scanQueryStats(r.pool.QueryRow(ctx, query, normalizedKey))
	if err != nil {
		return nil, dberr.Wrap(err, "record search")
	}
	return stats, nil
}

func (r *postgresRepository) MarkEnqueued(ctx context.Context, normalizedKey string, at time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $2, %s = NOW() WHERE %s = $1",
		schema.SystemQueryStats.Table, schema.SystemQueryStats.LastEnqueuedAt,
		schema.SystemQueryStats.UpdatedAt, schema.SystemQueryStats.QueryKey)

	_, err := r.pool.Exec(ctx, query, normalizedKey, at)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark query enqueued: %w", err)
	}
	return nil
}

func (r *postgresRepository) MarkDeferred(ctx context.Context, normalizedKey string, at time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $2, %s = NOW() WHERE %s = $1",
		schema.SystemQueryStats.Table, schema.SystemQueryStats.LastDeferredAt,
		schema.SystemQueryStats.UpdatedAt, schema.SystemQueryStats.QueryKey)

	_, err := r.pool.Exec(ctx, query, normalizedKey, at)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark query deferred: %w", err)
	}
	return nil
}
