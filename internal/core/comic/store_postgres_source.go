// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comic

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

// seriesSourceRepository implements [SeriesSourceRepository] using pgx.
type seriesSourceRepository struct {
	pool *pgxpool.Pool
}

// NewSeriesSourceRepository constructs a PostgreSQL backed SeriesSource store.
func NewSeriesSourceRepository(pool *pgxpool.Pool) SeriesSourceRepository {
	return &seriesSourceRepository{pool: pool}
}

var seriesSourceColumns = fmt.Sprintf(
	"%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s",
	schema.CrawlerComicSource.ID,
	schema.CrawlerComicSource.ComicID,
	schema.CrawlerComicSource.SourceName,
	schema.CrawlerComicSource.SourceIDExt,
	schema.CrawlerComicSource.SourceURL,
	schema.CrawlerComicSource.SyncPriority,
	schema.CrawlerComicSource.SourceStatus,
	schema.CrawlerComicSource.FailureCount,
	schema.CrawlerComicSource.LastCheckedAt,
	schema.CrawlerComicSource.LastSuccessAt,
	schema.CrawlerComicSource.NextCheckAt,
	schema.CrawlerComicSource.SourceChapterCount,
	schema.CrawlerComicSource.CreatedAt,
)

func scanSeriesSource(row pgx.Row) (*SeriesSource, error) {
	source := &SeriesSource{}
	err := row.Scan(
		&source.ID,
		&source.ComicID,
		&source.SourceName,
		&source.SourceID,
		&source.SourceURL,
		&source.SyncPriority,
		&source.SourceStatus,
		&source.FailureCount,
		&source.LastCheckedAt,
		&source.LastSuccessAt,
		&source.NextCheckAt,
		&source.SourceChapterCount,
		&source.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return source, nil
}

func (repository *seriesSourceRepository) ListByComic(ctx context.Context, comicID string) ([]*SeriesSource, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY %s",
		seriesSourceColumns, schema.CrawlerComicSource.Table, schema.CrawlerComicSource.ComicID, schema.CrawlerComicSource.CreatedAt)

	rows, err := repository.pool.Query(ctx, query, comicID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list series sources: %w", err)
	}
	defer rows.Close()

	var sources []*SeriesSource
	for rows.Next() {
		source, err := scanSeriesSource(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan series source: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (repository *seriesSourceRepository) ListBySourceName(ctx context.Context, sourceName string, limit, offset int) ([]*SeriesSource, int, error) {
	countQuery := fmt.Sprintf("SELECT count(*) FROM %s WHERE %s = $1",
		schema.CrawlerComicSource.Table, schema.CrawlerComicSource.SourceName)

	var total int
	if err := repository.pool.QueryRow(ctx, countQuery, sourceName).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to count series sources by source name: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY %s LIMIT $2 OFFSET $3",
		seriesSourceColumns, schema.CrawlerComicSource.Table, schema.CrawlerComicSource.SourceName, schema.CrawlerComicSource.CreatedAt)

	rows, err := repository.pool.Query(ctx, query, sourceName, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to list series sources by source name: %w", err)
	}
	defer rows.Close()

	var sources []*SeriesSource
	for rows.Next() {
		source, err := scanSeriesSource(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: failed to scan series source: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, total, rows.Err()
}

func (repository *seriesSourceRepository) FindByID(ctx context.Context, id string) (*SeriesSource, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		seriesSourceColumns, schema.CrawlerComicSource.Table, schema.CrawlerComicSource.ID)

	source, err := scanSeriesSource(repository.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("series_source")
		}
		return nil, fmt.Errorf("postgres: failed to find series source: %w", err)
	}
	return source, nil
}

func (repository *seriesSourceRepository) FindBySourceIdentity(ctx context.Context, sourceName, sourceID string) (*SeriesSource, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s = $2",
		seriesSourceColumns, schema.CrawlerComicSource.Table, schema.CrawlerComicSource.SourceName, schema.CrawlerComicSource.SourceIDExt)

	source, err := scanSeriesSource(repository.pool.QueryRow(ctx, query, sourceName, sourceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("series_source")
		}
		return nil, fmt.Errorf("postgres: failed to find series source by identity: %w", err)
	}
	return source, nil
}

func (repository *seriesSourceRepository) FindBySourceURL(ctx context.Context, sourceURL string) (*SeriesSource, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		seriesSourceColumns, schema.CrawlerComicSource.Table, schema.CrawlerComicSource.SourceURL)

	source, err := scanSeriesSource(repository.pool.QueryRow(ctx, query, sourceURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("series_source")
		}
		return nil, fmt.Errorf("postgres: failed to find series source by url: %w", err)
	}
	return source, nil
}

func (repository *seriesSourceRepository) Attach(ctx context.Context, source *SeriesSource) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`,
		schema.CrawlerComicSource.Table,
		schema.CrawlerComicSource.ID,
		schema.CrawlerComicSource.ComicID,
		schema.CrawlerComicSource.SourceName,
		schema.CrawlerComicSource.SourceIDExt,
		schema.CrawlerComicSource.SourceURL,
		schema.CrawlerComicSource.SyncPriority,
		schema.CrawlerComicSource.SourceStatus,
		schema.CrawlerComicSource.NextCheckAt,
	)

	_, err := repository.pool.Exec(ctx, query,
		source.ID, source.ComicID, source.SourceName, source.SourceID,
		source.SourceURL, source.SyncPriority, source.SourceStatus,
	)
	if err != nil {
		return dberr.Wrap(err, "attach source")
	}
	return nil
}

func (repository *seriesSourceRepository) ListDue(ctx context.Context, limit int) ([]*SeriesSource, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s <= NOW()
		ORDER BY CASE %s WHEN 'HOT' THEN 0 WHEN 'WARM' THEN 1 ELSE 2 END, %s
		LIMIT $1
	`,
		seriesSourceColumns, schema.CrawlerComicSource.Table,
		schema.CrawlerComicSource.NextCheckAt,
		schema.CrawlerComicSource.SyncPriority, schema.CrawlerComicSource.NextCheckAt,
	)

	rows, err := repository.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list due series sources: %w", err)
	}
	defer rows.Close()

	var sources []*SeriesSource
	for rows.Next() {
		source, err := scanSeriesSource(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan due series source: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (repository *seriesSourceRepository) RecordCheckResult(ctx context.Context, id string, success bool, nextCheckAt time.Time) error {
	var query string
	if success {
		query = fmt.Sprintf(`
			UPDATE %s SET %s = NOW(), %s = NOW(), %s = 0, %s = $2, %s = %s, %s = NOW()
			WHERE %s = $1
		`,
			schema.CrawlerComicSource.Table,
			schema.CrawlerComicSource.LastCheckedAt,
			schema.CrawlerComicSource.LastSuccessAt,
			schema.CrawlerComicSource.FailureCount,
			schema.CrawlerComicSource.NextCheckAt,
			schema.CrawlerComicSource.SourceStatus, pgActiveLiteral,
			schema.CrawlerComicSource.UpdatedAt,
			schema.CrawlerComicSource.ID,
		)
	} else {
		query = fmt.Sprintf(`
			UPDATE %s SET %s = NOW(), %s = %s + 1, %s = $2,
				%s = CASE WHEN %s + 1 >= 5 THEN %s ELSE %s END,
				%s = NOW()
			WHERE %s = $1
		`,
			schema.CrawlerComicSource.Table,
			schema.CrawlerComicSource.LastCheckedAt,
			schema.CrawlerComicSource.FailureCount, schema.CrawlerComicSource.FailureCount,
			schema.CrawlerComicSource.NextCheckAt,
			schema.CrawlerComicSource.SourceStatus, schema.CrawlerComicSource.FailureCount, pgBrokenLiteral, schema.CrawlerComicSource.SourceStatus,
			schema.CrawlerComicSource.UpdatedAt,
			schema.CrawlerComicSource.ID,
		)
	}

	result, err := repository.pool.Exec(ctx, query, id, nextCheckAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to record source check result: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("series_source")
	}
	return nil
}

// pgActiveLiteral/pgBrokenLiteral are quoted SQL literals for SourceStatus,
// kept as named constants so the CASE expressions above read clearly.
const (
	pgActiveLiteral = "'active'"
	pgBrokenLiteral = "'broken'"
)

func (repository *seriesSourceRepository) SetStatusAndNextCheck(ctx context.Context, id string, status SourceStatus, nextCheckAt time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $2, %s = $3, %s = NOW() WHERE %s = $1",
		schema.CrawlerComicSource.Table,
		schema.CrawlerComicSource.SourceStatus, schema.CrawlerComicSource.NextCheckAt,
		schema.CrawlerComicSource.UpdatedAt, schema.CrawlerComicSource.ID)

	result, err := repository.pool.Exec(ctx, query, id, status, nextCheckAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to set source status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("series_source")
	}
	return nil
}

func (repository *seriesSourceRepository) SetPriority(ctx context.Context, id string, priority SyncPriority) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $2, %s = NOW() WHERE %s = $1",
		schema.CrawlerComicSource.Table, schema.CrawlerComicSource.SyncPriority, schema.CrawlerComicSource.UpdatedAt, schema.CrawlerComicSource.ID)

	_, err := repository.pool.Exec(ctx, query, id, priority)
	if err != nil {
		return fmt.Errorf("postgres: failed to set source priority: %w", err)
	}
	return nil
}

func (repository *seriesSourceRepository) ScheduleNextCheck(ctx context.Context, id string, nextCheckAt time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $2, %s = NOW() WHERE %s = $1",
		schema.CrawlerComicSource.Table, schema.CrawlerComicSource.NextCheckAt, schema.CrawlerComicSource.UpdatedAt, schema.CrawlerComicSource.ID)

	_, err := repository.pool.Exec(ctx, query, id, nextCheckAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to schedule next check: %w", err)
	}
	return nil
}

func (repository *seriesSourceRepository) IncrementChapterCount(ctx context.Context, id string, delta int) error {
	query := fmt.Sprintf("UPDATE %s SET %s = %s + $2, %s = NOW() WHERE %s = $1",
		schema.CrawlerComicSource.Table,
		schema.CrawlerComicSource.SourceChapterCount, schema.CrawlerComicSource.SourceChapterCount,
		schema.CrawlerComicSource.UpdatedAt, schema.CrawlerComicSource.ID)

	_, err := repository.pool.Exec(ctx, query, id, delta)
	if err != nil {
		return fmt.Errorf("postgres: failed to increment source chapter count: %w", err)
	}
	return nil
}
