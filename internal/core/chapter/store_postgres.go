// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package chapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/database/schema"
	"github.com/taibuivan/mangatrack/internal/platform/dberr"
)

// # PostgreSQL Repository: Chapter

type chapterRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed [Repository].
func NewRepository(pool *pgxpool.Pool) Repository {
	return &chapterRepository{pool: pool}
}

var chapterColumns = fmt.Sprintf(
	"%s, %s, %s, %s, %s, %s, %s, %s, %s",
	schema.CoreChapter.ID,
	schema.CoreChapter.SeriesID,
	schema.CoreChapter.ChapterNumber,
	schema.CoreChapter.ChapterSlug,
	schema.CoreChapter.ChapterTitle,
	schema.CoreChapter.PublishedAt,
	schema.CoreChapter.FirstDetectedAt,
	schema.CoreChapter.CreatedAt,
	schema.CoreChapter.UpdatedAt,
)

func scanChapter(row pgx.Row) (*Chapter, error) {
	chapter := &Chapter{}
	err := row.Scan(
		&chapter.ID,
		&chapter.SeriesID,
		&chapter.ChapterNumber,
		&chapter.ChapterSlug,
		&chapter.ChapterTitle,
		&chapter.PublishedAt,
		&chapter.FirstDetectedAt,
		&chapter.CreatedAt,
		&chapter.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return chapter, nil
}

func (repository *chapterRepository) ListByComic(context context.Context, seriesID string, limit, offset int) ([]*Chapter, int, error) {
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() AS total
		FROM %s
		WHERE %s = $1 AND %s IS NULL
		ORDER BY (regexp_match(%s, '^-?\d+(\.\d+)?'))[1]::float8 ASC NULLS LAST
		LIMIT $2 OFFSET $3
	`,
		chapterColumns, schema.CoreChapter.Table,
		schema.CoreChapter.SeriesID, schema.CoreChapter.DeletedAt,
		schema.CoreChapter.ChapterNumber,
	)

	rows, err := repository.pool.Query(context, query, seriesID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []*Chapter
	var total int
	for rows.Next() {
		chapter := &Chapter{}
		if err := rows.Scan(
			&chapter.ID, &chapter.SeriesID, &chapter.ChapterNumber, &chapter.ChapterSlug,
			&chapter.ChapterTitle, &chapter.PublishedAt, &chapter.FirstDetectedAt,
			&chapter.CreatedAt, &chapter.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("postgres: failed to scan chapter: %w", err)
		}
		chapters = append(chapters, chapter)
	}
	return chapters, total, rows.Err()
}

func (repository *chapterRepository) ListUpToNumber(context context.Context, seriesID string, maxNumber float64) ([]*Chapter, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s = $1 AND %s IS NULL
			AND %s ~ '^[0-9]+(\.[0-9]+)?$'
			AND %s::numeric BETWEEN 1 AND $2
		ORDER BY %s::numeric ASC
	`,
		chapterColumns, schema.CoreChapter.Table,
		schema.CoreChapter.SeriesID, schema.CoreChapter.DeletedAt,
		schema.CoreChapter.ChapterNumber, schema.CoreChapter.ChapterNumber, schema.CoreChapter.ChapterNumber,
	)

	rows, err := repository.pool.Query(context, query, seriesID, maxNumber)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list chapters up to number: %w", err)
	}
	defer rows.Close()

	var chapters []*Chapter
	for rows.Next() {
		chapter, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan chapter: %w", err)
		}
		chapters = append(chapters, chapter)
	}
	return chapters, rows.Err()
}

func (repository *chapterRepository) FindNextAfter(context context.Context, seriesID string, number float64) (*Chapter, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s = $1 AND %s IS NULL
			AND %s ~ '^[0-9]+(\.[0-9]+)?$'
			AND %s::numeric > $2
		ORDER BY %s::numeric ASC
		LIMIT 1
	`,
		chapterColumns, schema.CoreChapter.Table,
		schema.CoreChapter.SeriesID, schema.CoreChapter.DeletedAt,
		schema.CoreChapter.ChapterNumber, schema.CoreChapter.ChapterNumber, schema.CoreChapter.ChapterNumber,
	)

	chapter, err := scanChapter(repository.pool.QueryRow(context, query, seriesID, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("chapter")
		}
		return nil, fmt.Errorf("postgres: failed to find next chapter: %w", err)
	}
	return chapter, nil
}

func (repository *chapterRepository) FindByID(context context.Context, id string) (*Chapter, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s IS NULL",
		chapterColumns, schema.CoreChapter.Table, schema.CoreChapter.ID, schema.CoreChapter.DeletedAt)

	chapter, err := scanChapter(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("chapter")
		}
		return nil, fmt.Errorf("postgres: failed to find chapter: %w", err)
	}
	return chapter, nil
}

func (repository *chapterRepository) FindByIdentity(context context.Context, seriesID, chapterNumber string) (*Chapter, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s = $2 AND %s IS NULL",
		chapterColumns, schema.CoreChapter.Table,
		schema.CoreChapter.SeriesID, schema.CoreChapter.ChapterNumber, schema.CoreChapter.DeletedAt)

	chapter, err := scanChapter(repository.pool.QueryRow(context, query, seriesID, chapterNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("chapter")
		}
		return nil, fmt.Errorf("postgres: failed to find chapter by identity: %w", err)
	}
	return chapter, nil
}

func (repository *chapterRepository) FindBySlug(context context.Context, seriesID, chapterSlug string) (*Chapter, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s = $2 AND %s IS NULL",
		chapterColumns, schema.CoreChapter.Table,
		schema.CoreChapter.SeriesID, schema.CoreChapter.ChapterSlug, schema.CoreChapter.DeletedAt)

	chapter, err := scanChapter(repository.pool.QueryRow(context, query, seriesID, chapterSlug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("chapter")
		}
		return nil, fmt.Errorf("postgres: failed to find chapter by slug: %w", err)
	}
	return chapter, nil
}

func (repository *chapterRepository) Create(context context.Context, chapter *Chapter) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		schema.CoreChapter.Table,
		schema.CoreChapter.ID, schema.CoreChapter.SeriesID, schema.CoreChapter.ChapterNumber,
		schema.CoreChapter.ChapterSlug, schema.CoreChapter.ChapterTitle,
		schema.CoreChapter.PublishedAt, schema.CoreChapter.FirstDetectedAt,
	)

	_, err := repository.pool.Exec(context, query,
		chapter.ID, chapter.SeriesID, chapter.ChapterNumber,
		chapter.ChapterSlug, chapter.ChapterTitle, chapter.PublishedAt,
		chapter.FirstDetectedAt,
	)
	if err != nil {
		return dberr.Wrap(err, "create chapter")
	}
	return nil
}

func (repository *chapterRepository) Update(context context.Context, chapter *Chapter) error {
	query := fmt.Sprintf(
		"UPDATE %s SET %s = $1, %s = $2, %s = $3, %s = NOW() WHERE %s = $4",
		schema.CoreChapter.Table,
		schema.CoreChapter.ChapterSlug, schema.CoreChapter.ChapterTitle, schema.CoreChapter.PublishedAt,
		schema.CoreChapter.UpdatedAt, schema.CoreChapter.ID,
	)

	result, err := repository.pool.Exec(context, query, chapter.ChapterSlug, chapter.ChapterTitle, chapter.PublishedAt, chapter.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update chapter: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("chapter")
	}
	return nil
}

func (repository *chapterRepository) SoftDelete(context context.Context, id string) error {
	query := fmt.Sprintf("UPDATE %s SET %s = NOW() WHERE %s = $1 AND %s IS NULL",
		schema.CoreChapter.Table, schema.CoreChapter.DeletedAt, schema.CoreChapter.ID, schema.CoreChapter.DeletedAt)

	result, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete chapter: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("chapter")
	}
	return nil
}

// # PostgreSQL Repository: ChapterSource

type sourceRepository struct {
	pool *pgxpool.Pool
}

// NewSourceRepository constructs a PostgreSQL-backed [SourceRepository].
func NewSourceRepository(pool *pgxpool.Pool) SourceRepository {
	return &sourceRepository{pool: pool}
}

var chapterSourceColumns = fmt.Sprintf(
	"%s, %s, %s, %s, %s, %s, %s, %s, %s, %s",
	schema.CrawlerChapterSource.ID,
	schema.CrawlerChapterSource.ChapterID,
	schema.CrawlerChapterSource.SeriesSourceID,
	schema.CrawlerChapterSource.SourceName,
	schema.CrawlerChapterSource.SourceChapterURL,
	schema.CrawlerChapterSource.SourceChapterID,
	schema.CrawlerChapterSource.SourcePublishedAt,
	schema.CrawlerChapterSource.DetectedAt,
	schema.CrawlerChapterSource.IsAvailable,
	schema.CrawlerChapterSource.CreatedAt,
)

func scanChapterSource(row pgx.Row) (*ChapterSource, error) {
	source := &ChapterSource{}
	err := row.Scan(
		&source.ID, &source.ChapterID, &source.SeriesSourceID, &source.SourceName,
		&source.SourceChapterURL, &source.SourceChapterID, &source.SourcePublishedAt,
		&source.DetectedAt, &source.IsAvailable, &source.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return source, nil
}

func (repository *sourceRepository) FindByIdentity(context context.Context, seriesSourceID, chapterID string) (*ChapterSource, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s = $2",
		chapterSourceColumns, schema.CrawlerChapterSource.Table,
		schema.CrawlerChapterSource.SeriesSourceID, schema.CrawlerChapterSource.ChapterID)

	source, err := scanChapterSource(repository.pool.QueryRow(context, query, seriesSourceID, chapterID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("chapter_source")
		}
		return nil, fmt.Errorf("postgres: failed to find chapter source: %w", err)
	}
	return source, nil
}

func (repository *sourceRepository) ListByChapter(context context.Context, chapterID string) ([]*ChapterSource, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY %s",
		chapterSourceColumns, schema.CrawlerChapterSource.Table,
		schema.CrawlerChapterSource.ChapterID, schema.CrawlerChapterSource.DetectedAt)

	rows, err := repository.pool.Query(context, query, chapterID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list chapter sources: %w", err)
	}
	defer rows.Close()

	var sources []*ChapterSource
	for rows.Next() {
		source, err := scanChapterSource(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan chapter source: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (repository *sourceRepository) Create(context context.Context, source *ChapterSource) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		schema.CrawlerChapterSource.Table,
		schema.CrawlerChapterSource.ID, schema.CrawlerChapterSource.ChapterID, schema.CrawlerChapterSource.SeriesSourceID,
		schema.CrawlerChapterSource.SourceName, schema.CrawlerChapterSource.SourceChapterURL, schema.CrawlerChapterSource.SourceChapterID,
		schema.CrawlerChapterSource.SourcePublishedAt, schema.CrawlerChapterSource.DetectedAt, schema.CrawlerChapterSource.IsAvailable,
	)

	_, err := repository.pool.Exec(context, query,
		source.ID, source.ChapterID, source.SeriesSourceID, source.SourceName,
		source.SourceChapterURL, source.SourceChapterID, source.SourcePublishedAt,
		source.DetectedAt, source.IsAvailable,
	)
	if err != nil {
		return dberr.Wrap(err, "create chapter source")
	}
	return nil
}

func (repository *sourceRepository) Update(context context.Context, source *ChapterSource) error {
	query := fmt.Sprintf(
		"UPDATE %s SET %s = $1, %s = $2, %s = $3, %s = NOW() WHERE %s = $4",
		schema.CrawlerChapterSource.Table,
		schema.CrawlerChapterSource.SourceChapterURL, schema.CrawlerChapterSource.SourcePublishedAt,
		schema.CrawlerChapterSource.IsAvailable, schema.CrawlerChapterSource.UpdatedAt, schema.CrawlerChapterSource.ID,
	)

	_, err := repository.pool.Exec(context, query, source.SourceChapterURL, source.SourcePublishedAt, source.IsAvailable, source.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update chapter source: %w", err)
	}
	return nil
}

func (repository *sourceRepository) UpdateDetectedAt(context context.Context, id string, detectedAt time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $2, %s = NOW() WHERE %s = $1",
		schema.CrawlerChapterSource.Table, schema.CrawlerChapterSource.DetectedAt,
		schema.CrawlerChapterSource.UpdatedAt, schema.CrawlerChapterSource.ID)

	_, err := repository.pool.Exec(context, query, id, detectedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to reorder detected_at: %w", err)
	}
	return nil
}

// # PostgreSQL Repository: FeedEntry

type feedRepository struct {
	pool *pgxpool.Pool
}

// NewFeedRepository constructs a PostgreSQL-backed [FeedRepository].
func NewFeedRepository(pool *pgxpool.Pool) FeedRepository {
	return &feedRepository{pool: pool}
}

var feedEntryColumns = fmt.Sprintf(
	"%s, %s, %s, %s, %s, %s",
	schema.FeedEntry.ID,
	schema.FeedEntry.SeriesID,
	schema.FeedEntry.ChapterNumber,
	schema.FeedEntry.LogicalChapterID,
	schema.FeedEntry.Sources,
	schema.FeedEntry.FirstDiscoveredAt,
)

func scanFeedEntry(row pgx.Row) (*FeedEntry, error) {
	entry := &FeedEntry{}
	var sourcesJSON []byte
	err := row.Scan(
		&entry.ID, &entry.SeriesID, &entry.ChapterNumber, &entry.LogicalChapterID,
		&sourcesJSON, &entry.FirstDiscoveredAt, &entry.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sourcesJSON, &entry.Sources); err != nil {
		return nil, fmt.Errorf("postgres: failed to unmarshal feed entry sources: %w", err)
	}
	return entry, nil
}

func (repository *feedRepository) FindByIdentity(context context.Context, seriesID, chapterNumber string) (*FeedEntry, error) {
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = $1 AND %s = $2",
		feedEntryColumns, schema.FeedEntry.LastUpdatedAt, schema.FeedEntry.Table,
		schema.FeedEntry.SeriesID, schema.FeedEntry.ChapterNumber)

	entry, err := scanFeedEntry(repository.pool.QueryRow(context, query, seriesID, chapterNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("feed_entry")
		}
		return nil, fmt.Errorf("postgres: failed to find feed entry: %w", err)
	}
	return entry, nil
}

func (repository *feedRepository) Create(context context.Context, entry *FeedEntry) error {
	sourcesJSON, err := json.Marshal(entry.Sources)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal feed entry sources: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`,
		schema.FeedEntry.Table,
		schema.FeedEntry.ID, schema.FeedEntry.SeriesID, schema.FeedEntry.ChapterNumber,
		schema.FeedEntry.LogicalChapterID, schema.FeedEntry.Sources,
		schema.FeedEntry.FirstDiscoveredAt, schema.FeedEntry.LastUpdatedAt,
	)

	_, err = repository.pool.Exec(context, query,
		entry.ID, entry.SeriesID, entry.ChapterNumber, entry.LogicalChapterID, sourcesJSON, entry.FirstDiscoveredAt,
	)
	if err != nil {
		return dberr.Wrap(err, "create feed entry")
	}
	return nil
}

func (repository *feedRepository) AppendSource(context context.Context, id string, ref FeedSourceRef) error {
	existingQuery := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", schema.FeedEntry.Sources, schema.FeedEntry.Table, schema.FeedEntry.ID)

	var sourcesJSON []byte
	if err := repository.pool.QueryRow(context, existingQuery, id).Scan(&sourcesJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("feed_entry")
		}
		return fmt.Errorf("postgres: failed to load feed entry sources: %w", err)
	}

	var sources []FeedSourceRef
	if err := json.Unmarshal(sourcesJSON, &sources); err != nil {
		return fmt.Errorf("postgres: failed to unmarshal feed entry sources: %w", err)
	}

	for _, existing := range sources {
		if existing.SourceName == ref.SourceName {
			return nil
		}
	}
	sources = append(sources, ref)

	updated, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal feed entry sources: %w", err)
	}

	updateQuery := fmt.Sprintf("UPDATE %s SET %s = $1, %s = NOW() WHERE %s = $2",
		schema.FeedEntry.Table, schema.FeedEntry.Sources, schema.FeedEntry.LastUpdatedAt, schema.FeedEntry.ID)

	if _, err := repository.pool.Exec(context, updateQuery, updated, id); err != nil {
		return fmt.Errorf("postgres: failed to append feed entry source: %w", err)
	}
	return nil
}

func (repository *feedRepository) ListRecent(context context.Context, limit int, before time.Time) ([]*FeedEntry, error) {
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s < $1 ORDER BY %s DESC LIMIT $2",
		feedEntryColumns, schema.FeedEntry.LastUpdatedAt, schema.FeedEntry.Table,
		schema.FeedEntry.LastUpdatedAt, schema.FeedEntry.LastUpdatedAt)

	rows, err := repository.pool.Query(context, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list feed entries: %w", err)
	}
	defer rows.Close()

	var entries []*FeedEntry
	for rows.Next() {
		entry, err := scanFeedEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan feed entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (repository *feedRepository) PruneOlderThan(context context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s < $1",
		schema.FeedEntry.Table, schema.FeedEntry.LastUpdatedAt)

	tag, err := repository.pool.Exec(context, query, cutoff)
	if err != nil {
		return 0, dberr.Wrap(err, "prune feed entries")
	}
	return tag.RowsAffected(), nil
}
