// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/database/schema"
	"github.com/taibuivan/mangatrack/internal/platform/dberr"
)

// # PostgreSQL Repository: LibraryEntry

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed [Repository].
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

var entryColumns = fmt.Sprintf(
	"%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s",
	schema.LibraryEntry.ID,
	schema.LibraryEntry.UserID,
	schema.LibraryEntry.SeriesID,
	schema.LibraryEntry.SourceURL,
	schema.LibraryEntry.SourceName,
	schema.LibraryEntry.Status,
	schema.LibraryEntry.LastReadChapter,
	schema.LibraryEntry.LastReadAt,
	schema.LibraryEntry.UserRating,
	schema.LibraryEntry.PreferredSource,
	schema.LibraryEntry.MetadataStatus,
	schema.LibraryEntry.SeriesCompletionXPGranted,
	schema.LibraryEntry.CreatedAt,
	schema.LibraryEntry.UpdatedAt,
)

func scanEntry(row pgx.Row) (*Entry, error) {
	entry := &Entry{}
	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.SeriesID, &entry.SourceURL, &entry.SourceName,
		&entry.Status, &entry.LastReadChapter, &entry.LastReadAt, &entry.UserRating,
		&entry.PreferredSource, &entry.MetadataStatus, &entry.SeriesCompletionXPGranted,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *repository) ListByUser(ctx context.Context, userID string, filter Filter, limit, offset int) ([]*Entry, int, error) {
	conditions := []string{
		fmt.Sprintf("%s = $1", schema.LibraryEntry.UserID),
		fmt.Sprintf("%s IS NULL", schema.LibraryEntry.DeletedAt),
	}
	args := []any{userID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", schema.LibraryEntry.Status, len(args)))
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() AS total
		FROM %s
		WHERE %s
		ORDER BY %s DESC
		LIMIT $%d OFFSET $%d
	`,
		entryColumns, schema.LibraryEntry.Table,
		strings.Join(conditions, " AND "),
		schema.LibraryEntry.UpdatedAt,
		len(args)-1, len(args),
	)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to list library entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	var total int
	for rows.Next() {
		entry := &Entry{}
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.SeriesID, &entry.SourceURL, &entry.SourceName,
			&entry.Status, &entry.LastReadChapter, &entry.LastReadAt, &entry.UserRating,
			&entry.PreferredSource, &entry.MetadataStatus, &entry.SeriesCompletionXPGranted,
			&entry.CreatedAt, &entry.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("postgres: failed to scan library entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

func (r *repository) FindByID(ctx context.Context, userID, id string) (*Entry, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s = $2 AND %s IS NULL",
		entryColumns, schema.LibraryEntry.Table,
		schema.LibraryEntry.ID, schema.LibraryEntry.UserID, schema.LibraryEntry.DeletedAt)

	entry, err := scanEntry(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("library entry")
		}
		return nil, fmt.Errorf("postgres: failed to find library entry: %w", err)
	}
	return entry, nil
}

func (r *repository) FindByUserAndSource(ctx context.Context, userID, sourceURL string) (*Entry, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s = $2",
		entryColumns, schema.LibraryEntry.Table, schema.LibraryEntry.UserID, schema.LibraryEntry.SourceURL)

	entry, err := scanEntry(r.pool.QueryRow(ctx, query, userID, sourceURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("library entry")
		}
		return nil, fmt.Errorf("postgres: failed to find library entry by source: %w", err)
	}
	return entry, nil
}

func (r *repository) Create(ctx context.Context, entry *Entry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, '0', $7, $8, $9, false)
	`,
		schema.LibraryEntry.Table,
		schema.LibraryEntry.ID, schema.LibraryEntry.UserID, schema.LibraryEntry.SeriesID,
		schema.LibraryEntry.SourceURL, schema.LibraryEntry.SourceName, schema.LibraryEntry.Status,
		schema.LibraryEntry.LastReadChapter, schema.LibraryEntry.UserRating,
		schema.LibraryEntry.PreferredSource, schema.LibraryEntry.MetadataStatus,
		schema.LibraryEntry.SeriesCompletionXPGranted,
	)

	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.UserID, entry.SeriesID, entry.SourceURL, entry.SourceName, entry.Status,
		entry.UserRating, entry.PreferredSource, entry.MetadataStatus,
	)
	if err != nil {
		return dberr.Wrap(err, "create library entry")
	}
	return nil
}

func (r *repository) Restore(ctx context.Context, entry *Entry) error {
	query := fmt.Sprintf(`
		UPDATE %s SET %s = NULL, %s = $1, %s = $2, %s = $3, %s = NOW()
		WHERE %s = $4
	`,
		schema.LibraryEntry.Table,
		schema.LibraryEntry.DeletedAt, schema.LibraryEntry.Status,
		schema.LibraryEntry.MetadataStatus, schema.LibraryEntry.SeriesID,
		schema.LibraryEntry.UpdatedAt, schema.LibraryEntry.ID,
	)

	_, err := r.pool.Exec(ctx, query, entry.Status, entry.MetadataStatus, entry.SeriesID, entry.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to restore library entry: %w", err)
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, userID, id string, status Status, userRating *int, preferredSource *string) error {
	query := fmt.Sprintf(
		"UPDATE %s SET %s = $1, %s = $2, %s = $3, %s = NOW() WHERE %s = $4 AND %s = $5 AND %s IS NULL",
		schema.LibraryEntry.Table,
		schema.LibraryEntry.Status, schema.LibraryEntry.UserRating, schema.LibraryEntry.PreferredSource,
		schema.LibraryEntry.UpdatedAt, schema.LibraryEntry.ID, schema.LibraryEntry.UserID, schema.LibraryEntry.DeletedAt,
	)

	result, err := r.pool.Exec(ctx, query, status, userRating, preferredSource, id, userID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update library entry status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("library entry")
	}
	return nil
}

func (r *repository) BulkUpdateStatus(ctx context.Context, userID string, ids []string, status Status) (int, error) {
	query := fmt.Sprintf(
		"UPDATE %s SET %s = $1, %s = NOW() WHERE %s = ANY($2) AND %s = $3 AND %s IS NULL",
		schema.LibraryEntry.Table,
		schema.LibraryEntry.Status, schema.LibraryEntry.UpdatedAt,
		schema.LibraryEntry.ID, schema.LibraryEntry.UserID, schema.LibraryEntry.DeletedAt,
	)

	result, err := r.pool.Exec(ctx, query, status, ids, userID)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to bulk update library entries: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func (r *repository) SoftDelete(ctx context.Context, userID, id string) error {
	query := fmt.Sprintf("UPDATE %s SET %s = NOW() WHERE %s = $1 AND %s = $2 AND %s IS NULL",
		schema.LibraryEntry.Table, schema.LibraryEntry.DeletedAt,
		schema.LibraryEntry.ID, schema.LibraryEntry.UserID, schema.LibraryEntry.DeletedAt)

	result, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete library entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("library entry")
	}
	return nil
}

func (r *repository) UpdateMetadataStatus(ctx context.Context, id string, status MetadataStatus, seriesID *string) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $1, %s = $2, %s = NOW() WHERE %s = $3",
		schema.LibraryEntry.Table, schema.LibraryEntry.MetadataStatus, schema.LibraryEntry.SeriesID,
		schema.LibraryEntry.UpdatedAt, schema.LibraryEntry.ID)

	_, err := r.pool.Exec(ctx, query, status, seriesID, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update library entry metadata status: %w", err)
	}
	return nil
}

func (r *repository) ListStalePendingMetadata(ctx context.Context, limit int) ([]*Entry, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN ($1, $2) AND %s IS NULL ORDER BY %s ASC LIMIT $3",
		entryColumns, schema.LibraryEntry.Table, schema.LibraryEntry.MetadataStatus,
		schema.LibraryEntry.DeletedAt, schema.LibraryEntry.UpdatedAt)

	rows, err := r.pool.Query(ctx, query, MetadataStatusPending, MetadataStatusUnavailable, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list stale metadata entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan library entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *repository) ListHardDeletable(ctx context.Context, cutoff time.Time, limit int) ([]*Entry, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL AND %s < $1 LIMIT $2",
		entryColumns, schema.LibraryEntry.Table, schema.LibraryEntry.DeletedAt, schema.LibraryEntry.DeletedAt)

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list hard-deletable library entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan library entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *repository) HardDelete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", schema.LibraryEntry.Table, schema.LibraryEntry.ID)
	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to hard-delete library entry: %w", err)
	}
	return nil
}

// UpdateLastReadIfAdvancing casts both the stored and incoming chapter
// numbers to numeric for the comparison: chapter_number is always a
// canonical decimal string (or the sentinel "0"/"-1"), never free text, so
// the cast never fails.
func (r *repository) UpdateLastReadIfAdvancing(ctx context.Context, userID, id, chapterNumber string, readAt time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = $2, %s = NOW()
		WHERE %s = $3 AND %s = $4 AND %s IS NULL AND $1::numeric > %s::numeric
	`,
		schema.LibraryEntry.Table,
		schema.LibraryEntry.LastReadChapter, schema.LibraryEntry.LastReadAt, schema.LibraryEntry.UpdatedAt,
		schema.LibraryEntry.ID, schema.LibraryEntry.UserID, schema.LibraryEntry.DeletedAt,
		schema.LibraryEntry.LastReadChapter,
	)

	result, err := r.pool.Exec(ctx, query, chapterNumber, readAt, id, userID)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to advance last read chapter: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *repository) MarkSeriesCompletionXPGranted(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf(
		"UPDATE %s SET %s = true, %s = NOW() WHERE %s = $1 AND %s = false",
		schema.LibraryEntry.Table, schema.LibraryEntry.SeriesCompletionXPGranted, schema.LibraryEntry.UpdatedAt,
		schema.LibraryEntry.ID, schema.LibraryEntry.SeriesCompletionXPGranted,
	)

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to mark series completion xp granted: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *repository) ListUserIDsBySeries(ctx context.Context, seriesID string) ([]string, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s IS NULL",
		schema.LibraryEntry.UserID, schema.LibraryEntry.Table, schema.LibraryEntry.SeriesID, schema.LibraryEntry.DeletedAt)

	rows, err := r.pool.Query(ctx, query, seriesID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list followers by series: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan follower user id: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, rows.Err()
}
