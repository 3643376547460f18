// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package source

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taibuivan/mangatrack/internal/platform/database/schema"
	"github.com/taibuivan/mangatrack/internal/platform/dberr"
)

type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgreSQL-backed [Repository] over
// crawler.source.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func sourceColumns() string {
	t := schema.CrawlerSource
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s, %s, %s, %s",
		t.ID, t.Name, t.Slug, t.BaseURL, t.ExtensionID, t.Config,
		t.IsEnabled, t.ConsecutiveFails, t.CreatedAt, t.UpdatedAt)
}

func scanSource(row interface{ Scan(...any) error }) (*Source, error) {
	s := &Source{}
	err := row.Scan(&s.ID, &s.Name, &s.Slug, &s.BaseURL, &s.ExtensionID, &s.Config,
		&s.IsEnabled, &s.ConsecutiveFails, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (repository *PostgresRepository) ListSources(ctx context.Context, limit, offset int) ([]*Source, int, error) {
	t := schema.CrawlerSource
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY %s DESC, %s ASC
		LIMIT $1 OFFSET $2
	`, sourceColumns(), t.Table, t.IsEnabled, t.Name)
	countQuery := fmt.Sprintf("SELECT count(*) FROM %s", t.Table)

	var total int
	if err := repository.db.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, dberr.Wrap(err, "count_sources")
	}

	rows, err := repository.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, dberr.Wrap(err, "list_sources")
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, 0, dberr.Wrap(err, "scan_source")
		}
		sources = append(sources, s)
	}
	return sources, total, nil
}

func (repository *PostgresRepository) GetSource(ctx context.Context, id string) (*Source, error) {
	t := schema.CrawlerSource
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", sourceColumns(), t.Table, t.ID)

	s, err := scanSource(repository.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, dberr.Wrap(err, "get_source")
	}
	return s, nil
}

func (repository *PostgresRepository) FindByName(ctx context.Context, name string) (*Source, error) {
	t := schema.CrawlerSource
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", sourceColumns(), t.Table, t.Name)

	s, err := scanSource(repository.db.QueryRow(ctx, query, name))
	if err != nil {
		return nil, dberr.Wrap(err, "find_source_by_name")
	}
	return s, nil
}

func (repository *PostgresRepository) Create(ctx context.Context, s *Source) error {
	t := schema.CrawlerSource
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING %s, %s
	`,
		t.Table, t.ID, t.Name, t.Slug, t.BaseURL, t.ExtensionID, t.Config,
		t.IsEnabled, t.ConsecutiveFails, t.CreatedAt, t.UpdatedAt,
		t.CreatedAt, t.UpdatedAt,
	)

	err := repository.db.QueryRow(ctx, query,
		s.ID, s.Name, s.Slug, s.BaseURL, s.ExtensionID, s.Config, s.IsEnabled, s.ConsecutiveFails,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return dberr.Wrap(err, "create_source")
}

func (repository *PostgresRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	t := schema.CrawlerSource
	query := fmt.Sprintf("UPDATE %s SET %s = $2, %s = NOW() WHERE %s = $1",
		t.Table, t.IsEnabled, t.UpdatedAt, t.ID)

	cmd, err := repository.db.Exec(ctx, query, id, enabled)
	if err != nil {
		return dberr.Wrap(err, "set_source_enabled")
	}
	if cmd.RowsAffected() == 0 {
		return dberr.ErrNotFound
	}
	return nil
}

func (repository *PostgresRepository) RecordPollOutcome(ctx context.Context, name string, success bool) (int, error) {
	t := schema.CrawlerSource
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = CASE WHEN $2 THEN 0 ELSE %s + 1 END, %s = NOW()
		WHERE %s = $1
		RETURNING %s
	`, t.Table, t.ConsecutiveFails, t.ConsecutiveFails, t.UpdatedAt, t.Name, t.ConsecutiveFails)

	var fails int
	if err := repository.db.QueryRow(ctx, query, name, success).Scan(&fails); err != nil {
		return 0, dberr.Wrap(err, "record_source_poll_outcome")
	}
	return fails, nil
}
