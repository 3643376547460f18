// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package search

import (
	"context"
	"time"
)

// Repository defines the data access contract for per-query search
// bookkeeping persisted in system.query_stats.
type Repository interface {
	// FindByKey returns the QueryStats row for normalizedKey. Returns
	// apperr.NotFound if the query has never been recorded.
	FindByKey(context context.Context, normalizedKey string) (*QueryStats, error)

	// RecordSearch upserts normalizedKey's row, incrementing total_searches
	// by one, and returns the row as it stands after the increment. Called
	// once per catalogue miss, independent of whether an external search is
	// ultimately enqueued.
	RecordSearch(context context.Context, normalizedKey string) (*QueryStats, error)

	// MarkEnqueued stamps last_enqueued_at, recording that an external
	// search job was actually created for normalizedKey at at.
	MarkEnqueued(context context.Context, normalizedKey string, at time.Time) error

	// MarkDeferred stamps last_deferred_at, recording that normalizedKey's
	// external search was pushed onto the weighted deferred queue instead of
	// running immediately.
	MarkDeferred(context context.Context, normalizedKey string, at time.Time) error
}
