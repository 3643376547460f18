// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package library

import (
	"context"
	"time"
)

// Repository defines the data access contract for library entries.
type Repository interface {
	// ListByUser returns a user's tracked series, filtered and paginated.
	ListByUser(ctx context.Context, userID string, filter Filter, limit, offset int) ([]*Entry, int, error)

	// FindByID returns an entry by its own id, scoped to userID so one
	// user can never read or mutate another's entry (NotFound-not-
	// Forbidden convention to avoid cross-user enumeration).
	FindByID(ctx context.Context, userID, id string) (*Entry, error)

	// FindByUserAndSource looks up the entry uniquely identified by
	// (user_id, source_url), including soft-deleted rows — the functional
	// key a re-add upserts against (soft-deleted rows are restored).
	FindByUserAndSource(ctx context.Context, userID, sourceURL string) (*Entry, error)

	// Create persists a new entry.
	Create(ctx context.Context, entry *Entry) error

	// Restore clears deleted_at on a soft-deleted entry and resets its
	// mutable fields to the values in entry, used when an Add targets a
	// (user_id, source_url) pair that was previously removed.
	Restore(ctx context.Context, entry *Entry) error

	// UpdateStatus updates status, user_rating, and preferred_source.
	UpdateStatus(ctx context.Context, userID, id string, status Status, userRating *int, preferredSource *string) error

	// BulkUpdateStatus applies status to every id in ids owned by userID,
	// returning how many rows were actually updated.
	BulkUpdateStatus(ctx context.Context, userID string, ids []string, status Status) (int, error)

	// SoftDelete marks an entry as removed without physical row deletion.
	SoftDelete(ctx context.Context, userID, id string) error

	// UpdateMetadataStatus is called by the enrichment retry path and by
	// whatever resolves series_id after a successful match.
	UpdateMetadataStatus(ctx context.Context, id string, status MetadataStatus, seriesID *string) error

	// ListStalePendingMetadata returns entries stuck in "pending" or
	// "unavailable" metadata status, used by the scheduler's periodic
	// re-enrichment sweep.
	ListStalePendingMetadata(ctx context.Context, limit int) ([]*Entry, error)

	// ListHardDeletable returns soft-deleted entries older than cutoff, for
	// the Cleanup Scheduler's hard-delete pass.
	ListHardDeletable(ctx context.Context, cutoff time.Time, limit int) ([]*Entry, error)

	// HardDelete physically removes a row, used only by the cleanup sweep.
	HardDelete(ctx context.Context, id string) error

	// UpdateLastReadIfAdvancing sets last_read_chapter/last_read_at to
	// chapterNumber/readAt only if chapterNumber is numerically greater
	// than the entry's current last_read_chapter, enforcing the Progress
	// Engine's monotonic-progress invariant at the storage layer so a
	// stale or out-of-order client submission can never rewind it.
	// Returns whether the row actually advanced.
	UpdateLastReadIfAdvancing(ctx context.Context, userID, id, chapterNumber string, readAt time.Time) (bool, error)

	// MarkSeriesCompletionXPGranted flips the one-way
	// series_completion_xp_granted flag, returning false if it was already
	// set (the caller's signal to skip the completion-XP award a second
	// time).
	MarkSeriesCompletionXPGranted(ctx context.Context, id string) (bool, error)

	// ListUserIDsBySeries returns every user_id with a non-deleted entry
	// pointed at seriesID, the follower set the Fan-Out Worker invalidates
	// feed caches for.
	ListUserIDsBySeries(ctx context.Context, seriesID string) ([]string, error)
}
