// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package feed

import (
	"context"
	"time"

	"github.com/taibuivan/mangatrack/internal/core/chapter"
)

// ActivityRepository is the data access contract for the append-only
// activity event log backing catalog-tier scoring.
type ActivityRepository interface {
	// Create persists a new ActivityEvent.
	Create(ctx context.Context, event *ActivityEvent) error
}

// UserFeedRepository is the data access contract for the reader-facing
// activity feed: FeedEntry rows scoped to one user's tracked series.
type UserFeedRepository interface {
	/*
		ListForUser returns FeedEntry rows for every series userID tracks in
		their library, newest first.

		Parameters:
		  - ctx: context.Context
		  - userID: string (UUID)
		  - onlyUnread: bool (restrict to entries after sinceSeenAt)
		  - sinceSeenAt: *time.Time (when set and onlyUnread is true, only
		    entries updated strictly after this watermark are returned)
		  - beforeUpdatedAt, beforeID: cursor position, the last_updated_at
		    and id of the previous page's final entry (nil and "" for the
		    first page)
		  - limit: int

		Returns:
		  - []*chapter.FeedEntry: page of entries, ordered by
		    (last_updated_at, id) descending
		  - error: Database retrieval failures
	*/
	ListForUser(ctx context.Context, userID string, onlyUnread bool, sinceSeenAt *time.Time, beforeUpdatedAt *time.Time, beforeID string, limit int) ([]*chapter.FeedEntry, error)
}
