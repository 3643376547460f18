// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comic

import (
	"context"
	"time"
)

// # Comic Data Access

// ComicRepository defines the data access contract for the comic domain.
type ComicRepository interface {
	/*
		List returns a filtered, paginated slice of comics and the total count.

		Parameters:
		  - context: context.Context
		  - filter: Filter (Criteria for status, tags, search, etc.)
		  - limit: int
		  - offset: int

		Returns:
		  - []*Comic: Slice of matching publication records
		  - int: Total count of records matching the filter
		  - error: Database retrieval failures
	*/
	List(context context.Context, filter Filter, limit, offset int) ([]*Comic, int, error)

	/*
		FindByID returns the comic with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - *Comic: The hydrated domain entity
		  - error: ErrNotFound if missing or soft-deleted
	*/
	FindByID(context context.Context, id string) (*Comic, error)

	/*
		FindBySlug returns the comic matching the unique SEO identifier.

		Parameters:
		  - context: context.Context
		  - slug: string

		Returns:
		  - *Comic: The hydrated domain entity
		  - error: ErrNotFound if missing
	*/
	FindBySlug(context context.Context, slug string) (*Comic, error)

	/*
		Create persists a new comic to the store.

		Parameters:
		  - context: context.Context
		  - comic: *Comic (Metadata and initial state)

		Returns:
		  - error: Storage or constraint failures
	*/
	Create(context context.Context, comic *Comic) error

	/*
		Update persists changes to an existing comic's mutable fields.

		Parameters:
		  - context: context.Context
		  - comic: *Comic (Target ID and modified attributes)

		Returns:
		  - error: Storage or validation failures
	*/
	Update(context context.Context, comic *Comic) error

	/*
		SoftDelete marks a comic as deleted without physical row removal.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - error: State update failures
	*/
	SoftDelete(context context.Context, id string) error

	/*
		IncrementViewCount atomically increments the view counter on a comic.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)
		  - delta: int64 (Amount to add)

		Returns:
		  - error: Atomic jump failure
	*/
	IncrementViewCount(context context.Context, id string, delta int64) error

	/*
		UpdateActivity persists the result of a RefreshActivityScore pass: the
		recomputed catalog tier, its human-readable reason, the decayed activity
		score, and the activity/chapter timestamps it was derived from.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)
		  - tier: CatalogTier
		  - reason: string (e.g. "chapter_detected_30d", "seeded", "decay")
		  - score: float64
		  - lastActivityAt: *time.Time
		  - lastChapterAt: *time.Time

		Returns:
		  - error: Storage failures
	*/
	UpdateActivity(context context.Context, id string, tier CatalogTier, reason string, score float64, lastActivityAt, lastChapterAt *time.Time) error

	/*
		IncrementFollowCount atomically adjusts both the display follow counter
		and the ingestion-facing TotalFollows counter used by tier classification.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)
		  - delta: int64 (+1 on follow, -1 on unfollow)

		Returns:
		  - error: Atomic update failure
	*/
	IncrementFollowCount(context context.Context, id string, delta int64) error

	/*
		UpdateLastChapterAtIfNewer advances last_chapter_at only if detectedAt
		is strictly after the current value (or it is unset), so a delayed
		gap-recovery replay can never rewind a series' freshness signal behind
		a chapter ingested after it.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)
		  - detectedAt: time.Time

		Returns:
		  - error: Storage failures
	*/
	UpdateLastChapterAtIfNewer(context context.Context, id string, detectedAt time.Time) error

	/*
		ListStaleTierA returns Tier A comics whose last_activity_at is older
		than cutoff, for the hard-demotion sub-scheduler (90 days inactive,
		unseeded). Comics with a nil last_activity_at (never scored) are
		excluded; RefreshActivityScore always sets it before a comic can reach
		Tier A in the first place.

		Parameters:
		  - context: context.Context
		  - cutoff: time.Time
		  - limit: int

		Returns:
		  - []*Comic: Stale Tier A comics, oldest last_activity_at first
		  - error: Database retrieval failures
	*/
	ListStaleTierA(context context.Context, cutoff time.Time, limit int) ([]*Comic, error)

	/*
		DecayActivityScores applies the weekly inactivity decay in bulk:
		every comic whose last_activity_at is older than cutoff has its
		activity_score reduced by decay (floored at 0) and its catalog_tier
		recomputed from the decayed score, in one statement.

		Parameters:
		  - context: context.Context
		  - cutoff: time.Time
		  - decay: float64 (points subtracted, e.g. 5 per week)

		Returns:
		  - int64: number of comics affected
		  - error: Storage failures
	*/
	DecayActivityScores(context context.Context, cutoff time.Time, decay float64) (int64, error)
}
