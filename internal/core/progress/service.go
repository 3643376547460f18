// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/taibuivan/mangatrack/internal/core/chapter"
	"github.com/taibuivan/mangatrack/internal/core/library"
	"github.com/taibuivan/mangatrack/internal/core/trust"
	"github.com/taibuivan/mangatrack/internal/core/userstats"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/kvs"
)

// ActivityRecorder records a weighted "chapter_read" activity event. A thin
// seam to internal/core/feed.Service so this package never imports it
// directly; a failure to record is logged and swallowed, never fatal to the
// progress update itself.
type ActivityRecorder interface {
	RecordChapterRead(ctx context.Context, userID, seriesID string) error
}

// EntryLookup is the narrow slice of library.Service this package depends
// on, named so the dependency reads as behavior rather than a concrete type.
type EntryLookup interface {
	GetEntry(ctx context.Context, userID, id string) (*library.Entry, error)
	AdvanceLastRead(ctx context.Context, userID, id, chapterNumber string, readAt time.Time) (bool, error)
	MarkSeriesCompletionXPGranted(ctx context.Context, id string) (bool, error)
}

// Service implements the Progress Engine: monotonic last-read
// tracking, bulk UserChapterRead reconciliation, at-most-once XP awarding,
// and the bot heuristics/rate limits that gate it.
type Service struct {
	reads    ReadRepository
	library  EntryLookup
	chapters *chapter.Service
	stats    *userstats.Service
	trust    *trust.Service
	store    kvs.Store
	activity ActivityRecorder
	logger   *slog.Logger
}

// NewService constructs a new [Service]. activity may be nil until
// internal/core/feed is wired in cmd/api/main.go.
func NewService(reads ReadRepository, lib EntryLookup, chapters *chapter.Service, stats *userstats.Service, trustSvc *trust.Service, store kvs.Store, activity ActivityRecorder, logger *slog.Logger) *Service {
	return &Service{reads: reads, library: lib, chapters: chapters, stats: stats, trust: trustSvc, store: store, activity: activity, logger: logger}
}

/*
UpdateProgress applies one reader-submitted progress update.

Parameters:
  - ctx: context.Context
  - userID: string
  - entryID: string
  - input: Input

Returns:
  - *Result: what changed (target chapter, whether XP was awarded)
  - error: rate-limit, validation, not-found, or persistence errors
*/
func (service *Service) UpdateProgress(ctx context.Context, userID, entryID string, input Input) (*Result, error) {
	allowed, err := service.trust.AllowProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.RateLimited(5)
	}

	entry, err := service.library.GetEntry(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	if entry.SeriesID == nil {
		return nil, apperr.Unprocessable("series metadata not yet resolved for this entry")
	}
	seriesID := *entry.SeriesID

	current, _ := strconv.ParseFloat(entry.LastReadChapter, 64)

	target := current
	targetLabel := entry.LastReadChapter
	switch {
	case input.ChapterNumber != nil:
		target = *input.ChapterNumber
		targetLabel = chapter.CanonicalString(target)
	case input.ChapterSlug != "":
		found, lookupErr := service.chapters.FindChapterBySlug(ctx, seriesID, input.ChapterSlug)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if parsed, parseErr := strconv.ParseFloat(found.ChapterNumber, 64); parseErr == nil {
			target = parsed
			targetLabel = found.ChapterNumber
		}
	}

	isNewProgress := target > current

	timestamp := time.Now()
	if input.Timestamp != nil {
		timestamp = time.Unix(*input.Timestamp, 0)
	}

	if input.IsRead && !isNewProgress && current > 0 && target == current {
		service.trust.MaybeRecordViolation(ctx, userID, trust.ViolationRepeatedChapter,
			map[string]any{"entry_id": entryID, "chapter": targetLabel})
	}

	result := &Result{Target: targetLabel, IsNewProgress: isNewProgress}

	if input.IsRead && target >= 1 {
		chapters, listErr := service.chapters.ListUpToNumber(ctx, seriesID, target)
		if listErr != nil {
			return nil, listErr
		}

		alreadyReadTarget := false
		chapterIDs := make([]string, 0, len(chapters))
		for _, one := range chapters {
			chapterIDs = append(chapterIDs, one.ID)
			if one.ChapterNumber == targetLabel {
				if read, readErr := service.reads.IsRead(ctx, userID, one.ID); readErr == nil && read {
					alreadyReadTarget = true
				}
			}
		}
		result.AlreadyRead = alreadyReadTarget

		if err := service.reads.BulkMarkRead(ctx, userID, chapterIDs, timestamp, timestamp, input.DeviceID, input.SourceID); err != nil {
			return nil, err
		}

		if current > 0 {
			delta := target - current
			if delta >= 1 && delta <= 2 && service.trust.IsSuspiciousReadTime(input.ReadingTimeSeconds) {
				service.trust.MaybeRecordViolation(ctx, userID, trust.ViolationSuspiciousReadTime,
					map[string]any{"entry_id": entryID, "reading_time_seconds": input.ReadingTimeSeconds})
			}
		}

		if isNewProgress {
			advanced, err := service.library.AdvanceLastRead(ctx, userID, entryID, targetLabel, timestamp)
			if err != nil {
				return nil, err
			}

			// The conditional UPDATE behind AdvanceLastRead is the
			// authoritative advancement check: two concurrent calls can both
			// pass the target > current comparison above (current was read
			// from an unlocked snapshot), but only the one whose UPDATE
			// actually moved the row counts as an advancement. The loser
			// keeps its bulk-marked reads and loses only the XP claim.
			if !advanced {
				result.IsNewProgress = false
			} else if !alreadyReadTarget {
				// Bot signals (repeated chapter, suspicious read time) are
				// not a gate here: they lower trust_score, which taxes
				// leaderboard ranking, while the XP award itself is bounded
				// by alreadyReadTarget and the XP-grant rate limit inside
				// awardXP.
				if xpErr := service.awardXP(ctx, userID, seriesID, timestamp, result); xpErr != nil {
					return nil, xpErr
				}
			}
		}
	}

	if _, err := service.store.Incr(ctx, feedVersionKey(userID)); err != nil {
		service.logger.Error("progress_feed_invalidate_failed", slog.String("user_id", userID), slog.Any("error", err))
	}

	return result, nil
}

// awardXP grants XPPerChapter, gated by the XP-grant rate limit (a soft
// block: progress is already saved by the time this runs), records the
// chapter_read activity event, and bumps the reading streak.
func (service *Service) awardXP(ctx context.Context, userID, seriesID string, timestamp time.Time, result *Result) error {
	allowed, err := service.trust.AllowXPGrant(ctx, userID)
	if err != nil {
		return err
	}
	if !allowed {
		service.logger.Info("progress_xp_soft_blocked", slog.String("user_id", userID))
		return nil
	}

	if _, err := service.stats.AwardRead(ctx, userID, XPPerChapter, 1, timestamp); err != nil {
		return err
	}
	result.XPAwarded = XPPerChapter

	if service.activity != nil {
		if err := service.activity.RecordChapterRead(ctx, userID, seriesID); err != nil {
			service.logger.Error("progress_activity_record_failed", slog.String("user_id", userID), slog.Any("error", err))
		}
	}
	return nil
}

/*
AwardSeriesCompletion implements library.CompletionAwarder: grants
XPSeriesCompleted exactly once per entry, gated by the one-way
series_completion_xp_granted flag owned by internal/core/library.
*/
func (service *Service) AwardSeriesCompletion(ctx context.Context, userID, entryID string) error {
	granted, err := service.library.MarkSeriesCompletionXPGranted(ctx, entryID)
	if err != nil {
		return err
	}
	if !granted {
		return nil
	}
	_, err = service.stats.AwardRead(ctx, userID, XPSeriesCompleted, 0, time.Now())
	return err
}

/*
GuardStatusChange implements library.StatusGuard: enforces the status
rate limit and flags a rapid-toggle bot pattern without blocking the
change itself — status_toggle only lowers trust.
*/
func (service *Service) GuardStatusChange(ctx context.Context, userID, entryID string) error {
	allowed, err := service.trust.AllowStatusChange(ctx, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return apperr.RateLimited(12)
	}

	toggles, err := service.trust.RecordStatusToggle(ctx, userID, entryID)
	if err != nil {
		return err
	}
	if toggles > 3 {
		service.trust.MaybeRecordViolation(ctx, userID, trust.ViolationStatusToggle,
			map[string]any{"entry_id": entryID, "toggles": toggles})
	}
	return nil
}

func feedVersionKey(userID string) string {
	return fmt.Sprintf("feed:v:%s", userID)
}
