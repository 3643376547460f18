// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ingestworker implements the Chapter Ingest Worker: the
consumer of `ingest-<sourceId>-<label>` jobs emitted by the
Source-Poll Worker. It reconciles one provider's raw chapter listing entry
into the canonical logical chapter graph — Chapter, ChapterSource,
FeedEntry — and fans the result out to followers' feeds and a
notification job.

Every step is an idempotent upsert: replaying the same
job any number of times converges to the same state. The one piece of
ordering that matters — gap-recovery back-dating `detected_at` — is
serialized per `(series, identityKey)` behind a distributed lock so two
workers racing on the same chapter never interleave their upserts.
*/
package ingestworker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/mangatrack/internal/core/chapter"
	"github.com/taibuivan/mangatrack/internal/core/comic"
	"github.com/taibuivan/mangatrack/internal/crawl/pollworker"
	"github.com/taibuivan/mangatrack/internal/crawl/sourceclient"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/kvs"
	"github.com/taibuivan/mangatrack/internal/platform/lock"
	"github.com/taibuivan/mangatrack/internal/platform/queue"
)

// QueueName is the queue this worker consumes, matching
// [pollworker.IngestQueueName].
const QueueName = pollworker.IngestQueueName

// GapRecoveryQueueName is the queue a detected chapter-number gap is
// replayed on.
const GapRecoveryQueueName = "gap-recovery"

// FanoutQueueName is the queue a successful ingest hands off to for
// per-follower cache invalidation.
const FanoutQueueName = "feed-fanout"

// NotificationQueueName is the queue a detected/updated chapter schedules a
// user-visible notification on. Delivery itself (email/push)
// is out of scope here; this worker only schedules the job.
const NotificationQueueName = "notification-delivery"

const (
	ingestLockTTL           = 30 * time.Second
	gapRecoveryDelay        = 60 * time.Second
	notificationNormalDelay = 10 * time.Minute
	notificationGapDelay    = 1 * time.Minute
	sourceHotPriorityWindow = 15 * time.Minute
)

// SeriesSourceLoader is the narrow slice of comic.SeriesSourceRepository
// this package needs: resolving a SeriesSource by id and bumping its
// priority/poll bookkeeping once a chapter is confirmed on it.
type SeriesSourceLoader interface {
	FindByID(ctx context.Context, id string) (*comic.SeriesSource, error)
	SetPriority(ctx context.Context, id string, priority comic.SyncPriority) error
	ScheduleNextCheck(ctx context.Context, id string, nextCheckAt time.Time) error
	IncrementChapterCount(ctx context.Context, id string, delta int) error
}

// SeriesAdvancer is the narrow slice of comic.Service this package depends
// on: loading a series and advancing its monotone last_chapter_at.
type SeriesAdvancer interface {
	GetComic(ctx context.Context, identifier string) (*comic.Comic, error)
	AdvanceLastChapterAt(ctx context.Context, id string, detectedAt time.Time) error
}

// ActivityRecorder is the narrow slice of feed.Service this package
// depends on for the weighted activity-score signals ingestion emits.
type ActivityRecorder interface {
	RecordChapterDetected(ctx context.Context, seriesID, chapterID string) error
	RecordChapterSourceAdded(ctx context.Context, seriesID, chapterID, sourceName string) error
}

// Worker implements the chapter-ingest flow. Per-follower feed cache
// invalidation is not done inline: it is handed off as a `feed-fanout` job
// so a retried ingest never re-bumps follower caches; internal/crawl/
// fanoutworker is the sole bumper, exactly once per fan-out job.
type Worker struct {
	chapters *chapter.Service
	sources  SeriesSourceLoader
	series   SeriesAdvancer
	activity ActivityRecorder
	clients  *sourceclient.Registry
	queue    *queue.Manager
	store    kvs.Store
	logger   *slog.Logger
}

// New constructs a [Worker].
func New(
	chapters *chapter.Service,
	sources SeriesSourceLoader,
	series SeriesAdvancer,
	activity ActivityRecorder,
	clients *sourceclient.Registry,
	queueManager *queue.Manager,
	store kvs.Store,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		chapters: chapters, sources: sources, series: series, activity: activity,
		clients: clients, queue: queueManager, store: store, logger: logger,
	}
}

// params is the fully-resolved input to ingestOne, shared by the ordinary
// ingest path (decoded straight off [pollworker.IngestPayload]) and the
// gap-recovery replay path (resolved from a fresh scrape targeted at the
// missing label).
type params struct {
	SeriesID          string
	SeriesSourceID    string
	SourceName        string
	Label             string
	Title             string
	SourceChapterID   string
	SourceChapterURL  string
	SourcePublishedAt *time.Time
	IsGapRecovery     bool
}

// Handle is a [queue.Handler] for [QueueName]: the ordinary, non-recovery
// ingest path.
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	var payload pollworker.IngestPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("ingestworker: decode payload: %w", err)
	}

	return w.ingestOne(ctx, params{
		SeriesID:          payload.ComicID,
		SeriesSourceID:    payload.SeriesSourceID,
		SourceName:        payload.SourceName,
		Label:             payload.Label,
		Title:             payload.Title,
		SourceChapterID:   payload.SourceChapterID,
		SourceChapterURL:  payload.SourceChapterURL,
		SourcePublishedAt: payload.SourcePublishedAt,
	})
}

// gapRecoveryPayload is the job body enqueued on [GapRecoveryQueueName].
type gapRecoveryPayload struct {
	SeriesID       string `json:"series_id"`
	SeriesSourceID string `json:"series_source_id"`
	MissingNumber  string `json:"missing_number"`
}

// HandleGapRecovery is a [queue.Handler] for [GapRecoveryQueueName]. It
// re-scrapes the single SeriesSource that produced the gap, targeted at the
// missing label, and ingests it under recovery semantics if the provider
// confirms it: the "preceding integer chapter is missing" path.
func (w *Worker) HandleGapRecovery(ctx context.Context, job *queue.Job) error {
	var payload gapRecoveryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("ingestworker: decode gap-recovery payload: %w", err)
	}

	source, err := w.sources.FindByID(ctx, payload.SeriesSourceID)
	if err != nil {
		if apperr.As(err) != nil {
			return nil
		}
		return queue.Transient(err)
	}

	client, ok := w.clients.Get(source.SourceName)
	if !ok {
		return nil
	}

	result, err := client.ScrapeSeries(ctx, source.SourceID, []string{payload.MissingNumber})
	if err != nil {
		return queue.Transient(err)
	}

	for _, raw := range result.Chapters {
		normalized := chapter.Normalize(raw.Label, raw.Title)
		if chapter.IdentityKey(normalized.Number) != payload.MissingNumber {
			continue
		}
		return w.ingestOne(ctx, params{
			SeriesID:          payload.SeriesID,
			SeriesSourceID:    payload.SeriesSourceID,
			SourceName:        source.SourceName,
			Label:             raw.Label,
			Title:             raw.Title,
			SourceChapterID:   raw.SourceChapterID,
			SourceChapterURL:  raw.SourceChapterURL,
			SourcePublishedAt: raw.PublishedAt,
			IsGapRecovery:     true,
		})
	}

	w.logger.Info("gap_recovery_not_confirmed",
		slog.String("series_id", payload.SeriesID), slog.String("missing_number", payload.MissingNumber))
	return nil
}

// ingestOne implements the per-chapter reconciliation, under a
// per-(series, identityKey) distributed lock so a replayed or concurrently
// re-delivered job for the same chapter can never interleave with another
// worker's upserts of the same row.
func (w *Worker) ingestOne(ctx context.Context, p params) error {
	normalized := chapter.Normalize(p.Label, p.Title)
	identityKey := chapter.IdentityKey(normalized.Number)

	lockKey := fmt.Sprintf("lock:ingest:%s:%s", p.SeriesID, identityKey)
	heldLock, err := lock.Acquire(ctx, w.store, lockKey, ingestLockTTL)
	if err != nil {
		return queue.Transient(err)
	}
	defer func() {
		if releaseErr := heldLock.Release(ctx); releaseErr != nil {
			w.logger.Error("ingest_lock_release_failed", slog.String("key", lockKey), slog.Any("error", releaseErr))
		}
	}()

	// Step 1: upsert the logical chapter.
	chapterResult, err := w.chapters.UpsertChapter(ctx, p.SeriesID, normalized, p.Title, p.SourcePublishedAt)
	if err != nil {
		return queue.Transient(err)
	}
	if chapterResult.Created {
		if err := w.activity.RecordChapterDetected(ctx, p.SeriesID, chapterResult.Chapter.ID); err != nil {
			w.logger.Error("activity_record_chapter_detected_failed", slog.Any("error", err))
		}
	}

	// Step 2: gap detection, only on the ordinary (non-recovery) path.
	if !p.IsGapRecovery && chapterResult.Created && normalized.Number != nil && *normalized.Number > 1 {
		w.maybeScheduleGapRecovery(ctx, p.SeriesID, p.SeriesSourceID, *normalized.Number)
	}

	// Step 3: compute detected_at.
	detectedAt := time.Now()
	if p.IsGapRecovery && normalized.Number != nil {
		if next, err := w.chapters.FindNextAfter(ctx, p.SeriesID, *normalized.Number); err == nil {
			detectedAt = next.FirstDetectedAt.Add(-time.Millisecond)
		} else if apperr.As(err) == nil {
			return queue.Transient(err)
		}
	}

	// Step 4: upsert the ChapterSource availability record.
	sourceResult, err := w.chapters.UpsertChapterSource(ctx, p.SeriesSourceID, chapterResult.Chapter.ID,
		p.SourceName, p.SourceChapterURL, p.SourceChapterID, p.SourcePublishedAt, detectedAt)
	if err != nil {
		return queue.Transient(err)
	}
	if sourceResult.Created {
		if err := w.sources.IncrementChapterCount(ctx, p.SeriesSourceID, 1); err != nil {
			w.logger.Error("ingest_increment_chapter_count_failed", slog.Any("error", err))
		}
		if err := w.sources.SetPriority(ctx, p.SeriesSourceID, comic.SyncPriorityHot); err != nil {
			w.logger.Error("ingest_bump_priority_failed", slog.Any("error", err))
		}
		if err := w.sources.ScheduleNextCheck(ctx, p.SeriesSourceID, time.Now().Add(sourceHotPriorityWindow)); err != nil {
			w.logger.Error("ingest_schedule_next_check_failed", slog.Any("error", err))
		}
		if err := w.activity.RecordChapterSourceAdded(ctx, p.SeriesID, chapterResult.Chapter.ID, p.SourceName); err != nil {
			w.logger.Error("activity_record_chapter_source_added_failed", slog.Any("error", err))
		}
	}

	// Step 5: advance the series' monotone last_chapter_at.
	if p.SourcePublishedAt != nil {
		if err := w.series.AdvanceLastChapterAt(ctx, p.SeriesID, *p.SourcePublishedAt); err != nil {
			w.logger.Error("ingest_advance_last_chapter_at_failed", slog.Any("error", err))
		}
	}

	// Step 6: upsert the reader-facing FeedEntry.
	if err := w.chapters.UpsertFeedEntry(ctx, p.SeriesID, chapterResult.Chapter.ID, chapterResult.Chapter.ChapterNumber, chapter.FeedSourceRef{
		SourceName:   p.SourceName,
		URL:          p.SourceChapterURL,
		DiscoveredAt: detectedAt,
	}); err != nil {
		return queue.Transient(err)
	}

	// Step 7: schedule a notification, collapsing rapid bursts by delay.
	notificationDelay := notificationNormalDelay
	if p.IsGapRecovery {
		notificationDelay = notificationGapDelay
	}
	notificationJobID := fmt.Sprintf("notify-%s-%s", p.SeriesID, chapterResult.Chapter.ChapterNumber)
	if _, err := w.queue.Add(ctx, NotificationQueueName, "chapter_notification", map[string]string{
		"series_id":      p.SeriesID,
		"chapter_number": chapterResult.Chapter.ChapterNumber,
	}, queue.AddOptions{JobID: notificationJobID, Delay: notificationDelay}); err != nil {
		w.logger.Error("ingest_notification_enqueue_failed", slog.Any("error", err))
	}

	// Step 8: fan out to followers' feed caches.
	fanoutJobID := fmt.Sprintf("fanout-%s-%s", p.SeriesSourceID, chapterResult.Chapter.ID)
	if _, err := w.queue.Add(ctx, FanoutQueueName, "feed_fanout", fanoutPayload{
		SeriesID:  p.SeriesID,
		ChapterID: chapterResult.Chapter.ID,
	}, queue.AddOptions{JobID: fanoutJobID}); err != nil {
		w.logger.Error("ingest_fanout_enqueue_failed", slog.Any("error", err))
	}

	return nil
}

// maybeScheduleGapRecovery implements gap detection: when the integer
// immediately preceding a newly-created chapter is missing, schedule a
// delayed, deduplicated replay targeted at that missing label.
func (w *Worker) maybeScheduleGapRecovery(ctx context.Context, seriesID, seriesSourceID string, number float64) {
	precedingInt := float64(int(number) - 1)
	if precedingInt < 1 {
		return
	}
	precedingKey := chapter.CanonicalString(precedingInt)

	_, err := w.chapters.FindByIdentity(ctx, seriesID, precedingKey)
	if err == nil {
		return // preceding chapter already present; no gap.
	}
	if apperr.As(err) == nil {
		w.logger.Error("gap_detection_lookup_failed", slog.String("series_id", seriesID), slog.Any("error", err))
		return
	}

	jobID := "gap-recovery-" + seriesID
	if _, err := w.queue.Add(ctx, GapRecoveryQueueName, "gap_recovery", gapRecoveryPayload{
		SeriesID:       seriesID,
		SeriesSourceID: seriesSourceID,
		MissingNumber:  precedingKey,
	}, queue.AddOptions{JobID: jobID, Priority: queue.PriorityHigh, Delay: gapRecoveryDelay}); err != nil {
		w.logger.Error("gap_recovery_enqueue_failed", slog.String("series_id", seriesID), slog.Any("error", err))
	}
}

// fanoutPayload is the job body handed off to [FanoutQueueName], consumed
// by internal/crawl/fanoutworker.
type fanoutPayload struct {
	SeriesID  string `json:"series_id"`
	ChapterID string `json:"chapter_id"`
}
