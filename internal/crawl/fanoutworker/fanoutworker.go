// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package fanoutworker implements the feed fan-out stage: the
consumer of `feed-fanout` jobs emitted by internal/crawl/ingestworker once a
chapter has been reconciled. Its entire job is cache coherence — every
follower of the series must see the new chapter the next time they load
their feed, so each follower's `feed:v:<userId>` version key is bumped
exactly once per fan-out job.

This worker owns no storage of its own; it is a thin composition of
[FollowerFanout] (library.Service) and [FeedInvalidator] (feed.Service).
*/
package fanoutworker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/taibuivan/mangatrack/internal/platform/queue"
)

// QueueName is the queue this worker consumes, matching
// ingestworker.FanoutQueueName.
const QueueName = "feed-fanout"

// FollowerFanout resolves which users follow a series, so their feed
// caches can be invalidated.
type FollowerFanout interface {
	ListFollowerUserIDs(ctx context.Context, seriesID string) ([]string, error)
}

// FeedInvalidator bumps a single user's feed cache version, the mechanism
// that makes their next feed read observe the new chapter.
type FeedInvalidator interface {
	InvalidateUserFeed(ctx context.Context, userID string) error
}

// payload is the job body enqueued by internal/crawl/ingestworker.
type payload struct {
	SeriesID  string `json:"series_id"`
	ChapterID string `json:"chapter_id"`
}

// Worker implements the fan-out consumer.
type Worker struct {
	follows FollowerFanout
	feed    FeedInvalidator
	logger  *slog.Logger
}

// New constructs a [Worker].
func New(follows FollowerFanout, feed FeedInvalidator, logger *slog.Logger) *Worker {
	return &Worker{follows: follows, feed: feed, logger: logger}
}

// Handle is a [queue.Handler] for [QueueName]. It invalidates every
// follower's feed cache; a partial failure (some followers invalidated,
// others not) is safe to retry — InvalidateUserFeed is an idempotent
// counter bump, so re-running the whole job on a later attempt never
// double-counts a user's observable state.
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	var p payload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("fanoutworker: decode payload: %w", err)
	}

	userIDs, err := w.follows.ListFollowerUserIDs(ctx, p.SeriesID)
	if err != nil {
		return queue.Transient(err)
	}

	var firstErr error
	for _, userID := range userIDs {
		if err := w.feed.InvalidateUserFeed(ctx, userID); err != nil {
			w.logger.Error("fanout_invalidate_failed",
				slog.String("series_id", p.SeriesID), slog.String("user_id", userID), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return queue.Transient(firstErr)
	}
	return nil
}

// NotificationQueueName is the delayed queue chapter notifications are
// scheduled on by internal/crawl/ingestworker, matching its
// ingestworker.NotificationQueueName.
const NotificationQueueName = "notification-delivery"

// notificationPayload is the job body scheduled by the ingest worker.
type notificationPayload struct {
	SeriesID      string `json:"series_id"`
	ChapterNumber string `json:"chapter_number"`
}

// HandleNotification is a [queue.Handler] for [NotificationQueueName].
// Email/push transports live outside this system, so the handler's job is
// the part the pipeline owns: the tier-dependent delay has already
// collapsed rapid per-series bursts onto one job by the time it fires, and
// draining it here releases the jobId so the next chapter on the series can
// schedule a fresh one.
func (w *Worker) HandleNotification(ctx context.Context, job *queue.Job) error {
	var p notificationPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("fanoutworker: decode notification payload: %w", err)
	}

	w.logger.Info("chapter_notification_ready",
		slog.String("series_id", p.SeriesID), slog.String("chapter_number", p.ChapterNumber))
	return nil
}
