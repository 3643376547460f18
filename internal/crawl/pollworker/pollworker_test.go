// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package pollworker_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/mangatrack/internal/core/comic"
	"github.com/taibuivan/mangatrack/internal/crawl/pollworker"
	"github.com/taibuivan/mangatrack/internal/crawl/sourceclient"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/circuit"
	"github.com/taibuivan/mangatrack/internal/platform/kvs"
	"github.com/taibuivan/mangatrack/internal/platform/negcache"
	"github.com/taibuivan/mangatrack/internal/platform/queue"
	"github.com/taibuivan/mangatrack/internal/platform/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// # SeriesSource repository fake

type checkResult struct {
	success     bool
	nextCheckAt time.Time
}

type fakeSourceRepo struct {
	source       *comic.SeriesSource
	checkResults []checkResult
	status       comic.SourceStatus
	statusNext   time.Time
	scheduled    []time.Time
}

func (r *fakeSourceRepo) ListByComic(context.Context, string) ([]*comic.SeriesSource, error) {
	return nil, nil
}
func (r *fakeSourceRepo) FindByID(_ context.Context, id string) (*comic.SeriesSource, error) {
	if r.source != nil && r.source.ID == id {
		return r.source, nil
	}
	return nil, apperr.NotFound("series_source")
}
func (r *fakeSourceRepo) FindBySourceIdentity(context.Context, string, string) (*comic.SeriesSource, error) {
	return nil, apperr.NotFound("series_source")
}
func (r *fakeSourceRepo) FindBySourceURL(context.Context, string) (*comic.SeriesSource, error) {
	return nil, apperr.NotFound("series_source")
}
func (r *fakeSourceRepo) Attach(context.Context, *comic.SeriesSource) error { return nil }
func (r *fakeSourceRepo) ListBySourceName(context.Context, string, int, int) ([]*comic.SeriesSource, int, error) {
	return nil, 0, nil
}
func (r *fakeSourceRepo) ListDue(context.Context, int) ([]*comic.SeriesSource, error) {
	return nil, nil
}
func (r *fakeSourceRepo) RecordCheckResult(_ context.Context, _ string, success bool, nextCheckAt time.Time) error {
	r.checkResults = append(r.checkResults, checkResult{success: success, nextCheckAt: nextCheckAt})
	return nil
}
func (r *fakeSourceRepo) SetPriority(context.Context, string, comic.SyncPriority) error { return nil }
func (r *fakeSourceRepo) SetStatusAndNextCheck(_ context.Context, _ string, status comic.SourceStatus, nextCheckAt time.Time) error {
	r.status = status
	r.statusNext = nextCheckAt
	return nil
}
func (r *fakeSourceRepo) ScheduleNextCheck(_ context.Context, _ string, nextCheckAt time.Time) error {
	r.scheduled = append(r.scheduled, nextCheckAt)
	return nil
}
func (r *fakeSourceRepo) IncrementChapterCount(context.Context, string, int) error { return nil }

type fakeSeries struct {
	comic *comic.Comic
}

func (f *fakeSeries) GetComic(_ context.Context, identifier string) (*comic.Comic, error) {
	if f.comic != nil && f.comic.ID == identifier {
		return f.comic, nil
	}
	return nil, apperr.NotFound("comic")
}

type scriptedClient struct {
	result *sourceclient.ScrapeResult
	err    error
}

func (c *scriptedClient) ScrapeSeries(context.Context, string, []string) (*sourceclient.ScrapeResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}
func (c *scriptedClient) ScrapeLatestUpdates(context.Context) ([]sourceclient.LatestUpdate, error) {
	return nil, nil
}

// # Harness

type harness struct {
	worker   *pollworker.Worker
	repo     *fakeSourceRepo
	clients  *sourceclient.Registry
	queueMgr *queue.Manager
	negative *negcache.Cache
	job      *queue.Job
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	repo := &fakeSourceRepo{source: &comic.SeriesSource{
		ID:           "source-1",
		ComicID:      "series-1",
		SourceName:   "examplesite",
		SourceID:     "ext-123",
		SourceURL:    "https://reader.example/series/ext-123",
		SyncPriority: comic.SyncPriorityHot,
		SourceStatus: comic.SourceStatusActive,
	}}
	series := &fakeSeries{comic: &comic.Comic{ID: "series-1", CatalogTier: comic.CatalogTierA}}

	store := kvs.NewTestStore(t)
	queueMgr := queue.New(store, nil, testLogger())
	clients := sourceclient.NewRegistry()
	limiter := ratelimit.New(store, nil, testLogger())
	breakers := circuit.NewRegistry()
	negative := negcache.New(store, 3, time.Hour)

	worker := pollworker.New(repo, series, clients, limiter, breakers, negative, queueMgr, queueMgr, nil, pollworker.Config{}, testLogger())

	payload, err := json.Marshal(pollworker.Payload{SourceID: "source-1", ComicID: "series-1"})
	require.NoError(t, err)
	job := &queue.Job{Payload: payload}

	return &harness{worker: worker, repo: repo, clients: clients, queueMgr: queueMgr, negative: negative, job: job}
}

// # Tests

func TestHandle_EmitsDedupedIngestJobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.clients.Register("examplesite", &scriptedClient{result: &sourceclient.ScrapeResult{
		SourceID: "ext-123",
		Chapters: []sourceclient.RawChapter{
			{Label: "Chapter 1", SourceChapterID: "c1", SourceChapterURL: "https://reader.example/1"},
			{Label: "Chapter 2", SourceChapterID: "c2", SourceChapterURL: "https://reader.example/2"},
		},
	}})

	require.NoError(t, h.worker.Handle(ctx, h.job))

	count, err := h.queueMgr.GetJobCounts(ctx, pollworker.IngestQueueName)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	// Replaying the same poll must not enqueue duplicates.
	require.NoError(t, h.worker.Handle(ctx, h.job))
	count, err = h.queueMgr.GetJobCounts(ctx, pollworker.IngestQueueName)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	require.Len(t, h.repo.checkResults, 2)
	require.True(t, h.repo.checkResults[0].success)
	// Tier A / HOT cadence.
	require.WithinDuration(t, time.Now().Add(30*time.Minute), h.repo.checkResults[0].nextCheckAt, 5*time.Second)
}

func TestHandle_EmptyResultFeedsNegativeCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.clients.Register("examplesite", &scriptedClient{result: &sourceclient.ScrapeResult{SourceID: "ext-123"}})

	for i := 0; i < 3; i++ {
		require.NoError(t, h.worker.Handle(ctx, h.job))
	}

	skip, err := h.negative.ShouldSkip(ctx, "source-1")
	require.NoError(t, err)
	require.True(t, skip)

	// Success bookkeeping still recorded: empty is not a failure.
	require.Len(t, h.repo.checkResults, 3)
	require.True(t, h.repo.checkResults[2].success)
}

func TestHandle_NoAdapterMarksSourceInactive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.worker.Handle(ctx, h.job))

	require.Equal(t, comic.SourceStatusInactive, h.repo.status)
	require.WithinDuration(t, time.Now().Add(7*24*time.Hour), h.repo.statusNext, 5*time.Second)
	require.Empty(t, h.repo.checkResults) // no retry accounting for a permanent condition
}

func TestHandle_RateLimitErrorBacksOffOneHour(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.clients.Register("examplesite", &scriptedClient{err: &sourceclient.RateLimitError{Source: "examplesite"}})

	require.NoError(t, h.worker.Handle(ctx, h.job))

	require.Len(t, h.repo.checkResults, 1)
	require.False(t, h.repo.checkResults[0].success)
	require.WithinDuration(t, time.Now().Add(time.Hour), h.repo.checkResults[0].nextCheckAt, 5*time.Second)
}

func TestHandle_ConsecutiveFailuresOpenBreakerAndMarkBroken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.clients.Register("examplesite", &scriptedClient{err: errors.New("connection reset")})

	for i := 0; i < 5; i++ {
		require.Error(t, h.worker.Handle(ctx, h.job))
	}

	// Breaker is now open: the next poll short-circuits and flips the
	// source to broken with a one-hour cooldown.
	require.NoError(t, h.worker.Handle(ctx, h.job))
	require.Equal(t, comic.SourceStatusBroken, h.repo.status)
	require.WithinDuration(t, time.Now().Add(time.Hour), h.repo.statusNext, 5*time.Second)
}
