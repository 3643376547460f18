// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package search_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/mangatrack/internal/core/search"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/config"
	"github.com/taibuivan/mangatrack/internal/platform/kvs"
	"github.com/taibuivan/mangatrack/internal/platform/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		SearchStormThreshold:         3,
		SearchEnqueueCooldownSeconds: 30,
	}
}

type fakeRepository struct {
	rows map[string]*search.QueryStats
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{rows: map[string]*search.QueryStats{}}
}

func (r *fakeRepository) FindByKey(ctx context.Context, normalizedKey string) (*search.QueryStats, error) {
	stats, ok := r.rows[normalizedKey]
	if !ok {
		return nil, apperr.NotFound("query_stats")
	}
	return stats, nil
}

func (r *fakeRepository) RecordSearch(ctx context.Context, normalizedKey string) (*search.QueryStats, error) {
	stats, ok := r.rows[normalizedKey]
	if !ok {
		stats = &search.QueryStats{QueryKey: normalizedKey}
		r.rows[normalizedKey] = stats
	}
	stats.TotalSearches++
	return stats, nil
}

func (r *fakeRepository) MarkEnqueued(ctx context.Context, normalizedKey string, at time.Time) error {
	stats, ok := r.rows[normalizedKey]
	if !ok {
		return apperr.NotFound("query_stats")
	}
	stats.LastEnqueuedAt = &at
	return nil
}

func (r *fakeRepository) MarkDeferred(ctx context.Context, normalizedKey string, at time.Time) error {
	stats, ok := r.rows[normalizedKey]
	if !ok {
		return apperr.NotFound("query_stats")
	}
	stats.LastDeferredAt = &at
	return nil
}

func newService(t *testing.T) (*search.Service, *queue.Manager) {
	store := kvs.NewTestStore(t)
	mgr := queue.New(store, nil, testLogger())
	svc := search.NewService(newFakeRepository(), mgr, testConfig(), testLogger())
	return svc, mgr
}

func TestNormalize_CollapsesCaseAndSpaces(t *testing.T) {
	require.Equal(t, "one piece", search.Normalize("  One   Piece  "))
}

func TestEvaluateAndEnqueue_DeniesBelowThreshold(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	decision, err := svc.EvaluateAndEnqueue(ctx, "One Piece", search.TierFree)
	require.NoError(t, err)
	require.False(t, decision.Enqueued)
	require.Equal(t, search.ReasonBelowThreshold, decision.Reason)
}

func TestEvaluateAndEnqueue_AllowsOnceThresholdMet(t *testing.T) {
	svc, mgr := newService(t)
	ctx := context.Background()

	var last search.Decision
	var err error
	for i := 0; i < 3; i++ {
		last, err = svc.EvaluateAndEnqueue(ctx, "One Piece", search.TierFree)
		require.NoError(t, err)
	}
	require.True(t, last.Enqueued)

	exists, err := mgr.Exists(ctx, search.ExternalSearchQueueName, "one piece")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestEvaluateAndEnqueue_ThresholdIsCumulativeAcrossSessions(t *testing.T) {
	store := kvs.NewTestStore(t)
	mgr := queue.New(store, nil, testLogger())
	repo := newFakeRepository()
	svc := search.NewService(repo, mgr, testConfig(), testLogger())
	ctx := context.Background()

	// Two misses recorded long ago still count: the gate is the durable
	// total_searches counter, not a recent-activity window.
	repo.rows["one piece"] = &search.QueryStats{QueryKey: "one piece", TotalSearches: 2}

	decision, err := svc.EvaluateAndEnqueue(ctx, "One Piece", search.TierFree)
	require.NoError(t, err)
	require.True(t, decision.Enqueued)
}

func TestEvaluateAndEnqueue_CollapsesConcurrentMissesIntoOneJob(t *testing.T) {
	svc, mgr := newService(t)
	ctx := context.Background()

	enqueuedCount := 0
	for i := 0; i < 10; i++ {
		decision, err := svc.EvaluateAndEnqueue(ctx, "One Piece", search.TierFree)
		require.NoError(t, err)
		if decision.Enqueued {
			enqueuedCount++
		}
	}
	require.Equal(t, 1, enqueuedCount)

	count, err := mgr.GetJobCounts(ctx, search.ExternalSearchQueueName)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestEvaluateAndEnqueue_DeniesWithinCooldown(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.EvaluateAndEnqueue(ctx, "One Piece", search.TierFree)
		require.NoError(t, err)
	}

	decision, err := svc.EvaluateAndEnqueue(ctx, "One Piece", search.TierFree)
	require.NoError(t, err)
	require.False(t, decision.Enqueued)
	require.Equal(t, search.ReasonCooldown, decision.Reason)
}

func TestEvaluateAndEnqueue_DeniesWhileJobStillActive(t *testing.T) {
	// Cooldown disabled so the fourth miss reaches the active-job check
	// instead of being swallowed by the cooldown one step earlier.
	store := kvs.NewTestStore(t)
	mgr := queue.New(store, nil, testLogger())
	cfg := testConfig()
	cfg.SearchEnqueueCooldownSeconds = 0
	svc := search.NewService(newFakeRepository(), mgr, cfg, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.EvaluateAndEnqueue(ctx, "One Piece", search.TierFree)
		require.NoError(t, err)
	}

	decision, err := svc.EvaluateAndEnqueue(ctx, "One Piece", search.TierFree)
	require.NoError(t, err)
	require.False(t, decision.Enqueued)
	require.Equal(t, search.ReasonActiveJob, decision.Reason)
}
