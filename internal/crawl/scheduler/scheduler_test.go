// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/mangatrack/internal/core/comic"
	"github.com/taibuivan/mangatrack/internal/crawl/gatekeeper"
	"github.com/taibuivan/mangatrack/internal/crawl/scheduler"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/circuit"
	"github.com/taibuivan/mangatrack/internal/platform/config"
	"github.com/taibuivan/mangatrack/internal/platform/kvs"
	"github.com/taibuivan/mangatrack/internal/platform/negcache"
	"github.com/taibuivan/mangatrack/internal/platform/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// # Fakes

type fakeSourceRepo struct {
	mu        sync.Mutex
	source    *comic.SeriesSource
	priority  comic.SyncPriority
	scheduled []time.Time
}

func (r *fakeSourceRepo) ListByComic(context.Context, string) ([]*comic.SeriesSource, error) {
	return nil, nil
}
func (r *fakeSourceRepo) FindByID(_ context.Context, id string) (*comic.SeriesSource, error) {
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
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *r.source
	return []*comic.SeriesSource{&copied}, nil
}
func (r *fakeSourceRepo) RecordCheckResult(context.Context, string, bool, time.Time) error {
	return nil
}
func (r *fakeSourceRepo) SetPriority(_ context.Context, _ string, priority comic.SyncPriority) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.priority = priority
	r.source.SyncPriority = priority
	return nil
}
func (r *fakeSourceRepo) SetStatusAndNextCheck(context.Context, string, comic.SourceStatus, time.Time) error {
	return nil
}
func (r *fakeSourceRepo) ScheduleNextCheck(_ context.Context, _ string, nextCheckAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, nextCheckAt)
	return nil
}
func (r *fakeSourceRepo) IncrementChapterCount(context.Context, string, int) error { return nil }

func (r *fakeSourceRepo) snapshot() (comic.SyncPriority, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.priority, len(r.scheduled)
}

type fakeSeries struct {
	comic *comic.Comic
}

func (f *fakeSeries) GetComic(context.Context, string) (*comic.Comic, error) {
	copied := *f.comic
	return &copied, nil
}

type noopMaintenance struct{}

func (noopMaintenance) RunTierMaintenance(context.Context) error { return nil }
func (noopMaintenance) ReenrichStale(context.Context, int) (int, error) {
	return 0, nil
}
func (noopMaintenance) PruneHardDeletable(context.Context, time.Duration, int) (int, error) {
	return 0, nil
}
func (noopMaintenance) DecayTrust(context.Context, float64, int) (int, error) { return 0, nil }
func (noopMaintenance) ReconcileChaptersRead(context.Context, int) (int64, error) {
	return 0, nil
}
func (noopMaintenance) RolloverSeason(context.Context, string) (int64, error) { return 0, nil }

// # Tests

func TestRun_TickEnqueuesDueSourceOnce(t *testing.T) {
	store := kvs.NewTestStore(t)
	queueMgr := queue.New(store, nil, testLogger())
	gk := gatekeeper.New(queueMgr, circuit.NewRegistry(), negcache.New(store, 3, time.Hour))

	repo := &fakeSourceRepo{source: &comic.SeriesSource{
		ID:           "source-1",
		ComicID:      "series-1",
		SourceName:   "examplesite",
		SyncPriority: comic.SyncPriorityWarm,
		SourceStatus: comic.SourceStatusActive,
	}}
	series := &fakeSeries{comic: &comic.Comic{
		ID:           "series-1",
		CatalogTier:  comic.CatalogTierA,
		TotalFollows: 150,
	}}

	cfg := config.Config{
		SchedulerTickSeconds:       1,
		SchedulerLockTTLSeconds:    2,
		SchedulerSyncBatchSize:     500,
		TrustDecayPerDay:           0.02,
		CleanupRetentionDays:       90,
		WorkerFailureRetentionDays: 30,
	}

	maintenance := noopMaintenance{}
	s := scheduler.New(store, queueMgr, gk, repo, series, maintenance, maintenance, maintenance, maintenance, nil, nil, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	// Wait for at least two ticks so the dedup path is exercised too.
	require.Eventually(t, func() bool {
		_, scheduled := repo.snapshot()
		return scheduled >= 2
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	<-done

	checkCtx := context.Background()

	// The sync job exists exactly once despite multiple ticks.
	exists, err := queueMgr.Exists(checkCtx, gatekeeper.SyncQueueName, "sync-source-1")
	require.NoError(t, err)
	require.True(t, exists)
	count, err := queueMgr.GetJobCounts(checkCtx, gatekeeper.SyncQueueName)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	// 150 followers promoted the source to HOT, and the Tier A / HOT
	// cadence was persisted.
	priority, _ := repo.snapshot()
	require.Equal(t, comic.SyncPriorityHot, priority)
	require.WithinDuration(t, time.Now().Add(30*time.Minute), repo.scheduled[0], 15*time.Second)
}
