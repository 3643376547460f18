// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package gatekeeper_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/mangatrack/internal/core/comic"
	"github.com/taibuivan/mangatrack/internal/crawl/gatekeeper"
	"github.com/taibuivan/mangatrack/internal/platform/circuit"
	"github.com/taibuivan/mangatrack/internal/platform/kvs"
	"github.com/taibuivan/mangatrack/internal/platform/negcache"
	"github.com/taibuivan/mangatrack/internal/platform/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGatekeeper(t *testing.T) (*gatekeeper.Gatekeeper, *queue.Manager, kvs.Store) {
	store := kvs.NewTestStore(t)
	mgr := queue.New(store, nil, testLogger())
	breakers := circuit.NewRegistry()
	negative := negcache.New(store, 3, time.Hour)
	return gatekeeper.New(mgr, breakers, negative), mgr, store
}

func TestShouldEnqueue_AllowsWhenClear(t *testing.T) {
	gk, _, _ := newGatekeeper(t)

	decision, err := gk.ShouldEnqueue(context.Background(), "source-1", comic.CatalogTierC, 0, gatekeeper.ReasonPeriodic)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, queue.PriorityStandard, decision.JobPriority)
}

func TestShouldEnqueue_DeniesWhenJobAlreadyQueued(t *testing.T) {
	gk, mgr, _ := newGatekeeper(t)
	ctx := context.Background()

	_, err := mgr.Add(ctx, gatekeeper.SyncQueueName, "poll", map[string]string{}, queue.AddOptions{JobID: "sync-source-1"})
	require.NoError(t, err)

	decision, err := gk.ShouldEnqueue(ctx, "source-1", comic.CatalogTierC, 0, gatekeeper.ReasonPeriodic)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, gatekeeper.DenyJobExists, decision.DenyReason)
}

func TestShouldEnqueue_DeniesWhenNegativeCacheSaysSkip(t *testing.T) {
	gk, _, store := newGatekeeper(t)
	ctx := context.Background()

	// The gatekeeper's cache skips at 3 consecutive empty results.
	negative := negcache.New(store, 3, time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, negative.RecordResult(ctx, "source-1", true))
	}

	decision, err := gk.ShouldEnqueue(ctx, "source-1", comic.CatalogTierC, 0, gatekeeper.ReasonPeriodic)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, gatekeeper.DenyNegativeCache, decision.DenyReason)
}

func TestShouldEnqueue_BoostsPriorityForTierA(t *testing.T) {
	gk, _, _ := newGatekeeper(t)

	decision, err := gk.ShouldEnqueue(context.Background(), "source-1", comic.CatalogTierA, 0, gatekeeper.ReasonPeriodic)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Less(t, decision.JobPriority, queue.PriorityStandard)
}

func TestShouldEnqueue_UserRequestNeverBoostsPastCritical(t *testing.T) {
	gk, _, _ := newGatekeeper(t)

	decision, err := gk.ShouldEnqueue(context.Background(), "source-1", comic.CatalogTierA, 1000, gatekeeper.ReasonUserRequest)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, queue.PriorityCritical, decision.JobPriority)
}
