// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package fanoutworker_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/mangatrack/internal/crawl/fanoutworker"
	"github.com/taibuivan/mangatrack/internal/platform/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFollows struct {
	bySeries map[string][]string
}

func (f *fakeFollows) ListFollowerUserIDs(_ context.Context, seriesID string) ([]string, error) {
	return f.bySeries[seriesID], nil
}

type fakeFeed struct {
	invalidations map[string]int
}

func (f *fakeFeed) InvalidateUserFeed(_ context.Context, userID string) error {
	f.invalidations[userID]++
	return nil
}

func TestHandle_InvalidatesEveryFollowerExactlyOnce(t *testing.T) {
	follows := &fakeFollows{bySeries: map[string][]string{
		"series-1": {"user-a", "user-b", "user-c"},
	}}
	feed := &fakeFeed{invalidations: map[string]int{}}
	w := fanoutworker.New(follows, feed, testLogger())

	payload, err := json.Marshal(map[string]string{"series_id": "series-1", "chapter_id": "chapter-1"})
	require.NoError(t, err)

	require.NoError(t, w.Handle(context.Background(), &queue.Job{Payload: payload}))

	require.Equal(t, 1, feed.invalidations["user-a"])
	require.Equal(t, 1, feed.invalidations["user-b"])
	require.Equal(t, 1, feed.invalidations["user-c"])
}

func TestHandle_NoFollowers_NoOp(t *testing.T) {
	follows := &fakeFollows{bySeries: map[string][]string{}}
	feed := &fakeFeed{invalidations: map[string]int{}}
	w := fanoutworker.New(follows, feed, testLogger())

	payload, err := json.Marshal(map[string]string{"series_id": "series-empty", "chapter_id": "chapter-2"})
	require.NoError(t, err)

	require.NoError(t, w.Handle(context.Background(), &queue.Job{Payload: payload}))
	require.Empty(t, feed.invalidations)
}
