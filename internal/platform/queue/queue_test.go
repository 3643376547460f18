// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package queue

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/mangatrack/internal/platform/kvs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAdd_DedupesByJobID(t *testing.T) {
	store := kvs.NewTestStore(t)
	mgr := New(store, nil, testLogger())
	ctx := context.Background()

	id1, err := mgr.Add(ctx, "sync-source", "poll", map[string]string{"a": "1"}, AddOptions{JobID: "sync-abc"})
	require.NoError(t, err)

	id2, err := mgr.Add(ctx, "sync-source", "poll", map[string]string{"a": "2"}, AddOptions{JobID: "sync-abc"})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	count, err := mgr.GetJobCounts(ctx, "sync-source")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestAdd_AllowsJobIDReuseAfterCompletion(t *testing.T) {
	store := kvs.NewTestStore(t)
	mgr := New(store, nil, testLogger())
	ctx := context.Background()

	id, err := mgr.Add(ctx, "sync-source", "poll", map[string]string{"a": "1"}, AddOptions{JobID: "sync-abc"})
	require.NoError(t, err)

	mgr.claimAndRun(ctx, "sync-source", id, func(ctx context.Context, job *Job) error {
		return nil
	}, DefaultBackoff)

	// The completed job released its dedup claim, so the next scheduler
	// pass can enqueue the same source again.
	_, err = mgr.Add(ctx, "sync-source", "poll", map[string]string{"a": "2"}, AddOptions{JobID: "sync-abc"})
	require.NoError(t, err)

	count, err := mgr.GetJobCounts(ctx, "sync-source")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestProcess_RetriesTransientThenDeadLetters(t *testing.T) {
	store := kvs.NewTestStore(t)

	dlq := &fakeDeadLetter{}
	mgr := New(store, dlq, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := mgr.Add(ctx, "ingest", "chapter", map[string]string{"x": "1"}, AddOptions{MaxAttempts: 2})
	require.NoError(t, err)

	var attempts atomic.Int64
	go mgr.Process(ctx, "ingest", func(ctx context.Context, job *Job) error {
		attempts.Add(1)
		return Transient(context.DeadlineExceeded)
	}, ProcessOptions{Concurrency: 1, PollInterval: 10 * time.Millisecond, Backoff: Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond}})

	<-ctx.Done()
	require.GreaterOrEqual(t, attempts.Load(), int64(1))
	require.Equal(t, 1, dlq.count())
}

type fakeDeadLetter struct {
	mu       sync.Mutex
	failures []string
}

func (f *fakeDeadLetter) WriteFailure(ctx context.Context, queueName, jobID string, payload json.RawMessage, cause string, attempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, jobID)
	return nil
}

func (f *fakeDeadLetter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.failures)
}
